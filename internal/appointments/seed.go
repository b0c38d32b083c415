package appointments

import (
	"context"
	"fmt"
)

// DefaultDoctors is the clinic roster seeded on first start.
var DefaultDoctors = []Doctor{
	{ID: 1, Name: "Dr. Sarah Johnson", Specialization: "general", Email: "sarah@clinic.example.com"},
	{ID: 2, Name: "Dr. Michael Chen", Specialization: "cardiology", Email: "michael@clinic.example.com"},
	{ID: 3, Name: "Dr. Emily Williams", Specialization: "dermatology", Email: "emily@clinic.example.com"},
	{ID: 4, Name: "Dr. James Brown", Specialization: "neurology", Email: "james@clinic.example.com"},
	{ID: 5, Name: "Dr. Mohit Adoni", Specialization: "general", Email: "mohit.adoni@clinic.example.com", Phone: "+15555550105"},
}

// SeedDoctors inserts the default roster when the store has no doctors yet.
// It returns the number of doctors inserted.
func SeedDoctors(ctx context.Context, store Store) (int, error) {
	existing, err := store.ListDoctors(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, d := range DefaultDoctors {
		doctor := d
		doctor.AvailableFrom, doctor.AvailableTo = doctor.WorkingHours()
		if err := store.CreateDoctor(ctx, &doctor); err != nil {
			return 0, fmt.Errorf("appointments: seed %s: %w", d.Name, err)
		}
	}
	return len(DefaultDoctors), nil
}

// DoctorNames returns display names in roster order.
func DoctorNames(doctors []Doctor) []string {
	names := make([]string, 0, len(doctors))
	for _, d := range doctors {
		names = append(names, d.Name)
	}
	return names
}

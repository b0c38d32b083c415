package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used in development and tests.
// A single mutex serializes writes, so the slot check and insert are atomic.
type MemoryStore struct {
	mu            sync.RWMutex
	doctors       map[int64]Doctor
	appointments  map[int64]Appointment
	visits        map[int64]Visit
	prescriptions map[int64]Prescription

	nextDoctor       int64
	nextAppointment  int64
	nextVisit        int64
	nextPrescription int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors:       make(map[int64]Doctor),
		appointments:  make(map[int64]Appointment),
		visits:        make(map[int64]Visit),
		prescriptions: make(map[int64]Prescription),
	}
}

func (s *MemoryStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	if !ok {
		return nil, notFound("doctor", id)
	}
	return &d, nil
}

func (s *MemoryStore) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doctor.ID == 0 {
		s.nextDoctor++
		for s.doctors[s.nextDoctor].ID != 0 {
			s.nextDoctor++
		}
		doctor.ID = s.nextDoctor
	} else if doctor.ID > s.nextDoctor {
		s.nextDoctor = doctor.ID
	}
	if doctor.CreatedAt.IsZero() {
		doctor.CreatedAt = time.Now().UTC()
	}
	s.doctors[doctor.ID] = *doctor
	return nil
}

func (s *MemoryStore) BookedTimes(ctx context.Context, doctorID int64, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status.Active() {
			out = append(out, a.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) CreateAppointment(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.appointments {
		if existing.DoctorID == appt.DoctorID && existing.Date == appt.Date &&
			existing.Time == appt.Time && existing.Status.Active() {
			return ErrSlotTaken
		}
	}
	s.nextAppointment++
	now := time.Now().UTC()
	appt.ID = s.nextAppointment
	appt.CreatedAt = now
	appt.UpdatedAt = now
	if d, ok := s.doctors[appt.DoctorID]; ok && appt.DoctorName == "" {
		appt.DoctorName = d.Name
	}
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, notFound("appointment", id)
	}
	return &a, nil
}

func (s *MemoryStore) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, notFound("appointment", id)
	}
	if a.Status == StatusCancelled {
		return &a, ErrAlreadyCancelled
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now().UTC()
	s.appointments[id] = a
	return &a, nil
}

func (s *MemoryStore) SetCalendarEvent(ctx context.Context, id int64, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return notFound("appointment", id)
	}
	a.CalendarEventID = eventID
	s.appointments[id] = a
	return nil
}

func (s *MemoryStore) ListAppointments(ctx context.Context, filter Filter) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if !matchesFilter(a, filter) {
			continue
		}
		out = append(out, a)
	}
	sortMostRecentFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateVisit(ctx context.Context, visit *Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVisit++
	now := time.Now().UTC()
	visit.ID = s.nextVisit
	visit.CreatedAt = now
	visit.UpdatedAt = now
	s.visits[visit.ID] = *visit
	return nil
}

func (s *MemoryStore) GetVisit(ctx context.Context, id int64) (*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visits[id]
	if !ok {
		return nil, notFound("visit", id)
	}
	return &v, nil
}

func (s *MemoryStore) VisitByAppointment(ctx context.Context, appointmentID int64) (*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.visits {
		if v.AppointmentID == appointmentID {
			return &v, nil
		}
	}
	return nil, notFound("visit for appointment", appointmentID)
}

func (s *MemoryStore) UpdateVisitNotes(ctx context.Context, visitID int64, diagnosis, notes string) (*Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[visitID]
	if !ok {
		return nil, notFound("visit", visitID)
	}
	v.Diagnosis = diagnosis
	v.DoctorNotes = notes
	v.UpdatedAt = time.Now().UTC()
	s.visits[visitID] = v
	return &v, nil
}

func (s *MemoryStore) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Visit
	for _, v := range s.visits {
		if filter.PatientEmail != "" && !strings.EqualFold(v.PatientEmail, filter.PatientEmail) {
			continue
		}
		if filter.DoctorID != 0 && v.DoctorID != filter.DoctorID {
			continue
		}
		if filter.DateFrom != "" && v.VisitDate < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && v.VisitDate > filter.DateTo {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VisitDate != out[j].VisitDate {
			return out[i].VisitDate > out[j].VisitDate
		}
		if out[i].VisitTime != out[j].VisitTime {
			return out[i].VisitTime > out[j].VisitTime
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CreatePrescription(ctx context.Context, p *Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visits[p.VisitID]; !ok {
		return notFound("visit", p.VisitID)
	}
	s.nextPrescription++
	p.ID = s.nextPrescription
	p.CreatedAt = time.Now().UTC()
	s.prescriptions[p.ID] = *p
	return nil
}

func (s *MemoryStore) ListPrescriptions(ctx context.Context, visitID int64) ([]Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Prescription
	for _, p := range s.prescriptions {
		if p.VisitID == visitID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesFilter(a Appointment, f Filter) bool {
	if f.PatientEmail != "" && !strings.EqualFold(a.PatientEmail, f.PatientEmail) {
		return false
	}
	if f.DoctorID != 0 && a.DoctorID != f.DoctorID {
		return false
	}
	if f.DateFrom != "" && a.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && a.Date > f.DateTo {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

func sortMostRecentFirst(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		if list[i].Time != list[j].Time {
			return list[i].Time > list[j].Time
		}
		return list[i].ID > list[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)

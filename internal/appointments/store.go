package appointments

import "context"

// Store persists doctors, appointments and visit history.
//
// CreateAppointment must reject a second active appointment for the same
// (doctor_id, date, time) with ErrSlotTaken atomically, so that concurrent
// bookings produce exactly one row.
type Store interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
	CreateDoctor(ctx context.Context, doctor *Doctor) error

	BookedTimes(ctx context.Context, doctorID int64, date string) ([]string, error)
	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	// CancelAppointment returns ErrAlreadyCancelled together with the
	// current record when the appointment was already cancelled.
	CancelAppointment(ctx context.Context, id int64) (*Appointment, error)
	SetCalendarEvent(ctx context.Context, id int64, eventID string) error
	ListAppointments(ctx context.Context, filter Filter) ([]Appointment, error)

	CreateVisit(ctx context.Context, visit *Visit) error
	GetVisit(ctx context.Context, id int64) (*Visit, error)
	VisitByAppointment(ctx context.Context, appointmentID int64) (*Visit, error)
	UpdateVisitNotes(ctx context.Context, visitID int64, diagnosis, notes string) (*Visit, error)
	ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error)

	CreatePrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, visitID int64) ([]Prescription, error)
}

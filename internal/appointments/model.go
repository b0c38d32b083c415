package appointments

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

const (
	// DateLayout is the wire format of appointment dates.
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format of slot start times.
	ClockLayout = "15:04"

	DefaultAvailableFrom = "09:00"
	DefaultAvailableTo   = "17:00"
	DefaultReason        = "General checkup"
)

// Doctor is seeded reference data.
type Doctor struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name" gorm:"not null"`
	Specialization string    `json:"specialization" gorm:"index"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	AvailableFrom  string    `json:"available_from"`
	AvailableTo    string    `json:"available_to"`
	CreatedAt      time.Time `json:"created_at"`
}

// WorkingHours returns the doctor's window, defaulting to 09:00-17:00.
func (d Doctor) WorkingHours() (string, string) {
	from, to := d.AvailableFrom, d.AvailableTo
	if from == "" {
		from = DefaultAvailableFrom
	}
	if to == "" {
		to = DefaultAvailableTo
	}
	return from, to
}

// Appointment is a booked slot. Date is YYYY-MM-DD and Time is HH:MM in clinic time.
type Appointment struct {
	ID              int64     `json:"id"`
	DoctorID        int64     `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name,omitempty"`
	PatientName     string    `json:"patient_name"`
	PatientEmail    string    `json:"patient_email"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Reason          string    `json:"reason"`
	Status          Status    `json:"status"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Visit is the doctor-side record created alongside a booking.
type Visit struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	DoctorID      int64     `json:"doctor_id"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email"`
	VisitDate     string    `json:"visit_date"`
	VisitTime     string    `json:"visit_time"`
	Reason        string    `json:"reason"`
	Symptoms      string    `json:"symptoms,omitempty"`
	Diagnosis     string    `json:"diagnosis,omitempty"`
	DoctorNotes   string    `json:"doctor_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Prescription is appended to a visit by a doctor.
type Prescription struct {
	ID             int64     `json:"id"`
	VisitID        int64     `json:"visit_id"`
	PatientName    string    `json:"patient_name"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency"`
	Duration       string    `json:"duration"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows appointment listings. Zero fields are ignored.
type Filter struct {
	PatientEmail string
	DoctorID     int64
	DateFrom     string
	DateTo       string
	Status       Status
	Limit        int
}

// VisitFilter narrows visit listings. Zero fields are ignored.
type VisitFilter struct {
	PatientEmail string
	DoctorID     int64
	DateFrom     string
	DateTo       string
	Limit        int
}

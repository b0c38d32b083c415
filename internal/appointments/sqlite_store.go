package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore is a file-backed Store for local development without Postgres.
type SQLiteStore struct {
	db *gorm.DB
}

type doctorRow struct {
	ID             int64  `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Specialization string `gorm:"not null"`
	Email          string
	Phone          string
	AvailableFrom  string `gorm:"not null"`
	AvailableTo    string `gorm:"not null"`
	CreatedAt      time.Time
}

func (doctorRow) TableName() string { return "doctors" }

type appointmentRow struct {
	ID              int64  `gorm:"primaryKey"`
	DoctorID        int64  `gorm:"not null;index"`
	PatientName     string `gorm:"not null"`
	PatientEmail    string `gorm:"not null;index"`
	AppointmentDate string `gorm:"not null"`
	AppointmentTime string `gorm:"not null"`
	Reason          string `gorm:"not null"`
	Status          string `gorm:"not null"`
	CalendarEventID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Doctor          doctorRow `gorm:"foreignKey:DoctorID;references:ID"`
}

func (appointmentRow) TableName() string { return "appointments" }

type visitRow struct {
	ID            int64 `gorm:"primaryKey"`
	AppointmentID int64 `gorm:"index"`
	DoctorID      int64 `gorm:"index"`
	PatientName   string
	PatientEmail  string `gorm:"index"`
	VisitDate     string
	VisitTime     string
	Reason        string
	Symptoms      string
	Diagnosis     string
	DoctorNotes   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (visitRow) TableName() string { return "visits" }

type prescriptionRow struct {
	ID             int64 `gorm:"primaryKey"`
	VisitID        int64 `gorm:"not null;index"`
	PatientName    string
	MedicationName string `gorm:"not null"`
	Dosage         string
	Frequency      string
	Duration       string
	Notes          string
	CreatedAt      time.Time
}

func (prescriptionRow) TableName() string { return "prescriptions" }

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("appointments: open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("appointments: sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewSQLiteStore(db)
}

// NewSQLiteStore migrates the schema on an existing gorm handle.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&doctorRow{}, &appointmentRow{}, &visitRow{}, &prescriptionRow{}); err != nil {
		return nil, fmt.Errorf("appointments: migrate sqlite: %w", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_idx
		ON appointments (doctor_id, appointment_date, appointment_time)
		WHERE status <> 'cancelled'`).Error; err != nil {
		return nil, fmt.Errorf("appointments: create slot index: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	var rows []doctorRow
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("appointments: list doctors: %w", err)
	}
	out := make([]Doctor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDoctor())
	}
	return out, nil
}

func (s *SQLiteStore) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	var row doctorRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("doctor", id)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get doctor: %w", err)
	}
	d := row.toDoctor()
	return &d, nil
}

func (s *SQLiteStore) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	from, to := doctor.WorkingHours()
	row := doctorRow{
		ID:             doctor.ID,
		Name:           doctor.Name,
		Specialization: doctor.Specialization,
		Email:          doctor.Email,
		Phone:          doctor.Phone,
		AvailableFrom:  from,
		AvailableTo:    to,
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("appointments: save doctor: %w", err)
	}
	doctor.ID = row.ID
	doctor.CreatedAt = row.CreatedAt
	return nil
}

func (s *SQLiteStore) BookedTimes(ctx context.Context, doctorID int64, date string) ([]string, error) {
	var times []string
	err := s.db.WithContext(ctx).Model(&appointmentRow{}).
		Where("doctor_id = ?", doctorID).
		Where("appointment_date = ?", date).
		Where("status <> ?", string(StatusCancelled)).
		Order("appointment_time asc").
		Pluck("appointment_time", &times).Error
	if err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	return times, nil
}

func (s *SQLiteStore) CreateAppointment(ctx context.Context, appt *Appointment) error {
	row := appointmentRow{
		DoctorID:        appt.DoctorID,
		PatientName:     appt.PatientName,
		PatientEmail:    appt.PatientEmail,
		AppointmentDate: appt.Date,
		AppointmentTime: appt.Time,
		Reason:          appt.Reason,
		Status:          string(appt.Status),
	}
	err := s.db.WithContext(ctx).Omit("Doctor").Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isSQLiteUnique(err) {
		return ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("appointments: insert appointment: %w", err)
	}
	appt.ID = row.ID
	appt.CreatedAt = row.CreatedAt
	appt.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *SQLiteStore) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	var row appointmentRow
	err := s.db.WithContext(ctx).Preload("Doctor").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get appointment: %w", err)
	}
	a := row.toAppointment()
	return &a, nil
}

func (s *SQLiteStore) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	res := s.db.WithContext(ctx).Model(&appointmentRow{}).
		Where("id = ? AND status <> ?", id, string(StatusCancelled)).
		Updates(map[string]any{"status": string(StatusCancelled), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("appointments: cancel appointment: %w", res.Error)
	}
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return appt, ErrAlreadyCancelled
	}
	return appt, nil
}

func (s *SQLiteStore) SetCalendarEvent(ctx context.Context, id int64, eventID string) error {
	res := s.db.WithContext(ctx).Model(&appointmentRow{}).Where("id = ?", id).
		Update("calendar_event_id", eventID)
	if res.Error != nil {
		return fmt.Errorf("appointments: set calendar event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("appointment", id)
	}
	return nil
}

func (s *SQLiteStore) ListAppointments(ctx context.Context, filter Filter) ([]Appointment, error) {
	q := s.db.WithContext(ctx).Preload("Doctor").Model(&appointmentRow{})
	if filter.PatientEmail != "" {
		q = q.Where("lower(patient_email) = ?", strings.ToLower(filter.PatientEmail))
	}
	if filter.DoctorID != 0 {
		q = q.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.DateFrom != "" {
		q = q.Where("appointment_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("appointment_date <= ?", filter.DateTo)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	q = q.Order("appointment_date desc").Order("appointment_time desc").Order("id desc")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []appointmentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("appointments: list appointments: %w", err)
	}
	out := make([]Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAppointment())
	}
	return out, nil
}

func (s *SQLiteStore) CreateVisit(ctx context.Context, visit *Visit) error {
	row := visitRow{
		AppointmentID: visit.AppointmentID,
		DoctorID:      visit.DoctorID,
		PatientName:   visit.PatientName,
		PatientEmail:  visit.PatientEmail,
		VisitDate:     visit.VisitDate,
		VisitTime:     visit.VisitTime,
		Reason:        visit.Reason,
		Symptoms:      visit.Symptoms,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("appointments: insert visit: %w", err)
	}
	visit.ID = row.ID
	visit.CreatedAt = row.CreatedAt
	visit.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *SQLiteStore) GetVisit(ctx context.Context, id int64) (*Visit, error) {
	var row visitRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("visit", id)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get visit: %w", err)
	}
	v := row.toVisit()
	return &v, nil
}

func (s *SQLiteStore) VisitByAppointment(ctx context.Context, appointmentID int64) (*Visit, error) {
	var row visitRow
	err := s.db.WithContext(ctx).Where("appointment_id = ?", appointmentID).Order("id asc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("visit for appointment", appointmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: visit by appointment: %w", err)
	}
	v := row.toVisit()
	return &v, nil
}

func (s *SQLiteStore) UpdateVisitNotes(ctx context.Context, visitID int64, diagnosis, notes string) (*Visit, error) {
	res := s.db.WithContext(ctx).Model(&visitRow{}).Where("id = ?", visitID).
		Updates(map[string]any{"diagnosis": diagnosis, "doctor_notes": notes, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("appointments: update visit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("visit", visitID)
	}
	return s.GetVisit(ctx, visitID)
}

func (s *SQLiteStore) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error) {
	q := s.db.WithContext(ctx).Model(&visitRow{})
	if filter.PatientEmail != "" {
		q = q.Where("lower(patient_email) = ?", strings.ToLower(filter.PatientEmail))
	}
	if filter.DoctorID != 0 {
		q = q.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.DateFrom != "" {
		q = q.Where("visit_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("visit_date <= ?", filter.DateTo)
	}
	q = q.Order("visit_date desc").Order("visit_time desc").Order("id desc")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []visitRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("appointments: list visits: %w", err)
	}
	out := make([]Visit, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toVisit())
	}
	return out, nil
}

func (s *SQLiteStore) CreatePrescription(ctx context.Context, p *Prescription) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&visitRow{}).Where("id = ?", p.VisitID).Count(&count).Error; err != nil {
		return fmt.Errorf("appointments: check visit: %w", err)
	}
	if count == 0 {
		return notFound("visit", p.VisitID)
	}
	row := prescriptionRow{
		VisitID:        p.VisitID,
		PatientName:    p.PatientName,
		MedicationName: p.MedicationName,
		Dosage:         p.Dosage,
		Frequency:      p.Frequency,
		Duration:       p.Duration,
		Notes:          p.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("appointments: insert prescription: %w", err)
	}
	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	return nil
}

func (s *SQLiteStore) ListPrescriptions(ctx context.Context, visitID int64) ([]Prescription, error) {
	var rows []prescriptionRow
	if err := s.db.WithContext(ctx).Where("visit_id = ?", visitID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("appointments: list prescriptions: %w", err)
	}
	out := make([]Prescription, 0, len(rows))
	for _, r := range rows {
		out = append(out, Prescription{
			ID:             r.ID,
			VisitID:        r.VisitID,
			PatientName:    r.PatientName,
			MedicationName: r.MedicationName,
			Dosage:         r.Dosage,
			Frequency:      r.Frequency,
			Duration:       r.Duration,
			Notes:          r.Notes,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}

func (r doctorRow) toDoctor() Doctor {
	return Doctor{
		ID:             r.ID,
		Name:           r.Name,
		Specialization: r.Specialization,
		Email:          r.Email,
		Phone:          r.Phone,
		AvailableFrom:  r.AvailableFrom,
		AvailableTo:    r.AvailableTo,
		CreatedAt:      r.CreatedAt,
	}
}

func (r appointmentRow) toAppointment() Appointment {
	return Appointment{
		ID:              r.ID,
		DoctorID:        r.DoctorID,
		DoctorName:      r.Doctor.Name,
		PatientName:     r.PatientName,
		PatientEmail:    r.PatientEmail,
		Date:            r.AppointmentDate,
		Time:            r.AppointmentTime,
		Reason:          r.Reason,
		Status:          Status(r.Status),
		CalendarEventID: r.CalendarEventID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r visitRow) toVisit() Visit {
	return Visit{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		DoctorID:      r.DoctorID,
		PatientName:   r.PatientName,
		PatientEmail:  r.PatientEmail,
		VisitDate:     r.VisitDate,
		VisitTime:     r.VisitTime,
		Reason:        r.Reason,
		Symptoms:      r.Symptoms,
		Diagnosis:     r.Diagnosis,
		DoctorNotes:   r.DoctorNotes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLiteStore)(nil)

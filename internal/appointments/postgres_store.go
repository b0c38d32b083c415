package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxDB is the subset of pgxpool.Pool used by PostgresStore, satisfied by pgxmock in tests.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the schedule in Postgres. Slot uniqueness is enforced by
// the partial unique index appointments_active_slot_idx.
type PostgresStore struct {
	db pgxDB
}

// NewPostgresStore wraps a pgx pool (or compatible mock).
func NewPostgresStore(db pgxDB) *PostgresStore {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: db}
}

const doctorColumns = `id, name, specialization, email, phone,
	to_char(available_from, 'HH24:MI'), to_char(available_to, 'HH24:MI'), created_at`

const appointmentColumns = `a.id, a.doctor_id, COALESCE(d.name, ''), a.patient_name, a.patient_email,
	a.appointment_date::text, to_char(a.appointment_time, 'HH24:MI'), a.reason, a.status,
	a.calendar_event_id, a.created_at, a.updated_at`

const visitColumns = `id, appointment_id, doctor_id, patient_name, patient_email,
	visit_date::text, to_char(visit_time, 'HH24:MI'), reason, symptoms, diagnosis, doctor_notes,
	created_at, updated_at`

func (s *PostgresStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	row := s.db.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	d, err := scanDoctor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("doctor", id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) CreateDoctor(ctx context.Context, doctor *Doctor) error {
	from, to := doctor.WorkingHours()
	if doctor.ID != 0 {
		query := `
			INSERT INTO doctors (id, name, specialization, email, phone, available_from, available_to)
			VALUES ($1, $2, $3, $4, $5, $6::time, $7::time)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, specialization = EXCLUDED.specialization,
				email = EXCLUDED.email, phone = EXCLUDED.phone
			RETURNING created_at
		`
		if err := s.db.QueryRow(ctx, query, doctor.ID, doctor.Name, doctor.Specialization,
			doctor.Email, doctor.Phone, from, to).Scan(&doctor.CreatedAt); err != nil {
			return fmt.Errorf("appointments: upsert doctor: %w", err)
		}
		if _, err := s.db.Exec(ctx,
			`SELECT setval(pg_get_serial_sequence('doctors', 'id'), (SELECT MAX(id) FROM doctors))`); err != nil {
			return fmt.Errorf("appointments: advance doctor sequence: %w", err)
		}
		return nil
	}
	query := `
		INSERT INTO doctors (name, specialization, email, phone, available_from, available_to)
		VALUES ($1, $2, $3, $4, $5::time, $6::time)
		RETURNING id, created_at
	`
	if err := s.db.QueryRow(ctx, query, doctor.Name, doctor.Specialization,
		doctor.Email, doctor.Phone, from, to).Scan(&doctor.ID, &doctor.CreatedAt); err != nil {
		return fmt.Errorf("appointments: insert doctor: %w", err)
	}
	return nil
}

func (s *PostgresStore) BookedTimes(ctx context.Context, doctorID int64, date string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2::date AND status <> 'cancelled'
		ORDER BY appointment_time
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("appointments: scan booked time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (doctor_id, patient_name, patient_email, appointment_date, appointment_time, reason, status)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		appt.DoctorID,
		appt.PatientName,
		appt.PatientEmail,
		appt.Date,
		appt.Time,
		appt.Reason,
		string(appt.Status),
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("appointments: insert appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a LEFT JOIN doctors d ON d.id = a.doctor_id
		WHERE a.id = $1
	`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("appointment", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status <> 'cancelled'
	`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel appointment: %w", err)
	}
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return appt, ErrAlreadyCancelled
	}
	return appt, nil
}

func (s *PostgresStore) SetCalendarEvent(ctx context.Context, id int64, eventID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE appointments SET calendar_event_id = $2, updated_at = now() WHERE id = $1`, id, eventID)
	if err != nil {
		return fmt.Errorf("appointments: set calendar event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("appointment", id)
	}
	return nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, filter Filter) ([]Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.PatientEmail != "" {
		add("lower(a.patient_email) = lower($%d)", filter.PatientEmail)
	}
	if filter.DoctorID != 0 {
		add("a.doctor_id = $%d", filter.DoctorID)
	}
	if filter.DateFrom != "" {
		add("a.appointment_date >= $%d::date", filter.DateFrom)
	}
	if filter.DateTo != "" {
		add("a.appointment_date <= $%d::date", filter.DateTo)
	}
	if filter.Status != "" {
		add("a.status = $%d", string(filter.Status))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments a LEFT JOIN doctors d ON d.id = a.doctor_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.appointment_date DESC, a.appointment_time DESC, a.id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateVisit(ctx context.Context, visit *Visit) error {
	query := `
		INSERT INTO visits (appointment_id, doctor_id, patient_name, patient_email, visit_date, visit_time, reason, symptoms)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8)
		RETURNING id, created_at, updated_at
	`
	if err := s.db.QueryRow(ctx, query,
		visit.AppointmentID,
		visit.DoctorID,
		visit.PatientName,
		visit.PatientEmail,
		visit.VisitDate,
		visit.VisitTime,
		visit.Reason,
		visit.Symptoms,
	).Scan(&visit.ID, &visit.CreatedAt, &visit.UpdatedAt); err != nil {
		return fmt.Errorf("appointments: insert visit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVisit(ctx context.Context, id int64) (*Visit, error) {
	v, err := scanVisit(s.db.QueryRow(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("visit", id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) VisitByAppointment(ctx context.Context, appointmentID int64) (*Visit, error) {
	v, err := scanVisit(s.db.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE appointment_id = $1 ORDER BY id LIMIT 1`, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("visit for appointment", appointmentID)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) UpdateVisitNotes(ctx context.Context, visitID int64, diagnosis, notes string) (*Visit, error) {
	v, err := scanVisit(s.db.QueryRow(ctx, `
		UPDATE visits SET diagnosis = $2, doctor_notes = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+visitColumns, visitID, diagnosis, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("visit", visitID)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) ListVisits(ctx context.Context, filter VisitFilter) ([]Visit, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.PatientEmail != "" {
		add("lower(patient_email) = lower($%d)", filter.PatientEmail)
	}
	if filter.DoctorID != 0 {
		add("doctor_id = $%d", filter.DoctorID)
	}
	if filter.DateFrom != "" {
		add("visit_date >= $%d::date", filter.DateFrom)
	}
	if filter.DateTo != "" {
		add("visit_date <= $%d::date", filter.DateTo)
	}
	query := `SELECT ` + visitColumns + ` FROM visits`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY visit_date DESC, visit_time DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list visits: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreatePrescription(ctx context.Context, p *Prescription) error {
	query := `
		INSERT INTO prescriptions (visit_id, patient_name, medication_name, dosage, frequency, duration, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query, p.VisitID, p.PatientName, p.MedicationName,
		p.Dosage, p.Frequency, p.Duration, p.Notes).Scan(&p.ID, &p.CreatedAt)
	if isForeignKeyViolation(err) {
		return notFound("visit", p.VisitID)
	}
	if err != nil {
		return fmt.Errorf("appointments: insert prescription: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPrescriptions(ctx context.Context, visitID int64) ([]Prescription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, visit_id, patient_name, medication_name, dosage, frequency, duration, notes, created_at
		FROM prescriptions WHERE visit_id = $1 ORDER BY id
	`, visitID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list prescriptions: %w", err)
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.VisitID, &p.PatientName, &p.MedicationName,
			&p.Dosage, &p.Frequency, &p.Duration, &p.Notes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctor(row rowScanner) (Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialization, &d.Email, &d.Phone,
		&d.AvailableFrom, &d.AvailableTo, &d.CreatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return d, fmt.Errorf("appointments: scan doctor: %w", err)
	}
	return d, err
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var (
		a      Appointment
		status string
	)
	err := row.Scan(&a.ID, &a.DoctorID, &a.DoctorName, &a.PatientName, &a.PatientEmail,
		&a.Date, &a.Time, &a.Reason, &status, &a.CalendarEventID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("appointments: scan appointment: %w", err)
	}
	a.Status = Status(status)
	return a, nil
}

func scanVisit(row rowScanner) (Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.AppointmentID, &v.DoctorID, &v.PatientName, &v.PatientEmail,
		&v.VisitDate, &v.VisitTime, &v.Reason, &v.Symptoms, &v.Diagnosis, &v.DoctorNotes,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return v, fmt.Errorf("appointments: scan visit: %w", err)
	}
	return v, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Store = (*PostgresStore)(nil)

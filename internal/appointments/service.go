package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wolfman30/medassist/pkg/logging"
)

// Service implements the scheduling operations on top of a Store.
type Service struct {
	store        Store
	logger       *logging.Logger
	validate     *validator.Validate
	slotDuration time.Duration
	loc          *time.Location
	now          func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used to decide what "today" is.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the clinic timezone.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithSlotDuration sets the fixed slot length.
func WithSlotDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.slotDuration = d
		}
	}
}

// NewService wires a scheduling service.
func NewService(store Store, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:        store,
		logger:       logger,
		validate:     validator.New(),
		slotDuration: 30 * time.Minute,
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in the clinic timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Today returns the clinic-local calendar date as YYYY-MM-DD.
func (s *Service) Today() string {
	return s.Now().Format(DateLayout)
}

// SlotDuration is the fixed length of every bookable slot.
func (s *Service) SlotDuration() time.Duration {
	return s.slotDuration
}

// Doctors lists the roster.
func (s *Service) Doctors(ctx context.Context) ([]Doctor, error) {
	return s.store.ListDoctors(ctx)
}

// Doctor fetches one doctor.
func (s *Service) Doctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.store.GetDoctor(ctx, id)
}

// NewDoctor is the input for AddDoctor.
type NewDoctor struct {
	Name           string `json:"name" validate:"required,max=200"`
	Specialization string `json:"specialization" validate:"omitempty,max=100"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,e164"`
	AvailableFrom  string `json:"available_from"`
	AvailableTo    string `json:"available_to"`
}

// AddDoctor validates and stores a new roster entry.
func (s *Service) AddDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	d := Doctor{
		Name:           strings.TrimSpace(in.Name),
		Specialization: strings.ToLower(strings.TrimSpace(in.Specialization)),
		Email:          in.Email,
		Phone:          in.Phone,
		AvailableFrom:  in.AvailableFrom,
		AvailableTo:    in.AvailableTo,
	}
	if d.Specialization == "" {
		d.Specialization = "general"
	}
	d.AvailableFrom, d.AvailableTo = d.WorkingHours()
	if _, err := GenerateSlots(d.AvailableFrom, d.AvailableTo, s.slotDuration); err != nil {
		return nil, err
	}
	if err := s.store.CreateDoctor(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Availability returns the free slot start times for a doctor on a date.
// Past dates yield an empty list; unknown doctors yield ErrNotFound.
func (s *Service) Availability(ctx context.Context, doctorID int64, date string) ([]string, error) {
	doctor, err := s.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return s.availabilityFor(ctx, doctor, date)
}

func (s *Service) availabilityFor(ctx context.Context, doctor *Doctor, date string) ([]string, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	date = day.Format(DateLayout)
	if date < s.Today() {
		return []string{}, nil
	}
	from, to := doctor.WorkingHours()
	all, err := GenerateSlots(from, to, s.slotDuration)
	if err != nil {
		return nil, err
	}
	booked, err := s.store.BookedTimes(ctx, doctor.ID, date)
	if err != nil {
		return nil, err
	}
	return FreeSlots(all, booked), nil
}

// DoctorAvailability is the free slot list for one doctor.
type DoctorAvailability struct {
	DoctorID       int64    `json:"doctor_id"`
	DoctorName     string   `json:"doctor_name"`
	Specialization string   `json:"specialization"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
	TotalAvailable int      `json:"total_available"`
}

// AvailabilityFor checks one doctor, or every doctor (optionally narrowed by
// specialization) when doctorID is zero.
func (s *Service) AvailabilityFor(ctx context.Context, date string, doctorID int64, specialization string) ([]DoctorAvailability, error) {
	var doctors []Doctor
	if doctorID != 0 {
		d, err := s.store.GetDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		doctors = []Doctor{*d}
	} else {
		all, err := s.store.ListDoctors(ctx)
		if err != nil {
			return nil, err
		}
		spec := strings.ToLower(strings.TrimSpace(specialization))
		for _, d := range all {
			if spec == "" || strings.EqualFold(d.Specialization, spec) {
				doctors = append(doctors, d)
			}
		}
	}

	out := make([]DoctorAvailability, 0, len(doctors))
	for i := range doctors {
		slots, err := s.availabilityFor(ctx, &doctors[i], date)
		if err != nil {
			return nil, err
		}
		out = append(out, DoctorAvailability{
			DoctorID:       doctors[i].ID,
			DoctorName:     doctors[i].Name,
			Specialization: doctors[i].Specialization,
			Date:           date,
			AvailableSlots: slots,
			TotalAvailable: len(slots),
		})
	}
	return out, nil
}

// BookingRequest is the validated input of Book.
type BookingRequest struct {
	DoctorID     int64  `json:"doctor_id" validate:"required,gt=0"`
	Date         string `json:"date" validate:"required"`
	Time         string `json:"time" validate:"required"`
	PatientName  string `json:"patient_name" validate:"required,max=200"`
	PatientEmail string `json:"patient_email" validate:"required,email"`
	Reason       string `json:"reason" validate:"max=500"`
	Symptoms     string `json:"symptoms" validate:"max=1000"`
}

// Book creates a confirmed appointment after re-validating the slot.
// The store's uniqueness guarantee decides races; the loser gets ErrSlotTaken.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientEmail = strings.ToLower(strings.TrimSpace(req.PatientEmail))
	if err := s.check(req); err != nil {
		return nil, err
	}
	day, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	date := day.Format(DateLayout)
	slot, err := NormalizeClock(req.Time)
	if err != nil {
		return nil, err
	}
	if date < s.Today() {
		return nil, invalid("date", "cannot book appointments in the past")
	}

	doctor, err := s.store.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	from, to := doctor.WorkingHours()
	all, err := GenerateSlots(from, to, s.slotDuration)
	if err != nil {
		return nil, err
	}
	if !containsSlot(all, slot) {
		return nil, invalid("time", fmt.Sprintf("%s is not a bookable slot; %s is available between %s and %s", slot, doctor.Name, from, to))
	}
	booked, err := s.store.BookedTimes(ctx, doctor.ID, date)
	if err != nil {
		return nil, err
	}
	if containsSlot(booked, slot) {
		return nil, ErrSlotTaken
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	appt := &Appointment{
		DoctorID:     doctor.ID,
		DoctorName:   doctor.Name,
		PatientName:  req.PatientName,
		PatientEmail: req.PatientEmail,
		Date:         date,
		Time:         slot,
		Reason:       reason,
		Status:       StatusConfirmed,
	}
	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return nil, err
	}
	appt.DoctorName = doctor.Name

	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		symptoms = reason
	}
	visit := &Visit{
		AppointmentID: appt.ID,
		DoctorID:      doctor.ID,
		PatientName:   appt.PatientName,
		PatientEmail:  appt.PatientEmail,
		VisitDate:     date,
		VisitTime:     slot,
		Reason:        reason,
		Symptoms:      symptoms,
	}
	if err := s.store.CreateVisit(ctx, visit); err != nil {
		s.logger.Warn("appointments: visit record not created", "appointment_id", appt.ID, "error", err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor_id", appt.DoctorID,
		"date", appt.Date,
		"time", appt.Time,
	)
	return appt, nil
}

// Cancel marks an appointment cancelled. A repeated cancel returns
// ErrAlreadyCancelled alongside the (still cancelled) appointment.
func (s *Service) Cancel(ctx context.Context, id int64) (*Appointment, error) {
	if id <= 0 {
		return nil, invalid("appointment_id", "must be positive")
	}
	appt, err := s.store.CancelAppointment(ctx, id)
	if err != nil {
		return appt, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", id)
	return appt, nil
}

// Appointment fetches one appointment.
func (s *Service) Appointment(ctx context.Context, id int64) (*Appointment, error) {
	if id <= 0 {
		return nil, invalid("appointment_id", "must be positive")
	}
	return s.store.GetAppointment(ctx, id)
}

// RecordCalendarEvent stores the external calendar id on an appointment.
func (s *Service) RecordCalendarEvent(ctx context.Context, id int64, eventID string) error {
	return s.store.SetCalendarEvent(ctx, id, eventID)
}

// List returns appointments most recent first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Appointment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "must be pending, confirmed or cancelled")
	}
	for field, value := range map[string]string{"date_from": filter.DateFrom, "date_to": filter.DateTo} {
		if value == "" {
			continue
		}
		if _, err := ParseDate(value); err != nil {
			return nil, invalid(field, "expected YYYY-MM-DD")
		}
	}
	filter.PatientEmail = strings.TrimSpace(filter.PatientEmail)
	list, err := s.store.ListAppointments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Appointment{}
	}
	return list, nil
}

// ReasonCount is one row of a top-N grouping.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// AppointmentStats aggregates appointments over a window.
type AppointmentStats struct {
	DoctorID   int64          `json:"doctor_id,omitempty"`
	DateFrom   string         `json:"date_from"`
	DateTo     string         `json:"date_to"`
	DateRange  string         `json:"date_range"`
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	Confirmed  int            `json:"confirmed"`
	Cancelled  int            `json:"cancelled"`
	TopReasons []ReasonCount  `json:"top_reasons"`
	ByDoctor   map[string]int `json:"by_doctor,omitempty"`
}

// StatsQuery selects the aggregation window. Date wins over a range;
// both empty means today.
type StatsQuery struct {
	DoctorID  int64
	Date      string
	StartDate string
	EndDate   string
}

// Stats counts appointments by status for a doctor (or all doctors) and window.
func (s *Service) Stats(ctx context.Context, q StatsQuery) (*AppointmentStats, error) {
	from, to, err := s.resolveWindow(q.Date, q.StartDate, q.EndDate, s.Today())
	if err != nil {
		return nil, err
	}
	if q.DoctorID != 0 {
		if _, err := s.store.GetDoctor(ctx, q.DoctorID); err != nil {
			return nil, err
		}
	}
	list, err := s.store.ListAppointments(ctx, Filter{DoctorID: q.DoctorID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	stats := Summarize(list, 5)
	stats.DoctorID = q.DoctorID
	stats.DateFrom, stats.DateTo = from, to
	stats.DateRange = FormatDateRange(from, to)
	if q.DoctorID == 0 {
		stats.ByDoctor = make(map[string]int)
		for _, a := range list {
			name := a.DoctorName
			if name == "" {
				name = fmt.Sprintf("Doctor %d", a.DoctorID)
			}
			stats.ByDoctor[name]++
		}
	}
	return stats, nil
}

// Summarize counts statuses and the topN reasons of a list.
func Summarize(list []Appointment, topN int) *AppointmentStats {
	stats := &AppointmentStats{Total: len(list)}
	reasons := make(map[string]int)
	for _, a := range list {
		switch a.Status {
		case StatusPending:
			stats.Pending++
		case StatusConfirmed:
			stats.Confirmed++
		case StatusCancelled:
			stats.Cancelled++
		}
		reason := strings.ToLower(strings.TrimSpace(a.Reason))
		if reason != "" {
			reasons[reason]++
		}
	}
	stats.TopReasons = topReasons(reasons, topN)
	return stats
}

func topReasons(counts map[string]int, n int) []ReasonCount {
	out := make([]ReasonCount, 0, len(counts))
	for reason, count := range counts {
		out = append(out, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// PatientStatsQuery filters patients by symptom or diagnosis substring.
// The window defaults to the last seven days.
type PatientStatsQuery struct {
	Symptoms  string
	Diagnosis string
	StartDate string
	EndDate   string
	DoctorID  int64
}

// PatientMatch is one appointment matching a patient stats query.
type PatientMatch struct {
	AppointmentID int64  `json:"appointment_id"`
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Reason        string `json:"reason"`
	Symptoms      string `json:"symptoms,omitempty"`
	Diagnosis     string `json:"diagnosis,omitempty"`
	Doctor        string `json:"doctor"`
	Status        Status `json:"status"`
}

// PatientStats is the result of PatientStats.
type PatientStats struct {
	DateFrom      string         `json:"date_from"`
	DateTo        string         `json:"date_to"`
	Filters       []string       `json:"filters_applied"`
	TotalPatients int            `json:"total_patients"`
	Patients      []PatientMatch `json:"patients"`
}

// PatientStats finds appointments whose visit symptoms/reason or diagnosis
// contain the requested text.
func (s *Service) PatientStats(ctx context.Context, q PatientStatsQuery) (*PatientStats, error) {
	today := s.Now()
	from := today.AddDate(0, 0, -7).Format(DateLayout)
	to := today.Format(DateLayout)
	if q.StartDate != "" {
		d, err := ParseDate(q.StartDate)
		if err != nil {
			return nil, invalid("start_date", "expected YYYY-MM-DD")
		}
		from = d.Format(DateLayout)
	}
	if q.EndDate != "" {
		d, err := ParseDate(q.EndDate)
		if err != nil {
			return nil, invalid("end_date", "expected YYYY-MM-DD")
		}
		to = d.Format(DateLayout)
	}
	if from > to {
		return nil, invalid("start_date", "must not be after end_date")
	}

	list, err := s.store.ListAppointments(ctx, Filter{DoctorID: q.DoctorID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	visits, err := s.store.ListVisits(ctx, VisitFilter{DoctorID: q.DoctorID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	byAppointment := make(map[int64]Visit, len(visits))
	for _, v := range visits {
		byAppointment[v.AppointmentID] = v
	}

	symptoms := strings.ToLower(strings.TrimSpace(q.Symptoms))
	diagnosis := strings.ToLower(strings.TrimSpace(q.Diagnosis))
	result := &PatientStats{DateFrom: from, DateTo: to, Patients: []PatientMatch{}}
	if symptoms != "" {
		result.Filters = append(result.Filters, fmt.Sprintf("symptoms containing '%s'", q.Symptoms))
	}
	if diagnosis != "" {
		result.Filters = append(result.Filters, fmt.Sprintf("diagnosis containing '%s'", q.Diagnosis))
	}
	if len(result.Filters) == 0 {
		result.Filters = []string{"none"}
	}

	for _, a := range list {
		v := byAppointment[a.ID]
		if symptoms != "" &&
			!strings.Contains(strings.ToLower(v.Symptoms), symptoms) &&
			!strings.Contains(strings.ToLower(a.Reason), symptoms) {
			continue
		}
		if diagnosis != "" && !strings.Contains(strings.ToLower(v.Diagnosis), diagnosis) {
			continue
		}
		result.Patients = append(result.Patients, PatientMatch{
			AppointmentID: a.ID,
			PatientName:   a.PatientName,
			PatientEmail:  a.PatientEmail,
			Date:          a.Date,
			Time:          a.Time,
			Reason:        a.Reason,
			Symptoms:      v.Symptoms,
			Diagnosis:     v.Diagnosis,
			Doctor:        a.DoctorName,
			Status:        a.Status,
		})
	}
	result.TotalPatients = len(result.Patients)
	return result, nil
}

// VisitHistory is a visit with its prescriptions.
type VisitHistory struct {
	Visit
	Prescriptions []Prescription `json:"prescriptions"`
}

// PatientHistory returns a patient's most recent visits.
func (s *Service) PatientHistory(ctx context.Context, email string, limit int) ([]VisitHistory, error) {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, invalid("patient_email", "a valid email is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	visits, err := s.store.ListVisits(ctx, VisitFilter{PatientEmail: email, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]VisitHistory, 0, len(visits))
	for _, v := range visits {
		rx, err := s.store.ListPrescriptions(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		if rx == nil {
			rx = []Prescription{}
		}
		out = append(out, VisitHistory{Visit: v, Prescriptions: rx})
	}
	return out, nil
}

// AddVisitNotes records a diagnosis and notes on the visit of an appointment.
func (s *Service) AddVisitNotes(ctx context.Context, appointmentID int64, diagnosis, notes string) (*Visit, error) {
	if appointmentID <= 0 {
		return nil, invalid("appointment_id", "must be positive")
	}
	if strings.TrimSpace(diagnosis) == "" {
		return nil, invalid("diagnosis", "is required")
	}
	visit, err := s.store.VisitByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateVisitNotes(ctx, visit.ID, strings.TrimSpace(diagnosis), strings.TrimSpace(notes))
}

// NewPrescription is the input of AddPrescription.
type NewPrescription struct {
	VisitID        int64  `validate:"required,gt=0"`
	MedicationName string `validate:"required,max=200"`
	Dosage         string `validate:"required,max=100"`
	Frequency      string `validate:"required,max=100"`
	Duration       string `validate:"required,max=100"`
	Notes          string `validate:"max=1000"`
}

// AddPrescription appends a prescription to an existing visit.
func (s *Service) AddPrescription(ctx context.Context, in NewPrescription) (*Prescription, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	visit, err := s.store.GetVisit(ctx, in.VisitID)
	if err != nil {
		return nil, err
	}
	p := &Prescription{
		VisitID:        visit.ID,
		PatientName:    visit.PatientName,
		MedicationName: in.MedicationName,
		Dosage:         in.Dosage,
		Frequency:      in.Frequency,
		Duration:       in.Duration,
		Notes:          in.Notes,
	}
	if err := s.store.CreatePrescription(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReportWindow resolves the date range of a daily or weekly report.
// Weekly reports run Monday through Sunday of the week containing date.
func (s *Service) ReportWindow(reportType, date string) (string, string, error) {
	target := s.Now()
	if date != "" {
		d, err := ParseDate(date)
		if err != nil {
			return "", "", err
		}
		target = d
	}
	switch strings.ToLower(strings.TrimSpace(reportType)) {
	case "", "daily":
		day := target.Format(DateLayout)
		return day, day, nil
	case "weekly":
		offset := (int(target.Weekday()) + 6) % 7
		monday := target.AddDate(0, 0, -offset)
		return monday.Format(DateLayout), monday.AddDate(0, 0, 6).Format(DateLayout), nil
	default:
		return "", "", invalid("report_type", "must be daily or weekly")
	}
}

func (s *Service) resolveWindow(date, start, end, fallback string) (string, string, error) {
	switch {
	case date != "":
		d, err := ParseDate(date)
		if err != nil {
			return "", "", err
		}
		day := d.Format(DateLayout)
		return day, day, nil
	case start != "" && end != "":
		from, err := ParseDate(start)
		if err != nil {
			return "", "", invalid("start_date", "expected YYYY-MM-DD")
		}
		to, err := ParseDate(end)
		if err != nil {
			return "", "", invalid("end_date", "expected YYYY-MM-DD")
		}
		if from.After(to) {
			return "", "", invalid("start_date", "must not be after end_date")
		}
		return from.Format(DateLayout), to.Format(DateLayout), nil
	default:
		return fallback, fallback, nil
	}
}

// FormatDateRange renders "January 02, 2006" or "January 02 - January 08, 2006".
func FormatDateRange(from, to string) string {
	f, errF := time.Parse(DateLayout, from)
	t, errT := time.Parse(DateLayout, to)
	if errF != nil || errT != nil {
		return from + " - " + to
	}
	if from == to {
		return f.Format("January 02, 2006")
	}
	return f.Format("January 02") + " - " + t.Format("January 02, 2006")
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(toSnake(fe.Field()), describeTag(fe.Tag(), fe.Param()))
	}
	return invalid("request", err.Error())
}

func describeTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be an E.164 phone number"
	case "max":
		return "must be at most " + param + " characters"
	case "gt":
		return "must be greater than " + param
	default:
		return "failed " + tag + " check"
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

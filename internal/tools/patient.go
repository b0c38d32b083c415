package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/internal/notify"
)

// Tool names.
const (
	CheckAvailability     = "check_availability"
	BookAppointment       = "book_appointment"
	CancelAppointment     = "cancel_appointment"
	ListAppointments      = "list_appointments"
	ListDoctors           = "list_doctors"
	GetAppointmentStats   = "get_appointment_stats"
	GetPatientStats       = "get_patient_stats"
	GenerateSummaryReport = "generate_summary_report"
	SendSlackNotification = "send_slack_notification"
	SendReportToWhatsApp  = "send_report_to_whatsapp"
	GetPatientHistory     = "get_patient_history"
	AddVisitNotes         = "add_visit_notes"
	AddPrescription       = "add_prescription"
)

var specializations = []string{"general", "cardiology", "dermatology", "neurology", "orthopedics", "pediatrics"}

type checkAvailabilityTool struct {
	base
	appts *appointments.Service
}

func newCheckAvailability(appts *appointments.Service) Tool {
	return &checkAvailabilityTool{
		base: base{spec: llm.ToolSpec{
			Name:        CheckAvailability,
			Description: "Check available appointment slots for doctors on a specific date. Use this when the user asks about available times or wants to see when a doctor is free.",
			Params: []llm.Param{
				{Name: "date", Type: "string", Description: "Date to check in YYYY-MM-DD format", Required: true},
				{Name: "doctor_id", Type: "integer", Description: "Specific doctor ID; omit to check every doctor"},
				{Name: "specialization", Type: "string", Description: "Filter doctors by specialization", Enum: specializations},
			},
		}},
		appts: appts,
	}
}

func (t *checkAvailabilityTool) Execute(ctx context.Context, args Args) (Result, error) {
	date := args.FirstString("date", "check_date")
	if date == "" {
		return Result{}, &appointments.ValidationError{Field: "date", Reason: "is required"}
	}
	day, err := appointments.ParseDate(date)
	if err != nil {
		return Result{}, err
	}
	date = day.Format(appointments.DateLayout)
	doctorID, err := args.OptionalInt("doctor_id")
	if err != nil {
		return Result{}, err
	}
	list, err := t.appts.AvailabilityFor(ctx, date, doctorID, args.String("specialization"))
	if err != nil {
		return Result{}, err
	}

	var summary string
	switch {
	case date < t.appts.Today():
		summary = fmt.Sprintf("%s is in the past; no slots can be booked.", date)
	case len(list) == 0:
		summary = fmt.Sprintf("No doctors match the request for %s.", date)
	case len(list) == 1 && list[0].TotalAvailable == 0:
		summary = fmt.Sprintf("%s is fully booked on %s.", list[0].DoctorName, date)
	case len(list) == 1:
		summary = fmt.Sprintf("%s has %d open slots on %s.", list[0].DoctorName, list[0].TotalAvailable, date)
	default:
		open := 0
		for _, d := range list {
			if d.TotalAvailable > 0 {
				open++
			}
		}
		summary = fmt.Sprintf("%d of %d doctors have open slots on %s.", open, len(list), date)
	}
	return Result{
		Data:    map[string]any{"date": date, "availability": list},
		Summary: summary,
	}, nil
}

type bookAppointmentTool struct {
	base
	appts    *appointments.Service
	notifier *notify.Service
}

func newBookAppointment(appts *appointments.Service, notifier *notify.Service) Tool {
	return &bookAppointmentTool{
		base: base{
			mutates: true,
			spec: llm.ToolSpec{
				Name:        BookAppointment,
				Description: "Book an appointment with a doctor. Use this when the user wants to schedule or book a medical appointment. Sends an email confirmation and creates a calendar event.",
				Params: []llm.Param{
					{Name: "doctor_id", Type: "integer", Description: "ID of the doctor", Required: true},
					{Name: "date", Type: "string", Description: "Appointment date in YYYY-MM-DD format", Required: true},
					{Name: "time", Type: "string", Description: "Appointment start time in HH:MM 24-hour format", Required: true},
					{Name: "patient_name", Type: "string", Description: "Full name of the patient", Required: true},
					{Name: "patient_email", Type: "string", Description: "Email address of the patient", Required: true},
					{Name: "reason", Type: "string", Description: "Reason for the visit"},
					{Name: "symptoms", Type: "string", Description: "Symptoms described by the patient"},
				},
			},
		},
		appts:    appts,
		notifier: notifier,
	}
}

func (t *bookAppointmentTool) Execute(ctx context.Context, args Args) (Result, error) {
	doctorID, err := args.RequireInt("doctor_id")
	if err != nil {
		return Result{}, err
	}
	req := appointments.BookingRequest{
		DoctorID:     doctorID,
		Date:         args.FirstString("date", "appointment_date"),
		Time:         args.FirstString("time", "appointment_time"),
		PatientName:  args.FirstString("patient_name", "name"),
		PatientEmail: args.FirstString("patient_email", "email"),
		Reason:       args.String("reason"),
		Symptoms:     args.String("symptoms"),
	}
	if caller, ok := identity.CallerFromContext(ctx); ok && !caller.IsDoctor() && caller.Email != "" {
		if req.PatientEmail == "" || caller.Verified {
			req.PatientEmail = caller.Email
		}
	}

	appt, err := t.appts.Book(ctx, req)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Data: map[string]any{"appointment": appt},
		Summary: fmt.Sprintf("Appointment #%d confirmed with %s on %s at %s.",
			appt.ID, appt.DoctorName, appt.Date, appt.Time),
	}
	if t.notifier == nil {
		return res, nil
	}

	notice := notify.BookingNotice{
		AppointmentID: appt.ID,
		PatientName:   appt.PatientName,
		PatientEmail:  appt.PatientEmail,
		DoctorName:    appt.DoctorName,
		Date:          appt.Date,
		Time:          appt.Time,
		Reason:        appt.Reason,
	}
	if doctor, err := t.appts.Doctor(ctx, appt.DoctorID); err == nil {
		notice.Specialization = doctor.Specialization
		notice.DoctorEmail = doctor.Email
	}
	outcome := t.notifier.BookingConfirmed(ctx, notice)
	res.Warnings = outcome.Warnings
	if outcome.CalendarEventID != "" {
		if err := t.appts.RecordCalendarEvent(context.WithoutCancel(ctx), appt.ID, outcome.CalendarEventID); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("calendar event id not saved: %v", err))
		} else {
			appt.CalendarEventID = outcome.CalendarEventID
		}
	}
	res.Data["email_sent"] = t.notifier.Status().Email && !hasPrefix(res.Warnings, "email")
	res.Data["calendar_event_created"] = appt.CalendarEventID != ""
	return res, nil
}

func hasPrefix(warnings []string, prefix string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

type cancelAppointmentTool struct {
	base
	appts    *appointments.Service
	notifier *notify.Service
}

func newCancelAppointment(appts *appointments.Service, notifier *notify.Service) Tool {
	return &cancelAppointmentTool{
		base: base{
			mutates: true,
			spec: llm.ToolSpec{
				Name:        CancelAppointment,
				Description: "Cancel an existing appointment. Use this when the user wants to cancel their appointment.",
				Params: []llm.Param{
					{Name: "appointment_id", Type: "integer", Description: "ID of the appointment to cancel", Required: true},
				},
			},
		},
		appts:    appts,
		notifier: notifier,
	}
}

func (t *cancelAppointmentTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := args.RequireInt("appointment_id")
	if err != nil {
		return Result{}, err
	}
	if caller, ok := identity.CallerFromContext(ctx); ok && !caller.IsDoctor() && caller.Email != "" {
		existing, err := t.appts.Appointment(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if !strings.EqualFold(existing.PatientEmail, caller.Email) {
			return Result{}, fmt.Errorf("%w: appointment %d belongs to another patient", ErrAuthorization, id)
		}
	}

	appt, err := t.appts.Cancel(ctx, id)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Data:    map[string]any{"appointment": appt},
		Summary: fmt.Sprintf("Appointment #%d on %s at %s has been cancelled.", appt.ID, appt.Date, appt.Time),
	}
	if t.notifier != nil {
		doctorName, doctorEmail := appt.DoctorName, ""
		if d, err := t.appts.Doctor(ctx, appt.DoctorID); err == nil {
			doctorEmail = d.Email
			if doctorName == "" {
				doctorName = d.Name
			}
		}
		res.Warnings = t.notifier.BookingCancelled(ctx, notify.BookingNotice{
			AppointmentID:   appt.ID,
			PatientName:     appt.PatientName,
			PatientEmail:    appt.PatientEmail,
			DoctorName:      doctorName,
			DoctorEmail:     doctorEmail,
			Date:            appt.Date,
			Time:            appt.Time,
			Reason:          appt.Reason,
			CalendarEventID: appt.CalendarEventID,
		})
	}
	return res, nil
}

type listAppointmentsTool struct {
	base
	appts *appointments.Service
}

func newListAppointments(appts *appointments.Service) Tool {
	return &listAppointmentsTool{
		base: base{spec: llm.ToolSpec{
			Name:        ListAppointments,
			Description: "List appointments, most recent first, filtered by patient email or by doctor and date range. Use this to see existing appointments.",
			Params: []llm.Param{
				{Name: "patient_email", Type: "string", Description: "Patient email address"},
				{Name: "doctor_id", Type: "integer", Description: "Doctor ID"},
				{Name: "date_from", Type: "string", Description: "Start of the date range, YYYY-MM-DD"},
				{Name: "date_to", Type: "string", Description: "End of the date range, YYYY-MM-DD"},
				{Name: "status", Type: "string", Description: "Appointment status", Enum: []string{"pending", "confirmed", "cancelled"}},
			},
		}},
		appts: appts,
	}
}

const listLimit = 50

func (t *listAppointmentsTool) Execute(ctx context.Context, args Args) (Result, error) {
	doctorID, err := args.OptionalInt("doctor_id")
	if err != nil {
		return Result{}, err
	}
	filter := appointments.Filter{
		PatientEmail: args.String("patient_email"),
		DoctorID:     doctorID,
		DateFrom:     args.FirstString("date_from", "start_date", "date"),
		DateTo:       args.FirstString("date_to", "end_date", "date"),
		Status:       appointments.Status(strings.ToLower(args.String("status"))),
		Limit:        listLimit,
	}
	if caller, ok := identity.CallerFromContext(ctx); ok && !caller.IsDoctor() {
		if caller.Email != "" {
			filter.PatientEmail = caller.Email
		}
		if filter.PatientEmail == "" {
			return Result{}, &appointments.ValidationError{Field: "patient_email", Reason: "is required to look up your appointments"}
		}
	}

	list, err := t.appts.List(ctx, filter)
	if err != nil {
		return Result{}, err
	}
	summary := fmt.Sprintf("Found %d appointments.", len(list))
	if len(list) == 0 {
		summary = "No appointments found."
	}
	return Result{
		Data:    map[string]any{"appointments": list, "count": len(list)},
		Summary: summary,
	}, nil
}

type listDoctorsTool struct {
	base
	appts *appointments.Service
}

func newListDoctors(appts *appointments.Service) Tool {
	return &listDoctorsTool{
		base: base{spec: llm.ToolSpec{
			Name:        ListDoctors,
			Description: "List the clinic's doctors with their specializations and working hours.",
			Params: []llm.Param{
				{Name: "specialization", Type: "string", Description: "Only list doctors with this specialization", Enum: specializations},
			},
		}},
		appts: appts,
	}
}

func (t *listDoctorsTool) Execute(ctx context.Context, args Args) (Result, error) {
	all, err := t.appts.Doctors(ctx)
	if err != nil {
		return Result{}, err
	}
	spec := args.String("specialization")
	doctors := make([]appointments.Doctor, 0, len(all))
	for _, d := range all {
		if spec == "" || strings.EqualFold(d.Specialization, spec) {
			doctors = append(doctors, d)
		}
	}
	return Result{
		Data:    map[string]any{"doctors": doctors},
		Summary: fmt.Sprintf("%d doctors available.", len(doctors)),
	}, nil
}

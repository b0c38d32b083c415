package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/internal/reports"
)

// doctorID resolves the doctor argument, defaulting to the calling doctor.
func doctorID(ctx context.Context, args Args, required bool) (int64, error) {
	id, ok, err := args.Int("doctor_id")
	if err != nil {
		return 0, err
	}
	if ok && id != 0 {
		return id, nil
	}
	if caller, found := identity.CallerFromContext(ctx); found && caller.DoctorID != 0 {
		return caller.DoctorID, nil
	}
	if required {
		return 0, &appointments.ValidationError{Field: "doctor_id", Reason: "is required"}
	}
	return 0, nil
}

var reportTypes = []string{"daily", "weekly"}

type appointmentStatsTool struct {
	base
	appts *appointments.Service
}

func newAppointmentStats(appts *appointments.Service) Tool {
	return &appointmentStatsTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        GetAppointmentStats,
			Description: "Get appointment statistics for a date or date range. Use for queries like 'how many patients today' or 'appointments this week'.",
			Params: []llm.Param{
				{Name: "doctor_id", Type: "integer", Description: "Doctor ID; omit for every doctor"},
				{Name: "date", Type: "string", Description: "Single date in YYYY-MM-DD format"},
				{Name: "start_date", Type: "string", Description: "Start of the range, YYYY-MM-DD"},
				{Name: "end_date", Type: "string", Description: "End of the range, YYYY-MM-DD"},
			},
		}},
		appts: appts,
	}
}

func (t *appointmentStatsTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := doctorID(ctx, args, false)
	if err != nil {
		return Result{}, err
	}
	stats, err := t.appts.Stats(ctx, appointments.StatsQuery{
		DoctorID:  id,
		Date:      args.String("date"),
		StartDate: args.String("start_date"),
		EndDate:   args.String("end_date"),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data: map[string]any{"stats": stats},
		Summary: fmt.Sprintf("%d appointments for %s: %d confirmed, %d pending, %d cancelled.",
			stats.Total, stats.DateRange, stats.Confirmed, stats.Pending, stats.Cancelled),
	}, nil
}

type patientStatsTool struct {
	base
	appts *appointments.Service
}

func newPatientStats(appts *appointments.Service) Tool {
	return &patientStatsTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        GetPatientStats,
			Description: "Get patient statistics filtered by symptoms or diagnosis. Use for queries like 'how many patients with fever' or 'patients with headache this week'.",
			Params: []llm.Param{
				{Name: "symptoms", Type: "string", Description: "Symptom text to match"},
				{Name: "diagnosis", Type: "string", Description: "Diagnosis text to match"},
				{Name: "start_date", Type: "string", Description: "Start of the range, YYYY-MM-DD; defaults to seven days ago"},
				{Name: "end_date", Type: "string", Description: "End of the range, YYYY-MM-DD; defaults to today"},
				{Name: "doctor_id", Type: "integer", Description: "Doctor ID"},
			},
		}},
		appts: appts,
	}
}

func (t *patientStatsTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := doctorID(ctx, args, false)
	if err != nil {
		return Result{}, err
	}
	stats, err := t.appts.PatientStats(ctx, appointments.PatientStatsQuery{
		Symptoms:  args.FirstString("symptoms", "symptom"),
		Diagnosis: args.String("diagnosis"),
		StartDate: args.String("start_date"),
		EndDate:   args.String("end_date"),
		DoctorID:  id,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data: map[string]any{"patient_stats": stats},
		Summary: fmt.Sprintf("%d patients between %s and %s.",
			stats.TotalPatients, stats.DateFrom, stats.DateTo),
	}, nil
}

type summaryReportTool struct {
	base
	reports *reports.Service
}

func newSummaryReport(svc *reports.Service) Tool {
	return &summaryReportTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        GenerateSummaryReport,
			Description: "Generate a daily or weekly summary report for a doctor, optionally sending it to Slack.",
			Params: []llm.Param{
				{Name: "doctor_id", Type: "integer", Description: "ID of the doctor", Required: true},
				{Name: "report_type", Type: "string", Description: "daily or weekly", Enum: reportTypes},
				{Name: "date", Type: "string", Description: "Report date in YYYY-MM-DD format; defaults to today"},
				{Name: "send_notification", Type: "boolean", Description: "Also post the report to Slack"},
			},
		}},
		reports: svc,
	}
}

func (t *summaryReportTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := doctorID(ctx, args, true)
	if err != nil {
		return Result{}, err
	}
	report, err := t.reports.Generate(ctx, id, args.String("report_type"), args.FirstString("date", "date_str"))
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Data:    map[string]any{"report": report, "summary": report.Summary},
		Summary: fmt.Sprintf("%s report generated for %s.", report.Type, report.Doctor),
	}
	if args.Bool("send_notification", false) || args.Bool("send_slack", false) {
		if err := t.reports.SendSlack(ctx, report); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("slack delivery failed: %v", err))
			res.Data["notification_sent"] = false
		} else {
			res.Data["notification_sent"] = true
		}
	}
	return res, nil
}

type slackNotificationTool struct {
	base
	reports *reports.Service
}

func newSlackNotification(svc *reports.Service) Tool {
	return &slackNotificationTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        SendSlackNotification,
			Description: "Send a notification or today's summary to the doctor via Slack. Use when the doctor wants their schedule or report on Slack.",
			Params: []llm.Param{
				{Name: "doctor_id", Type: "integer", Description: "ID of the doctor", Required: true},
				{Name: "message", Type: "string", Description: "Optional custom message"},
				{Name: "include_today_summary", Type: "boolean", Description: "Include today's appointment summary (default true)"},
			},
		}},
		reports: svc,
	}
}

func (t *slackNotificationTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := doctorID(ctx, args, true)
	if err != nil {
		return Result{}, err
	}
	message := args.String("message")
	data := map[string]any{}

	if args.Bool("include_today_summary", true) {
		report, err := t.reports.Generate(ctx, id, "daily", "")
		if err != nil {
			return Result{}, err
		}
		if err := t.reports.SendSlack(ctx, report); err != nil {
			return Result{}, external("slack", err)
		}
		data["report_summary"] = report.Summary
		if message == "" {
			return Result{Data: data, Summary: "Summary report sent to Slack."}, nil
		}
	}
	if err := t.reports.Message(ctx, id, message); err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, external("slack", err)
	}
	return Result{Data: data, Summary: "Message sent to Slack."}, nil
}

type whatsAppReportTool struct {
	base
	reports *reports.Service
}

func newWhatsAppReport(svc *reports.Service) Tool {
	return &whatsAppReportTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        SendReportToWhatsApp,
			Description: "Generate and send a report to the doctor via WhatsApp. Use when the doctor asks to send a report to WhatsApp or their phone.",
			Params: []llm.Param{
				{Name: "doctor_id", Type: "integer", Description: "ID of the doctor", Required: true},
				{Name: "report_type", Type: "string", Description: "daily or weekly", Enum: reportTypes},
				{Name: "date", Type: "string", Description: "Report date in YYYY-MM-DD format"},
			},
		}},
		reports: svc,
	}
}

func (t *whatsAppReportTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := doctorID(ctx, args, true)
	if err != nil {
		return Result{}, err
	}
	report, err := t.reports.Generate(ctx, id, args.String("report_type"), args.FirstString("date", "date_str"))
	if err != nil {
		return Result{}, err
	}
	sid, err := t.reports.SendWhatsApp(ctx, report)
	if err != nil {
		if errors.Is(err, reports.ErrNoPhone) || errors.Is(err, appointments.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, external("whatsapp", err)
	}
	return Result{
		Data:    map[string]any{"message_sid": sid, "report_summary": report.Summary},
		Summary: fmt.Sprintf("%s report sent to %s via WhatsApp.", report.Type, report.Doctor),
	}, nil
}

type patientHistoryTool struct {
	base
	appts *appointments.Service
}

func newPatientHistory(appts *appointments.Service) Tool {
	return &patientHistoryTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        GetPatientHistory,
			Description: "Get a patient's previous visits with diagnoses and prescriptions.",
			Params: []llm.Param{
				{Name: "patient_email", Type: "string", Description: "Patient email address", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum visits to return (default 10)"},
			},
		}},
		appts: appts,
	}
}

func (t *patientHistoryTool) Execute(ctx context.Context, args Args) (Result, error) {
	limit, err := args.OptionalInt("limit")
	if err != nil {
		return Result{}, err
	}
	history, err := t.appts.PatientHistory(ctx, args.String("patient_email"), int(limit))
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:    map[string]any{"visits": history, "count": len(history)},
		Summary: fmt.Sprintf("%d previous visits found.", len(history)),
	}, nil
}

type visitNotesTool struct {
	base
	appts *appointments.Service
}

func newVisitNotes(appts *appointments.Service) Tool {
	return &visitNotesTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        AddVisitNotes,
			Description: "Record a diagnosis and notes on the visit of an appointment.",
			Params: []llm.Param{
				{Name: "appointment_id", Type: "integer", Description: "ID of the appointment", Required: true},
				{Name: "diagnosis", Type: "string", Description: "Diagnosis", Required: true},
				{Name: "notes", Type: "string", Description: "Doctor's notes"},
			},
		}},
		appts: appts,
	}
}

func (t *visitNotesTool) Execute(ctx context.Context, args Args) (Result, error) {
	id, err := args.RequireInt("appointment_id")
	if err != nil {
		return Result{}, err
	}
	visit, err := t.appts.AddVisitNotes(ctx, id, args.String("diagnosis"), args.FirstString("notes", "doctor_notes"))
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:    map[string]any{"visit": visit},
		Summary: fmt.Sprintf("Notes saved on visit #%d.", visit.ID),
	}, nil
}

type prescriptionTool struct {
	base
	appts *appointments.Service
}

func newPrescription(appts *appointments.Service) Tool {
	return &prescriptionTool{
		base: base{doctorOnly: true, spec: llm.ToolSpec{
			Name:        AddPrescription,
			Description: "Add a prescription to a patient's visit.",
			Params: []llm.Param{
				{Name: "visit_id", Type: "integer", Description: "ID of the visit", Required: true},
				{Name: "medication_name", Type: "string", Description: "Medication", Required: true},
				{Name: "dosage", Type: "string", Description: "Dosage, e.g. 500mg", Required: true},
				{Name: "frequency", Type: "string", Description: "Frequency, e.g. twice daily", Required: true},
				{Name: "duration", Type: "string", Description: "Duration, e.g. 7 days", Required: true},
				{Name: "notes", Type: "string", Description: "Additional instructions"},
			},
		}},
		appts: appts,
	}
}

func (t *prescriptionTool) Execute(ctx context.Context, args Args) (Result, error) {
	visitID, err := args.RequireInt("visit_id")
	if err != nil {
		return Result{}, err
	}
	rx, err := t.appts.AddPrescription(ctx, appointments.NewPrescription{
		VisitID:        visitID,
		MedicationName: args.FirstString("medication_name", "medication"),
		Dosage:         args.String("dosage"),
		Frequency:      args.String("frequency"),
		Duration:       args.String("duration"),
		Notes:          args.String("notes"),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:    map[string]any{"prescription": rx},
		Summary: fmt.Sprintf("%s prescribed for %s.", rx.MedicationName, rx.PatientName),
	}, nil
}

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/internal/reports"
	"github.com/wolfman30/medassist/internal/tools"
	"github.com/wolfman30/medassist/pkg/logging"
)

const appointmentListLimit = 200

// ClinicHandler serves the roster, appointment and reporting endpoints.
type ClinicHandler struct {
	appts   *appointments.Service
	reports *reports.Service
	logger  *logging.Logger
}

func NewClinicHandler(appts *appointments.Service, reportSvc *reports.Service, logger *logging.Logger) *ClinicHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ClinicHandler{appts: appts, reports: reportSvc, logger: logger}
}

// DoctorView is the public roster entry.
type DoctorView struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	AvailableFrom  string `json:"available_from"`
	AvailableTo    string `json:"available_to"`
}

func doctorView(d appointments.Doctor) DoctorView {
	from, to := d.WorkingHours()
	return DoctorView{ID: d.ID, Name: d.Name, Specialization: d.Specialization, AvailableFrom: from, AvailableTo: to}
}

// ListDoctors handles GET /doctors.
func (h *ClinicHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.appts.Doctors(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	spec := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("specialization")))
	out := make([]DoctorView, 0, len(doctors))
	for _, d := range doctors {
		if spec != "" && !strings.Contains(strings.ToLower(d.Specialization), spec) {
			continue
		}
		out = append(out, doctorView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": out})
}

// CreateDoctor handles POST /doctors.
func (h *ClinicHandler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var in appointments.NewDoctor
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	doctor, err := h.appts.AddDoctor(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.logger.Info("doctor added", "doctor_id", doctor.ID, "specialization", doctor.Specialization)
	writeJSON(w, http.StatusCreated, map[string]any{"doctor": doctorView(*doctor)})
}

// ListAppointments handles GET /appointments. Verified patients only see
// their own appointments.
func (h *ClinicHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID, err := queryInt(r, "doctor_id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	filter := appointments.Filter{
		PatientEmail: strings.ToLower(strings.TrimSpace(q.Get("patient_email"))),
		DoctorID:     doctorID,
		DateFrom:     firstNonEmpty(q.Get("date_from"), q.Get("date")),
		DateTo:       firstNonEmpty(q.Get("date_to"), q.Get("date")),
		Status:       appointments.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Limit:        appointmentListLimit,
	}
	if caller, ok := identity.CallerFromContext(r.Context()); ok && caller.Verified && !caller.IsDoctor() {
		if caller.Email == "" {
			writeError(w, h.logger, r, &appointments.ValidationError{Field: "patient_email", Reason: "is not known for this account"})
			return
		}
		filter.PatientEmail = caller.Email
	}
	list, err := h.appts.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if list == nil {
		list = []appointments.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// Stats handles GET /stats.
func (h *ClinicHandler) Stats(w http.ResponseWriter, r *http.Request) {
	doctorID, err := queryInt(r, "doctor_id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if caller, ok := identity.CallerFromContext(r.Context()); ok && caller.Verified && caller.IsDoctor() && doctorID == 0 {
		doctorID = caller.DoctorID
	}
	q := r.URL.Query()
	stats, err := h.appts.Stats(r.Context(), appointments.StatsQuery{
		DoctorID:  doctorID,
		Date:      q.Get("date"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ReportRequest is the body of POST /doctor/report.
type ReportRequest struct {
	DoctorID   int64  `json:"doctor_id"`
	ReportType string `json:"report_type"`
	Date       string `json:"date"`
	SendSlack  bool   `json:"send_slack"`
}

// ReportResponse answers POST /doctor/report.
type ReportResponse struct {
	Summary          string                         `json:"summary"`
	NotificationSent bool                           `json:"notification_sent"`
	ReportType       string                         `json:"report_type"`
	DateRange        string                         `json:"date_range"`
	Stats            *appointments.AppointmentStats `json:"stats"`
	ArchiveKey       string                         `json:"archive_key,omitempty"`
	Warnings         []string                       `json:"warnings,omitempty"`
}

// Report handles POST /doctor/report. A failed Slack delivery is a warning.
func (h *ClinicHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if caller, ok := identity.CallerFromContext(r.Context()); ok && caller.Verified && caller.DoctorID != 0 && req.DoctorID == 0 {
		req.DoctorID = caller.DoctorID
	}
	report, err := h.reports.Generate(r.Context(), req.DoctorID, req.ReportType, req.Date)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	resp := ReportResponse{
		Summary:    report.Summary,
		ReportType: report.Type,
		DateRange:  report.DateRange,
		Stats:      report.Stats,
		ArchiveKey: report.ArchiveKey,
	}
	if req.SendSlack {
		if err := h.reports.SendSlack(r.Context(), report); err != nil {
			h.logger.Warn("report slack delivery failed", "doctor_id", req.DoctorID, "error", err)
			resp.Warnings = append(resp.Warnings, "slack notification was not sent")
		} else {
			resp.NotificationSent = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

const testSlackMessage = "This is a test notification from Medical Assistant"

// SlackTestResponse is the body of POST /notifications/test-slack.
type SlackTestResponse struct {
	Success       bool   `json:"success"`
	DoctorID      int64  `json:"doctor_id"`
	ReportSummary string `json:"report_summary"`
}

// TestSlack handles POST /notifications/test-slack?doctor_id=. It posts the
// doctor's daily summary and a test note to the clinic webhook.
func (h *ClinicHandler) TestSlack(w http.ResponseWriter, r *http.Request) {
	doctorID, err := queryInt(r, "doctor_id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if doctorID == 0 {
		doctorID = 1
		if caller, ok := identity.CallerFromContext(r.Context()); ok && caller.Verified && caller.DoctorID != 0 {
			doctorID = caller.DoctorID
		}
	}
	report, err := h.reports.Generate(r.Context(), doctorID, "daily", "")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.reports.SendSlack(r.Context(), report); err != nil {
		writeError(w, h.logger, r, slackError(err))
		return
	}
	if err := h.reports.Message(r.Context(), doctorID, testSlackMessage); err != nil {
		writeError(w, h.logger, r, slackError(err))
		return
	}
	writeJSON(w, http.StatusOK, SlackTestResponse{Success: true, DoctorID: doctorID, ReportSummary: report.Summary})
}

func slackError(err error) error {
	if errors.Is(err, appointments.ErrNotFound) {
		return err
	}
	return &tools.ExternalError{Service: "slack", Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/notify"
)

// MaxDetailLines caps the appointment lines rendered in a summary.
const MaxDetailLines = 10

// Line is one appointment as it appears in a report.
type Line struct {
	ID      int64               `json:"id"`
	Patient string              `json:"patient"`
	Date    string              `json:"date"`
	Time    string              `json:"time"`
	Reason  string              `json:"reason"`
	Status  appointments.Status `json:"status"`
}

// Report is a daily or weekly summary for one doctor.
type Report struct {
	DoctorID       int64                          `json:"doctor_id"`
	Doctor         string                         `json:"doctor"`
	Specialization string                         `json:"specialization,omitempty"`
	Type           string                         `json:"report_type"`
	DateFrom       string                         `json:"date_from"`
	DateTo         string                         `json:"date_to"`
	DateRange      string                         `json:"date_range"`
	Stats          *appointments.AppointmentStats `json:"stats"`
	Appointments   []Line                         `json:"appointments"`
	Summary        string                         `json:"summary"`
	GeneratedAt    time.Time                      `json:"generated_at"`
	ArchiveKey     string                         `json:"archive_key,omitempty"`
}

// Build assembles a report from a doctor and the appointments in its window.
// Lines are ordered chronologically regardless of the input order.
func Build(doctor appointments.Doctor, reportType, from, to string, list []appointments.Appointment, now time.Time) *Report {
	sorted := make([]appointments.Appointment, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].Time < sorted[j].Time
	})

	stats := appointments.Summarize(sorted, 5)
	stats.DoctorID = doctor.ID
	stats.DateFrom, stats.DateTo = from, to
	stats.DateRange = appointments.FormatDateRange(from, to)

	r := &Report{
		DoctorID:       doctor.ID,
		Doctor:         doctor.Name,
		Specialization: doctor.Specialization,
		Type:           normalizeType(reportType),
		DateFrom:       from,
		DateTo:         to,
		DateRange:      stats.DateRange,
		Stats:          stats,
		Appointments:   make([]Line, 0, len(sorted)),
		GeneratedAt:    now,
	}
	for _, a := range sorted {
		r.Appointments = append(r.Appointments, Line{
			ID:      a.ID,
			Patient: a.PatientName,
			Date:    a.Date,
			Time:    a.Time,
			Reason:  a.Reason,
			Status:  a.Status,
		})
	}
	r.Summary = r.Text()
	return r
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "daily"
	}
	return t
}

func statusSymbol(s appointments.Status) string {
	switch s {
	case appointments.StatusConfirmed:
		return "🟢"
	case appointments.StatusPending:
		return "🟡"
	case appointments.StatusCancelled:
		return "🔴"
	default:
		return "⚪"
	}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Text renders the human-readable summary.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s Report for %s\n", title(r.Type), r.Doctor)
	fmt.Fprintf(&b, "📅 %s\n\n", r.DateRange)
	fmt.Fprintf(&b, "📋 Total Appointments: %d\n", r.Stats.Total)
	fmt.Fprintf(&b, "🟢 Confirmed: %d\n", r.Stats.Confirmed)
	fmt.Fprintf(&b, "⏳ Pending: %d\n", r.Stats.Pending)
	fmt.Fprintf(&b, "❌ Cancelled: %d", r.Stats.Cancelled)

	if len(r.Appointments) > 0 {
		b.WriteString("\n\n📝 Appointment Details:")
		for i, a := range r.Appointments {
			if i == MaxDetailLines {
				fmt.Fprintf(&b, "\n  ... and %d more", len(r.Appointments)-MaxDetailLines)
				break
			}
			when := a.Time
			if r.DateFrom != r.DateTo {
				when = a.Date + " " + a.Time
			}
			fmt.Fprintf(&b, "\n  %s %s - %s (%s)", statusSymbol(a.Status), when, a.Patient, a.Reason)
		}
	}
	return b.String()
}

// SlackMessage renders the report as Block Kit blocks with a plain fallback.
func (r *Report) SlackMessage() notify.SlackMessage {
	mrkdwn := func(text string) map[string]any {
		return map[string]any{"type": "mrkdwn", "text": text}
	}
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type":  "plain_text",
				"text":  fmt.Sprintf("📊 %s Summary Report - %s", title(r.Type), r.DateRange),
				"emoji": true,
			},
		},
		{"type": "section", "text": mrkdwn("*Doctor:* " + r.Doctor)},
		{"type": "divider"},
		{
			"type": "section",
			"fields": []map[string]any{
				mrkdwn(fmt.Sprintf("*📋 Total Appointments:*\n%d", r.Stats.Total)),
				mrkdwn(fmt.Sprintf("*🟢 Confirmed:*\n%d", r.Stats.Confirmed)),
				mrkdwn(fmt.Sprintf("*⏳ Pending:*\n%d", r.Stats.Pending)),
				mrkdwn(fmt.Sprintf("*❌ Cancelled:*\n%d", r.Stats.Cancelled)),
			},
		},
	}
	if len(r.Appointments) > 0 {
		blocks = append(blocks,
			map[string]any{"type": "divider"},
			map[string]any{"type": "section", "text": mrkdwn("*📅 Appointment Details:*")},
		)
		for i, a := range r.Appointments {
			if i == MaxDetailLines {
				break
			}
			blocks = append(blocks, map[string]any{
				"type": "section",
				"text": mrkdwn(fmt.Sprintf("%s *%s %s* - %s\n_%s_", statusSymbol(a.Status), a.Date, a.Time, a.Patient, a.Reason)),
			})
		}
	}
	blocks = append(blocks,
		map[string]any{"type": "divider"},
		map[string]any{
			"type":     "context",
			"elements": []map[string]any{mrkdwn("Generated by Medical Assistant at " + r.GeneratedAt.Format("15:04:05"))},
		},
	)
	return notify.SlackMessage{
		Text:   fmt.Sprintf("%s Summary for %s on %s: %d appointments", title(r.Type), r.Doctor, r.DateRange, r.Stats.Total),
		Blocks: blocks,
	}
}

// WhatsAppText wraps the summary for delivery to the doctor's phone.
func (r *Report) WhatsAppText() string {
	return fmt.Sprintf("🏥 *Medical Assistant Report*\n\nHello %s,\n\n%s\n\n---\nSent via Medical Assistant AI", r.Doctor, r.Summary)
}

package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/internal/session"
)

const (
	patientSystemPrompt = `You are a helpful medical appointment assistant. You help patients:

1. **Check Availability**: find open appointment slots with doctors
2. **Book Appointments**: schedule appointments (an email confirmation is sent)
3. **Cancel Appointments**: cancel existing appointments
4. **View Appointments**: list scheduled appointments

**BOOKING FLOW:**
Step 1: ALWAYS call check_availability first and show the open slots.
Step 2: Ask for full name, email and reason for the visit in ONE message.
Step 3: Call book_appointment as soon as you have them. There is no extra confirmation step.

**RULES:**
- NEVER ask for the same information twice. If the patient already gave it, use it.
- Resolve relative dates ("tomorrow", "next Monday") to YYYY-MM-DD yourself using the dates below.
- Times are 24-hour HH:MM when calling tools (e.g. "2:30 PM" is "14:30").
- Match doctors by first or last name against the roster below and pass the numeric ID.
- If a tool reports an error, explain it plainly and offer the next step. Never show raw errors.
- You are ONLY an appointment assistant. Do not give diagnoses or medical advice.`

	doctorSystemPrompt = `You are an intelligent medical assistant helping doctors manage their practice. You can:

1. **View Appointment Statistics**: "how many patients today?", "appointments this week"
2. **Query Patient Data**: find patients by symptom or diagnosis
3. **Generate Reports**: daily or weekly summary reports
4. **Send Notifications**: schedule summaries to Slack or WhatsApp
5. **Manage Appointments**: book, cancel or list appointments, record visit notes and prescriptions

Guidelines:
- Appointment counts: use get_appointment_stats.
- Patients by symptom or diagnosis: use get_patient_stats.
- Summary reports: use generate_summary_report.
- Slack: use send_slack_notification. WhatsApp: use send_report_to_whatsapp.
- Visit notes and prescriptions: use add_visit_notes and add_prescription.
- Be concise and data-focused. Present statistics clearly.`
)

// PromptInput is everything the system prompt depends on.
type PromptInput struct {
	Role    identity.Role
	Now     time.Time
	Doctors []appointments.Doctor
	Slot    time.Duration
	Caller  identity.Caller
	Draft   session.Draft
}

// SystemPrompt builds the role-specific instructions for one turn.
func SystemPrompt(in PromptInput) string {
	var b strings.Builder
	if in.Role == identity.RoleDoctor {
		b.WriteString(doctorSystemPrompt)
	} else {
		b.WriteString(patientSystemPrompt)
	}
	b.WriteString("\n\n")
	b.WriteString(dateContext(in.Now))
	b.WriteString("\n")
	b.WriteString(rosterContext(in.Doctors, in.Slot))

	if who := callerContext(in.Role, in.Caller); who != "" {
		b.WriteString("\n")
		b.WriteString(who)
	}
	if in.Role != identity.RoleDoctor && !in.Draft.IsZero() {
		b.WriteString("\n")
		b.WriteString(draftContext(in.Draft, in.Doctors))
	}
	return b.String()
}

func dateContext(now time.Time) string {
	today := now
	return fmt.Sprintf(`Current Date: %s
Current Time: %s
Important date references:
- Today: %s
- Tomorrow: %s
- Yesterday: %s
`,
		today.Format("Monday, January 2, 2006"),
		today.Format("15:04"),
		today.Format(appointments.DateLayout),
		today.AddDate(0, 0, 1).Format(appointments.DateLayout),
		today.AddDate(0, 0, -1).Format(appointments.DateLayout),
	)
}

func rosterContext(doctors []appointments.Doctor, slot time.Duration) string {
	if len(doctors) == 0 {
		return "No doctors are registered yet.\n"
	}
	var b strings.Builder
	b.WriteString("Available doctors:\n")
	for _, d := range doctors {
		from, to := d.WorkingHours()
		fmt.Fprintf(&b, "- ID %d: %s (%s), %s-%s\n", d.ID, d.Name, displaySpecialization(d.Specialization), from, to)
	}
	if slot > 0 {
		fmt.Fprintf(&b, "Slots are %d minutes long.\n", int(slot/time.Minute))
	}
	return b.String()
}

func callerContext(role identity.Role, c identity.Caller) string {
	if role == identity.RoleDoctor {
		if c.DoctorID == 0 {
			return ""
		}
		return fmt.Sprintf("You are assisting the doctor with ID %d. Use this ID when a tool needs doctor_id and none is given.\n", c.DoctorID)
	}
	if c.Email == "" {
		return ""
	}
	return fmt.Sprintf("The patient is signed in as %s. Use this email for bookings and do not ask for it.\n", c.Email)
}

func draftContext(d session.Draft, doctors []appointments.Doctor) string {
	var known []string
	if d.DoctorID != 0 {
		name := fmt.Sprintf("ID %d", d.DoctorID)
		for _, doc := range doctors {
			if doc.ID == d.DoctorID {
				name = fmt.Sprintf("%s (ID %d)", doc.Name, doc.ID)
				break
			}
		}
		known = append(known, "doctor="+name)
	}
	if d.Date != "" {
		known = append(known, "date="+d.Date)
	}
	if d.Time != "" {
		known = append(known, "time="+d.Time)
	}
	if d.Name != "" {
		known = append(known, "name="+d.Name)
	}
	if d.Email != "" {
		known = append(known, "email="+d.Email)
	}
	if d.Reason != "" {
		known = append(known, "reason="+d.Reason)
	}
	out := "Booking in progress. Already collected: " + strings.Join(known, ", ") + ".\n"
	if missing := d.Missing(); len(missing) > 0 {
		out += "Still needed: " + strings.Join(missing, ", ") + ".\n"
	}
	return out
}

func displaySpecialization(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "General"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

package notify

import (
	"fmt"
	"html/template"
	"strings"
)

// BookingNotice carries what patients and calendars need to know about an appointment.
type BookingNotice struct {
	AppointmentID   int64
	PatientName     string
	PatientEmail    string
	DoctorName      string
	DoctorEmail     string
	Specialization  string
	Date            string
	Time            string
	Reason          string
	CalendarEventID string
}

var confirmationHTML = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2>Appointment Confirmed</h2>
<p>Dear <strong>{{.PatientName}}</strong>,</p>
<p>Your appointment has been booked.</p>
<table cellpadding="6">
<tr><td>Appointment ID</td><td>#{{.AppointmentID}}</td></tr>
<tr><td>Doctor</td><td>{{.DoctorName}}</td></tr>
<tr><td>Specialization</td><td>{{.Specialization}}</td></tr>
<tr><td>Date</td><td>{{.Date}}</td></tr>
<tr><td>Time</td><td>{{.Time}}</td></tr>
<tr><td>Reason</td><td>{{.Reason}}</td></tr>
</table>
<p>Please arrive 10 minutes before your scheduled time. To cancel, contact us at least 24 hours in advance.</p>
</body></html>`))

var cancellationHTML = template.Must(template.New("cancellation").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2>Appointment Cancelled</h2>
<p>Dear <strong>{{.PatientName}}</strong>,</p>
<p>Your appointment #{{.AppointmentID}} with {{.DoctorName}} on {{.Date}} at {{.Time}} has been cancelled.</p>
<p>You can book a new appointment at any time.</p>
</body></html>`))

func confirmationEmail(n BookingNotice) (EmailMessage, error) {
	var html strings.Builder
	if err := confirmationHTML.Execute(&html, n); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render confirmation: %w", err)
	}
	body := fmt.Sprintf(`Appointment Confirmed

Dear %s,

Your appointment has been booked.

- Appointment ID: #%d
- Doctor: %s
- Specialization: %s
- Date: %s
- Time: %s
- Reason: %s

Please arrive 10 minutes before your scheduled time.
`, n.PatientName, n.AppointmentID, n.DoctorName, n.Specialization, n.Date, n.Time, n.Reason)

	return EmailMessage{
		To:       n.PatientEmail,
		ToName:   n.PatientName,
		ReplyTo:  n.DoctorEmail,
		Subject:  fmt.Sprintf("Appointment Confirmed - %s on %s", n.DoctorName, n.Date),
		Body:     body,
		HTML:     html.String(),
		Category: CategoryConfirmation,
	}, nil
}

func cancellationEmail(n BookingNotice) (EmailMessage, error) {
	var html strings.Builder
	if err := cancellationHTML.Execute(&html, n); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render cancellation: %w", err)
	}
	return EmailMessage{
		To:       n.PatientEmail,
		ToName:   n.PatientName,
		ReplyTo:  n.DoctorEmail,
		Category: CategoryCancellation,
		Subject:  fmt.Sprintf("Appointment Cancelled - #%d", n.AppointmentID),
		Body: fmt.Sprintf("Dear %s,\n\nYour appointment #%d with %s on %s at %s has been cancelled.\n",
			n.PatientName, n.AppointmentID, n.DoctorName, n.Date, n.Time),
		HTML: html.String(),
	}, nil
}

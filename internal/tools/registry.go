package tools

import (
	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/notify"
	"github.com/wolfman30/medassist/internal/reports"
)

// Deps are the services the built-in tools run against. Notifier may be nil.
type Deps struct {
	Appointments *appointments.Service
	Notifier     *notify.Service
	Reports      *reports.Service
}

// Default returns every built-in tool, patient tools first.
func Default(d Deps) []Tool {
	if d.Appointments == nil || d.Reports == nil {
		panic("tools: appointments and reports services required")
	}
	return []Tool{
		newCheckAvailability(d.Appointments),
		newBookAppointment(d.Appointments, d.Notifier),
		newCancelAppointment(d.Appointments, d.Notifier),
		newListAppointments(d.Appointments),
		newListDoctors(d.Appointments),

		newAppointmentStats(d.Appointments),
		newPatientStats(d.Appointments),
		newSummaryReport(d.Reports),
		newSlackNotification(d.Reports),
		newWhatsAppReport(d.Reports),
		newPatientHistory(d.Appointments),
		newVisitNotes(d.Appointments),
		newPrescription(d.Appointments),
	}
}

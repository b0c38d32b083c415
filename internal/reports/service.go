package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/notify"
	"github.com/wolfman30/medassist/pkg/logging"
)

// ErrNoPhone is returned when a WhatsApp delivery targets a doctor without a phone number.
var ErrNoPhone = errors.New("reports: doctor has no phone number on file")

// Service generates reports and delivers them through the notifier.
type Service struct {
	appts    *appointments.Service
	notifier *notify.Service
	archiver *Archiver
	logger   *logging.Logger
}

func NewService(appts *appointments.Service, notifier *notify.Service, archiver *Archiver, logger *logging.Logger) *Service {
	if appts == nil {
		panic("reports: appointments service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{appts: appts, notifier: notifier, archiver: archiver, logger: logger}
}

// Generate builds a daily or weekly report. Archive failures are logged, not returned.
func (s *Service) Generate(ctx context.Context, doctorID int64, reportType, date string) (*Report, error) {
	if doctorID <= 0 {
		return nil, &appointments.ValidationError{Field: "doctor_id", Reason: "must be positive"}
	}
	from, to, err := s.appts.ReportWindow(reportType, date)
	if err != nil {
		return nil, err
	}
	doctor, err := s.appts.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	list, err := s.appts.List(ctx, appointments.Filter{DoctorID: doctorID, DateFrom: from, DateTo: to})
	if err != nil {
		return nil, err
	}
	report := Build(*doctor, reportType, from, to, list, s.appts.Now())

	if key, err := s.archiver.Archive(ctx, report); err != nil {
		s.logger.Warn("report archive failed", "doctor_id", doctorID, "error", err)
	} else {
		report.ArchiveKey = key
	}
	return report, nil
}

// SendSlack posts the report to the clinic Slack channel.
func (s *Service) SendSlack(ctx context.Context, r *Report) error {
	if s.notifier == nil {
		return fmt.Errorf("reports: slack %w", notify.ErrNotConfigured)
	}
	return s.notifier.Slack(ctx, r.SlackMessage())
}

// SendWhatsApp delivers the report to the doctor's phone and returns the message id.
func (s *Service) SendWhatsApp(ctx context.Context, r *Report) (string, error) {
	doctor, err := s.appts.Doctor(ctx, r.DoctorID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(doctor.Phone) == "" {
		return "", ErrNoPhone
	}
	if s.notifier == nil {
		return "", fmt.Errorf("reports: whatsapp %w", notify.ErrNotConfigured)
	}
	return s.notifier.WhatsApp(ctx, doctor.Phone, r.WhatsAppText())
}

// Message posts a free-form note for a doctor to Slack.
func (s *Service) Message(ctx context.Context, doctorID int64, text string) error {
	doctor, err := s.appts.Doctor(ctx, doctorID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		text = "No message provided"
	}
	if s.notifier == nil {
		return fmt.Errorf("reports: slack %w", notify.ErrNotConfigured)
	}
	return s.notifier.Slack(ctx, notify.SlackMessage{Text: fmt.Sprintf("📬 Message for %s: %s", doctor.Name, text)})
}

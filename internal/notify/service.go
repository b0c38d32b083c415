package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/medassist/internal/observability/metrics"
	"github.com/wolfman30/medassist/pkg/logging"
)

// Channel names used in warnings, metrics and integration status.
const (
	ChannelEmail    = "email"
	ChannelCalendar = "calendar"
	ChannelSlack    = "slack"
	ChannelWhatsApp = "whatsapp"
)

// Channels bundles the optional outbound integrations. Nil means disabled.
type Channels struct {
	Email         EmailSender
	EmailProvider string
	Calendar      CalendarClient
	Slack         *SlackNotifier
	WhatsApp      *WhatsAppSender
}

// Options tune the notifier.
type Options struct {
	Timeout      time.Duration
	Location     *time.Location
	SlotDuration time.Duration
	Metrics      *metrics.ChatMetrics
}

// Service fans notifications out across channels. Each channel has its own
// timeout and a failure never propagates past a warning.
type Service struct {
	ch     Channels
	opts   Options
	logger *logging.Logger
}

func NewService(ch Channels, opts Options, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SlotDuration <= 0 {
		opts.SlotDuration = 30 * time.Minute
	}
	if ch.Email != nil && ch.EmailProvider == "" {
		ch.EmailProvider = "custom"
	}
	return &Service{ch: ch, opts: opts, logger: logger}
}

// BookingOutcome reports the side effects of a confirmed booking.
type BookingOutcome struct {
	CalendarEventID string
	Warnings        []string
}

// BookingConfirmed emails the patient and creates a calendar event concurrently.
func (s *Service) BookingConfirmed(ctx context.Context, n BookingNotice) BookingOutcome {
	var (
		out BookingOutcome
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	warn := func(channel string, err error) {
		mu.Lock()
		defer mu.Unlock()
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", channel, err))
	}

	if s.ch.Email != nil && n.PatientEmail != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := confirmationEmail(n)
			if err == nil {
				err = s.run(ctx, ChannelEmail, func(ctx context.Context) error {
					return s.ch.Email.Send(ctx, msg)
				})
			}
			if err != nil {
				warn("email confirmation failed", err)
			}
		}()
	}
	if s.ch.Calendar != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, err := s.calendarEvent(n)
			var id string
			if err == nil {
				err = s.run(ctx, ChannelCalendar, func(ctx context.Context) error {
					var cerr error
					id, cerr = s.ch.Calendar.CreateEvent(ctx, event)
					return cerr
				})
			}
			if err != nil {
				warn("calendar event failed", err)
				return
			}
			mu.Lock()
			out.CalendarEventID = id
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// BookingCancelled sends the cancellation email and removes the calendar event.
func (s *Service) BookingCancelled(ctx context.Context, n BookingNotice) []string {
	var (
		warnings []string
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	warn := func(prefix string, err error) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, fmt.Sprintf("%s: %v", prefix, err))
	}

	if s.ch.Email != nil && n.PatientEmail != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := cancellationEmail(n)
			if err == nil {
				err = s.run(ctx, ChannelEmail, func(ctx context.Context) error {
					return s.ch.Email.Send(ctx, msg)
				})
			}
			if err != nil {
				warn("cancellation email failed", err)
			}
		}()
	}
	if s.ch.Calendar != nil && n.CalendarEventID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.run(ctx, ChannelCalendar, func(ctx context.Context) error {
				return s.ch.Calendar.DeleteEvent(ctx, n.CalendarEventID)
			})
			if err != nil {
				warn("calendar removal failed", err)
			}
		}()
	}
	wg.Wait()
	return warnings
}

// Slack posts a message to the clinic webhook.
func (s *Service) Slack(ctx context.Context, msg SlackMessage) error {
	if s.ch.Slack == nil {
		return fmt.Errorf("notify: slack %w", ErrNotConfigured)
	}
	return s.run(ctx, ChannelSlack, func(ctx context.Context) error {
		return s.ch.Slack.Send(ctx, msg)
	})
}

// WhatsApp sends body to phone and returns the provider message id.
func (s *Service) WhatsApp(ctx context.Context, phone, body string) (string, error) {
	if s.ch.WhatsApp == nil {
		return "", fmt.Errorf("notify: whatsapp %w", ErrNotConfigured)
	}
	var sid string
	err := s.run(ctx, ChannelWhatsApp, func(ctx context.Context) error {
		var serr error
		sid, serr = s.ch.WhatsApp.Send(ctx, phone, body)
		return serr
	})
	return sid, err
}

// Status reports which channels are configured.
type Status struct {
	Email         bool   `json:"email"`
	EmailProvider string `json:"email_provider,omitempty"`
	Calendar      bool   `json:"calendar"`
	Slack         bool   `json:"slack"`
	WhatsApp      bool   `json:"whatsapp"`
}

func (s *Service) Status() Status {
	return Status{
		Email:         s.ch.Email != nil,
		EmailProvider: s.ch.EmailProvider,
		Calendar:      s.ch.Calendar != nil,
		Slack:         s.ch.Slack != nil,
		WhatsApp:      s.ch.WhatsApp != nil,
	}
}

// run executes fn under the channel timeout. The caller's cancellation is
// detached so a dropped client does not abort an in-flight notification.
func (s *Service) run(ctx context.Context, channel string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) || (err == nil && ctx.Err() != nil) {
		err = fmt.Errorf("timed out after %s", s.opts.Timeout)
	}
	s.opts.Metrics.ObserveNotification(channel, err)
	if err != nil {
		s.logger.Warn("notification failed", "channel", channel, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	s.logger.Debug("notification sent", "channel", channel, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *Service) calendarEvent(n BookingNotice) (CalendarEvent, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", n.Date+" "+n.Time, s.opts.Location)
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("notify: parse appointment time: %w", err)
	}
	return CalendarEvent{
		Summary: fmt.Sprintf("Appointment: %s with %s", n.PatientName, n.DoctorName),
		Description: fmt.Sprintf("Appointment #%d\nPatient: %s (%s)\nReason: %s",
			n.AppointmentID, n.PatientName, n.PatientEmail, n.Reason),
		Start:         start,
		End:           start.Add(s.opts.SlotDuration),
		AttendeeEmail: n.PatientEmail,
	}, nil
}

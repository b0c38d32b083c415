package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wolfman30/medassist/pkg/logging"
)

// CalendarEvent is an appointment block on the clinic calendar.
type CalendarEvent struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
}

// CalendarClient creates and removes appointment events.
type CalendarClient interface {
	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// GoogleCalendarConfig holds OAuth client credentials and the target calendar.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
}

func (c GoogleCalendarConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// GoogleCalendar writes events through the Calendar v3 API.
type GoogleCalendar struct {
	service    *calendar.Service
	calendarID string
	logger     *logging.Logger
}

// NewGoogleCalendar returns nil, nil when credentials are incomplete.
func NewGoogleCalendar(ctx context.Context, cfg GoogleCalendarConfig, logger *logging.Logger) (*GoogleCalendar, error) {
	if !cfg.configured() {
		return nil, nil
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarEventsScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("notify: create calendar service: %w", err)
	}
	return newGoogleCalendar(svc, cfg.CalendarID, logger), nil
}

func newGoogleCalendar(svc *calendar.Service, calendarID string, logger *logging.Logger) *GoogleCalendar {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(calendarID) == "" {
		calendarID = "primary"
	}
	return &GoogleCalendar{service: svc, calendarID: calendarID, logger: logger}
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, event CalendarEvent) (string, error) {
	tz := event.Start.Location().String()
	ev := &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: tz},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: tz},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	sendUpdates := "none"
	if event.AttendeeEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: event.AttendeeEmail}}
		sendUpdates = "all"
	}

	created, err := g.service.Events.Insert(g.calendarID, ev).SendUpdates(sendUpdates).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("notify: create calendar event: %w", err)
	}
	g.logger.Info("calendar event created", "event_id", created.Id, "calendar_id", g.calendarID)
	return created.Id, nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	if err := g.service.Events.Delete(g.calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("notify: delete calendar event: %w", err)
	}
	return nil
}

var _ CalendarClient = (*GoogleCalendar)(nil)

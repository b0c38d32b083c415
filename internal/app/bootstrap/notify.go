package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/medassist/internal/config"
	"github.com/wolfman30/medassist/internal/notify"
	"github.com/wolfman30/medassist/internal/observability/metrics"
	"github.com/wolfman30/medassist/pkg/logging"
)

// BuildNotifier assembles every configured notification channel. Missing
// credentials disable a channel; they never fail startup. Calendar errors are
// logged and the channel is skipped.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.ChatMetrics, logger *logging.Logger) *notify.Service {
	if logger == nil {
		logger = logging.Default()
	}
	ch := notify.Channels{}

	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		ch.Email, ch.EmailProvider = sg, "sendgrid"
	} else if strings.TrimSpace(cfg.SESFromEmail) != "" && awsCfg != nil {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			ch.Email, ch.EmailProvider = ses, "ses"
		}
	}
	if ch.Email == nil && !cfg.IsProduction() {
		ch.Email, ch.EmailProvider = notify.NewStubEmailSender(logger), "stub"
	}

	cal, err := notify.NewGoogleCalendar(ctx, notify.GoogleCalendarConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
		CalendarID:   cfg.GoogleCalendarID,
	}, logger)
	if err != nil {
		logger.Warn("google calendar disabled", "error", err)
	} else if cal != nil {
		ch.Calendar = cal
	}

	ch.Slack = notify.NewSlackNotifier(cfg.SlackWebhookURL, logger)
	ch.WhatsApp = notify.NewWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger)

	svc := notify.NewService(ch, notify.Options{
		Timeout:      cfg.NotifyTimeout,
		Location:     cfg.ClinicLocation(),
		SlotDuration: cfg.SlotDuration,
		Metrics:      m,
	}, logger)
	st := svc.Status()
	logger.Info("notifications configured",
		"email", st.EmailProvider,
		"calendar", st.Calendar,
		"slack", st.Slack,
		"whatsapp", st.WhatsApp,
	)
	return svc
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medassist/pkg/logging"
)

const (
	twilioBaseURL         = "https://api.twilio.com"
	defaultWhatsAppSender = "whatsapp:+14155238886"
)

var whatsappTracer = otel.Tracer("medassist.internal.notify.whatsapp")

// WhatsAppSender posts WhatsApp messages through Twilio's REST API.
type WhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewWhatsAppSender returns nil without Twilio credentials.
func NewWhatsAppSender(accountSID, authToken, from string, logger *logging.Logger) *WhatsAppSender {
	if accountSID == "" || authToken == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if from == "" {
		from = defaultWhatsAppSender
	}
	return &WhatsAppSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       whatsappAddress(from),
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Send delivers body to a phone number, retrying rate limits and 5xx.
// It returns the Twilio message SID.
func (s *WhatsAppSender) Send(ctx context.Context, to, body string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("notify: whatsapp %w", ErrNotConfigured)
	}
	if strings.TrimSpace(to) == "" {
		return "", errors.New("notify: whatsapp recipient required")
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("notify: whatsapp body required")
	}

	ctx, span := whatsappTracer.Start(ctx, "notify.whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("medassist.to", to))

	payload := url.Values{}
	payload.Set("To", whatsappAddress(to))
	payload.Set("From", s.from)
	payload.Set("Body", body)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID string `json:"sid"`
				}
				_ = json.Unmarshal(raw, &parsed)
				s.logger.Info("whatsapp message sent", "to", to, "sid", parsed.SID)
				return parsed.SID, nil
			}
			lastErr = fmt.Errorf("notify: twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}
		if attempt < 3 {
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return "", ctx.Err()
			case <-time.After(time.Duration(200+rand.Intn(300)) * time.Millisecond):
			}
		}
	}
	span.RecordError(lastErr)
	return "", lastErr
}

func whatsappAddress(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSendGrid struct {
	status int
	err    error
	sent   *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func confirmation(t *testing.T) EmailMessage {
	t.Helper()
	msg, err := confirmationEmail(BookingNotice{
		AppointmentID: 12,
		PatientName:   "John Doe",
		PatientEmail:  "john@example.com",
		DoctorName:    "Dr. Michael Chen",
		DoctorEmail:   "michael@clinic.com",
		Date:          "2025-06-10",
		Time:          "10:00",
		Reason:        "Checkup",
	})
	require.NoError(t, err)
	return msg
}

func TestSendGridSenderRequiresAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "clinic@example.com"}, nil))
	assert.Nil(t, NewSendGridSender(SendGridConfig{APIKey: "  ", FromEmail: "clinic@example.com"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "clinic@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, DefaultFromName, sender.fromName)
}

func TestSendGridSenderSendsConfirmation(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "noreply@clinic.com"}, nil)
	sender.client = fake

	require.NoError(t, sender.Send(context.Background(), confirmation(t)))
	require.NotNil(t, fake.sent)
	assert.Equal(t, "Appointment Confirmed - Dr. Michael Chen on 2025-06-10", fake.sent.Subject)
	require.NotNil(t, fake.sent.ReplyTo)
	assert.Equal(t, "michael@clinic.com", fake.sent.ReplyTo.Address)
	assert.Equal(t, []string{CategoryConfirmation}, fake.sent.Categories)
}

func TestSendGridSenderErrors(t *testing.T) {
	fake := &fakeSendGrid{status: 400}
	sender := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "noreply@clinic.com"}, nil)
	sender.client = fake
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "john@example.com"}))

	fake.err = errors.New("dial tcp: timeout")
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "john@example.com"}))

	var unconfigured *SendGridSender
	assert.ErrorIs(t, unconfigured.Send(context.Background(), EmailMessage{}), ErrNotConfigured)
}

func TestSESSenderSendsConfirmation(t *testing.T) {
	assert.Nil(t, NewSESSender(&fakeSES{}, SESConfig{}, nil))
	assert.Nil(t, NewSESSender(nil, SESConfig{FromEmail: "noreply@clinic.com"}, nil))

	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "noreply@clinic.com"}, nil)
	require.NoError(t, sender.Send(context.Background(), confirmation(t)))

	assert.Equal(t, "Clinic Appointments <noreply@clinic.com>", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"john@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, []string{"michael@clinic.com"}, fake.input.ReplyToAddresses)
	require.Len(t, fake.input.EmailTags, 1)
	assert.Equal(t, CategoryConfirmation, aws.ToString(fake.input.EmailTags[0].Value))
	assert.NotNil(t, fake.input.Content.Simple.Body.Html)
	assert.NotNil(t, fake.input.Content.Simple.Body.Text)
}

func TestSESSenderWrapsErrors(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	sender := NewSESSender(fake, SESConfig{FromEmail: "noreply@clinic.com"}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "john@example.com", Body: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Empty(t, fake.input.ReplyToAddresses)
	assert.Empty(t, fake.input.EmailTags)
}

func TestStubEmailSender(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@b.c"}))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", maskEmail("john@example.com"))
	assert.Equal(t, "***", maskEmail("not-an-address"))
	assert.Equal(t, "***", maskEmail("@example.com"))
}

package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/notify"
	"github.com/wolfman30/medassist/pkg/logging"
)

var fixedNow = time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)

type mockS3Client struct {
	mu       sync.Mutex
	putKeys  []string
	objects  map[string][]byte
	versions map[string]int
	putErr   error
	// afterGet runs once a GetObject has read its snapshot.
	afterGet func(key string)
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), versions: make(map[string]int)}
}

func (m *mockS3Client) etag(key string) string {
	return fmt.Sprintf("\"v%d\"", m.versions[key])
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	key := *input.Key
	_, exists := m.objects[key]
	if aws.ToString(input.IfNoneMatch) == "*" && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "object exists"}
	}
	if input.IfMatch != nil && (!exists || *input.IfMatch != m.etag(key)) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "etag mismatch"}
	}
	body, _ := io.ReadAll(input.Body)
	m.putKeys = append(m.putKeys, key)
	m.objects[key] = body
	m.versions[key]++
	return &s3.PutObjectOutput{ETag: aws.String(m.etag(key))}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.objects[*input.Key]
	etag := m.etag(*input.Key)
	hook := m.afterGet
	m.mu.Unlock()
	if !ok {
		return nil, errors.New("NoSuchKey: key not found")
	}
	if hook != nil {
		hook(*input.Key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), ETag: aws.String(etag)}, nil
}

func sampleAppointments() []appointments.Appointment {
	return []appointments.Appointment{
		{ID: 3, PatientName: "Cara", Date: "2025-06-09", Time: "14:00", Reason: "fever", Status: appointments.StatusCancelled},
		{ID: 1, PatientName: "Alice", Date: "2025-06-09", Time: "09:00", Reason: "checkup", Status: appointments.StatusConfirmed},
		{ID: 2, PatientName: "Bob", Date: "2025-06-09", Time: "10:30", Reason: "fever", Status: appointments.StatusPending},
	}
}

var adoni = appointments.Doctor{ID: 5, Name: "Dr. Mohit Adoni", Specialization: "general", Phone: "+15555550105"}

func TestBuildDailySummary(t *testing.T) {
	r := Build(adoni, "daily", "2025-06-09", "2025-06-09", sampleAppointments(), fixedNow)

	assert.Equal(t, "June 09, 2025", r.DateRange)
	assert.Equal(t, 3, r.Stats.Total)
	assert.Equal(t, 1, r.Stats.Confirmed)
	assert.Equal(t, 1, r.Stats.Pending)
	assert.Equal(t, 1, r.Stats.Cancelled)
	require.Len(t, r.Appointments, 3)
	assert.Equal(t, "Alice", r.Appointments[0].Patient)
	assert.Equal(t, "Cara", r.Appointments[2].Patient)

	want := strings.Join([]string{
		"📊 Daily Report for Dr. Mohit Adoni",
		"📅 June 09, 2025",
		"",
		"📋 Total Appointments: 3",
		"🟢 Confirmed: 1",
		"⏳ Pending: 1",
		"❌ Cancelled: 1",
		"",
		"📝 Appointment Details:",
		"  🟢 09:00 - Alice (checkup)",
		"  🟡 10:30 - Bob (fever)",
		"  🔴 14:00 - Cara (fever)",
	}, "\n")
	assert.Equal(t, want, r.Summary)
}

func TestBuildCapsDetailLines(t *testing.T) {
	var list []appointments.Appointment
	for i := 0; i < 12; i++ {
		list = append(list, appointments.Appointment{
			ID: int64(i + 1), PatientName: "P", Date: "2025-06-10", Time: "09:00",
			Reason: "checkup", Status: appointments.StatusConfirmed,
		})
	}
	r := Build(adoni, "weekly", "2025-06-09", "2025-06-15", list, fixedNow)

	assert.True(t, strings.HasPrefix(r.Summary, "📊 Weekly Report for Dr. Mohit Adoni\n📅 June 09 - June 15, 2025"))
	assert.Equal(t, 10, strings.Count(r.Summary, "🟢 2025-06-10 09:00"))
	assert.Contains(t, r.Summary, "... and 2 more")
}

func TestBuildEmptyWindow(t *testing.T) {
	r := Build(adoni, "", "2025-06-09", "2025-06-09", nil, fixedNow)
	assert.Equal(t, "daily", r.Type)
	assert.NotContains(t, r.Summary, "Appointment Details")
	assert.NotNil(t, r.Appointments)
}

func TestSlackMessageBlocks(t *testing.T) {
	msg := Build(adoni, "daily", "2025-06-09", "2025-06-09", sampleAppointments(), fixedNow).SlackMessage()

	assert.Equal(t, "Daily Summary for Dr. Mohit Adoni on June 09, 2025: 3 appointments", msg.Text)
	assert.Equal(t, "header", msg.Blocks[0]["type"])
	// header, doctor, divider, fields, divider, details title, 3 lines, divider, context
	assert.Len(t, msg.Blocks, 11)
	assert.Equal(t, "context", msg.Blocks[len(msg.Blocks)-1]["type"])
}

func TestWhatsAppText(t *testing.T) {
	r := Build(adoni, "daily", "2025-06-09", "2025-06-09", nil, fixedNow)
	text := r.WhatsAppText()
	assert.True(t, strings.HasPrefix(text, "🏥 *Medical Assistant Report*\n\nHello Dr. Mohit Adoni,"))
	assert.Contains(t, text, r.Summary)
}

func TestArchiverWritesReportAndManifest(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(mock, "reports-bucket", nil)
	r := Build(adoni, "daily", "2025-06-09", "2025-06-09", sampleAppointments(), fixedNow)

	key, err := archiver.Archive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "reports/v1/doctors/5/daily/2025-06-09_2025-06-09.json", key)
	assert.Equal(t, []string{
		key,
		"reports/v1/doctors/5/daily/2025-06-09_2025-06-09.txt",
		"reports/v1/doctors/5/manifest.jsonl",
	}, mock.putKeys)

	var stored Report
	require.NoError(t, json.Unmarshal(mock.objects[key], &stored))
	assert.Equal(t, 3, stored.Stats.Total)

	_, err = archiver.Archive(context.Background(), r)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(mock.objects["reports/v1/doctors/5/manifest.jsonl"])), "\n")
	assert.Len(t, lines, 2)
}

func TestArchiverManifestSurvivesConcurrentAppend(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(mock, "reports-bucket", nil)
	ctx := context.Background()
	manifest := "reports/v1/doctors/5/manifest.jsonl"

	daily := Build(adoni, "daily", "2025-06-09", "2025-06-09", sampleAppointments(), fixedNow)
	_, err := archiver.Archive(ctx, daily)
	require.NoError(t, err)

	// Another writer appends between this archiver's read and its write.
	fired := false
	mock.afterGet = func(key string) {
		if key != manifest || fired {
			return
		}
		fired = true
		other := Build(adoni, "weekly", "2025-06-03", "2025-06-09", nil, fixedNow)
		_, err := NewArchiver(mock, "reports-bucket", nil).Archive(ctx, other)
		require.NoError(t, err)
	}

	next := Build(adoni, "daily", "2025-06-10", "2025-06-10", nil, fixedNow)
	_, err = archiver.Archive(ctx, next)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(mock.objects[manifest])), "\n")
	require.Len(t, lines, 3, "no manifest entry is lost")
	var keys []string
	for _, l := range lines {
		var e ManifestEntry
		require.NoError(t, json.Unmarshal([]byte(l), &e))
		keys = append(keys, e.Key)
	}
	assert.Contains(t, keys, "reports/v1/doctors/5/weekly/2025-06-03_2025-06-09.json")
	assert.Contains(t, keys, "reports/v1/doctors/5/daily/2025-06-10_2025-06-10.json")
}

func TestArchiverManifestGivesUpAfterRepeatedConflicts(t *testing.T) {
	mock := newMockS3()
	archiver := NewArchiver(mock, "reports-bucket", nil)
	ctx := context.Background()
	manifest := "reports/v1/doctors/5/manifest.jsonl"
	require.NoError(t, archiver.appendManifest(ctx, 5, ManifestEntry{Key: "first"}))

	mock.afterGet = func(key string) {
		mock.mu.Lock()
		mock.versions[key]++
		mock.mu.Unlock()
	}
	err := archiver.appendManifest(ctx, 5, ManifestEntry{Key: "second"})
	require.Error(t, err)
	assert.True(t, isWriteConflict(err))
	assert.Equal(t, 1, strings.Count(string(mock.objects[manifest]), "\n"))
}

func TestArchiverDisabled(t *testing.T) {
	var nilArchiver *Archiver
	assert.False(t, nilArchiver.Enabled())
	key, err := nilArchiver.Archive(context.Background(), &Report{})
	require.NoError(t, err)
	assert.Empty(t, key)

	assert.False(t, NewArchiver(newMockS3(), "", nil).Enabled())
}

func newReportService(t *testing.T, notifier *notify.Service, archiver *Archiver) (*Service, *appointments.Service) {
	t.Helper()
	store := appointments.NewMemoryStore()
	_, err := appointments.SeedDoctors(context.Background(), store)
	require.NoError(t, err)
	appts := appointments.NewService(store, logging.Default(), appointments.WithClock(func() time.Time { return fixedNow }))
	return NewService(appts, notifier, archiver, logging.Default()), appts
}

func TestServiceGenerateAndSendSlack(t *testing.T) {
	var payload notify.SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := notify.NewService(notify.Channels{Slack: notify.NewSlackNotifier(srv.URL, nil)}, notify.Options{}, nil)
	mock := newMockS3()
	svc, appts := newReportService(t, notifier, NewArchiver(mock, "bucket", nil))
	ctx := context.Background()

	_, err := appts.Book(ctx, appointments.BookingRequest{
		DoctorID: 5, Date: "2025-06-10", Time: "09:00",
		PatientName: "John Doe", PatientEmail: "john@example.com", Reason: "fever",
	})
	require.NoError(t, err)

	report, err := svc.Generate(ctx, 5, "weekly", "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-09", report.DateFrom)
	assert.Equal(t, "2025-06-15", report.DateTo)
	assert.Equal(t, 1, report.Stats.Total)
	assert.NotEmpty(t, report.ArchiveKey)

	require.NoError(t, svc.SendSlack(ctx, report))
	assert.Contains(t, payload.Text, "Weekly Summary for Dr. Mohit Adoni")
}

func TestServiceGenerateErrors(t *testing.T) {
	svc, _ := newReportService(t, nil, nil)
	ctx := context.Background()

	_, err := svc.Generate(ctx, 99, "daily", "")
	assert.ErrorIs(t, err, appointments.ErrNotFound)

	_, err = svc.Generate(ctx, 5, "monthly", "")
	assert.ErrorIs(t, err, appointments.ErrValidation)

	_, err = svc.Generate(ctx, 0, "daily", "")
	assert.ErrorIs(t, err, appointments.ErrValidation)
}

func TestServiceArchiveFailureIsNotFatal(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	svc, _ := newReportService(t, nil, NewArchiver(mock, "bucket", nil))

	report, err := svc.Generate(context.Background(), 5, "daily", "")
	require.NoError(t, err)
	assert.Empty(t, report.ArchiveKey)
}

func TestServiceSendWhatsApp(t *testing.T) {
	notifier := notify.NewService(notify.Channels{}, notify.Options{}, nil)
	svc, _ := newReportService(t, notifier, nil)
	ctx := context.Background()

	report, err := svc.Generate(ctx, 1, "daily", "")
	require.NoError(t, err)
	_, err = svc.SendWhatsApp(ctx, report)
	assert.ErrorIs(t, err, ErrNoPhone)

	report, err = svc.Generate(ctx, 5, "daily", "")
	require.NoError(t, err)
	_, err = svc.SendWhatsApp(ctx, report)
	assert.ErrorIs(t, err, notify.ErrNotConfigured)
}

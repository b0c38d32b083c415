package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/wolfman30/medassist/pkg/logging"
)

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestEntry is one line of a doctor's report index.
type ManifestEntry struct {
	Key         string `json:"key"`
	Type        string `json:"report_type"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
	Total       int    `json:"total"`
	GeneratedAt string `json:"generated_at"`
}

// Archiver writes generated reports to S3. A nil or bucketless Archiver is a no-op.
type Archiver struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

func NewArchiver(s3Client S3API, bucket string, logger *logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Archiver{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil
}

// ReportKey is the object key of a report's JSON document.
func ReportKey(r *Report) string {
	return fmt.Sprintf("reports/v1/doctors/%d/%s/%s_%s.json", r.DoctorID, r.Type, r.DateFrom, r.DateTo)
}

func manifestKey(doctorID int64) string {
	return fmt.Sprintf("reports/v1/doctors/%d/manifest.jsonl", doctorID)
}

// Archive stores the report JSON plus its text rendering and appends the
// doctor's manifest. It returns the JSON key.
func (a *Archiver) Archive(ctx context.Context, r *Report) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("reports: marshal report: %w", err)
	}
	key := ReportKey(r)
	if err := a.put(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	textKey := strings.TrimSuffix(key, ".json") + ".txt"
	if err := a.put(ctx, textKey, []byte(r.Summary), "text/plain; charset=utf-8"); err != nil {
		return "", err
	}

	a.logger.Info("archived report to S3",
		"doctor_id", r.DoctorID,
		"report_type", r.Type,
		"s3_key", key,
	)

	entry := ManifestEntry{
		Key:         key,
		Type:        r.Type,
		DateFrom:    r.DateFrom,
		DateTo:      r.DateTo,
		Total:       r.Stats.Total,
		GeneratedAt: r.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if err := a.appendManifest(ctx, r.DoctorID, entry); err != nil {
		a.logger.Warn("failed to append report manifest", "error", err, "doctor_id", r.DoctorID)
	}
	return key, nil
}

const manifestAttempts = 5

// appendManifest does a read-modify-write since S3 has no append. The write
// is conditional on the ETag that was read, so a concurrent append makes it
// fail with a precondition error and the loop reads again.
func (a *Archiver) appendManifest(ctx context.Context, doctorID int64, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("reports: marshal manifest entry: %w", err)
	}
	key := manifestKey(doctorID)

	for attempt := 1; ; attempt++ {
		existing, etag, err := a.readManifest(ctx, key)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if len(existing) > 0 {
			buf.Write(existing)
			if existing[len(existing)-1] != '\n' {
				buf.WriteByte('\n')
			}
		}
		buf.Write(line)
		buf.WriteByte('\n')

		input := &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("application/x-ndjson"),
		}
		if etag == "" {
			input.IfNoneMatch = aws.String("*")
		} else {
			input.IfMatch = aws.String(etag)
		}
		_, err = a.s3Client.PutObject(ctx, input)
		switch {
		case err == nil:
			return nil
		case isWriteConflict(err) && attempt < manifestAttempts:
			a.logger.Debug("report manifest changed concurrently, retrying", "key", key, "attempt", attempt)
		default:
			return fmt.Errorf("reports: s3 put %s: %w", key, err)
		}
	}
}

// readManifest returns the manifest body and its ETag. A missing manifest
// yields an empty body and ETag.
func (a *Archiver) readManifest(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := a.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
	case isNotFound(err):
		a.logger.Debug("report manifest not found, creating new", "key", key)
		return nil, "", nil
	default:
		return nil, "", fmt.Errorf("reports: s3 get manifest: %w", err)
	}
	defer resp.Body.Close()
	existing, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reports: read manifest: %w", err)
	}
	return existing, aws.ToString(resp.ETag), nil
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("reports: s3 put %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}

// isWriteConflict matches the errors S3 returns when a conditional write
// loses to another writer.
func isWriteConflict(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

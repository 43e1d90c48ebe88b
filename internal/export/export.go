// Package export renders attendance lists as CSV reports and, when
// configured, publishes them to S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aanand-mishra/attendance-api/internal/config"
	"github.com/aanand-mishra/attendance-api/internal/types"
)

// Header is the first row of every report.
var Header = []string{"matric_no", "name", "timestamp"}

// WriteCSV writes attendees as CSV, one row per entry, in list order.
func WriteCSV(w io.Writer, attendees []types.AttendeeEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("export.WriteCSV: header: %w", err)
	}
	for _, a := range attendees {
		if err := cw.Write([]string{a.MatricNo, a.Name, a.Timestamp}); err != nil {
			return fmt.Errorf("export.WriteCSV: row %s: %w", a.MatricNo, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export.WriteCSV: flush: %w", err)
	}
	return nil
}

// FileName is the download name of a class report.
func FileName(rec types.ClassRecord) string {
	return fmt.Sprintf("attendance_%s_%s.csv", sanitizeKey(rec.CourseCode), rec.Date)
}

// ObjectKey is where a class report is stored in the bucket.
func ObjectKey(rec types.ClassRecord) string {
	return fmt.Sprintf("reports/%s/%s.csv", sanitizeKey(rec.CourseCode), rec.ID)
}

func sanitizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ToLower(s)
	if s == "" {
		return "unknown"
	}
	return s
}

// objectClient is the part of *minio.Client ObjectStore uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStore uploads reports to one bucket.
type ObjectStore struct {
	client objectClient
	bucket string
}

// NewObjectStore connects to the MinIO/S3 endpoint in cfg.
func NewObjectStore(cfg config.Export) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("export.NewObjectStore: %w", err)
	}

	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the report bucket if it does not exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("export.EnsureBucket: check %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("export.EnsureBucket: make %s: %w", s.bucket, err)
	}
	return nil
}

// Upload writes the report for rec, replacing any earlier version, and
// returns its object key.
func (s *ObjectStore) Upload(ctx context.Context, rec types.ClassRecord, attendees []types.AttendeeEntry) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, attendees); err != nil {
		return "", err
	}

	key := ObjectKey(rec)
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(buf.Bytes()), int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "text/csv"},
	)
	if err != nil {
		return "", fmt.Errorf("export.Upload: put %s: %w", key, err)
	}

	return key, nil
}

// Publisher refreshes a class report after the attendee list changes.
type Publisher interface {
	Publish(ctx context.Context, rec types.ClassRecord, attendees []types.AttendeeEntry)
}

// Publish implements Publisher. Upload failures are logged and otherwise
// ignored: a report is a copy, the class record is the source of truth.
func (s *ObjectStore) Publish(ctx context.Context, rec types.ClassRecord, attendees []types.AttendeeEntry) {
	key, err := s.Upload(ctx, rec, attendees)
	if err != nil {
		slog.Error("attendance report upload failed",
			slog.String("class_id", rec.ID),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("attendance report uploaded",
		slog.String("class_id", rec.ID),
		slog.String("key", key),
		slog.Int("attendees", len(attendees)))
}

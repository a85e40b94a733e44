package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TranscriptSource supplies the conversation transcript for a booking.
type TranscriptSource interface {
	ListMessages(ctx context.Context, userID string, limit int) ([]conversation.TranscriptMessage, error)
}

// Store archives confirmed bookings to S3. When bucket is empty every
// operation is a no-op, so deployments without an archive bucket need no
// special casing.
type Store struct {
	bucket     string
	s3Client   S3API
	transcript TranscriptSource
	logger     *logging.Logger
	now        func() time.Time
}

// NewStore creates an archive Store. transcript may be nil, in which
// case records carry no transcript.
func NewStore(s3Client S3API, bucket string, transcript TranscriptSource, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:     bucket,
		s3Client:   s3Client,
		transcript: transcript,
		logger:     logger,
		now:        time.Now,
	}
}

var _ conversation.BookingArchiver = (*Store)(nil)

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveBooking writes a BookingRecord as JSON to S3 and appends to the
// monthly manifest.
func (s *Store) ArchiveBooking(ctx context.Context, notice conversation.BookingNotice) error {
	if !s.Enabled() {
		return nil
	}

	record := s.buildRecord(ctx, notice)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	now := record.ArchivedAt
	s3Key := fmt.Sprintf("bookings/v1/by-date/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), objectName(notice))

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived booking to S3",
		"confirmation", notice.ConfirmationNumber,
		"s3_key", s3Key,
		"message_count", record.MessageCount,
	)

	entry := ManifestEntry{
		ConfirmationNumber: notice.ConfirmationNumber,
		UserID:             notice.UserID,
		S3Key:              s3Key,
		Channel:            string(notice.Channel),
		ArchivedAt:         now.Format(time.RFC3339),
		MessageCount:       record.MessageCount,
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The booking is already archived; the manifest can be rebuilt.
		s.logger.Warn("failed to append manifest", "error", err, "confirmation", notice.ConfirmationNumber)
	}

	return nil
}

func (s *Store) buildRecord(ctx context.Context, notice conversation.BookingNotice) *BookingRecord {
	archivedAt := notice.ConfirmedAt
	if archivedAt.IsZero() {
		archivedAt = s.now().UTC()
	}

	record := &BookingRecord{
		Version:            "1.0",
		UserID:             notice.UserID,
		Channel:            string(notice.Channel),
		ConfirmationNumber: notice.ConfirmationNumber,
		RoomID:             notice.RoomID,
		RoomName:           notice.RoomName,
		CheckIn:            notice.CheckIn,
		CheckOut:           notice.CheckOut,
		GuestCount:         notice.GuestCount,
		GuestName:          notice.Guest.Name,
		TotalPriceCents:    notice.TotalPrice,
		ArchivedAt:         archivedAt,
	}
	if notice.Guest.Phone != "" {
		record.GuestPhoneHash = HashPhone(notice.Guest.Phone)
	}

	if s.transcript != nil {
		msgs, err := s.transcript.ListMessages(ctx, notice.UserID, 200)
		if err != nil {
			s.logger.Warn("failed to load transcript for archive", "error", err, "user_id", notice.UserID)
		} else {
			for _, m := range msgs {
				record.Transcript = append(record.Transcript, Message{
					Role:      m.Role,
					Content:   m.Text,
					Timestamp: m.CreatedAt,
				})
			}
			ScrubMessages(record.Transcript)
		}
	}
	record.MessageCount = len(record.Transcript)
	return record
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now().UTC()
	manifestKey := fmt.Sprintf("bookings/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		if !isNotFoundErr(err) {
			s.logger.Debug("manifest read failed, starting fresh", "key", manifestKey, "error", err)
		}
	} else {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
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

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}

	return nil
}

// objectName builds a key-safe object name from the session identity and
// confirmation number.
func objectName(notice conversation.BookingNotice) string {
	user := strings.NewReplacer(":", "-", "/", "-", "+", "").Replace(notice.UserID)
	return fmt.Sprintf("%s-%s", user, notice.ConfirmationNumber)
}

// isNotFoundErr checks if the error is an S3 missing-object error.
// String check since errors.As with S3 types can be tricky.
func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

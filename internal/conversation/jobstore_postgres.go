package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGJobStore persists job records to PostgreSQL for deployments that run
// without DynamoDB.
type PGJobStore struct {
	db *pgxpool.Pool
}

// NewPGJobStore builds a Postgres-backed JobStore.
func NewPGJobStore(db *pgxpool.Pool) *PGJobStore {
	if db == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PGJobStore{db: db}
}

var _ JobRecorder = (*PGJobStore)(nil)
var _ JobUpdater = (*PGJobStore)(nil)

// PutPending inserts a pending job record.
func (s *PGJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("conversation: job cannot be nil")
	}

	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	uttJSON, err := marshalJSON(job.Utterance)
	if err != nil {
		return err
	}
	replyJSON, err := marshalJSON(job.Reply)
	if err != nil {
		return err
	}

	expiresAt := time.Unix(job.ExpiresAt, 0).UTC()
	if _, execErr := s.db.Exec(ctx, `
		INSERT INTO conversation_jobs (
			job_id, status, user_id, utterance, reply, error_message,
			created_at, updated_at, expires_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, job.JobID, job.Status, nullString(job.UserID), uttJSON, replyJSON, job.ErrorMessage, now, now, expiresAt); execErr != nil {
		return fmt.Errorf("conversation: failed to persist job: %w", execErr)
	}
	return nil
}

// MarkCompleted updates the job as completed with the final reply.
func (s *PGJobStore) MarkCompleted(ctx context.Context, jobID string, reply *Reply) error {
	if jobID == "" {
		return errors.New("conversation: jobID required")
	}
	replyJSON, err := marshalJSON(reply)
	if err != nil {
		return err
	}
	userID := ""
	if reply != nil {
		userID = reply.UserID
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE conversation_jobs
		SET status = $2,
		    reply = $3,
		    user_id = COALESCE($4, user_id),
		    error_message = '',
		    updated_at = $5
		WHERE job_id = $1
	`, jobID, JobStatusCompleted, replyJSON, nullString(userID), time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("conversation: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed marks the job as failed with an error message.
func (s *PGJobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("conversation: jobID required")
	}

	result, execErr := s.db.Exec(ctx, `
		UPDATE conversation_jobs
		SET status = $2,
		    reply = NULL,
		    error_message = $3,
		    updated_at = $4
		WHERE job_id = $1
	`, jobID, JobStatusFailed, errMsg, time.Now().UTC())
	if execErr != nil {
		return fmt.Errorf("conversation: failed to update job: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob loads a job by ID.
func (s *PGJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("conversation: jobID required")
	}

	var (
		uttJSON   []byte
		replyJSON []byte
		userID    pgtype.Text
		createdAt time.Time
		updatedAt time.Time
		expiresAt pgtype.Timestamptz
		status    string
		errMsg    string
	)

	row := s.db.QueryRow(ctx, `
		SELECT job_id, status, user_id, utterance, reply, error_message,
		       created_at, updated_at, expires_at
		FROM conversation_jobs
		WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&jobID, &status, &userID,
		&uttJSON, &replyJSON, &errMsg,
		&createdAt, &updatedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("conversation: failed to fetch job: %w", err)
	}

	job := &JobRecord{
		JobID:        jobID,
		Status:       JobStatus(status),
		ErrorMessage: errMsg,
		CreatedAt:    createdAt.Format(time.RFC3339Nano),
		UpdatedAt:    updatedAt.Format(time.RFC3339Nano),
	}
	if userID.Valid {
		job.UserID = userID.String
	}
	if expiresAt.Valid {
		job.ExpiresAt = expiresAt.Time.Unix()
	}

	if len(uttJSON) > 0 {
		var utt Utterance
		if err := json.Unmarshal(uttJSON, &utt); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode utterance: %w", err)
		}
		job.Utterance = &utt
	}
	if len(replyJSON) > 0 {
		var reply Reply
		if err := json.Unmarshal(replyJSON, &reply); err != nil {
			return nil, fmt.Errorf("conversation: failed to decode reply: %w", err)
		}
		job.Reply = &reply
	}

	return job, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to encode json: %w", err)
	}
	return data, nil
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

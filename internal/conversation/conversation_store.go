package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptStore persists conversation transcripts to PostgreSQL for
// long-term history. The Redis session is the working copy; this log
// survives session expiry. All methods are nil-safe so the service can
// run without a database in development.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore creates a transcript store. Returns nil for a nil
// db, which disables durable logging.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db}
}

// ConversationRecord is one conversation row.
type ConversationRecord struct {
	ID            uuid.UUID
	UserID        string
	Channel       string
	Status        string
	MessageCount  int
	StartedAt     time.Time
	LastMessageAt *time.Time
}

// TranscriptMessage is one message row.
type TranscriptMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsureConversation creates the conversation row for userID if missing
// and bumps its activity timestamp. Returns the conversation UUID.
func (s *TranscriptStore) EnsureConversation(ctx context.Context, userID, channel string) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		return uuid.Nil, fmt.Errorf("transcript: user_id required")
	}

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE user_id = $1`,
		userID,
	).Scan(&existingID)
	if err == nil {
		_, _ = s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), existingID,
		)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("transcript: check existing: %w", err)
	}

	newID := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, user_id, channel, status, message_count,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, newID, userID, channel, "active", 0, now, now, now)
	if err != nil {
		// Another process may have created it between the select and
		// the insert.
		if strings.Contains(err.Error(), "duplicate key") {
			return s.EnsureConversation(ctx, userID, channel)
		}
		return uuid.Nil, fmt.Errorf("transcript: create: %w", err)
	}
	return newID, nil
}

// AppendMessage persists one message and bumps the conversation counter.
func (s *TranscriptStore) AppendMessage(ctx context.Context, userID, channel, role, text string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if text == "" {
		return nil
	}

	if _, err := s.EnsureConversation(ctx, userID, channel); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, user_id, role, content, created_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, uuid.New(), userID, role, text, now)
	if err != nil {
		return fmt.Errorf("transcript: insert message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transcript: read insert result: %w", err)
	}
	if rows == 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET
			message_count = message_count + 1,
			last_message_at = $1,
			updated_at = $1
		WHERE user_id = $2
	`, now, userID)
	if err != nil {
		return fmt.Errorf("transcript: update counters: %w", err)
	}
	return nil
}

// GetConversation retrieves the conversation row for userID, or nil.
func (s *TranscriptStore) GetConversation(ctx context.Context, userID string) (*ConversationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var rec ConversationRecord
	var lastMessageAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel, status, message_count, started_at, last_message_at
		FROM conversations
		WHERE user_id = $1
	`, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Channel, &rec.Status,
		&rec.MessageCount, &rec.StartedAt, &lastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: get conversation: %w", err)
	}
	if lastMessageAt.Valid {
		rec.LastMessageAt = &lastMessageAt.Time
	}
	return &rec, nil
}

// ListMessages retrieves messages for userID, oldest first.
func (s *TranscriptStore) ListMessages(ctx context.Context, userID string, limit int) ([]TranscriptMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, user_id, role, content, created_at
		FROM conversation_messages
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: list messages: %w", err)
	}
	defer rows.Close()

	var messages []TranscriptMessage
	for rows.Next() {
		var msg TranscriptMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Text, &msg.CreatedAt); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

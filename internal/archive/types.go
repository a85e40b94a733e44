package archive

import "time"

// BookingRecord is the top-level structure archived to S3 for every
// confirmed booking.
type BookingRecord struct {
	Version            string    `json:"version"` // "1.0"
	UserID             string    `json:"user_id"`
	Channel            string    `json:"channel,omitempty"`
	ConfirmationNumber string    `json:"confirmation_number"`
	RoomID             string    `json:"room_id"`
	RoomName           string    `json:"room_name,omitempty"`
	CheckIn            string    `json:"check_in"`
	CheckOut           string    `json:"check_out"`
	GuestCount         int       `json:"guest_count"`
	GuestName          string    `json:"guest_name,omitempty"`
	GuestPhoneHash     string    `json:"guest_phone_hash,omitempty"` // sha256 of phone
	TotalPriceCents    int64     `json:"total_price_cents,omitempty"`
	ArchivedAt         time.Time `json:"archived_at"`
	MessageCount       int       `json:"message_count"`
	Transcript         []Message `json:"transcript,omitempty"`
}

// Message is a single conversation turn in the archived transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	ConfirmationNumber string `json:"confirmation_number"`
	UserID             string `json:"user_id"`
	S3Key              string `json:"s3_key"`
	Channel            string `json:"channel,omitempty"`
	ArchivedAt         string `json:"archived_at"`
	MessageCount       int    `json:"message_count"`
}

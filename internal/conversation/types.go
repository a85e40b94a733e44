package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stayline/hotel-concierge/internal/pms"
)

// Stage is one discrete state of the reservation flow.
type Stage string

const (
	StageGreeting                Stage = "greeting"
	StageCollectingDates         Stage = "collecting_dates"
	StageValidatingDates         Stage = "validating_dates"
	StageCheckingAvailability    Stage = "checking_availability"
	StagePresentingOptions       Stage = "presenting_options"
	StageCollectingRoomSelection Stage = "collecting_room_selection"
	StageCollectingGuestInfo     Stage = "collecting_guest_info"
	StageCreatingBooking         Stage = "creating_booking"
	StageConfirmed               Stage = "confirmed"
)

// Channel identifies which transport the conversation is happening on.
type Channel string

const (
	ChannelUnknown  Channel = ""
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
	ChannelAPI      Channel = "api"
)

const (
	// historyLimit bounds the transcript ring kept on the session; the
	// oldest entries are evicted first.
	historyLimit = 40

	// maxUtteranceLen caps inbound text before any processing.
	maxUtteranceLen = 1000
)

// Slots holds the booking information collected so far. Dates are stored
// in the pms wire format (2006-01-02).
type Slots struct {
	CheckInDate    string `json:"check_in_date,omitempty"`
	CheckOutDate   string `json:"check_out_date,omitempty"`
	GuestCount     int    `json:"guest_count,omitempty"`
	SelectedRoomID string `json:"selected_room_id,omitempty"`
	GuestName      string `json:"guest_name,omitempty"`
	GuestEmail     string `json:"guest_email,omitempty"`
	GuestPhone     string `json:"guest_phone,omitempty"`
}

// HasDates reports whether check-in, check-out and guest count are all set.
func (s Slots) HasDates() bool {
	return s.CheckInDate != "" && s.CheckOutDate != "" && s.GuestCount > 0
}

// HasGuestInfo reports whether name, email and phone are all set.
func (s Slots) HasGuestInfo() bool {
	return s.GuestName != "" && s.GuestEmail != "" && s.GuestPhone != ""
}

// HistoryEntry is one exchanged message kept for extractor context.
type HistoryEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the single persisted unit per user identity.
type ConversationState struct {
	UserID          string                   `json:"user_id"`
	Stage           Stage                    `json:"stage"`
	Slots           Slots                    `json:"slots"`
	AvailableOffers []pms.RoomOffer          `json:"available_offers,omitempty"`
	Confirmation    *pms.BookingConfirmation `json:"confirmation,omitempty"`
	History         []HistoryEntry           `json:"history,omitempty"`
	Attempt         string                   `json:"attempt"`
	LastActivityAt  time.Time                `json:"last_activity_at"`
}

// NewConversationState returns a fresh greeting-stage session for userID
// with a new attempt identity.
func NewConversationState(userID string) *ConversationState {
	return &ConversationState{
		UserID:         userID,
		Stage:          StageGreeting,
		Attempt:        uuid.NewString(),
		LastActivityAt: time.Now().UTC(),
	}
}

// AppendHistory adds an entry, evicting the oldest beyond the ring limit.
func (s *ConversationState) AppendHistory(role, text string) {
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if len(s.History) > historyLimit {
		s.History = s.History[len(s.History)-historyLimit:]
	}
}

// ClearOffers drops the presented offers and any selection made against
// them. Called whenever a date or guest-count change invalidates the last
// availability query.
func (s *ConversationState) ClearOffers() {
	s.AvailableOffers = nil
	s.Slots.SelectedRoomID = ""
}

// OfferByID returns the offer with the given room id from the current
// presentation, or nil when the reference is stale.
func (s *ConversationState) OfferByID(roomID string) *pms.RoomOffer {
	for i := range s.AvailableOffers {
		if s.AvailableOffers[i].RoomID == roomID {
			return &s.AvailableOffers[i]
		}
	}
	return nil
}

// Utterance is one normalized unit of user input, channel-agnostic.
type Utterance struct {
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	Channel    Channel   `json:"channel,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// OutboundMessage is what the engine hands back to a channel adapter.
// QuickReplyHints are advisory; adapters may render or ignore them.
type OutboundMessage struct {
	Text            string   `json:"text"`
	QuickReplyHints []string `json:"quick_reply_hints,omitempty"`
}

// sanitizeText trims and caps inbound text before any processing.
func sanitizeText(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxUtteranceLen {
		text = text[:maxUtteranceLen]
	}
	return text
}

package pms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format for stay dates.
const DateLayout = "2006-01-02"

// Client is the reservation-backend contract. Both operations are safe to
// retry with the same request token; the backend deduplicates on it.
type Client interface {
	CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]RoomOffer, error)
	CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error)
}

// AvailabilityRequest asks for bookable rooms over a stay window.
type AvailabilityRequest struct {
	CheckIn      string `json:"check_in"`
	CheckOut     string `json:"check_out"`
	GuestCount   int    `json:"guest_count"`
	RequestToken string `json:"request_token,omitempty"`
}

// Guest carries the contact details collected for a booking.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// BookingRequest creates a reservation for a previously offered room.
type BookingRequest struct {
	RoomID       string `json:"room_id"`
	CheckIn      string `json:"check_in"`
	CheckOut     string `json:"check_out"`
	GuestCount   int    `json:"guest_count"`
	Guest        Guest  `json:"guest"`
	RequestToken string `json:"request_token"`
}

// RoomOffer is one bookable room returned by an availability query.
// Offers are immutable and ordered as the backend returned them.
type RoomOffer struct {
	RoomID         string   `json:"room_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	PricePerNight  int64    `json:"price_per_night_cents"`
	TotalPrice     int64    `json:"total_price_cents"`
	MaxGuests      int      `json:"max_guests"`
	Amenities      []string `json:"amenities,omitempty"`
	AvailableCount int      `json:"available_count,omitempty"`
}

// BookingConfirmation is the backend's receipt for a created reservation.
// Created exactly once per successful CreateBooking and never mutated.
type BookingConfirmation struct {
	ConfirmationNumber string `json:"confirmation_number"`
	RoomID             string `json:"room_id"`
	CheckIn            string `json:"check_in"`
	CheckOut           string `json:"check_out"`
	GuestCount         int    `json:"guest_count"`
	GuestName          string `json:"guest_name,omitempty"`
	TotalPrice         int64  `json:"total_price_cents,omitempty"`
}

var (
	// ErrTimeout indicates the backend did not answer within the deadline.
	ErrTimeout = errors.New("pms: request timed out")
	// ErrUnavailable indicates a transient backend or connectivity failure.
	ErrUnavailable = errors.New("pms: backend unavailable")
	// ErrInvalid indicates the backend rejected the request as malformed.
	ErrInvalid = errors.New("pms: invalid request")
	// ErrRoomNoLongerAvailable indicates the room sold out between the
	// availability query and the booking attempt.
	ErrRoomNoLongerAvailable = errors.New("pms: room no longer available")
)

// IsTransient reports whether err is worth one automatic retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// BookingToken derives the idempotency token for CreateBooking from the
// tuple that defines booking intent. Identical intent yields an identical
// token, so a retried call after a dropped response cannot double-book.
func BookingToken(userID, roomID, checkIn, checkOut string) string {
	return hashToken("book", userID, roomID, checkIn, checkOut)
}

// AvailabilityToken derives the request token for CheckAvailability.
func AvailabilityToken(userID, checkIn, checkOut string, guestCount int) string {
	return hashToken("avail", userID, checkIn, checkOut, fmt.Sprintf("%d", guestCount))
}

func hashToken(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Nights returns the stay length for a parsed date pair; zero when the
// range is not positive.
func Nights(checkIn, checkOut time.Time) int {
	n := int(checkOut.Sub(checkIn) / (24 * time.Hour))
	if n < 0 {
		return 0
	}
	return n
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/pms"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Service emails booking confirmations to guests. It implements
// conversation.ConfirmationNotifier; the conversation service calls it
// best-effort once per confirmed booking.
type Service struct {
	email     EmailSender
	hotelName string
	logger    *logging.Logger
}

// NewService creates a notification service. email may be the stub.
func NewService(email EmailSender, hotelName string, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if hotelName == "" {
		hotelName = "Stayline Grand Hotel"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:     email,
		hotelName: hotelName,
		logger:    logger,
	}
}

var _ conversation.ConfirmationNotifier = (*Service)(nil)

// SendBookingConfirmation emails the guest their confirmation details.
// Skipped silently when no guest email was collected.
func (s *Service) SendBookingConfirmation(ctx context.Context, notice conversation.BookingNotice) error {
	if strings.TrimSpace(notice.Guest.Email) == "" {
		s.logger.Debug("no guest email on booking, skipping confirmation email",
			"confirmation", notice.ConfirmationNumber)
		return nil
	}

	msg := EmailMessage{
		To:      notice.Guest.Email,
		ToName:  notice.Guest.Name,
		Subject: fmt.Sprintf("Your reservation at %s is confirmed (%s)", s.hotelName, notice.ConfirmationNumber),
		Body:    s.confirmationBody(notice),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: booking confirmation email: %w", err)
	}
	s.logger.Info("booking confirmation email sent",
		"to", notice.Guest.Email, "confirmation", notice.ConfirmationNumber)
	return nil
}

func (s *Service) confirmationBody(notice conversation.BookingNotice) string {
	name := notice.Guest.Name
	if name == "" {
		name = "Guest"
	}
	roomName := notice.RoomName
	if roomName == "" {
		roomName = notice.RoomID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	fmt.Fprintf(&b, "Your reservation at %s is confirmed.\n\n", s.hotelName)
	fmt.Fprintf(&b, "Confirmation number: %s\n", notice.ConfirmationNumber)
	fmt.Fprintf(&b, "Room: %s\n", roomName)
	fmt.Fprintf(&b, "Check-in: %s\n", notice.CheckIn)
	fmt.Fprintf(&b, "Check-out: %s\n", notice.CheckOut)
	fmt.Fprintf(&b, "Guests: %d\n", notice.GuestCount)
	if in, err := time.Parse(pms.DateLayout, notice.CheckIn); err == nil {
		if out, err := time.Parse(pms.DateLayout, notice.CheckOut); err == nil {
			fmt.Fprintf(&b, "Nights: %d\n", pms.Nights(in, out))
		}
	}
	if notice.TotalPrice > 0 {
		fmt.Fprintf(&b, "Total: $%d\n", notice.TotalPrice/100)
	}
	fmt.Fprintf(&b, "\nWe look forward to welcoming you.\n\n%s", s.hotelName)
	return b.String()
}

package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/pms"
)

type mockEmailSender struct {
	sent    []EmailMessage
	callErr error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func testNotice() conversation.BookingNotice {
	return conversation.BookingNotice{
		UserID:             "whatsapp:+14155551234",
		Channel:            conversation.ChannelWhatsApp,
		ConfirmationNumber: "CONF-20260910-0001",
		RoomID:             "room_201",
		RoomName:           "Deluxe Suite",
		CheckIn:            "2026-09-10",
		CheckOut:           "2026-09-12",
		GuestCount:         2,
		Guest: pms.Guest{
			Name:  "Jane Smith",
			Email: "jane@example.com",
			Phone: "+14155551234",
		},
		TotalPrice:  50000,
		ConfirmedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestService_SendBookingConfirmation(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, "Stayline Grand Hotel", nil)

	if err := svc.SendBookingConfirmation(context.Background(), testNotice()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}

	msg := email.sent[0]
	if msg.To != "jane@example.com" {
		t.Errorf("unexpected recipient: %s", msg.To)
	}
	if !strings.Contains(msg.Subject, "CONF-20260910-0001") {
		t.Errorf("subject missing confirmation number: %s", msg.Subject)
	}
	for _, want := range []string{"Jane Smith", "Deluxe Suite", "2026-09-10", "2026-09-12", "Nights: 2", "Total: $500"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestService_SkipsWithoutGuestEmail(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, "", nil)

	notice := testNotice()
	notice.Guest.Email = ""

	if err := svc.SendBookingConfirmation(context.Background(), notice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("expected no email, got %d", len(email.sent))
	}
}

func TestService_WrapsSendFailure(t *testing.T) {
	email := &mockEmailSender{callErr: errors.New("provider down")}
	svc := NewService(email, "", nil)

	err := svc.SendBookingConfirmation(context.Background(), testNotice())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "provider down") {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

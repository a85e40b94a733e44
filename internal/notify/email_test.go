package notify

import (
	"context"
	"testing"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "test@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
		FromName:  "",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Stayline Grand Hotel" {
		t.Errorf("expected default from name 'Stayline Grand Hotel', got %q", sender.fromName)
	}
}

func TestNewSendGridSender_CustomFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
		FromName:  "Custom Name",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Custom Name" {
		t.Errorf("expected from name 'Custom Name', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{
		client: nil,
	}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test",
		Body:    "Test body",
	})

	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test Subject",
		Body:    "Test body",
	})

	if err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}

func TestBuildEmailSender(t *testing.T) {
	// SendGrid wins when an API key is present.
	sender, provider, _ := BuildEmailSender(SendGridConfig{APIKey: "key", FromEmail: "a@b.c"}, nil, true, nil)
	if provider != "sendgrid" {
		t.Errorf("expected sendgrid, got %s", provider)
	}
	if _, ok := sender.(*SendGridSender); !ok {
		t.Errorf("expected *SendGridSender, got %T", sender)
	}

	// No key and SES disabled falls back to the stub.
	sender, provider, _ = BuildEmailSender(SendGridConfig{}, nil, false, nil)
	if provider != "stub" {
		t.Errorf("expected stub, got %s", provider)
	}
	if _, ok := sender.(*StubEmailSender); !ok {
		t.Errorf("expected *StubEmailSender, got %T", sender)
	}

	// SES enabled but no client still falls back to the stub.
	_, provider, _ = BuildEmailSender(SendGridConfig{}, nil, true, nil)
	if provider != "stub" {
		t.Errorf("expected stub when SES client missing, got %s", provider)
	}
}

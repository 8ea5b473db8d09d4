package mail

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestMailer(t *testing.T, sender Sender) *Mailer {
	t.Helper()
	m, err := NewMailer(sender, "https://friendsplace.example", 24*time.Hour, 10*time.Minute)
	if err != nil {
		t.Fatalf("NewMailer returned error: %v", err)
	}
	return m
}

func TestMailer_SendVerification(t *testing.T) {
	sender := &mockSender{}
	m := newTestMailer(t, sender)

	if err := m.SendVerification(context.Background(), "alice@example.com", "alice", "tok.en.value"); err != nil {
		t.Fatalf("SendVerification returned error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "alice@example.com" || msg.Subject != subjectVerifyEmail {
		t.Errorf("to/subject = %q / %q", msg.To, msg.Subject)
	}
	for _, want := range []string{
		"https://friendsplace.example/api/v1/users/verifyEmail/tok.en.value",
		"Alice",
		"24 hours",
	} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("HTML does not contain %q:\n%s", want, msg.HTML)
		}
	}
}

func TestMailer_SendPasswordReset(t *testing.T) {
	sender := &mockSender{}
	m := newTestMailer(t, sender)

	if err := m.SendPasswordReset(context.Background(), "bob@example.com", "bob", "abc"); err != nil {
		t.Fatalf("SendPasswordReset returned error: %v", err)
	}
	msg := sender.sent[0]
	if msg.Subject != subjectResetPassword {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "/api/v1/users/resetPassword/abc") || !strings.Contains(msg.HTML, "10 minutes") {
		t.Errorf("unexpected HTML:\n%s", msg.HTML)
	}
}

func TestMailer_EscapesName(t *testing.T) {
	sender := &mockSender{}
	m := newTestMailer(t, sender)

	m.SendVerification(context.Background(), "x@example.com", "<script>", "t")
	if strings.Contains(sender.sent[0].HTML, "<script>") {
		t.Error("name should be HTML-escaped")
	}
}

func TestMailer_SenderErrorPropagates(t *testing.T) {
	sender := &mockSender{err: ErrDelivery}
	m := newTestMailer(t, sender)

	if err := m.SendVerification(context.Background(), "x@example.com", "x", "t"); err != ErrDelivery {
		t.Errorf("error = %v, want ErrDelivery", err)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Minute: "10 minutes",
		time.Hour:        "1 hour",
		3 * time.Hour:    "3 hours",
		24 * time.Hour:   "24 hours",
		72 * time.Hour:   "3 days",
	}
	for d, want := range tests {
		if got := humanDuration(d); got != want {
			t.Errorf("humanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

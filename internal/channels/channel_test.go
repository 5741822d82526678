package channels

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
)

func TestBaseChannel_IsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allow   []string
		chatID  string
		allowed bool
	}{
		{"empty list allows all", nil, "919900000000@s.whatsapp.net", true},
		{"phone match", []string{"919900000000"}, "919900000000@s.whatsapp.net", true},
		{"plus prefix", []string{"+919900000000"}, "919900000000@s.whatsapp.net", true},
		{"full jid match", []string{"919900000000@s.whatsapp.net"}, "919900000000@s.whatsapp.net", true},
		{"not listed", []string{"918800000000"}, "919900000000@s.whatsapp.net", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("whatsapp", tt.allow)
			if got := c.IsAllowed(tt.chatID); got != tt.allowed {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.chatID, got, tt.allowed)
			}
		})
	}
}

func TestBaseChannel_HandleMessage(t *testing.T) {
	c := NewBaseChannel("whatsapp", []string{"919900000000"})

	var got []bus.InboundMessage
	c.OnMessage(func(_ context.Context, msg bus.InboundMessage) {
		got = append(got, msg)
	})

	ctx := context.Background()
	c.HandleMessage(ctx, bus.InboundMessage{ID: "1", ChatID: "919900000000@s.whatsapp.net"})
	c.HandleMessage(ctx, bus.InboundMessage{ID: "2", ChatID: "917700000000@s.whatsapp.net"})
	// Operator messages bypass the allowlist so handoff still triggers.
	c.HandleMessage(ctx, bus.InboundMessage{ID: "3", ChatID: "917700000000@s.whatsapp.net", FromSelf: true})

	if len(got) != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("unexpected delivery order: %q, %q", got[0].ID, got[1].ID)
	}
	if got[0].Channel != "whatsapp" {
		t.Errorf("channel name not stamped: %q", got[0].Channel)
	}
}

func TestBaseChannel_RedeliveredHistorySkipsFloodGuard(t *testing.T) {
	c := NewBaseChannel("whatsapp", nil)
	delivered := 0
	c.OnMessage(func(context.Context, bus.InboundMessage) { delivered++ })

	ctx := context.Background()
	chat := "919900000000@s.whatsapp.net"
	old := c.startedAt.Add(-time.Hour)
	for i := 0; i < floodMaxMessages+10; i++ {
		c.HandleMessage(ctx, bus.InboundMessage{ChatID: chat, Timestamp: old})
	}
	c.HandleMessage(ctx, bus.InboundMessage{ID: "fresh", ChatID: chat, Timestamp: time.Now()})

	if want := floodMaxMessages + 11; delivered != want {
		t.Errorf("delivered = %d, want %d", delivered, want)
	}

	for i := 0; i < floodMaxMessages; i++ {
		c.HandleMessage(ctx, bus.InboundMessage{ChatID: chat, Timestamp: time.Now()})
	}
	if want := 2*floodMaxMessages + 10; delivered != want {
		t.Errorf("delivered = %d, want %d once the live flood budget is spent", delivered, want)
	}
}

func TestSenderRateLimiter_Window(t *testing.T) {
	r := NewSenderRateLimiter()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for i := 0; i < floodMaxMessages; i++ {
		if !r.Allow("a") {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	if r.Allow("a") {
		t.Fatal("expected flood to be blocked")
	}
	if !r.Allow("b") {
		t.Fatal("other senders must not be affected")
	}

	now = now.Add(floodWindow)
	if !r.Allow("a") {
		t.Fatal("expected a fresh window to allow the sender again")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
}

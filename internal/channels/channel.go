// Package channels provides the transport abstraction for customer messaging.
// A channel delivers inbound events to a registered handler and exposes the
// send, composing-indicator and contact lookup operations the bot needs.
package channels

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
)

// Channel defines the interface that all transport implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// SetComposing shows the "typing..." indicator in a chat.
	SetComposing(ctx context.Context, chatID string) error

	// DisplayName resolves the contact name for a chat, "" if unknown.
	DisplayName(ctx context.Context, chatID string) string

	// OnMessage registers the inbound handler. Must be called before Start.
	OnMessage(handler bus.MessageHandler)

	// IsRunning returns whether the channel is connected and processing messages.
	IsRunning() bool
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	mu        sync.RWMutex
	running   bool
	handler   bus.MessageHandler
	allowList []string
	limiter   *SenderRateLimiter
	startedAt time.Time
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		allowList: allowList,
		limiter:   NewSenderRateLimiter(),
		startedAt: time.Now(),
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

// OnMessage registers the inbound handler.
func (c *BaseChannel) OnMessage(handler bus.MessageHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a chat is permitted by the allowlist.
// Entries match either the full JID or its user part (the phone number).
// Empty allowlist means all chats are allowed.
func (c *BaseChannel) IsAllowed(chatID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	user := chatID
	if idx := strings.IndexByte(chatID, '@'); idx > 0 {
		user = chatID[:idx]
	}
	for _, allowed := range c.allowList {
		allowed = strings.TrimPrefix(allowed, "+")
		if allowed == chatID || allowed == user {
			return true
		}
	}
	return false
}

// HandleMessage forwards an inbound event to the registered handler.
// Operator messages always pass; customer messages must clear the allowlist
// and the per-sender flood guard. History redelivered from before the channel
// started is left to the handler's age filter and does not use up the flood
// budget.
func (c *BaseChannel) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	msg.Channel = c.name
	if !msg.FromSelf {
		if !c.IsAllowed(msg.ChatID) {
			return
		}
		redelivered := !msg.Timestamp.IsZero() && msg.Timestamp.Before(c.startedAt)
		if !redelivered && !c.limiter.Allow(msg.ChatID) {
			slog.Warn("inbound dropped: sender over flood limit",
				"channel", c.name, "chat_id", msg.ChatID, "message_id", msg.ID)
			return
		}
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return
	}
	handler(ctx, msg)
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

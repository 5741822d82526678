package bus

import (
	"context"
	"time"
)

// Peer kinds reported by transports.
const (
	PeerDirect    = "direct"
	PeerGroup     = "group"
	PeerBroadcast = "broadcast" // status updates and broadcast lists
)

// InboundMessage represents a message event delivered by a transport.
// Transports deliver at least once, so the same ID may arrive more than once.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	ID        string            `json:"id"`
	ChatID    string            `json:"chat_id"`   // conversation identifier (customer JID)
	SenderID  string            `json:"sender_id"` // author; equals ChatID for direct chats
	Phone     string            `json:"phone"`     // customer phone digits, lead identity
	FromSelf  bool              `json:"from_self"` // typed by the operator account itself
	PeerKind  string            `json:"peer_kind"` // PeerDirect, PeerGroup or PeerBroadcast
	Timestamp time.Time         `json:"timestamp"` // origin time reported by the platform
	Content   string            `json:"content"`
	PushName  string            `json:"push_name,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IsGroup reports whether the message came from a group chat.
func (m InboundMessage) IsGroup() bool { return m.PeerKind == PeerGroup }

// IsStatus reports whether the message is a status/broadcast update.
func (m InboundMessage) IsStatus() bool { return m.PeerKind == PeerBroadcast }

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageHandler handles an inbound message from a transport.
// Handlers must not block for long; heavy work belongs on the dispatcher.
type MessageHandler func(ctx context.Context, msg InboundMessage)

package store

import (
	"context"
	"time"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerCustomer  Speaker = "customer"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one entry of a conversation history.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at,omitempty"`
}

// Conversation steps. Advisory only: the backend decides what to say.
const (
	StepIdle   = 0
	StepActive = 1
)

// SessionData holds durable state for one conversation.
type SessionData struct {
	Key   string `json:"key"` // conversation id (customer JID)
	Step  int    `json:"step"`
	Phone string `json:"phone,omitempty"`

	// Captured attributes and whether each was written to the lead store.
	Name            string `json:"name,omitempty"`
	LeadLogged      bool   `json:"leadLogged,omitempty"`
	ProductInterest string `json:"productInterest,omitempty"`
	ProductLogged   bool   `json:"productLogged,omitempty"`
	Location        string `json:"location,omitempty"`
	LocationLogged  bool   `json:"locationLogged,omitempty"`

	History []Turn `json:"history"`

	HandoffActive bool      `json:"handoffActive,omitempty"`
	HandoffUntil  time.Time `json:"handoffUntil,omitempty"`

	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"lastSeen"`
}

// Clone returns a deep copy safe to hand out of a lock.
func (s *SessionData) Clone() SessionData {
	c := *s
	if s.History != nil {
		c.History = make([]Turn, len(s.History))
		copy(c.History, s.History)
	}
	return c
}

// HasAssistantTurn reports whether the assistant already replied in this conversation.
func (s *SessionData) HasAssistantTurn() bool {
	for _, t := range s.History {
		if t.Speaker == SpeakerAssistant && t.Text != "" {
			return true
		}
	}
	return false
}

// SessionStore persists sessions. The in-memory table in sessions.Manager is
// authoritative; stores only need to survive restarts.
type SessionStore interface {
	Save(ctx context.Context, s SessionData) error
	LoadAll(ctx context.Context) ([]SessionData, error)
}

// DedupStore persists the processed message id window, oldest first.
type DedupStore interface {
	SaveIDs(ctx context.Context, ids []string) error
	LoadIDs(ctx context.Context) ([]string, error)
}

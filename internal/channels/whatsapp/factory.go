// Package whatsapp provides the WhatsApp transports: a native client built on
// whatsmeow and a WebSocket bridge client.
package whatsapp

import (
	"fmt"

	"github.com/nextlevelbuilder/showroombot/internal/channels"
	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/pairing"
)

// Transport is a channel that may also report an irrecoverable failure.
type Transport interface {
	channels.Channel
	// Fatal yields at most one error after which the process must exit.
	Fatal() <-chan error
}

// New creates the transport selected by cfg.Mode.
func New(cfg config.WhatsAppConfig, ps *pairing.State, logLevel string) (Transport, error) {
	switch cfg.Mode {
	case "", "native":
		return NewNative(cfg, ps, logLevel), nil
	case "bridge":
		ch, err := NewBridge(cfg)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("unknown whatsapp mode %q", cfg.Mode)
	}
}

// Fatal never fires for the bridge; the bridge process owns the session.
func (c *BridgeChannel) Fatal() <-chan error { return nil }

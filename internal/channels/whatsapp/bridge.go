package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
	"github.com/nextlevelbuilder/showroombot/internal/channels"
	"github.com/nextlevelbuilder/showroombot/internal/config"
)

// BridgeChannel connects to an external WhatsApp bridge over WebSocket.
// The bridge (e.g. a whatsapp-web.js process) owns the WhatsApp session;
// this channel only exchanges JSON frames with it.
type BridgeChannel struct {
	*channels.BaseChannel
	conn   *websocket.Conn
	config config.WhatsAppConfig
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	// chat id -> last push name seen, used as DisplayName.
	names sync.Map
}

// bridgeFrame is the JSON envelope in both directions.
// Inbound: {"type":"message","id":"...","chat":"...","from":"...","from_me":false,
// "from_name":"...","timestamp":1700000000,"content":"...","is_group":false,"is_status":false}
// Outbound: {"type":"message","to":"...","content":"..."} and {"type":"composing","to":"..."}.
type bridgeFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Chat      string `json:"chat,omitempty"`
	From      string `json:"from,omitempty"`
	FromMe    bool   `json:"from_me,omitempty"`
	FromName  string `json:"from_name,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Content   string `json:"content,omitempty"`
	IsGroup   bool   `json:"is_group,omitempty"`
	IsStatus  bool   `json:"is_status,omitempty"`
	To        string `json:"to,omitempty"`
}

// NewBridge creates a bridge channel from config.
func NewBridge(cfg config.WhatsAppConfig) (*BridgeChannel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &BridgeChannel{
		BaseChannel: channels.NewBaseChannel("whatsapp", cfg.AllowFrom),
		config:      cfg,
	}, nil
}

// Start connects to the bridge and begins listening.
func (c *BridgeChannel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp bridge channel", "bridge_url", c.config.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// Reconnect loop keeps trying.
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()
	return nil
}

// Stop closes the bridge connection.
func (c *BridgeChannel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp bridge channel")

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message through the bridge.
func (c *BridgeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	return c.write(bridgeFrame{Type: "message", To: msg.ChatID, Content: msg.Content})
}

// SetComposing asks the bridge to show the typing indicator.
func (c *BridgeChannel) SetComposing(_ context.Context, chatID string) error {
	return c.write(bridgeFrame{Type: "composing", To: chatID})
}

// DisplayName returns the last push name the bridge reported for chatID.
func (c *BridgeChannel) DisplayName(_ context.Context, chatID string) string {
	if v, ok := c.names.Load(chatID); ok {
		return v.(string)
	}
	return ""
}

func (c *BridgeChannel) write(f bridgeFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal whatsapp frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send whatsapp %s: %w", f.Type, err)
	}
	return nil
}

func (c *BridgeChannel) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.Dial(c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.SetRunning(true)

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *BridgeChannel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			c.SetRunning(false)
			continue
		}

		var f bridgeFrame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("invalid whatsapp bridge frame", "error", err)
			continue
		}
		if f.Type == "message" {
			c.handleFrame(f)
		}
	}
}

func (c *BridgeChannel) handleFrame(f bridgeFrame) {
	msg, ok := frameToInbound(f)
	if !ok {
		return
	}
	if msg.PushName != "" && !msg.FromSelf {
		c.names.Store(msg.ChatID, msg.PushName)
	}

	slog.Debug("whatsapp bridge message received",
		"chat_id", msg.ChatID,
		"from_self", msg.FromSelf,
		"preview", channels.Truncate(msg.Content, 50),
	)
	c.HandleMessage(c.ctx, msg)
}

// frameToInbound maps a bridge message frame onto the transport-neutral event.
func frameToInbound(f bridgeFrame) (bus.InboundMessage, bool) {
	chatID := f.Chat
	if chatID == "" {
		chatID = f.From
	}
	if chatID == "" || strings.TrimSpace(f.Content) == "" {
		return bus.InboundMessage{}, false
	}

	peerKind := bus.PeerDirect
	switch {
	case f.IsStatus || strings.HasSuffix(chatID, "@broadcast"):
		peerKind = bus.PeerBroadcast
	case f.IsGroup || strings.HasSuffix(chatID, "@g.us"):
		peerKind = bus.PeerGroup
	}

	var ts time.Time
	if f.Timestamp > 0 {
		ts = time.Unix(f.Timestamp, 0)
	}

	sender := f.From
	if sender == "" {
		sender = chatID
	}
	return bus.InboundMessage{
		ID:        f.ID,
		ChatID:    chatID,
		SenderID:  sender,
		Phone:     PhoneFromChatID(chatID),
		FromSelf:  f.FromMe,
		PeerKind:  peerKind,
		Timestamp: ts,
		Content:   f.Content,
		PushName:  f.FromName,
	}, true
}

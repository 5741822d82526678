package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
	"github.com/nextlevelbuilder/showroombot/internal/channels"
	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/pairing"
	storesqlite "github.com/nextlevelbuilder/showroombot/internal/store/sqlite"
)

// ErrLoggedOut is reported on Fatal when the linked device is removed from
// the phone. The device store must be re-paired before the bot can run again.
var ErrLoggedOut = errors.New("whatsapp device logged out")

// NativeChannel speaks the WhatsApp multi-device protocol directly through
// whatsmeow. Device keys live in a SQLite database next to the bot state.
type NativeChannel struct {
	*channels.BaseChannel
	cfg     config.WhatsAppConfig
	pairing *pairing.State
	logLvl  string

	container *sqlstore.Container
	client    *whatsmeow.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fatal     chan error
	fatalOnce sync.Once
}

// NewNative creates the native channel. logLevel is passed to whatsmeow's
// own loggers ("DEBUG", "INFO", "WARN" or "ERROR").
func NewNative(cfg config.WhatsAppConfig, ps *pairing.State, logLevel string) *NativeChannel {
	if ps == nil {
		ps = pairing.NewState()
	}
	return &NativeChannel{
		BaseChannel: channels.NewBaseChannel("whatsapp", cfg.AllowFrom),
		cfg:         cfg,
		pairing:     ps,
		logLvl:      logLevel,
		fatal:       make(chan error, 1),
	}
}

// Fatal delivers the irrecoverable transport condition, if one occurs.
func (c *NativeChannel) Fatal() <-chan error { return c.fatal }

// Start opens the device store and connects. When the device is not yet
// linked the pairing QR is printed to the terminal and published to the
// pairing state; Start returns without waiting for the scan.
func (c *NativeChannel) Start(ctx context.Context) error {
	path := c.cfg.StorePath
	if path == "" {
		path = filepath.Join("data", "whatsapp.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create whatsapp store dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", storesqlite.DSN(path), waLog.Stdout("Database", c.logLvl, true))
	if err != nil {
		return fmt.Errorf("open whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return fmt.Errorf("load whatsapp device: %w", err)
	}

	c.container = container
	c.client = whatsmeow.NewClient(device, waLog.Stdout("Client", c.logLvl, true))
	c.client.AddEventHandler(c.handleEvent)
	c.ctx, c.cancel = context.WithCancel(ctx)

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect whatsapp: %w", err)
		}
		c.wg.Add(1)
		go c.pairLoop(qrChan)
		slog.Info("whatsapp device not linked, waiting for QR scan")
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	slog.Info("whatsapp connecting", "device", c.client.Store.ID.String())
	return nil
}

func (c *NativeChannel) pairLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case "code":
				c.pairing.Set(evt.Code)
				fmt.Println("Scan this QR code with WhatsApp > Linked devices:")
				pairing.PrintTerminal(os.Stdout, evt.Code)
			case "success":
				slog.Info("whatsapp device linked")
			case "timeout":
				slog.Warn("whatsapp pairing timed out, restart to get a new code")
			default:
				slog.Info("whatsapp pairing event", "event", evt.Event)
			}
		}
	}
}

// Stop disconnects and closes the device store.
func (c *NativeChannel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.client != nil {
		c.client.Disconnect()
	}
	c.SetRunning(false)
	c.pairing.SetConnected(false)
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

// Send delivers a plain text message.
func (c *NativeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.client == nil || !c.client.IsConnected() {
		return fmt.Errorf("whatsapp not connected")
	}
	jid, err := ParseChatID(msg.ChatID)
	if err != nil {
		return err
	}
	if _, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(msg.Content),
	}); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

// SetComposing shows the typing indicator in chatID.
func (c *NativeChannel) SetComposing(ctx context.Context, chatID string) error {
	if c.client == nil {
		return fmt.Errorf("whatsapp not connected")
	}
	jid, err := ParseChatID(chatID)
	if err != nil {
		return err
	}
	return c.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// DisplayName returns the saved contact name, falling back to the name the
// customer set on their own profile.
func (c *NativeChannel) DisplayName(ctx context.Context, chatID string) string {
	if c.client == nil {
		return ""
	}
	jid, err := ParseChatID(chatID)
	if err != nil {
		return ""
	}
	contact, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return ""
	}
	if contact.FullName != "" {
		return contact.FullName
	}
	return contact.PushName
}

func (c *NativeChannel) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.SetRunning(true)
		c.pairing.SetConnected(true)
		slog.Info("whatsapp connected")
	case *events.Disconnected:
		c.SetRunning(false)
		c.pairing.SetConnected(false)
		slog.Warn("whatsapp disconnected, client will reconnect")
	case *events.LoggedOut:
		c.SetRunning(false)
		c.pairing.SetConnected(false)
		slog.Error("whatsapp logged out", "reason", v.Reason.String())
		c.fatalOnce.Do(func() { c.fatal <- ErrLoggedOut })
	case *events.Message:
		c.handleMessage(v)
	}
}

func (c *NativeChannel) handleMessage(evt *events.Message) {
	content := messageText(evt.Message)
	if content == "" {
		return
	}

	peerKind := bus.PeerDirect
	switch {
	case evt.Info.Chat.Server == types.BroadcastServer:
		peerKind = bus.PeerBroadcast
	case evt.Info.IsGroup:
		peerKind = bus.PeerGroup
	}

	msg := bus.InboundMessage{
		ID:        evt.Info.ID,
		ChatID:    evt.Info.Chat.String(),
		SenderID:  evt.Info.Sender.String(),
		Phone:     PhoneFromChatID(evt.Info.Chat.String()),
		FromSelf:  evt.Info.IsFromMe,
		PeerKind:  peerKind,
		Timestamp: evt.Info.Timestamp,
		Content:   content,
		PushName:  evt.Info.PushName,
	}

	slog.Debug("whatsapp message received",
		"chat_id", msg.ChatID,
		"from_self", msg.FromSelf,
		"preview", channels.Truncate(content, 50),
	)
	c.HandleMessage(c.ctx, msg)
}

func messageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if t := m.GetConversation(); t != "" {
		return t
	}
	if t := m.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if t := m.GetImageMessage().GetCaption(); t != "" {
		return t
	}
	return strings.TrimSpace(m.GetVideoMessage().GetCaption())
}

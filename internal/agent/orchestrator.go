// Package agent is the conversation orchestrator: it filters inbound
// WhatsApp events, keeps per-conversation state, logs leads and produces
// paced replies through the single-flight dispatcher.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
	"github.com/nextlevelbuilder/showroombot/internal/channels"
	"github.com/nextlevelbuilder/showroombot/internal/dispatch"
	"github.com/nextlevelbuilder/showroombot/internal/extract"
	"github.com/nextlevelbuilder/showroombot/internal/inventory"
	"github.com/nextlevelbuilder/showroombot/internal/providers"
	"github.com/nextlevelbuilder/showroombot/internal/retry"
	"github.com/nextlevelbuilder/showroombot/internal/sessions"
	"github.com/nextlevelbuilder/showroombot/internal/store"
)

var tracer = otel.Tracer("showroombot/agent")

// echoWindow is how long a sent reply is remembered so its echo from the
// transport is not mistaken for an operator message.
const echoWindow = 2 * time.Minute

// Transport is the subset of a channel the orchestrator talks back through.
type Transport interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
	SetComposing(ctx context.Context, chatID string) error
	DisplayName(ctx context.Context, chatID string) string
}

// Dispatcher serializes reply work and spaces backend calls.
type Dispatcher interface {
	Enqueue(name string, task dispatch.Task) error
	Call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error)
}

// Seener is the processed-message cache.
type Seener interface {
	Seen(id string) bool
}

// Inventory serves the current vehicle snapshot.
type Inventory interface {
	Vehicles() []inventory.Vehicle
}

// Config tunes the orchestrator.
type Config struct {
	Persona         string
	Assistant       string
	HistoryLimit    int
	HandoffDuration time.Duration
	StallMessage    string // sent when generation fails; empty = no reply
	Delay           DelayPolicy
	Composing       bool
	StartedAt       time.Time      // events older than this are redeliveries
	Location        *time.Location // timezone of lead timestamps
	LeadTimeout     time.Duration  // bound on each lead-store call (default 10s)
}

// Deps are the collaborators. Leads may be nil (lead logging disabled).
type Deps struct {
	Sessions   *sessions.Manager
	Dedup      Seener
	Dispatcher Dispatcher
	Provider   providers.Provider
	Extractor  *extract.Extractor
	Inventory  Inventory
	Leads      store.LeadStore
	Transport  Transport
}

// Orchestrator handles inbound events end to end.
type Orchestrator struct {
	cfg  Config
	deps Deps

	echoMu sync.Mutex
	echoes map[string][]sentReply

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	randN func(n int64) int64
}

type sentReply struct {
	text string
	at   time.Time
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 15
	}
	if cfg.HandoffDuration <= 0 {
		cfg.HandoffDuration = 30 * time.Minute
	}
	if cfg.LeadTimeout <= 0 {
		cfg.LeadTimeout = 10 * time.Second
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		echoes: make(map[string][]sentReply),
		now:    time.Now,
		sleep:  retry.Sleep,
	}
}

// HandleInbound applies the inbound filters in order (origin, operator,
// age, duplicate) and queues accepted messages for processing.
// It matches bus.MessageHandler.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	if msg.ChatID == "" || msg.IsGroup() || msg.IsStatus() {
		slog.Debug("inbound ignored: not a direct chat", "chat_id", msg.ChatID, "peer_kind", msg.PeerKind)
		return
	}

	if msg.FromSelf {
		o.handleOperatorMessage(msg)
		return
	}

	if !msg.Timestamp.IsZero() && msg.Timestamp.Before(o.cfg.StartedAt) {
		slog.Info("inbound ignored: predates startup",
			"chat_id", msg.ChatID, "message_id", msg.ID,
			"sent_at", msg.Timestamp.Format(time.RFC3339),
		)
		return
	}

	if msg.ID != "" && o.deps.Dedup != nil && o.deps.Dedup.Seen(msg.ID) {
		slog.Info("inbound ignored: already processed", "chat_id", msg.ChatID, "message_id", msg.ID)
		return
	}

	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	err := o.deps.Dispatcher.Enqueue("reply "+msg.ChatID, func(ctx context.Context) error {
		o.Process(ctx, msg)
		return nil
	})
	if err != nil {
		slog.Error("inbound dropped: cannot queue", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
	}
}

// handleOperatorMessage pauses the bot for a chat the operator typed into.
// The window runs from the message's own timestamp, so a redelivered old
// operator message cannot pause a chat again.
func (o *Orchestrator) handleOperatorMessage(msg bus.InboundMessage) {
	if o.isEcho(msg.ChatID, msg.Content) {
		return
	}
	d := o.cfg.HandoffDuration
	if !msg.Timestamp.IsZero() {
		d -= o.now().Sub(msg.Timestamp)
	}
	if d <= 0 {
		slog.Debug("operator message outside handoff window", "chat_id", msg.ChatID)
		return
	}
	o.deps.Sessions.SetHandoff(msg.ChatID, d)
	if msg.ID != "" && o.deps.Dedup != nil && o.deps.Dedup.Seen(msg.ID) {
		return
	}
	if text := strings.TrimSpace(msg.Content); text != "" {
		o.deps.Sessions.AppendTurn(msg.ChatID, store.Turn{Speaker: store.SpeakerAssistant, Text: text}, o.cfg.HistoryLimit)
	}
}

// Process runs the per-message pipeline. It never panics and never returns
// an error: failures are logged and the turn is abandoned.
func (o *Orchestrator) Process(ctx context.Context, msg bus.InboundMessage) {
	ctx, span := tracer.Start(ctx, "agent.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("chat.id", msg.ChatID), attribute.String("message.id", msg.ID)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, fmt.Sprint(r))
			slog.Error("message handling panicked",
				"chat_id", msg.ChatID, "message_id", msg.ID,
				"panic", r, "stack", string(debug.Stack()),
			)
		}
	}()

	if err := o.process(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("message handling failed", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
	}
}

func (o *Orchestrator) process(ctx context.Context, msg bus.InboundMessage) error {
	key := msg.ChatID
	text := strings.TrimSpace(msg.Content)
	slog.Info("customer message",
		"chat_id", key, "name", msg.PushName,
		"preview", channels.Truncate(text, 80),
	)

	sess := o.deps.Sessions.AppendTurn(key, store.Turn{Speaker: store.SpeakerCustomer, Text: text}, o.cfg.HistoryLimit)

	if o.deps.Sessions.IsHandedOff(key) {
		slog.Info("bot paused for chat, operator is handling it", "chat_id", key)
		return nil
	}

	phone := msg.Phone
	if phone == "" {
		phone = sess.Phone
	}
	sess = o.deps.Sessions.Update(key, func(s *store.SessionData) {
		if phone != "" {
			s.Phone = phone
		}
	})

	o.logLead(ctx, msg, sess)

	// An operator message can land while the lead is being logged.
	if o.deps.Sessions.IsHandedOff(key) {
		slog.Info("operator took over before the reply was generated", "chat_id", key)
		return nil
	}

	reply, err := o.generate(ctx, key)
	switch {
	case errors.Is(err, errNothingToAnswer):
		slog.Info("no customer turn left to answer", "chat_id", key)
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("reply generation failed, sending stall message", "chat_id", key, "error", err)
		reply = o.cfg.StallMessage
	}
	reply = CleanReply(reply, o.cfg.Assistant)

	if reply == "" {
		slog.Warn("empty reply, nothing sent", "chat_id", key)
		return nil
	}
	return o.deliver(ctx, key, reply)
}

// logLead creates the lead on the first message and patches each detected
// attribute once. Flags are only set when the store call succeeds so the
// next message retries a failed write. Attribute updates wait for the row to
// exist, since an update on a missing row creates one.
func (o *Orchestrator) logLead(ctx context.Context, msg bus.InboundMessage, sess store.SessionData) {
	key := sess.Key
	if o.deps.Leads == nil || sess.Phone == "" {
		return
	}

	if !sess.LeadLogged {
		name := o.deps.Transport.DisplayName(ctx, key)
		if name == "" {
			name = msg.PushName
		}
		if name == "" {
			name = "Unknown"
		}
		lead := store.Lead{
			FirstContact: o.now(),
			Name:         name,
			Phone:        sess.Phone,
			Status:       store.StatusNew,
			LastActive:   o.now(),
		}
		lctx, cancel := context.WithTimeout(ctx, o.cfg.LeadTimeout)
		err := o.deps.Leads.CreateLead(lctx, lead)
		cancel()
		if err != nil {
			slog.Warn("lead create failed", "chat_id", key, "error", err)
			return
		}
		sess = o.deps.Sessions.Update(key, func(s *store.SessionData) {
			s.LeadLogged = true
			s.Name = name
		})
		slog.Info("new lead logged", "chat_id", key, "name", name)
	}

	text := msg.Content
	if interest, ok := o.deps.Extractor.ProductInterest(text); ok && !sess.ProductLogged {
		if err := o.updateLead(ctx, sess.Phone, store.LeadRequirement, interest); err != nil {
			slog.Warn("lead requirement update failed", "chat_id", key, "error", err)
		} else {
			sess = o.deps.Sessions.Update(key, func(s *store.SessionData) {
				s.ProductInterest = interest
				s.ProductLogged = true
			})
			slog.Info("lead requirement logged", "chat_id", key, "requirement", interest)
		}
	}

	if loc, ok := o.deps.Extractor.Location(text); ok && !sess.LocationLogged {
		if err := o.updateLead(ctx, sess.Phone, store.LeadLocation, loc); err != nil {
			slog.Warn("lead location update failed", "chat_id", key, "error", err)
		} else {
			o.deps.Sessions.Update(key, func(s *store.SessionData) {
				s.Location = loc
				s.LocationLogged = true
			})
			slog.Info("lead location logged", "chat_id", key, "location", loc)
		}
	}

	stamp := store.FormatLeadTime(o.now(), o.cfg.Location)
	if err := o.updateLead(ctx, sess.Phone, store.LeadLastActive, stamp); err != nil {
		slog.Debug("lead last-active update failed", "chat_id", key, "error", err)
	}
}

func (o *Orchestrator) updateLead(ctx context.Context, phone string, field store.LeadField, value string) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.LeadTimeout)
	defer cancel()
	return o.deps.Leads.UpdateField(ctx, phone, field, value)
}

var errNothingToAnswer = errors.New("no customer turn to answer")

func (o *Orchestrator) generate(ctx context.Context, key string) (string, error) {
	sess, _ := o.deps.Sessions.Get(key)

	var vehicles []inventory.Vehicle
	if o.deps.Inventory != nil {
		vehicles = o.deps.Inventory.Vehicles()
	}

	// The live turn is popped below, so the directive depends on earlier turns only.
	history, live := reshapeHistory(sess.History)
	req := providers.GenerateRequest{
		System: BuildSystemPrompt(PromptInput{
			Persona:    o.cfg.Persona,
			Assistant:  o.cfg.Assistant,
			Vehicles:   vehicles,
			Continuing: sess.HasAssistantTurn(),
		}),
		History: history,
		Message: live,
	}
	if req.Message == "" {
		return "", errNothingToAnswer
	}

	return o.deps.Dispatcher.Call(ctx, func(ctx context.Context) (string, error) {
		return o.deps.Provider.Generate(ctx, req)
	})
}

// deliver shows the typing indicator, waits a human-plausible delay, sends
// and records the reply.
func (o *Orchestrator) deliver(ctx context.Context, key, reply string) error {
	if o.cfg.Composing {
		if err := o.deps.Transport.SetComposing(ctx, key); err != nil {
			slog.Debug("composing indicator failed", "chat_id", key, "error", err)
		}
	}

	wait := o.cfg.Delay.For(len([]rune(reply)), o.randN)
	slog.Debug("reply delay", "chat_id", key, "wait", wait)
	if err := o.sleep(ctx, wait); err != nil {
		return err
	}

	if o.deps.Sessions.IsHandedOff(key) {
		slog.Info("operator took over during the reply delay, reply dropped", "chat_id", key)
		return nil
	}

	o.rememberEcho(key, reply)
	if err := o.deps.Transport.Send(ctx, bus.OutboundMessage{ChatID: key, Content: reply}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	o.deps.Sessions.AppendTurn(key, store.Turn{Speaker: store.SpeakerAssistant, Text: reply}, o.cfg.HistoryLimit)
	o.deps.Sessions.Update(key, func(s *store.SessionData) {
		if s.Step == store.StepIdle {
			s.Step = store.StepActive
		}
	})
	slog.Info("reply sent", "chat_id", key, "len", len(reply))
	return nil
}

func (o *Orchestrator) rememberEcho(key, text string) {
	o.echoMu.Lock()
	defer o.echoMu.Unlock()
	now := o.now()
	kept := o.echoes[key][:0]
	for _, e := range o.echoes[key] {
		if now.Sub(e.at) < echoWindow {
			kept = append(kept, e)
		}
	}
	o.echoes[key] = append(kept, sentReply{text: strings.TrimSpace(text), at: now})
}

// isEcho reports (and consumes) a recent bot reply matching text.
func (o *Orchestrator) isEcho(key, text string) bool {
	o.echoMu.Lock()
	defer o.echoMu.Unlock()
	text = strings.TrimSpace(text)
	now := o.now()
	list := o.echoes[key]
	for i, e := range list {
		if e.text == text && now.Sub(e.at) < echoWindow {
			o.echoes[key] = append(list[:i], list[i+1:]...)
			if len(o.echoes[key]) == 0 {
				delete(o.echoes, key)
			}
			return true
		}
	}
	return false
}

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
	"github.com/nextlevelbuilder/showroombot/internal/dedup"
	"github.com/nextlevelbuilder/showroombot/internal/dispatch"
	"github.com/nextlevelbuilder/showroombot/internal/extract"
	"github.com/nextlevelbuilder/showroombot/internal/inventory"
	"github.com/nextlevelbuilder/showroombot/internal/providers"
	"github.com/nextlevelbuilder/showroombot/internal/sessions"
	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// syncDispatcher runs tasks inline so tests observe effects immediately.
type syncDispatcher struct {
	calls int
}

func (d *syncDispatcher) Enqueue(_ string, task dispatch.Task) error {
	return task(context.Background())
}

func (d *syncDispatcher) Call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	d.calls++
	return fn(ctx)
}

type fakeProvider struct {
	mu    sync.Mutex
	reqs  []providers.GenerateRequest
	reply func(req providers.GenerateRequest) (string, error)
}

func (p *fakeProvider) Generate(_ context.Context, req providers.GenerateRequest) (string, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	if p.reply == nil {
		return "Hello! Which city are you contacting us from?", nil
	}
	return p.reply(req)
}

func (p *fakeProvider) DefaultModel() string { return "fake" }
func (p *fakeProvider) Name() string         { return "fake" }

type fakeTransport struct {
	mu        sync.Mutex
	sent      []bus.OutboundMessage
	composing []string
	events    []string
	name      string
	sendErr   error
}

func (t *fakeTransport) Send(_ context.Context, msg bus.OutboundMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, "send")
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) SetComposing(_ context.Context, chatID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, "composing")
	t.composing = append(t.composing, chatID)
	return nil
}

func (t *fakeTransport) DisplayName(context.Context, string) string { return t.name }

type leadCall struct {
	field store.LeadField
	value string
}

type fakeLeads struct {
	mu        sync.Mutex
	created   []store.Lead
	updates   []leadCall
	createErr error
	updateErr error
	onCreate  func(ctx context.Context) error
}

func (l *fakeLeads) CreateLead(ctx context.Context, lead store.Lead) error {
	if l.onCreate != nil {
		if err := l.onCreate(ctx); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	l.created = append(l.created, lead)
	return nil
}

func (l *fakeLeads) UpdateField(_ context.Context, _ string, field store.LeadField, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updateErr != nil {
		return l.updateErr
	}
	l.updates = append(l.updates, leadCall{field, value})
	return nil
}

func (l *fakeLeads) ListLeads(context.Context) ([]store.Lead, error) { return nil, nil }

func (l *fakeLeads) count(field store.LeadField) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, u := range l.updates {
		if u.field == field {
			n++
		}
	}
	return n
}

// sheetLeads keeps rows like the sheet does: an update on a phone with no
// row appends one.
type sheetLeads struct {
	mu        sync.Mutex
	rows      []store.Lead
	failFirst int
}

func (l *sheetLeads) CreateLead(_ context.Context, lead store.Lead) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failFirst > 0 {
		l.failFirst--
		return errors.New("quota exceeded")
	}
	l.rows = append(l.rows, lead)
	return nil
}

func (l *sheetLeads) UpdateField(_ context.Context, phone string, field store.LeadField, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].Phone == phone {
			if field == store.LeadRequirement {
				l.rows[i].Requirement = value
			}
			return nil
		}
	}
	l.rows = append(l.rows, store.Lead{Phone: phone, Status: store.StatusNew})
	return nil
}

func (l *sheetLeads) ListLeads(context.Context) ([]store.Lead, error) { return nil, nil }

func (l *sheetLeads) rowsFor(phone string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.rows {
		if r.Phone == phone {
			n++
		}
	}
	return n
}

type staticInventory []inventory.Vehicle

func (s staticInventory) Vehicles() []inventory.Vehicle { return s }

type harness struct {
	o         *Orchestrator
	sessions  *sessions.Manager
	provider  *fakeProvider
	transport *fakeTransport
	leads     *fakeLeads
	disp      *syncDispatcher
	slept     []time.Duration
	started   time.Time
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		sessions:  sessions.NewManager(nil),
		provider:  &fakeProvider{},
		transport: &fakeTransport{name: "Ravi Kumar"},
		leads:     &fakeLeads{},
		disp:      &syncDispatcher{},
		started:   time.Now().Add(-time.Minute),
	}
	cfg := Config{
		Persona:      DefaultPersona("9th Gear", "Bangalore"),
		Assistant:    "Nazim",
		HistoryLimit: 15,
		StallMessage: "Just a moment, let me check that for you!",
		Composing:    true,
		StartedAt:    h.started,
		Delay: DelayPolicy{
			ShortChars: 50, MediumChars: 150,
			Short:  [2]time.Duration{2 * time.Second, 4 * time.Second},
			Medium: [2]time.Duration{4 * time.Second, 7 * time.Second},
			Long:   [2]time.Duration{6 * time.Second, 10 * time.Second},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.o = New(cfg, Deps{
		Sessions:   h.sessions,
		Dedup:      dedup.New(500, nil),
		Dispatcher: h.disp,
		Provider:   h.provider,
		Extractor:  extract.New(nil),
		Inventory:  staticInventory{{Model: "BMW X1 sDrive20d", Year: "2021", Price: "₹ 32,00,000", Details: "Diesel", URL: "https://example.com/x1"}},
		Leads:      h.leads,
		Transport:  h.transport,
	})
	h.o.sleep = func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	h.o.randN = func(int64) int64 { return 0 }
	return h
}

const customer = "919845012345@s.whatsapp.net"

func inbound(id, text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "whatsapp",
		ID:        id,
		ChatID:    customer,
		SenderID:  customer,
		Phone:     "919845012345",
		PeerKind:  bus.PeerDirect,
		Timestamp: time.Now(),
		Content:   text,
		PushName:  "Ravi",
	}
}

func TestDuplicateMessageRepliesOnce(t *testing.T) {
	h := newHarness(t, nil)
	msg := inbound("abc123", "Hi")

	h.o.HandleInbound(context.Background(), msg)
	h.o.HandleInbound(context.Background(), msg)

	if len(h.transport.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(h.transport.sent))
	}
	if len(h.leads.created) != 1 {
		t.Errorf("leads created = %d, want 1", len(h.leads.created))
	}
	if h.disp.calls != 1 {
		t.Errorf("backend calls = %d, want 1", h.disp.calls)
	}
}

func TestOldMessageIgnored(t *testing.T) {
	h := newHarness(t, nil)
	msg := inbound("old", "Hi")
	msg.Timestamp = h.started.Add(-time.Second)

	h.o.HandleInbound(context.Background(), msg)

	if h.sessions.Count() != 0 {
		t.Errorf("session created for pre-startup message")
	}
	if len(h.transport.sent) != 0 || h.disp.calls != 0 {
		t.Errorf("pre-startup message was processed")
	}
}

func TestOriginFilter(t *testing.T) {
	h := newHarness(t, nil)
	group := inbound("g1", "hello all")
	group.PeerKind = bus.PeerGroup
	status := inbound("s1", "new status")
	status.PeerKind = bus.PeerBroadcast

	h.o.HandleInbound(context.Background(), group)
	h.o.HandleInbound(context.Background(), status)

	if h.sessions.Count() != 0 || len(h.transport.sent) != 0 {
		t.Errorf("group/status messages must be ignored")
	}
}

func TestAttributesLoggedOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.o.HandleInbound(ctx, inbound("m1", "Looking for a BMW X1 in HSR Layout"))
	h.o.HandleInbound(ctx, inbound("m2", "Looking for a BMW X1 in HSR Layout"))

	if len(h.leads.created) != 1 {
		t.Fatalf("leads created = %d, want 1", len(h.leads.created))
	}
	lead := h.leads.created[0]
	if lead.Name != "Ravi Kumar" || lead.Phone != "919845012345" || lead.Status != store.StatusNew {
		t.Errorf("lead = %+v", lead)
	}
	if n := h.leads.count(store.LeadRequirement); n != 1 {
		t.Errorf("requirement updates = %d, want 1", n)
	}
	if n := h.leads.count(store.LeadLocation); n != 1 {
		t.Errorf("location updates = %d, want 1", n)
	}

	sess, _ := h.sessions.Get(customer)
	if !sess.LeadLogged || !sess.ProductLogged || !sess.LocationLogged {
		t.Errorf("logged flags = lead:%v product:%v location:%v", sess.LeadLogged, sess.ProductLogged, sess.LocationLogged)
	}
	if sess.ProductInterest != "Looking for a BMW X1 in HSR Layout" || sess.Location != "Bangalore - Hsr Layout" {
		t.Errorf("captured = %q / %q", sess.ProductInterest, sess.Location)
	}
}

func TestLeadStoreFailureRetriedNextMessage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.leads.createErr = errors.New("sheets down")
	h.leads.updateErr = errors.New("sheets down")

	h.o.HandleInbound(ctx, inbound("m1", "Need an Audi Q5"))
	if len(h.transport.sent) != 1 {
		t.Fatalf("lead store failure must not block the reply")
	}
	sess, _ := h.sessions.Get(customer)
	if sess.LeadLogged || sess.ProductLogged {
		t.Fatalf("flags set despite failure: %+v", sess)
	}

	h.leads.createErr = nil
	h.leads.updateErr = nil
	h.o.HandleInbound(ctx, inbound("m2", "Need an Audi Q5"))
	if len(h.leads.created) != 1 || h.leads.count(store.LeadRequirement) != 1 {
		t.Errorf("retry: created=%d requirement=%d", len(h.leads.created), h.leads.count(store.LeadRequirement))
	}
}

func TestHandoffPausesReplies(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HandoffDuration = 80 * time.Millisecond })
	ctx := context.Background()

	op := inbound("op1", "Hi Ravi, this is Arjun from the showroom")
	op.FromSelf = true
	op.Timestamp = time.Time{}
	h.o.HandleInbound(ctx, op)

	if !h.sessions.IsHandedOff(customer) {
		t.Fatal("operator message must start a handoff")
	}

	h.o.HandleInbound(ctx, inbound("c1", "Great, when can I visit?"))
	if len(h.transport.sent) != 0 || h.disp.calls != 0 {
		t.Fatalf("bot replied during handoff")
	}
	sess, _ := h.sessions.Get(customer)
	if len(sess.History) != 2 {
		t.Errorf("history during handoff = %d turns, want 2", len(sess.History))
	}

	time.Sleep(120 * time.Millisecond)
	h.o.HandleInbound(ctx, inbound("c2", "Hello?"))
	if len(h.transport.sent) != 1 {
		t.Errorf("bot did not resume after the handoff window")
	}
}

func TestOldOperatorMessageDoesNotPause(t *testing.T) {
	h := newHarness(t, nil)
	op := inbound("op-old", "Hi")
	op.FromSelf = true
	op.Timestamp = time.Now().Add(-31 * time.Minute)

	h.o.HandleInbound(context.Background(), op)

	if h.sessions.IsHandedOff(customer) {
		t.Error("operator message older than the window must not pause the chat")
	}
}

func TestOwnReplyEchoIsNotOperator(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.o.HandleInbound(ctx, inbound("m1", "Hi"))

	echo := inbound("echo1", h.transport.sent[0].Content)
	echo.FromSelf = true
	h.o.HandleInbound(ctx, echo)

	if h.sessions.IsHandedOff(customer) {
		t.Error("echo of the bot's own reply started a handoff")
	}
}

func TestStallMessageOnBackendFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.reply = func(providers.GenerateRequest) (string, error) {
		return "", &providers.HTTPError{Status: 429, Body: "quota"}
	}

	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))

	if len(h.transport.sent) != 1 || h.transport.sent[0].Content != "Just a moment, let me check that for you!" {
		t.Errorf("sent = %+v", h.transport.sent)
	}
}

func TestEmptyStallMessageStaysSilent(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.StallMessage = "" })
	h.provider.reply = func(providers.GenerateRequest) (string, error) { return "", errors.New("boom") }

	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))

	if len(h.transport.sent) != 0 {
		t.Errorf("sent = %+v, want nothing", h.transport.sent)
	}
}

func TestPanicIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.reply = func(providers.GenerateRequest) (string, error) { panic("bad provider") }

	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))
	h.provider.reply = nil
	h.o.HandleInbound(context.Background(), inbound("m2", "Hi again"))

	if len(h.transport.sent) != 1 {
		t.Errorf("processing did not continue after a panic")
	}
}

func TestPromptAndHistoryAcrossTurns(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.o.HandleInbound(ctx, inbound("m1", "Hi"))
	h.o.HandleInbound(ctx, inbound("m2", "Bangalore"))

	if len(h.provider.reqs) != 2 {
		t.Fatalf("requests = %d", len(h.provider.reqs))
	}
	first, second := h.provider.reqs[0], h.provider.reqs[1]

	if !strings.Contains(first.System, "This IS the first message") {
		t.Errorf("first request lacks first-message directive")
	}
	if !strings.Contains(first.System, "- BMW X1 sDrive20d (2021): ₹ 32,00,000 | Diesel | More info: https://example.com/x1") {
		t.Errorf("inventory line missing from prompt:\n%s", first.System)
	}
	if len(first.History) != 0 || first.Message != "Hi" {
		t.Errorf("first request history=%v message=%q", first.History, first.Message)
	}

	if !strings.Contains(second.System, "NOT the first message") {
		t.Errorf("second request lacks continuing directive")
	}
	if len(second.History) != 2 || second.History[0].Role != providers.RoleUser || second.History[1].Role != providers.RoleAssistant {
		t.Errorf("second history = %+v", second.History)
	}
	if second.Message != "Bangalore" {
		t.Errorf("live message = %q", second.Message)
	}

	sess, _ := h.sessions.Get(customer)
	if sess.Step != store.StepActive {
		t.Errorf("step = %d, want %d", sess.Step, store.StepActive)
	}
	if len(sess.History) != 4 || sess.History[3].Speaker != store.SpeakerAssistant {
		t.Errorf("history = %+v", sess.History)
	}
}

func TestHistoryLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.HistoryLimit = 3 })
	ctx := context.Background()
	for i, text := range []string{"one", "two", "three"} {
		h.o.HandleInbound(ctx, inbound(string(rune('a'+i)), text))
	}
	sess, _ := h.sessions.Get(customer)
	if len(sess.History) != 3 {
		t.Errorf("history = %d turns, want 3", len(sess.History))
	}
	last := h.provider.reqs[len(h.provider.reqs)-1]
	if last.Message != "three" {
		t.Errorf("live message = %q, want newest customer turn", last.Message)
	}
}

func TestComposingThenDelayThenSend(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.reply = func(providers.GenerateRequest) (string, error) { return "Sure!", nil }

	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))

	if got := strings.Join(h.transport.events, ","); got != "composing,send" {
		t.Errorf("transport events = %s", got)
	}
	if len(h.slept) != 1 || h.slept[0] != 2*time.Second {
		t.Errorf("slept = %v, want [2s]", h.slept)
	}
}

func TestNoLeadStore(t *testing.T) {
	h := newHarness(t, nil)
	h.o.deps.Leads = nil
	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))
	if len(h.transport.sent) != 1 {
		t.Errorf("reply must not depend on a lead store")
	}
}

func operatorMessage(id, text string) bus.InboundMessage {
	msg := inbound(id, text)
	msg.FromSelf = true
	return msg
}

func TestOperatorTakeoverWhileLoggingLead(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.leads.onCreate = func(context.Context) error {
		h.o.HandleInbound(ctx, operatorMessage("op1", "Hi Ravi, Arjun here, I'll help you"))
		return nil
	}

	h.o.HandleInbound(ctx, inbound("m1", "Is the X1 still available?"))

	if !h.sessions.IsHandedOff(customer) {
		t.Fatal("operator message must start a handoff")
	}
	if len(h.transport.sent) != 0 {
		t.Errorf("sent = %+v, want nothing after takeover", h.transport.sent)
	}
	if h.disp.calls != 0 {
		t.Errorf("backend calls = %d, want 0", h.disp.calls)
	}
}

func TestOperatorTakeoverDuringGeneration(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.provider.reply = func(providers.GenerateRequest) (string, error) {
		h.o.HandleInbound(ctx, operatorMessage("op1", "Arjun here, taking this one"))
		return "The X1 is available, want to book a test drive?", nil
	}

	h.o.HandleInbound(ctx, inbound("m1", "Is the X1 still available?"))

	if len(h.transport.sent) != 0 {
		t.Errorf("sent = %+v, want nothing after takeover", h.transport.sent)
	}
	sess, _ := h.sessions.Get(customer)
	if sess.Step != store.StepIdle {
		t.Errorf("step = %d, want %d", sess.Step, store.StepIdle)
	}
}

func TestFailedCreateDoesNotDuplicateRows(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sheet := &sheetLeads{failFirst: 1}
	h.o.deps.Leads = sheet

	h.o.HandleInbound(ctx, inbound("m1", "Looking for a BMW X1 in HSR Layout"))
	h.o.HandleInbound(ctx, inbound("m2", "Need a BMW X1, what's the price?"))

	if n := sheet.rowsFor("919845012345"); n != 1 {
		t.Fatalf("rows for phone = %d, want 1", n)
	}
	if sheet.rows[0].Name != "Ravi Kumar" {
		t.Errorf("row = %+v, want the created lead", sheet.rows[0])
	}
	sess, _ := h.sessions.Get(customer)
	if !sess.LeadLogged || !sess.ProductLogged {
		t.Errorf("flags = lead:%v product:%v", sess.LeadLogged, sess.ProductLogged)
	}
}

func TestHungLeadStoreDoesNotBlockReply(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.LeadTimeout = 20 * time.Millisecond })
	h.leads.onCreate = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("reply took %s behind a hung lead store", elapsed)
	}
	if len(h.transport.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(h.transport.sent))
	}
}

func TestFailedSendKeepsStepIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.transport.sendErr = errors.New("not connected")

	h.o.HandleInbound(context.Background(), inbound("m1", "Hi"))

	sess, _ := h.sessions.Get(customer)
	if sess.Step != store.StepIdle {
		t.Errorf("step = %d, want %d after a failed send", sess.Step, store.StepIdle)
	}
	if sess.HasAssistantTurn() {
		t.Error("unsent reply recorded in history")
	}
}

// Package leads runs the proactive side of lead handling: timed follow-ups
// for silent leads and alerts when a matching vehicle is listed.
package leads

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/inventory"
	"github.com/nextlevelbuilder/showroombot/internal/retry"
	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// SendFunc delivers a text to a phone number.
type SendFunc func(ctx context.Context, phone, text string) error

// Config tunes the engine.
type Config struct {
	FirstAfter   time.Duration // silence before follow-up #1 (default 3 days)
	SecondAfter  time.Duration // silence before follow-up #2 (default 6 days)
	AlertSpacing time.Duration // pause after each alert sent
	Messages     Messages
}

// Report summarizes one follow-up sweep.
type Report struct {
	Sent1   int `json:"sent1"`
	Sent2   int `json:"sent2"`
	Stopped int `json:"stopped"`
	Failed  int `json:"failed"`
}

// Engine drives follow-ups and car alerts off the lead store.
type Engine struct {
	leads store.LeadStore
	send  SendFunc
	cfg   Config

	// Serializes sweeps so a slow run never overlaps the next trigger.
	mu sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(leads store.LeadStore, send SendFunc, cfg Config) *Engine {
	if cfg.FirstAfter <= 0 {
		cfg.FirstAfter = 3 * 24 * time.Hour
	}
	if cfg.SecondAfter <= 0 {
		cfg.SecondAfter = 6 * 24 * time.Hour
	}
	return &Engine{
		leads: leads,
		send:  send,
		cfg:   cfg,
		now:   time.Now,
		sleep: retry.Sleep,
	}
}

// RunFollowUps sends due follow-ups. Count and status are written only after
// a successful send, so a failed send is retried on the next sweep.
func (e *Engine) RunFollowUps(ctx context.Context) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rep Report
	all, err := e.leads.ListLeads(ctx)
	if err != nil {
		return rep, err
	}
	now := e.now()

	for _, l := range all {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if l.Phone == "" || l.LastActive.IsZero() || store.IsClosedStatus(l.Status) {
			continue
		}
		silent := now.Sub(l.LastActive)

		switch {
		case l.FollowUpCount == 0 && silent >= e.cfg.FirstAfter:
			if e.sendFollowUp(ctx, l, 1, e.cfg.Messages.FollowUp1(l.Name), store.StatusFollowUp1) {
				rep.Sent1++
			} else {
				rep.Failed++
			}
		case l.FollowUpCount == 1 && silent >= e.cfg.SecondAfter:
			if e.sendFollowUp(ctx, l, 2, e.cfg.Messages.FollowUp2(l.Name), store.StatusFollowUp2) {
				rep.Sent2++
			} else {
				rep.Failed++
			}
		case l.FollowUpCount >= 2 && silent >= e.cfg.SecondAfter:
			if err := e.leads.UpdateField(ctx, l.Phone, store.LeadStatus, store.StatusFollowUpStopped); err != nil {
				slog.Warn("follow-up stop failed", "phone", l.Phone, "error", err)
				rep.Failed++
				continue
			}
			slog.Info("follow-ups stopped, no response after two attempts", "phone", l.Phone, "name", l.Name)
			rep.Stopped++
		}
	}

	slog.Info("follow-up sweep done", "sent1", rep.Sent1, "sent2", rep.Sent2, "stopped", rep.Stopped, "failed", rep.Failed)
	return rep, nil
}

func (e *Engine) sendFollowUp(ctx context.Context, l store.Lead, count int, text, status string) bool {
	if err := e.send(ctx, l.Phone, text); err != nil {
		slog.Warn("follow-up send failed", "phone", l.Phone, "number", count, "error", err)
		return false
	}
	if err := e.leads.UpdateField(ctx, l.Phone, store.LeadFollowUpCount, strconv.Itoa(count)); err != nil {
		slog.Warn("follow-up count update failed", "phone", l.Phone, "error", err)
	}
	if err := e.leads.UpdateField(ctx, l.Phone, store.LeadStatus, status); err != nil {
		slog.Warn("follow-up status update failed", "phone", l.Phone, "error", err)
	}
	slog.Info("follow-up sent", "phone", l.Phone, "name", l.Name, "number", count)
	return true
}

// OnInventoryUpdate alerts leads about listings that were not in prev.
// The first load (prev == nil) sends nothing. Matches inventory.UpdateFunc.
func (e *Engine) OnInventoryUpdate(ctx context.Context, prev, next []inventory.Vehicle) {
	if prev == nil {
		return
	}
	fresh := inventory.NewListings(prev, next)
	if len(fresh) == 0 {
		return
	}
	if _, err := e.CarAlerts(ctx, fresh); err != nil {
		slog.Warn("car alerts failed", "error", err)
	}
}

// CarAlerts sends each matching open lead one alert per new vehicle model
// and records the model in the lead's alert log.
func (e *Engine) CarAlerts(ctx context.Context, fresh []inventory.Vehicle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(fresh) == 0 {
		return 0, nil
	}
	all, err := e.leads.ListLeads(ctx)
	if err != nil {
		return 0, err
	}

	var open []*store.Lead
	for i := range all {
		l := &all[i]
		if l.Phone != "" && l.Requirement != "" && !store.IsClosedStatus(l.Status) {
			open = append(open, l)
		}
	}
	slog.Info("car alert check", "new_vehicles", len(fresh), "open_leads", len(open))

	sent := 0
	for _, v := range fresh {
		for _, l := range open {
			if alreadyAlerted(l.AlertedProducts, v.Model) || !RequirementMatches(l.Requirement, v.Model) {
				continue
			}
			if err := e.send(ctx, l.Phone, e.cfg.Messages.CarAlert(l.Name, v)); err != nil {
				slog.Warn("car alert send failed", "phone", l.Phone, "model", v.Model, "error", err)
				continue
			}
			l.AlertedProducts = appendAlertLog(l.AlertedProducts, v.Model)
			if err := e.leads.UpdateField(ctx, l.Phone, store.LeadAlertedProducts, l.AlertedProducts); err != nil {
				slog.Warn("car alert log update failed", "phone", l.Phone, "error", err)
			}
			slog.Info("car alert sent", "phone", l.Phone, "name", l.Name, "model", v.Model)
			sent++
			if err := e.sleep(ctx, e.cfg.AlertSpacing); err != nil {
				return sent, err
			}
		}
	}
	return sent, nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/showroombot/internal/bus"
	"github.com/nextlevelbuilder/showroombot/internal/channels"
	"github.com/nextlevelbuilder/showroombot/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/dispatch"
	"github.com/nextlevelbuilder/showroombot/internal/extract"
	"github.com/nextlevelbuilder/showroombot/internal/inventory"
	"github.com/nextlevelbuilder/showroombot/internal/leads"
	"github.com/nextlevelbuilder/showroombot/internal/providers"
	"github.com/nextlevelbuilder/showroombot/internal/retry"
	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// newProvider builds the generative backend named in cfg.Provider.
func newProvider(cfg *config.Config) (providers.Provider, error) {
	pc := cfg.Provider
	if pc.APIKey == "" {
		return nil, fmt.Errorf("no provider API key (set SHOWROOM_GEMINI_API_KEY or GEMINI_API_KEY)")
	}
	opts := providers.Options{
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
		Timeout:     time.Duration(pc.TimeoutSeconds) * time.Second,
	}
	switch pc.Name {
	case "", "gemini":
		if pc.APIBase != "" {
			return providers.NewOpenAIProvider("gemini", pc.APIKey, pc.APIBase, pc.Model, opts), nil
		}
		return providers.NewGeminiProvider(pc.APIKey, pc.Model, opts), nil
	case "openai":
		return providers.NewOpenAIProvider("openai", pc.APIKey, pc.APIBase, pc.Model, opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Name)
	}
}

func newDispatcher(cfg *config.Config) *dispatch.Dispatcher {
	dc := cfg.Dispatcher
	return dispatch.New(dispatch.Config{
		MinInterval: dc.MinInterval(),
		QueueSize:   dc.QueueSize,
		Retry: retry.Policy{
			Delays: dc.RetryDelays(),
			OnRetry: func(attempt int, err error, wait time.Duration) {
				slog.Warn("backend call failed, retrying", "attempt", attempt, "wait", wait, "error", err)
			},
		},
		Classify: providers.Classifier(time.Duration(dc.OverloadDelayMs) * time.Millisecond),
	})
}

// newExtractor loads the keyword tables, falling back to the built-in ones.
func newExtractor(cfg *config.Config) *extract.Extractor {
	path := cfg.Extract.TablesPath
	if path == "" {
		return extract.New(nil)
	}
	tables, err := extract.LoadTables(path)
	if err != nil {
		slog.Warn("extract tables not loaded, using built-in tables", "path", path, "error", err)
		return extract.New(nil)
	}
	return extract.New(tables)
}

func newInventorySource(cfg *config.Config) (inventory.Source, error) {
	ic := cfg.Inventory
	timeout := time.Duration(ic.TimeoutSeconds) * time.Second
	switch ic.Mode {
	case "", "http":
		return inventory.NewHTTPSource(ic.URL, ic.BaseURL, ic.ListingPath, timeout), nil
	case "browser":
		return inventory.NewBrowserSource(ic.URL, ic.BaseURL, ic.ListingPath, timeout), nil
	default:
		return nil, fmt.Errorf("unknown inventory mode %q", ic.Mode)
	}
}

func newInventoryCache(cfg *config.Config) (*inventory.Cache, error) {
	src, err := newInventorySource(cfg)
	if err != nil {
		return nil, err
	}
	return inventory.NewCache(src, retry.Policy{Delays: cfg.Inventory.RetryDelays()}), nil
}

// phoneSender adapts a transport to leads.SendFunc.
func phoneSender(ch channels.Channel) leads.SendFunc {
	return func(ctx context.Context, phone, text string) error {
		return ch.Send(ctx, bus.OutboundMessage{
			Channel: ch.Name(),
			ChatID:  whatsapp.ChatIDForPhone(phone),
			Content: text,
		})
	}
}

func newLeadsEngine(cfg *config.Config, ls store.LeadStore, send leads.SendFunc, ex *extract.Extractor) *leads.Engine {
	fc := cfg.FollowUp
	return leads.NewEngine(ls, send, leads.Config{
		FirstAfter:   time.Duration(fc.FirstAfterDays) * 24 * time.Hour,
		SecondAfter:  time.Duration(fc.SecondAfterDays) * 24 * time.Hour,
		AlertSpacing: time.Duration(fc.AlertSpacingMs) * time.Millisecond,
		Messages: leads.Messages{
			Business: cfg.Business.Name,
			City:     ex.Tables().LocalRegion,
		},
	})
}

// waitConnected blocks until ch reports running or the timeout passes.
func waitConnected(ctx context.Context, ch channels.Channel, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for !ch.IsRunning() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("whatsapp not connected after %s (link the device with \"showroombot serve\" first)", timeout)
		case <-tick.C:
		}
	}
	return nil
}

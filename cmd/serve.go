package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/showroombot/internal/agent"
	"github.com/nextlevelbuilder/showroombot/internal/channels"
	"github.com/nextlevelbuilder/showroombot/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/dedup"
	"github.com/nextlevelbuilder/showroombot/internal/dispatch"
	"github.com/nextlevelbuilder/showroombot/internal/extract"
	httpapi "github.com/nextlevelbuilder/showroombot/internal/http"
	"github.com/nextlevelbuilder/showroombot/internal/inventory"
	"github.com/nextlevelbuilder/showroombot/internal/pairing"
	"github.com/nextlevelbuilder/showroombot/internal/scheduler"
	"github.com/nextlevelbuilder/showroombot/internal/sessions"
	"github.com/nextlevelbuilder/showroombot/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	waLevel := setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if !cfg.HasProvider() {
		fmt.Println("No backend API key found.")
		fmt.Println()
		fmt.Println("  Run the setup wizard:  showroombot onboard")
		fmt.Println("  Or set:                SHOWROOM_GEMINI_API_KEY=<key>")
		fmt.Println()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, waLevel); err != nil {
		slog.Error("showroombot stopped", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("showroombot stopped")
}

func serve(ctx context.Context, cfg *config.Config, waLevel string) error {
	startedAt := time.Now()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// Stores
	stores, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	defer stores.Close()

	sess := sessions.NewManager(stores.Sessions)
	if err := sess.Load(ctx); err != nil {
		slog.Warn("sessions not restored, starting empty", "error", err)
	}
	defer sess.Close()

	seen := dedup.New(cfg.Dedup.Capacity, stores.Dedup)
	if err := seen.Load(ctx); err != nil {
		slog.Warn("dedup window not restored, starting empty", "error", err)
	}

	// Backend and collaborators
	prov, err := newProvider(cfg)
	if err != nil {
		return err
	}
	disp := newDispatcher(cfg)
	ex := newExtractor(cfg)

	cache, err := newInventoryCache(cfg)
	if err != nil {
		return err
	}

	ps := pairing.NewState()
	transport, err := whatsapp.New(cfg.WhatsApp, ps, waLevel)
	if err != nil {
		return err
	}

	persona := cfg.Business.Persona
	if persona == "" {
		persona = agent.DefaultPersona(cfg.Business.Name, ex.Tables().LocalRegion)
	}
	orch := agent.New(agent.Config{
		Persona:         persona,
		Assistant:       cfg.Business.Assistant,
		HistoryLimit:    cfg.Sessions.HistoryLimit,
		HandoffDuration: cfg.Sessions.HandoffDuration(),
		StallMessage:    cfg.Reply.StallMessage,
		Delay:           agent.DelayPolicyFromConfig(cfg.Reply),
		Composing:       cfg.Reply.Composing,
		StartedAt:       startedAt,
		Location:        cfg.Business.Location(),
		LeadTimeout:     cfg.Leads.Timeout(),
	}, agent.Deps{
		Sessions:   sess,
		Dedup:      seen,
		Dispatcher: disp,
		Provider:   prov,
		Extractor:  ex,
		Inventory:  cache,
		Leads:      stores.Leads,
		Transport:  transport,
	})
	transport.OnMessage(orch.HandleInbound)

	// Scheduled jobs
	sched := scheduler.New(cfg.Business.Location())
	if err := sched.Add("inventory-refresh", cfg.Inventory.RefreshCron, func(ctx context.Context) error {
		_, err := cache.Refresh(ctx)
		return err
	}); err != nil {
		return err
	}
	if stores.Leads != nil {
		engine := newLeadsEngine(cfg, stores.Leads, phoneSender(transport), ex)
		if cfg.FollowUp.Enabled {
			if err := sched.Add("follow-ups", cfg.FollowUp.Cron, func(ctx context.Context) error {
				if !transport.IsRunning() {
					return errors.New("whatsapp not connected")
				}
				_, err := engine.RunFollowUps(ctx)
				return err
			}); err != nil {
				return err
			}
		}
		if cfg.FollowUp.CarAlerts {
			cache.OnUpdate(engine.OnInventoryUpdate)
		}
	}

	if n, err := cache.Refresh(ctx); err != nil {
		slog.Warn("initial inventory load failed, replies will say inventory is unavailable", "error", err)
	} else {
		slog.Info("inventory loaded", "count", n)
	}

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start whatsapp: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := transport.Stop(sctx); err != nil {
			slog.Warn("whatsapp stop failed", "error", err)
		}
	}()

	server := httpapi.NewServer(cfg.Business.Name, &serveStatus{transport: transport, cache: cache, disp: disp}, ps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.Run(gctx, cfg.Gateway.Host, cfg.Gateway.Port) })
	if cfg.Extract.Watch && cfg.Extract.TablesPath != "" {
		g.Go(func() error {
			if err := extract.Watch(gctx, ex, cfg.Extract.TablesPath); err != nil {
				slog.Warn("extract tables watcher stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-transport.Fatal():
			return err
		}
	})

	slog.Info("showroombot running",
		"version", Version,
		"business", cfg.Business.Name,
		"whatsapp_mode", cfg.WhatsApp.Mode,
		"leads", cfg.Leads.Backend,
		"sessions", sess.Count(),
	)
	return g.Wait()
}

// serveStatus feeds the ops server's health report.
type serveStatus struct {
	transport channels.Channel
	cache     *inventory.Cache
	disp      *dispatch.Dispatcher
}

func (s *serveStatus) TransportConnected() bool { return s.transport.IsRunning() }
func (s *serveStatus) InventoryCount() int      { return s.cache.Count() }
func (s *serveStatus) QueueDepth() int          { return s.disp.QueueDepth() }

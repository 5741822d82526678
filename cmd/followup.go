package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/showroombot/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/leads"
	"github.com/nextlevelbuilder/showroombot/internal/pairing"
)

func followUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Run lead follow-ups and car alerts outside the schedule",
	}
	cmd.AddCommand(followUpRunCmd())
	cmd.AddCommand(followUpAlertsCmd())
	return cmd
}

func followUpRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Send due follow-ups to silent leads now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLeadsEngine(func(ctx context.Context, e *leads.Engine, _ *config.Config) error {
				rep, err := e.RunFollowUps(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("follow-up #1: %d, follow-up #2: %d, stopped: %d, failed: %d\n",
					rep.Sent1, rep.Sent2, rep.Stopped, rep.Failed)
				return nil
			})
		},
	}
}

func followUpAlertsCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Alert matching leads about listed vehicles",
		Long:  "Fetches the listings and alerts each open lead whose requirement matches a vehicle it was not alerted about before. Requires --force, since serve already alerts on new listings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("alerts are normally sent when new listings appear; pass --force to alert on the whole current inventory")
			}
			return withLeadsEngine(func(ctx context.Context, e *leads.Engine, cfg *config.Config) error {
				cache, err := newInventoryCache(cfg)
				if err != nil {
					return err
				}
				if _, err := cache.Refresh(ctx); err != nil {
					return err
				}
				sent, err := e.CarAlerts(ctx, cache.Vehicles())
				if err != nil {
					return err
				}
				fmt.Printf("car alerts sent: %d\n", sent)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "treat every current listing as new")
	return cmd
}

// withLeadsEngine connects the transport and runs fn against a leads engine.
func withLeadsEngine(fn func(ctx context.Context, e *leads.Engine, cfg *config.Config) error) error {
	waLevel := setupLogging()
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ls, closeLeads, err := openLeadStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closeLeads != nil {
		defer closeLeads()
	}
	if ls == nil {
		return errors.New("no lead store configured")
	}

	transport, err := whatsapp.New(cfg.WhatsApp, pairing.NewState(), waLevel)
	if err != nil {
		return err
	}
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start whatsapp: %w", err)
	}
	defer transport.Stop(context.Background())
	if err := waitConnected(ctx, transport, time.Minute); err != nil {
		return err
	}

	return fn(ctx, newLeadsEngine(cfg, ls, phoneSender(transport), newExtractor(cfg)), cfg)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/store/pg"
	"github.com/nextlevelbuilder/showroombot/internal/upgrade"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("showroombot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	fmt.Printf("  Timezone: %s\n", cfg.Business.Location())

	// Backend
	fmt.Println()
	fmt.Println("  Backend:")
	checkProvider(cfg.Provider.Name, cfg.Provider.APIKey)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.Model)

	// Stores
	fmt.Println()
	fmt.Println("  Stores:")
	switch cfg.Sessions.Backend {
	case "sqlite":
		checkPath("Sessions:", cfg.Sessions.SQLitePath)
	default:
		checkPath("Sessions:", cfg.Sessions.Storage)
		checkPath("Dedup:", cfg.Dedup.Path)
	}
	checkLeads(cfg)

	// Inventory
	fmt.Println()
	fmt.Println("  Inventory:")
	checkInventory(cfg)

	// WhatsApp
	fmt.Println()
	fmt.Println("  WhatsApp:")
	fmt.Printf("    %-12s %s\n", "Mode:", cfg.WhatsApp.Mode)
	if cfg.WhatsApp.Mode == "bridge" {
		if cfg.WhatsApp.BridgeURL == "" {
			fmt.Printf("    %-12s (not configured)\n", "Bridge:")
		} else {
			fmt.Printf("    %-12s %s\n", "Bridge:", cfg.WhatsApp.BridgeURL)
		}
	} else if _, err := os.Stat(cfg.WhatsApp.StorePath); err != nil {
		fmt.Printf("    %-12s not linked yet (scan the QR on first serve)\n", "Device:")
	} else {
		fmt.Printf("    %-12s %s (OK)\n", "Device:", cfg.WhatsApp.StorePath)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	fmt.Printf("    %-12s %s\n", name+":", maskKey(apiKey))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func checkPath(label, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-12s %s (not created yet)\n", label, path)
		return
	}
	fmt.Printf("    %-12s %s (OK)\n", label, path)
}

func checkLeads(cfg *config.Config) {
	switch cfg.Leads.Backend {
	case "none":
		fmt.Printf("    %-12s disabled\n", "Leads:")
	case "postgres":
		db, err := pg.OpenDB(cfg.Leads.PostgresDSN)
		if err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Leads:", err)
			return
		}
		defer db.Close()
		s, err := upgrade.CheckSchema(db)
		switch {
		case err != nil:
			fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		case s.Dirty:
			fmt.Printf("    %-12s v%d (DIRTY, run: showroombot migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
		case s.Compatible:
			fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
		case s.CurrentVersion > s.RequiredVersion:
			fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
		default:
			fmt.Printf("    %-12s v%d (run: showroombot migrate up)\n", "Schema:", s.CurrentVersion)
		}
	default:
		if cfg.Leads.SpreadsheetID == "" {
			fmt.Printf("    %-12s sheets (no spreadsheet id, lead logging off)\n", "Leads:")
			return
		}
		creds := "default credentials"
		if cfg.Leads.Credentials != "" {
			creds = "service account"
		}
		fmt.Printf("    %-12s sheets %s (%s)\n", "Leads:", cfg.Leads.SpreadsheetID, creds)
	}
}

func checkInventory(cfg *config.Config) {
	fmt.Printf("    %-12s %s (%s)\n", "Source:", cfg.Inventory.URL, cfg.Inventory.Mode)
	src, err := newInventorySource(cfg)
	if err != nil {
		fmt.Printf("    %-12s %s\n", "Fetch:", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	vehicles, err := src.Fetch(ctx)
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Fetch:", err)
		return
	}
	fmt.Printf("    %-12s %d listings\n", "Fetch:", len(vehicles))
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Business: BusinessConfig{
			Name:      "9th Gear",
			Assistant: "Nazim",
			Website:   "https://www.9thgear.co.in/",
			Timezone:  "Asia/Kolkata",
		},
		Provider: ProviderConfig{
			Name:           "gemini",
			Model:          "gemini-2.5-flash",
			Temperature:    0.9,
			MaxTokens:      500,
			TimeoutSeconds: 60,
		},
		Dispatcher: DispatcherConfig{
			MinIntervalMs:   7000,
			QueueSize:       256,
			RetryDelaysMs:   []int{5000, 10000, 20000, 30000},
			OverloadDelayMs: 3000,
		},
		Reply: ReplyConfig{
			StallMessage: "Just a moment, let me check that for you!",
			ShortChars:   50,
			MediumChars:  150,
			ShortMs:      []int{2000, 4000},
			MediumMs:     []int{4000, 7000},
			LongMs:       []int{6000, 10000},
			Composing:    true,
		},
		Sessions: SessionsConfig{
			Backend:        "file",
			Storage:        "data/sessions",
			SQLitePath:     "data/showroom.db",
			HistoryLimit:   15,
			HandoffMinutes: 30,
		},
		Dedup: DedupConfig{
			Capacity: 500,
			Path:     "data/processed_ids.json",
		},
		Inventory: InventoryConfig{
			URL:            "https://www.9thgear.co.in/luxury-used-cars-bangalore",
			BaseURL:        "https://www.9thgear.co.in",
			ListingPath:    "/luxury-used-cars/",
			Mode:           "http",
			RefreshCron:    "@hourly",
			RetryDelaysMs:  []int{2000, 5000, 10000},
			TimeoutSeconds: 20,
		},
		Leads: LeadsConfig{
			Backend:        "sheets",
			SheetName:      "Sheet1",
			TimeoutSeconds: 10,
		},
		FollowUp: FollowUpConfig{
			Enabled:         true,
			Cron:            "0 9 * * *",
			FirstAfterDays:  3,
			SecondAfterDays: 6,
			CarAlerts:       true,
			AlertSpacingMs:  2000,
		},
		WhatsApp: WhatsAppConfig{
			Mode:      "native",
			StorePath: "data/whatsapp.db",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "showroombot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A .env file next to the config (or in the working directory) is loaded first.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set.
func loadDotEnv(cfgPath string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(cfgPath); dir != "." && dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. The unprefixed names are the
// ones hosting platforms commonly inject.
func (c *Config) applyEnvOverrides() {
	envStr := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	envInt := func(dst *int, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					*dst = n
				}
				return
			}
		}
	}

	envStr(&c.Provider.APIKey, "SHOWROOM_GEMINI_API_KEY", "GEMINI_API_KEY", "SHOWROOM_OPENAI_API_KEY")
	envStr(&c.Provider.Model, "SHOWROOM_MODEL")
	envStr(&c.Leads.SpreadsheetID, "SHOWROOM_SPREADSHEET_ID", "SPREADSHEET_ID")
	envStr(&c.Leads.Credentials, "SHOWROOM_GOOGLE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS")
	envStr(&c.Leads.PostgresDSN, "SHOWROOM_POSTGRES_DSN")
	envStr(&c.Leads.Backend, "SHOWROOM_LEADS_BACKEND")
	envStr(&c.Inventory.URL, "SHOWROOM_INVENTORY_URL")
	envStr(&c.Inventory.Mode, "SHOWROOM_INVENTORY_MODE")
	envStr(&c.WhatsApp.BridgeURL, "SHOWROOM_WHATSAPP_BRIDGE_URL")
	envStr(&c.Telemetry.Endpoint, "SHOWROOM_OTLP_ENDPOINT")

	envInt(&c.Dispatcher.MinIntervalMs, "SHOWROOM_MIN_INTERVAL_MS")
	envInt(&c.Dedup.Capacity, "SHOWROOM_DEDUP_CAPACITY")
	envInt(&c.Sessions.HandoffMinutes, "SHOWROOM_HANDOFF_MINUTES")
	envInt(&c.Sessions.HistoryLimit, "SHOWROOM_HISTORY_LIMIT")
	envInt(&c.Leads.TimeoutSeconds, "SHOWROOM_LEADS_TIMEOUT_SECONDS")
	envInt(&c.Gateway.Port, "SHOWROOM_PORT", "PORT")

	if v := os.Getenv("SHOWROOM_ALLOW_FROM"); v != "" {
		c.WhatsApp.AllowFrom = splitList(v)
	}
	envStr(&c.WhatsApp.Mode, "SHOWROOM_WHATSAPP_MODE")

	if c.Telemetry.Endpoint != "" {
		c.Telemetry.Enabled = true
	}
}

// HasProvider reports whether a backend API key is configured.
func (c *Config) HasProvider() bool {
	return c.Provider.APIKey != ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

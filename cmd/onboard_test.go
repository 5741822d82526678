package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"

	"github.com/nextlevelbuilder/showroombot/internal/config"
)

func TestBuildOnboardConfig(t *testing.T) {
	a := defaultAnswers()
	a.Business = " Prime Motors "
	a.APIKey = "key-123"
	a.LeadsBackend = "sheets"
	a.SpreadsheetID = "sheet-1"
	a.Credentials = "/etc/sa.json"

	cfg, secrets := buildOnboardConfig(a)
	if cfg.Business.Name != "Prime Motors" {
		t.Errorf("Business.Name = %q, want %q", cfg.Business.Name, "Prime Motors")
	}
	if cfg.Leads.SpreadsheetID != "sheet-1" {
		t.Errorf("SpreadsheetID = %q", cfg.Leads.SpreadsheetID)
	}
	if cfg.Provider.APIKey != "" || cfg.Leads.Credentials != "" {
		t.Error("secrets must not be stored in the config")
	}
	if secrets["SHOWROOM_GEMINI_API_KEY"] != "key-123" {
		t.Errorf("api key secret = %q", secrets["SHOWROOM_GEMINI_API_KEY"])
	}
	if secrets["SHOWROOM_GOOGLE_CREDENTIALS"] != "/etc/sa.json" {
		t.Errorf("credentials secret = %q", secrets["SHOWROOM_GOOGLE_CREDENTIALS"])
	}
}

func TestBuildOnboardConfig_Postgres(t *testing.T) {
	a := defaultAnswers()
	a.Provider = "openai"
	a.APIKey = "sk-1"
	a.LeadsBackend = "postgres"
	a.PostgresDSN = "postgres://u:p@db/showroom"
	a.SpreadsheetID = "ignored"

	cfg, secrets := buildOnboardConfig(a)
	if cfg.Leads.SpreadsheetID != "" {
		t.Errorf("SpreadsheetID = %q, want empty for postgres", cfg.Leads.SpreadsheetID)
	}
	if secrets["SHOWROOM_OPENAI_API_KEY"] != "sk-1" {
		t.Errorf("openai key secret = %q", secrets["SHOWROOM_OPENAI_API_KEY"])
	}
	if secrets["SHOWROOM_POSTGRES_DSN"] == "" {
		t.Error("missing postgres dsn secret")
	}
}

func TestSaveOnboardRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("KEEP_ME=1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	a := defaultAnswers()
	a.Business = "Prime Motors"
	a.APIKey = "key-123"
	a.LeadsBackend = "none"
	cfg, secrets := buildOnboardConfig(a)
	if err := saveOnboard(cfgPath, envPath, cfg, secrets); err != nil {
		t.Fatalf("saveOnboard() error = %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "key-123") {
		t.Error("config file contains the API key")
	}

	env, err := godotenv.Read(envPath)
	if err != nil {
		t.Fatal(err)
	}
	if env["KEEP_ME"] != "1" || env["SHOWROOM_GEMINI_API_KEY"] != "key-123" {
		t.Errorf("env = %v", env)
	}

	for _, k := range []string{"SHOWROOM_GEMINI_API_KEY", "GEMINI_API_KEY", "SHOWROOM_OPENAI_API_KEY", "SHOWROOM_LEADS_BACKEND"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	loaded, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if loaded.Business.Name != "Prime Motors" || loaded.Leads.Backend != "none" {
		t.Errorf("loaded = %+v", loaded.Business)
	}
	if loaded.Provider.APIKey != "key-123" {
		t.Errorf("APIKey = %q, want it loaded from the .env next to the config", loaded.Provider.APIKey)
	}
}

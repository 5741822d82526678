package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dispatcher.MinInterval() != 7*time.Second {
		t.Errorf("min interval = %v, want 7s", cfg.Dispatcher.MinInterval())
	}
	if cfg.Dedup.Capacity != 500 {
		t.Errorf("dedup capacity = %d, want 500", cfg.Dedup.Capacity)
	}
	if cfg.Sessions.HandoffDuration() != 30*time.Minute {
		t.Errorf("handoff = %v, want 30m", cfg.Sessions.HandoffDuration())
	}
	if cfg.Leads.Timeout() != 10*time.Second {
		t.Errorf("lead timeout = %v, want 10s", cfg.Leads.Timeout())
	}
}

func TestLoad_JSON5AndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		// comments are allowed
		dispatcher: { min_interval_ms: 1500, retry_delays_ms: [10, 20] },
		sessions: { history_limit: 8 },
		whatsapp: { allow_from: [919900000000, "918800000000"] },
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "k-123")
	t.Setenv("SHOWROOM_HISTORY_LIMIT", "12")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatcher.MinIntervalMs != 1500 {
		t.Errorf("min interval = %d, want 1500", cfg.Dispatcher.MinIntervalMs)
	}
	if got := cfg.Dispatcher.RetryDelays(); len(got) != 2 || got[1] != 20*time.Millisecond {
		t.Errorf("retry delays = %v", got)
	}
	if cfg.Sessions.HistoryLimit != 12 {
		t.Errorf("env should win over file: history limit = %d", cfg.Sessions.HistoryLimit)
	}
	if cfg.Gateway.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Gateway.Port)
	}
	if !cfg.HasProvider() {
		t.Error("expected provider key from GEMINI_API_KEY")
	}
	if len(cfg.WhatsApp.AllowFrom) != 2 || cfg.WhatsApp.AllowFrom[0] != "919900000000" {
		t.Errorf("allow_from = %v", cfg.WhatsApp.AllowFrom)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLeadsTimeout_Fallback(t *testing.T) {
	if got := (LeadsConfig{}).Timeout(); got != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", got)
	}
	if got := (LeadsConfig{TimeoutSeconds: 3}).Timeout(); got != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", got)
	}
}

func TestBusinessLocation_Fallback(t *testing.T) {
	if loc := (BusinessConfig{Timezone: "Not/AZone"}).Location(); loc != time.UTC {
		t.Errorf("expected UTC fallback, got %v", loc)
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Phone numbers in allow lists are often written as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the showroom bot.
type Config struct {
	Business   BusinessConfig   `json:"business"`
	Provider   ProviderConfig   `json:"provider"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Reply      ReplyConfig      `json:"reply"`
	Sessions   SessionsConfig   `json:"sessions"`
	Dedup      DedupConfig      `json:"dedup"`
	Extract    ExtractConfig    `json:"extract"`
	Inventory  InventoryConfig  `json:"inventory"`
	Leads      LeadsConfig      `json:"leads"`
	FollowUp   FollowUpConfig   `json:"follow_up"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	Gateway    GatewayConfig    `json:"gateway"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
}

// BusinessConfig describes the showroom the assistant speaks for.
type BusinessConfig struct {
	Name      string `json:"name"`
	Assistant string `json:"assistant"` // persona name used in history logs
	Website   string `json:"website,omitempty"`
	Persona   string `json:"persona,omitempty"`  // system instruction; empty = built-in persona
	Timezone  string `json:"timezone,omitempty"` // IANA zone for lead timestamps and schedules
}

// Location resolves the configured timezone, falling back to UTC.
func (b BusinessConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProviderConfig configures the generative backend (OpenAI-compatible endpoint).
type ProviderConfig struct {
	Name           string  `json:"name"`               // "gemini" (default) or "openai"
	APIKey         string  `json:"-"`                  // from env only
	APIBase        string  `json:"api_base,omitempty"` // empty = provider default
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// DispatcherConfig tunes the single-flight backend queue.
type DispatcherConfig struct {
	MinIntervalMs   int   `json:"min_interval_ms"`
	QueueSize       int   `json:"queue_size"`
	RetryDelaysMs   []int `json:"retry_delays_ms"`
	OverloadDelayMs int   `json:"overload_delay_ms"` // fixed wait for "overloaded" responses
}

// MinInterval returns the minimum spacing between backend calls.
func (d DispatcherConfig) MinInterval() time.Duration {
	return time.Duration(d.MinIntervalMs) * time.Millisecond
}

// RetryDelays returns the staged backoff schedule.
func (d DispatcherConfig) RetryDelays() []time.Duration {
	return millis(d.RetryDelaysMs)
}

// ReplyConfig tunes how replies reach the customer.
type ReplyConfig struct {
	StallMessage string `json:"stall_message"` // sent when the backend gives up; empty = stay silent
	// Delay tiers by reply length: <ShortChars, <MediumChars, longer.
	ShortChars  int   `json:"short_chars"`
	MediumChars int   `json:"medium_chars"`
	ShortMs     []int `json:"short_ms"`  // [min, max]
	MediumMs    []int `json:"medium_ms"` // [min, max]
	LongMs      []int `json:"long_ms"`   // [min, max]
	Composing   bool  `json:"composing"` // show the typing indicator during the delay
}

// SessionsConfig configures the session store and handoff window.
type SessionsConfig struct {
	Backend        string `json:"backend"` // "file" (default) or "sqlite"
	Storage        string `json:"storage"` // directory for the file backend
	SQLitePath     string `json:"sqlite_path"`
	HistoryLimit   int    `json:"history_limit"`
	HandoffMinutes int    `json:"handoff_minutes"`
}

// HandoffDuration returns the human handoff window.
func (s SessionsConfig) HandoffDuration() time.Duration {
	return time.Duration(s.HandoffMinutes) * time.Minute
}

// DedupConfig configures the processed-message cache.
type DedupConfig struct {
	Capacity int    `json:"capacity"`
	Path     string `json:"path"` // JSON file (file backend); the sqlite backend reuses sessions.sqlite_path
}

// ExtractConfig points at the keyword and gazetteer tables.
type ExtractConfig struct {
	TablesPath string `json:"tables_path,omitempty"` // empty = built-in tables
	Watch      bool   `json:"watch"`                 // reload tables when the file changes
}

// InventoryConfig configures the listing source and refresh cadence.
type InventoryConfig struct {
	URL            string `json:"url"`
	BaseURL        string `json:"base_url"`     // prefix for relative detail links
	ListingPath    string `json:"listing_path"` // detail links must contain this segment
	Mode           string `json:"mode"`         // "http" (default) or "browser"
	RefreshCron    string `json:"refresh_cron"`
	RetryDelaysMs  []int  `json:"retry_delays_ms"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RetryDelays returns the fetch backoff schedule.
func (i InventoryConfig) RetryDelays() []time.Duration {
	return millis(i.RetryDelaysMs)
}

// LeadsConfig selects the lead store.
// Secrets (credentials, DSN) are read from env only.
type LeadsConfig struct {
	Backend       string `json:"backend"` // "sheets" (default), "postgres" or "none"
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name"`
	Credentials   string `json:"-"` // file path or inline JSON
	PostgresDSN   string `json:"-"`

	TimeoutSeconds int `json:"timeout_seconds"` // per lead-store call during a reply (default 10)
}

// Timeout bounds a single lead-store call.
func (l LeadsConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// FollowUpConfig configures the follow-up sweep and car alerts.
type FollowUpConfig struct {
	Enabled         bool   `json:"enabled"`
	Cron            string `json:"cron"`
	FirstAfterDays  int    `json:"first_after_days"`
	SecondAfterDays int    `json:"second_after_days"`
	CarAlerts       bool   `json:"car_alerts"`
	AlertSpacingMs  int    `json:"alert_spacing_ms"`
}

// WhatsAppConfig configures the messaging transport.
type WhatsAppConfig struct {
	Mode      string              `json:"mode"`       // "native" (default, whatsmeow) or "bridge"
	StorePath string              `json:"store_path"` // whatsmeow device database
	BridgeURL string              `json:"bridge_url"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

// GatewayConfig configures the operational HTTP surface.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"` // host:port of the OTLP collector
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

func millis(ms []int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

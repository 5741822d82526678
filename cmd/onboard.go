package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/providers"
)

// onboardAnswers collects everything the wizard asks for.
type onboardAnswers struct {
	Business      string
	Assistant     string
	Provider      string
	APIKey        string
	Model         string
	LeadsBackend  string
	SpreadsheetID string
	Credentials   string
	PostgresDSN   string
	WhatsAppMode  string
	BridgeURL     string
}

func defaultAnswers() onboardAnswers {
	def := config.Default()
	return onboardAnswers{
		Business:     def.Business.Name,
		Assistant:    def.Business.Assistant,
		Provider:     def.Provider.Name,
		Model:        def.Provider.Model,
		LeadsBackend: def.Leads.Backend,
		WhatsAppMode: def.WhatsApp.Mode,
	}
}

func onboardCmd() *cobra.Command {
	var skipVerify bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			a := defaultAnswers()
			if err := runOnboardForm(&a); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Setup cancelled.")
					return nil
				}
				return err
			}

			cfg, secrets := buildOnboardConfig(a)
			if !skipVerify {
				fmt.Print("Verifying backend API key...")
				if err := verifyProvider(cfg, a.APIKey); err != nil {
					fmt.Println(" FAILED")
					return err
				}
				fmt.Println(" OK")
			}

			envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
			if err := saveOnboard(cfgPath, envPath, cfg, secrets); err != nil {
				return err
			}
			fmt.Printf("Config saved to %s\n", cfgPath)
			fmt.Printf("Secrets saved to %s\n", envPath)
			fmt.Println()
			fmt.Println("Start the assistant with:  showroombot serve")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "do not test the API key against the backend")
	return cmd
}

func runOnboardForm(a *onboardAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Showroom name").Value(&a.Business),
			huh.NewInput().Title("Assistant name").Description("The persona customers talk to").Value(&a.Assistant),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Backend").Options(
				huh.NewOption("Gemini", "gemini"),
				huh.NewOption("OpenAI-compatible", "openai"),
			).Value(&a.Provider),
			huh.NewInput().Title("API key").EchoMode(huh.EchoModePassword).Value(&a.APIKey).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("an API key is required")
					}
					return nil
				}),
			huh.NewInput().Title("Model").Value(&a.Model),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Lead log").Options(
				huh.NewOption("Google Sheets", "sheets"),
				huh.NewOption("PostgreSQL", "postgres"),
				huh.NewOption("Off", "none"),
			).Value(&a.LeadsBackend),
		),
		huh.NewGroup(
			huh.NewInput().Title("Spreadsheet ID").Value(&a.SpreadsheetID),
			huh.NewInput().Title("Service account credentials").Description("File path or inline JSON").Value(&a.Credentials),
		).WithHideFunc(func() bool { return a.LeadsBackend != "sheets" }),
		huh.NewGroup(
			huh.NewInput().Title("Postgres DSN").EchoMode(huh.EchoModePassword).Value(&a.PostgresDSN),
		).WithHideFunc(func() bool { return a.LeadsBackend != "postgres" }),
		huh.NewGroup(
			huh.NewSelect[string]().Title("WhatsApp connection").Options(
				huh.NewOption("Linked device (scan a QR code)", "native"),
				huh.NewOption("External bridge", "bridge"),
			).Value(&a.WhatsAppMode),
		),
		huh.NewGroup(
			huh.NewInput().Title("Bridge URL").Placeholder("ws://localhost:3001").Value(&a.BridgeURL),
		).WithHideFunc(func() bool { return a.WhatsAppMode != "bridge" }),
	)
	return form.Run()
}

// buildOnboardConfig splits the answers into a config (no secrets) and the
// env vars that carry the secrets.
func buildOnboardConfig(a onboardAnswers) (*config.Config, map[string]string) {
	cfg := config.Default()
	cfg.Business.Name = strings.TrimSpace(a.Business)
	cfg.Business.Assistant = strings.TrimSpace(a.Assistant)
	cfg.Provider.Name = a.Provider
	if m := strings.TrimSpace(a.Model); m != "" {
		cfg.Provider.Model = m
	}
	cfg.Leads.Backend = a.LeadsBackend
	cfg.WhatsApp.Mode = a.WhatsAppMode
	if a.WhatsAppMode == "bridge" {
		cfg.WhatsApp.BridgeURL = strings.TrimSpace(a.BridgeURL)
	}

	secrets := map[string]string{}
	switch a.Provider {
	case "openai":
		secrets["SHOWROOM_OPENAI_API_KEY"] = strings.TrimSpace(a.APIKey)
	default:
		secrets["SHOWROOM_GEMINI_API_KEY"] = strings.TrimSpace(a.APIKey)
	}
	switch a.LeadsBackend {
	case "sheets":
		cfg.Leads.SpreadsheetID = strings.TrimSpace(a.SpreadsheetID)
		if c := strings.TrimSpace(a.Credentials); c != "" {
			secrets["SHOWROOM_GOOGLE_CREDENTIALS"] = c
		}
	case "postgres":
		if dsn := strings.TrimSpace(a.PostgresDSN); dsn != "" {
			secrets["SHOWROOM_POSTGRES_DSN"] = dsn
		}
	}
	return cfg, secrets
}

// saveOnboard writes the config as indented JSON and merges secrets into the
// env file, keeping any variables already there.
func saveOnboard(cfgPath, envPath string, cfg *config.Config, secrets map[string]string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(cfgPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	env := map[string]string{}
	if existing, err := godotenv.Read(envPath); err == nil {
		env = existing
	}
	for k, v := range secrets {
		env[k] = v
	}
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("write env: %w", err)
	}
	return os.Chmod(envPath, 0600)
}

// verifyProvider sends a one-word prompt. Only 401/403 fail; anything else
// (rate limits, network) is reported and the wizard continues.
func verifyProvider(cfg *config.Config, apiKey string) error {
	pc := *cfg
	pc.Provider.APIKey = apiKey
	pc.Provider.MaxTokens = 1
	prov, err := newProvider(&pc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err = prov.Generate(ctx, providers.GenerateRequest{Message: "hi"})
	if err == nil {
		return nil
	}
	var he *providers.HTTPError
	if errors.As(err, &he) && (he.Status == 401 || he.Status == 403) {
		return fmt.Errorf("%s returned %d, invalid API key", prov.Name(), he.Status)
	}
	fmt.Printf(" (warning: %v)", err)
	return nil
}

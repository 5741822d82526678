package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"

	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/store"
	"github.com/nextlevelbuilder/showroombot/internal/store/file"
	"github.com/nextlevelbuilder/showroombot/internal/store/pg"
	"github.com/nextlevelbuilder/showroombot/internal/store/sheets"
	"github.com/nextlevelbuilder/showroombot/internal/store/sqlite"
	"github.com/nextlevelbuilder/showroombot/internal/upgrade"
)

// openStores builds the session, dedup and lead backends selected in cfg.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	stores := &store.Stores{}
	var closers []func() error
	stores.Close = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	switch cfg.Sessions.Backend {
	case "", "file":
		ss, err := file.NewSessionStore(cfg.Sessions.Storage)
		if err != nil {
			return nil, err
		}
		ds, err := file.NewDedupStore(cfg.Dedup.Path)
		if err != nil {
			return nil, err
		}
		stores.Sessions, stores.Dedup = ss, ds
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Sessions.SQLitePath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, db.Close)
		stores.Sessions = sqlite.NewSessionStore(db)
		stores.Dedup = sqlite.NewDedupStore(db)
	default:
		return nil, fmt.Errorf("unknown sessions backend %q", cfg.Sessions.Backend)
	}

	leads, closeLeads, err := openLeadStore(ctx, cfg)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	if closeLeads != nil {
		closers = append(closers, closeLeads)
	}
	stores.Leads = leads
	return stores, nil
}

// openLeadStore returns a nil store when lead logging is off or unconfigured.
func openLeadStore(ctx context.Context, cfg *config.Config) (store.LeadStore, func() error, error) {
	loc := cfg.Business.Location()
	switch cfg.Leads.Backend {
	case "none":
		slog.Info("lead logging disabled")
		return nil, nil, nil
	case "", "sheets":
		if cfg.Leads.SpreadsheetID == "" {
			slog.Warn("no spreadsheet configured, lead logging disabled (set SHOWROOM_SPREADSHEET_ID)")
			return nil, nil, nil
		}
		ls, err := sheets.NewLeadStore(ctx, sheets.Config{
			SpreadsheetID: cfg.Leads.SpreadsheetID,
			SheetName:     cfg.Leads.SheetName,
			Credentials:   cfg.Leads.Credentials,
			Location:      loc,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("lead store: google sheets", "sheet", cfg.Leads.SheetName)
		return ls, nil, nil
	case "postgres":
		db, err := pg.OpenDB(cfg.Leads.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := ensureSchema(db, cfg.Leads.PostgresDSN); err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("lead store: postgres")
		return pg.NewLeadStore(db, loc), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown leads backend %q", cfg.Leads.Backend)
	}
}

// ensureSchema refuses to start on an incompatible lead schema unless
// SHOWROOM_AUTO_MIGRATE allows migrating it in place.
func ensureSchema(db *sql.DB, dsn string) error {
	s, err := upgrade.CheckSchema(db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if s.Compatible {
		return nil
	}
	if s.NeedsMigration && !s.Dirty && autoMigrateEnabled() {
		slog.Info("migrating lead schema", "from", s.CurrentVersion, "to", s.RequiredVersion)
		m, err := newMigrator(dsn)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	}
	return errors.New(upgrade.FormatError(s))
}

func autoMigrateEnabled() bool {
	switch strings.ToLower(os.Getenv("SHOWROOM_AUTO_MIGRATE")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

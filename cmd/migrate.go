package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/showroombot/internal/config"
	"github.com/nextlevelbuilder/showroombot/internal/store/pg"
	"github.com/nextlevelbuilder/showroombot/internal/upgrade"
)

// newMigrator reads the migrations embedded in the pg package, so the
// binary needs no migrations directory next to it.
func newMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(pg.Migrations, pg.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// leadsDSN returns the postgres DSN of the lead store. It is only read from
// the environment.
func leadsDSN() (string, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Leads.PostgresDSN == "" {
		return "", errors.New("SHOWROOM_POSTGRES_DSN environment variable is not set")
	}
	return cfg.Leads.PostgresDSN, nil
}

// withLeadMigrator opens a migrator on the lead database, runs fn and logs
// the resulting schema version.
func withLeadMigrator(action string, fn func(m *migrate.Migrate) error) error {
	dsn, err := leadsDSN()
	if err != nil {
		return err
	}
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", action, err)
	}
	v, dirty, _ := m.Version()
	slog.Info("lead schema "+action+" done", "version", v, "required", upgrade.RequiredSchemaVersion, "dirty", dirty)
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the lead table schema (postgres lead backend)",
		Long:  "The postgres lead store refuses to start on an outdated schema unless SHOWROOM_AUTO_MIGRATE is set. These commands apply, roll back or repair the schema by hand.",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migrateForceCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create or upgrade the leads table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLeadMigrator("upgrade", func(m *migrate.Migrate) error { return m.Up() })
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll the lead schema back (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withLeadMigrator("rollback", func(m *migrate.Migrate) error { return m.Steps(-steps) })
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the lead schema against this binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := leadsDSN()
			if err != nil {
				return err
			}
			db, err := pg.OpenDB(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			s, err := upgrade.CheckSchema(db)
			if err != nil {
				return err
			}
			if s.Compatible {
				fmt.Printf("lead schema v%d is up to date\n", s.CurrentVersion)
				return nil
			}
			fmt.Print(upgrade.FormatError(s))
			return nil
		},
	}
}

// migrateForceCmd clears a dirty flag left by a failed migration.
func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark the lead schema as being at a version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			return withLeadMigrator("force", func(m *migrate.Migrate) error { return m.Force(version) })
		},
	}
}

package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Manage database migrations for the CallMetrics API.

Postgres and Supabase databases use the versioned SQL migrations shipped
in the binary; Supabase is reached through database.dsn. SQLite schemas
are derived from the models.

Available subcommands:
  up      - Apply pending migrations
  down    - Rollback applied migrations
  status  - Show current migration status`,
}

// migrateUpCmd applies pending migrations
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE:  runMigrateUp,
}

// migrateDownCmd rolls back migrations
var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback applied migrations",
	Long: `Rollback the most recently applied migrations.

This reverts the schema and drops the data held by the reverted tables.
You are asked for confirmation unless --yes is given.`,
	RunE: runMigrateDown,
}

// migrateStatusCmd shows migration status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateUpCmd.Flags().Int("steps", 0, "number of migrations to apply (0 = all)")
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to rollback")
	migrateDownCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	migrateCmd.PersistentFlags().Bool("dry-run", false, "show what would be done without making changes")
}

// migrationDatabase opens the SQL connection migrations run against
func migrationDatabase(cfg config.DatabaseConfig) (*database.DB, error) {
	if cfg.Driver == database.DriverSupabase {
		cfg.Driver = database.DriverPostgres
	}
	return database.Open(cfg)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(out, "Dry run: would apply migrations to %s (steps: %d)\n", cfg.Database.Driver, steps)
		return nil
	}

	db, err := migrationDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if db.Driver == database.DriverSQLite {
		if err := db.Migrate(); err != nil {
			return err
		}
		fmt.Fprintln(out, "SQLite schema is up to date")
		return nil
	}

	if err := database.ApplyMigrations(db.DB, steps); err != nil {
		return err
	}
	fmt.Fprintln(out, "Migrations applied")
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	yes, _ := cmd.Flags().GetBool("yes")
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == database.DriverSQLite || cfg.Database.Driver == "" {
		return fmt.Errorf("rollback is only supported for postgres and supabase databases")
	}

	if dryRun {
		fmt.Fprintf(out, "Dry run: would roll back %d migration(s)\n", steps)
		return nil
	}

	if !yes {
		fmt.Fprintf(out, "WARNING: This will rollback %d migration(s). Continue? (y/N): ", steps)
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Migration rollback cancelled")
			return nil
		}
	}

	db, err := migrationDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RollbackMigrations(db.DB, steps); err != nil {
		return err
	}
	fmt.Fprintf(out, "Rolled back %d migration(s)\n", steps)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Database Migration Status")
	fmt.Fprintln(out, strings.Repeat("=", 50))

	if cfg.Database.Driver == database.DriverSQLite || cfg.Database.Driver == "" {
		fmt.Fprintln(out, "Driver:  sqlite (schema derived from models)")
		return nil
	}

	db, err := migrationDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := database.GetMigrationStatus(db.DB)
	if err != nil {
		return err
	}
	fmt.Fprint(out, formatMigrationStatus(cfg.Database.Driver, status))
	return nil
}

func formatMigrationStatus(driver string, status *database.MigrationStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Driver:  %s\n", driver)
	fmt.Fprintf(&b, "Current: %d\n", status.Version)
	fmt.Fprintf(&b, "Latest:  %d\n", status.Latest)
	switch {
	case status.Dirty:
		b.WriteString("State:   dirty, fix the failed migration before continuing\n")
	case status.Version < status.Latest:
		fmt.Fprintf(&b, "State:   %d pending\n", status.Latest-status.Version)
	default:
		b.WriteString("State:   up to date\n")
	}
	return b.String()
}

package handlers

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"starlinks/internal/logger"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Manage the database schema.

Subcommands:
  up       Create or update every table
  status   Show which tables exist

Examples:
  starlinks migrate up
  starlinks migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func runMigrateUp(ctx context.Context) error {
	log := logger.Get()
	log.Info("Starting database migration")

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✅ Database schema is up to date")
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	status := db.TableStatus(ctx)
	tables := make([]string, 0, len(status))
	for table := range status {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	fmt.Println("📊 Schema Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	pending := 0
	for _, table := range tables {
		icon, state := "✅", "present"
		if !status[table] {
			icon, state = "⏳", "missing"
			pending++
		}
		fmt.Printf("%-30s %s %s\n", table, icon, state)
	}

	if pending > 0 {
		fmt.Println("\nRun 'starlinks migrate up' to create missing tables")
	}
	return nil
}

package cmd

import (
	"billevents/internal/application/common/slogger"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// migrateTimeout bounds one full migration run.
const migrateTimeout = 5 * time.Minute

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Run database migrations to set up or update the database schema.

Migration files are plain SQL, applied in lexical order. Each file runs in
its own transaction and is recorded in billevents.schema_migrations, so
re-running the command only applies new files.

Configuration for the database connection is loaded from config files and
environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrations(cmd, dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./migrations", "Directory containing .sql migration files")
	return cmd
}

// runMigrations applies every pending migration file in dir.
func runMigrations(cmd *cobra.Command, dir string) error {
	files, err := listMigrationFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No migration files found in %s\n", dir)
		return nil
	}

	pool, err := setupDatabaseConnection(GetConfig())
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	if err := ensureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	applied := 0
	for _, file := range files {
		ran, err := applyMigration(ctx, pool, dir, file)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if ran {
			applied++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d of %d migration(s)\n", applied, len(files))
	return nil
}

// listMigrationFiles returns the .sql files in dir in lexical order.
func listMigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// ensureMigrationsTable creates the bookkeeping table on first run.
func ensureMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE SCHEMA IF NOT EXISTS billevents;
		CREATE TABLE IF NOT EXISTS billevents.schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	if _, err := pool.Exec(ctx, query, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("failed to ensure migrations table: %w", err)
	}
	return nil
}

// applyMigration runs one migration file inside a transaction. It returns
// false without running anything when the version was already applied.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir, file string) (bool, error) {
	contents, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return false, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The version insert doubles as the applied check: a conflict means an
	// earlier run already took this file.
	tag, err := tx.Exec(ctx,
		`INSERT INTO billevents.schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`,
		file,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	// Simple protocol so one file can hold multiple statements.
	if _, err := tx.Exec(ctx, string(contents), pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	slogger.InfoNoCtx("Applied migration", slogger.Fields{"file": file})
	return true, nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}

// Package migrations applies the run-history schema. Each migration is keyed
// by a YYYYMMDD-HHmmss timestamp and recorded in schema_migrations once done.
//
// Migration files are named YYYYMMDD-HHmmss-description.go and register
// themselves from init().
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Migration is one schema step.
type Migration struct {
	// Timestamp in YYYYMMDD-HHmmss format, used for ordering and tracking.
	Timestamp   string
	Description string
	Up          []string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Timestamp   string
	Description string
	AppliedAt   time.Time
}

var registry []Migration

// Register is called from each migration file's init.
func Register(m Migration) {
	registry = append(registry, m)
}

func sorted() []Migration {
	out := append([]Migration(nil), registry...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Run executes all pending migrations, creating the tracking table first.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range sorted() {
		if applied[m.Timestamp] {
			continue
		}

		logger.Info("running migration", "timestamp", m.Timestamp, "description", m.Description)
		if err := runMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Timestamp, m.Description, err)
		}
		logger.Info("migration completed", "timestamp", m.Timestamp)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// runMigration applies m and records it in one transaction.
func runMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Up {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if isExpectedError(err, stmt) {
				continue
			}
			return fmt.Errorf("failed to execute statement: %w\n%s", err, stmt)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		m.Timestamp, m.Description, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// isExpectedError reports errors that mean the statement already took
// effect on an earlier, partially recorded run.
func isExpectedError(err error, stmt string) bool {
	msg := err.Error()
	if strings.Contains(msg, "duplicate column") {
		return true
	}
	return strings.Contains(msg, "already exists") && strings.Contains(stmt, "CREATE INDEX")
}

// Applied returns the migrations recorded in the database, oldest first.
func Applied(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, description, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		var appliedAt string
		if err := rows.Scan(&m.Timestamp, &m.Description, &appliedAt); err != nil {
			return nil, err
		}
		m.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Pending returns registered migrations not yet applied, oldest first.
func Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, m := range sorted() {
		if !applied[m.Timestamp] {
			out = append(out, m)
		}
	}
	return out, nil
}

// Package migrations applies the history store schema.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNothingToRollback is returned by Rollback when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Migration is one schema change
type Migration struct {
	Name    string
	UpSQL   string
	DownSQL string
}

// All lists the migrations in application order
func All() []*Migration {
	return []*Migration{InitialSchema, RetentionPolicies}
}

// Migrator manages database migrations
type Migrator struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a new Migrator
func New(db *sql.DB, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// Applied returns the names of applied migrations
func (m *Migrator) Applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Msg("Failed to close rows")
		}
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// run executes a migration statement and its bookkeeping in one transaction
func (m *Migrator) run(ctx context.Context, migration *Migration, stmt, record string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			m.logger.Warn().Err(err).Str("migration", migration.Name).Msg("Failed to rollback transaction")
		}
	}()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err := tx.ExecContext(ctx, record, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}
	return tx.Commit()
}

// Apply applies a single migration
func (m *Migrator) Apply(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.UpSQL, "INSERT INTO migrations (name) VALUES ($1)")
}

// Revert rolls back a single migration
func (m *Migrator) Revert(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.DownSQL, "DELETE FROM migrations WHERE name = $1")
}

// Migrate applies all pending migrations and returns their names
func (m *Migrator) Migrate(ctx context.Context, migrations []*Migration) ([]string, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var done []string
	for _, migration := range migrations {
		if applied[migration.Name] {
			continue
		}
		if err := m.Apply(ctx, migration); err != nil {
			return done, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		m.logger.Info().Str("migration", migration.Name).Msg("Applied migration")
		done = append(done, migration.Name)
	}
	return done, nil
}

// Rollback reverts the last applied migration and returns its name
func (m *Migrator) Rollback(ctx context.Context, migrations []*Migration) (string, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			last = migrations[i]
			break
		}
	}
	if last == nil {
		return "", ErrNothingToRollback
	}

	if err := m.Revert(ctx, last); err != nil {
		return "", fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}
	m.logger.Info().Str("migration", last.Name).Msg("Rolled back migration")
	return last.Name, nil
}

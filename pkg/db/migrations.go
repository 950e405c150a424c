package db

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a schema change versioned by a YYYYMMDDHHmmss timestamp
type Migration struct {
	Version     int64
	Description string
	Up          func(*sql.Tx) error
	// Down is optional and only needed for Rollback
	Down func(*sql.Tx) error
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run executes all pending migrations in timestamp order
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return err
	}

	for _, m := range Pending(migrations, applied) {
		err := r.step(ctx, m.Up,
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now(), m.Description)
		if err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}
	return nil
}

// Pending returns the migrations not in applied, oldest first
func Pending(migrations []Migration, applied map[int64]bool) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})
	return pending
}

// Rollback reverts the most recently applied migration. It does nothing when
// no migration has been applied.
func (r *MigrationRunner) Rollback(ctx context.Context, migrations []Migration) error {
	versions, err := r.GetAppliedVersions(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return nil
	}
	latest := versions[len(versions)-1]

	for _, m := range migrations {
		if m.Version != latest {
			continue
		}
		if m.Down == nil {
			return errors.Errorf("migration %d has no rollback function", latest)
		}
		err := r.step(ctx, m.Down, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return errors.Wrapf(err, "failed to roll back migration %d: %s", m.Version, m.Description)
	}
	return errors.Errorf("migration %d not found in provided migrations", latest)
}

// GetAppliedVersions returns the applied versions in ascending order
func (r *MigrationRunner) GetAppliedVersions(ctx context.Context) ([]int64, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	var versions []int64
	err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get applied versions")
	}
	return versions, nil
}

func (r *MigrationRunner) appliedSet(ctx context.Context) (map[int64]bool, error) {
	versions, err := r.GetAppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

// step runs change and the bookkeeping statement in one transaction
func (r *MigrationRunner) step(ctx context.Context, change func(*sql.Tx) error, bookkeeping string, args ...any) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := change(tx.Tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return errors.Wrap(err, "failed to update schema_migrations")
	}
	return tx.Commit()
}

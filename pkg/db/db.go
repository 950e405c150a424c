// Package db opens the SQLite database that stores execution history.
package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	_ "modernc.org/sqlite"
)

// BasePathEnv overrides the ~/.skillrt state directory
const BasePathEnv = "SKILLRT_BASE_PATH"

// DefaultDBPath returns the default path of the history database
func DefaultDBPath() (string, error) {
	if basePath := os.Getenv(BasePathEnv); basePath != "" {
		return filepath.Join(basePath, "history.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".skillrt", "history.db"), nil
}

// Open opens or creates a SQLite database at dbPath in WAL mode
func Open(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	return db, nil
}

// OpenMigrated opens dbPath and applies migrations to it. Migrations run
// under the schema lock of dbPath.
func OpenMigrated(ctx context.Context, dbPath string, migrations []Migration) (*sqlx.DB, error) {
	db, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	err = WithSchemaLock(dbPath, func() error {
		return NewMigrationRunner(db).Run(ctx, migrations)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// LockPath returns the lock file that guards schema changes of dbPath
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}

// WithSchemaLock runs fn holding an exclusive file lock next to dbPath, so
// processes sharing a history database never migrate it concurrently
func WithSchemaLock(dbPath string, fn func() error) error {
	unlock, err := lockedfile.MutexAt(LockPath(dbPath)).Lock()
	if err != nil {
		return errors.Wrap(err, "failed to acquire database schema lock")
	}
	defer unlock()
	return fn()
}

// Configure sets the SQLite pragmas and limits the pool to one connection
func Configure(ctx context.Context, db *sqlx.DB) error {
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	// busy_timeout comes first so the WAL switch waits on a database another
	// process is opening
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=memory",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	return VerifyConfiguration(db)
}

// VerifyConfiguration checks the pragmas Configure sets
func VerifyConfiguration(db *sqlx.DB) error {
	checks := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"foreign_keys", "1"},
	}

	for _, c := range checks {
		var got string
		if err := db.Get(&got, "PRAGMA "+c.pragma); err != nil {
			return errors.Wrapf(err, "failed to query %s", c.pragma)
		}
		if strings.ToLower(got) != c.want {
			return errors.Errorf("expected %s %s, got %s", c.pragma, c.want, got)
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/jingkaihe/skillrt/pkg/db"
	"github.com/jingkaihe/skillrt/pkg/db/migrations"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/presenter"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the execution history database (migrations, status, etc.)`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database migration status",
	Long:  `Shows the current database migration status, including applied and pending migrations.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, conn, err := openHistoryDB(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := db.NewMigrationRunner(conn).GetAppliedVersions(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}
		appliedMap := make(map[int64]bool, len(applied))
		for _, v := range applied {
			appliedMap[v] = true
		}

		all := migrations.All()
		presenter.Section("Database Migration Status")
		presenter.Info("Database: " + path)

		rows := make([][]string, 0, len(all))
		for _, m := range all {
			status := "pending"
			if appliedMap[m.Version] {
				status = "applied"
			}
			rows = append(rows, []string{fmt.Sprint(m.Version), status, m.Description})
		}
		presenter.Table([]string{"VERSION", "STATUS", "DESCRIPTION"}, rows)

		pending := len(db.Pending(all, appliedMap))
		presenter.Info(fmt.Sprintf("Applied: %d/%d migrations", len(all)-pending, len(all)))
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, conn, err := openHistoryDB(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		err = db.WithSchemaLock(path, func() error {
			return db.NewMigrationRunner(conn).Run(ctx, migrations.All())
		})
		if err != nil {
			return errors.Wrap(err, "failed to apply migrations")
		}
		presenter.Success("Database is up to date")
		return nil
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback the last database migration",
	Long:  `Rolls back the most recently applied database migration. Useful for testing or downgrading skillrt.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, conn, err := openHistoryDB(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		runner := db.NewMigrationRunner(conn)
		applied, err := runner.GetAppliedVersions(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get migration status")
		}
		if len(applied) == 0 {
			presenter.Warning("No migrations to rollback")
			return nil
		}

		lastVersion := applied[len(applied)-1]
		var description string
		for _, m := range migrations.All() {
			if m.Version == lastVersion {
				description = m.Description
				break
			}
		}

		presenter.Info(fmt.Sprintf("Rolling back migration %d: %s", lastVersion, description))
		err = db.WithSchemaLock(path, func() error {
			return runner.Rollback(ctx, migrations.All())
		})
		if err != nil {
			return errors.Wrap(err, "failed to rollback migration")
		}
		presenter.Success(fmt.Sprintf("Successfully rolled back migration %d", lastVersion))
		return nil
	},
}

// openHistoryDB opens the configured history database without migrating it
func openHistoryDB(ctx context.Context) (string, *sqlx.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	path := cfg.History.Path
	if path == "" {
		if path, err = db.DefaultDBPath(); err != nil {
			return "", nil, err
		}
	}

	conn, err := db.Open(ctx, path)
	if err != nil {
		return "", nil, err
	}
	logger.G(ctx).WithField("path", path).Debug("opened history database")
	return path, conn, nil
}

func init() {
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbRollbackCmd)
}

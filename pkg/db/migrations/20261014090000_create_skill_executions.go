package migrations

import (
	"database/sql"

	"github.com/jingkaihe/skillrt/pkg/db"
	"github.com/pkg/errors"
)

// Migration20261014090000CreateSkillExecutions creates the execution history
// table. executed_at holds unix milliseconds.
func Migration20261014090000CreateSkillExecutions() db.Migration {
	return db.Migration{
		Version:     20261014090000,
		Description: "Create skill_executions table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS skill_executions (
					execution_id TEXT PRIMARY KEY,
					skill_name TEXT NOT NULL,
					success BOOLEAN NOT NULL,
					error_kind TEXT NOT NULL DEFAULT '',
					error_message TEXT NOT NULL DEFAULT '',
					duration_ns INTEGER NOT NULL,
					attempts INTEGER NOT NULL DEFAULT 1,
					hooks_failed INTEGER NOT NULL DEFAULT 0,
					executed_at INTEGER NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create skill_executions table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS skill_executions")
			return errors.Wrap(err, "failed to drop skill_executions table")
		},
	}
}

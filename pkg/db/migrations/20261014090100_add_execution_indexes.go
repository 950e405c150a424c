package migrations

import (
	"database/sql"

	"github.com/jingkaihe/skillrt/pkg/db"
	"github.com/pkg/errors"
)

// Migration20261014090100AddExecutionIndexes indexes history by skill and time
func Migration20261014090100AddExecutionIndexes() db.Migration {
	return db.Migration{
		Version:     20261014090100,
		Description: "Add skill_executions indexes",
		Up: func(tx *sql.Tx) error {
			indexes := []string{
				"CREATE INDEX IF NOT EXISTS idx_skill_executions_skill ON skill_executions(skill_name, executed_at DESC)",
				"CREATE INDEX IF NOT EXISTS idx_skill_executions_executed_at ON skill_executions(executed_at DESC)",
			}
			for _, idx := range indexes {
				if _, err := tx.Exec(idx); err != nil {
					return errors.Wrap(err, "failed to create index")
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, drop := range []string{
				"DROP INDEX IF EXISTS idx_skill_executions_executed_at",
				"DROP INDEX IF EXISTS idx_skill_executions_skill",
			} {
				if _, err := tx.Exec(drop); err != nil {
					return errors.Wrap(err, "failed to drop index")
				}
			}
			return nil
		},
	}
}

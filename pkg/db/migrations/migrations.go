// Package migrations holds the history database schema, versioned with
// YYYYMMDDHHmmss timestamps.
package migrations

import (
	"github.com/jingkaihe/skillrt/pkg/db"
)

// All returns every migration. New migrations are appended here.
func All() []db.Migration {
	return []db.Migration{
		Migration20261014090000CreateSkillExecutions(),
		Migration20261014090100AddExecutionIndexes(),
	}
}

// Package performance keeps an execution history in SQLite and derives
// per-skill performance reports from it.
package performance

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jingkaihe/skillrt/pkg/db"
	"github.com/jingkaihe/skillrt/pkg/db/migrations"
	"github.com/jingkaihe/skillrt/pkg/logger"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Execution is one recorded top-level execution
type Execution struct {
	ExecutionID  string           `json:"execution_id"`
	SkillName    string           `json:"skill_name"`
	Success      bool             `json:"success"`
	ErrorKind    skills.ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Duration     time.Duration    `json:"duration"`
	Attempts     int              `json:"attempts"`
	HooksFailed  int              `json:"hooks_failed"`
	ExecutedAt   time.Time        `json:"executed_at"`
}

type executionRow struct {
	ExecutionID  string `db:"execution_id"`
	SkillName    string `db:"skill_name"`
	Success      bool   `db:"success"`
	ErrorKind    string `db:"error_kind"`
	ErrorMessage string `db:"error_message"`
	DurationNS   int64  `db:"duration_ns"`
	Attempts     int    `db:"attempts"`
	HooksFailed  int    `db:"hooks_failed"`
	ExecutedAt   int64  `db:"executed_at"`
}

func (r executionRow) toExecution() Execution {
	return Execution{
		ExecutionID:  r.ExecutionID,
		SkillName:    r.SkillName,
		Success:      r.Success,
		ErrorKind:    skills.ErrorKind(r.ErrorKind),
		ErrorMessage: r.ErrorMessage,
		Duration:     time.Duration(r.DurationNS),
		Attempts:     r.Attempts,
		HooksFailed:  r.HooksFailed,
		ExecutedAt:   time.UnixMilli(r.ExecutedAt).UTC(),
	}
}

// Store persists skill results. It satisfies executor.Recorder.
type Store struct {
	db *sqlx.DB
}

// Open opens the history database at dbPath, or at db.DefaultDBPath when
// dbPath is empty, and migrates it.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = db.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.OpenMigrated(ctx, dbPath, migrations.All())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	logger.G(ctx).WithField("path", dbPath).Debug("history database opened")
	return &Store{db: sqlDB}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a result
func (s *Store) Record(ctx context.Context, result skills.SkillResult) error {
	row := executionRow{
		ExecutionID: result.ExecutionID,
		SkillName:   result.SkillName,
		Success:     result.Success,
		DurationNS:  int64(result.Duration),
		Attempts:    result.Attempts,
		ExecutedAt:  result.Timestamp.UnixMilli(),
	}
	if result.Error != nil {
		row.ErrorKind = string(result.Error.Kind)
		row.ErrorMessage = result.Error.Error()
	}
	for _, h := range result.Hooks {
		row.HooksFailed += len(h.Failed())
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO skill_executions (
			execution_id, skill_name, success, error_kind, error_message,
			duration_ns, attempts, hooks_failed, executed_at
		) VALUES (
			:execution_id, :skill_name, :success, :error_kind, :error_message,
			:duration_ns, :attempts, :hooks_failed, :executed_at
		)`, row)
	return errors.Wrapf(err, "failed to record execution %s", result.ExecutionID)
}

// Recent returns the latest executions of a skill, newest first. An empty
// name returns executions of every skill.
func (s *Store) Recent(ctx context.Context, name string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT * FROM skill_executions"
	args := []any{}
	if name != "" {
		query += " WHERE skill_name = ?"
		args = append(args, name)
	}
	query += " ORDER BY executed_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	var rows []executionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to query executions")
	}
	out := make([]Execution, len(rows))
	for i, r := range rows {
		out[i] = r.toExecution()
	}
	return out, nil
}

type aggregateRow struct {
	SkillName string  `db:"skill_name"`
	Total     int     `db:"total"`
	Successes int     `db:"successes"`
	AvgNS     float64 `db:"avg_ns"`
	MinNS     int64   `db:"min_ns"`
	MaxNS     int64   `db:"max_ns"`
	LastRun   int64   `db:"last_run"`
}

const aggregateQuery = `
	SELECT
		skill_name,
		COUNT(*) AS total,
		SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successes,
		AVG(duration_ns) AS avg_ns,
		MIN(duration_ns) AS min_ns,
		MAX(duration_ns) AS max_ns,
		MAX(executed_at) AS last_run
	FROM skill_executions`

// Report returns the performance report of one skill. A skill with no
// recorded executions is a NotFoundError.
func (s *Store) Report(ctx context.Context, name string) (*Report, error) {
	var row aggregateRow
	err := s.db.GetContext(ctx, &row, aggregateQuery+" WHERE skill_name = ? GROUP BY skill_name", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, skills.NewError(skills.ErrNotFound, name, "no recorded executions")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate executions of %s", name)
	}
	return newReport(row), nil
}

// Reports returns a report for every recorded skill, slowest average first
func (s *Store) Reports(ctx context.Context) ([]Report, error) {
	var rows []aggregateRow
	if err := s.db.SelectContext(ctx, &rows, aggregateQuery+" GROUP BY skill_name"); err != nil {
		return nil, errors.Wrap(err, "failed to aggregate executions")
	}
	reports := make([]Report, len(rows))
	for i, r := range rows {
		reports[i] = *newReport(r)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].AvgDuration != reports[j].AvgDuration {
			return reports[i].AvgDuration > reports[j].AvgDuration
		}
		return reports[i].SkillName < reports[j].SkillName
	})
	return reports, nil
}

// Slowest returns the n reports with the highest average duration
func (s *Store) Slowest(ctx context.Context, n int) ([]Report, error) {
	reports, err := s.Reports(ctx)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(reports) > n {
		reports = reports[:n]
	}
	return reports, nil
}

// Clear deletes the history of one skill, or of every skill when name is empty
func (s *Store) Clear(ctx context.Context, name string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if name == "" {
		res, err = s.db.ExecContext(ctx, "DELETE FROM skill_executions")
	} else {
		res, err = s.db.ExecContext(ctx, "DELETE FROM skill_executions WHERE skill_name = ?", name)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear executions")
	}
	return res.RowsAffected()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskgate/internal/model"
)

// Store is the sqlite-backed storage collaborator. The rule engine only
// ever sees immutable snapshots read from here; all task mutation flows
// through the external CRUD surface (or the seed helper, for demos).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT 'habit',
		active INTEGER NOT NULL DEFAULT 1,
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS recurrence_rules (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		cadence TEXT NOT NULL,
		times_per_period INTEGER NOT NULL DEFAULT 0,
		period_unit TEXT NOT NULL DEFAULT '',
		days TEXT NOT NULL DEFAULT '[]',
		timezone TEXT NOT NULL DEFAULT '',
		rrule TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_recurrence_rules_task ON recurrence_rules(task_id);

	CREATE TABLE IF NOT EXISTS time_rules (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		start_clock TEXT NOT NULL DEFAULT '',
		end_clock TEXT NOT NULL DEFAULT '',
		anytime INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_time_rules_task ON time_rules(task_id);

	CREATE TABLE IF NOT EXISTS task_tags (
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		PRIMARY KEY (task_id, name)
	);

	CREATE TABLE IF NOT EXISTS execution_logs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		at TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_execution_logs_task_at ON execution_logs(task_id, at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ActiveTasks returns snapshots of all active task definitions with their
// nested recurrence rules, time rules, and tags, in stable insertion
// order.
func (s *Store) ActiveTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, kind, active, start_date, end_date
		FROM tasks WHERE active = 1 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	index := make(map[string]int)

	for rows.Next() {
		var t model.Task
		var active int
		var kind string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &kind, &active, &t.StartDate, &t.EndDate); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Kind = model.Kind(kind)
		t.Active = active != 0
		index[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	if err := s.attachRules(ctx, tasks, index); err != nil {
		return nil, err
	}
	if err := s.attachTimeRules(ctx, tasks, index); err != nil {
		return nil, err
	}
	if err := s.attachTags(ctx, tasks, index); err != nil {
		return nil, err
	}

	return tasks, nil
}

func (s *Store) attachRules(ctx context.Context, tasks []model.Task, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, cadence, times_per_period, period_unit, days, timezone, rrule
		FROM recurrence_rules ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("query recurrence rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, cadence, daysJSON string
		var rule model.RecurrenceRule
		if err := rows.Scan(&taskID, &cadence, &rule.TimesPerPeriod, &rule.PeriodUnit, &daysJSON, &rule.Timezone, &rule.RRule); err != nil {
			return fmt.Errorf("scan recurrence rule: %w", err)
		}
		rule.Cadence = model.Cadence(cadence)
		if daysJSON != "" && daysJSON != "[]" {
			if err := json.Unmarshal([]byte(daysJSON), &rule.Days); err != nil {
				return fmt.Errorf("decode rule days %q: %w", daysJSON, err)
			}
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Rules = append(tasks[i].Rules, rule)
		}
	}
	return rows.Err()
}

func (s *Store) attachTimeRules(ctx context.Context, tasks []model.Task, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, start_clock, end_clock, anytime
		FROM time_rules ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("query time rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID string
		var anytime int
		var tr model.TimeRule
		if err := rows.Scan(&taskID, &tr.Start, &tr.End, &anytime); err != nil {
			return fmt.Errorf("scan time rule: %w", err)
		}
		tr.Anytime = anytime != 0
		if i, ok := index[taskID]; ok {
			tasks[i].Times = append(tasks[i].Times, tr)
		}
	}
	return rows.Err()
}

func (s *Store) attachTags(ctx context.Context, tasks []model.Task, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, name FROM task_tags ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, name string
		if err := rows.Scan(&taskID, &name); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Tags = append(tasks[i].Tags, name)
		}
	}
	return rows.Err()
}

// LogsInRange returns execution logs within the absolute [from, to)
// timestamp range, optionally filtered to a task-id set (nil means all
// tasks). Callers are responsible for choosing a range wide enough (at
// least one lookback period beyond the earliest date under evaluation)
// to avoid undercounting.
func (s *Store) LogsInRange(ctx context.Context, taskIDs []string, from, to time.Time) ([]model.ExecutionLog, error) {
	query := `SELECT task_id, at, quantity FROM execution_logs WHERE at >= ? AND at < ?`
	args := []any{from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)}
	if len(taskIDs) > 0 {
		query += ` AND task_id IN (`
		for i, id := range taskIDs {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, id)
		}
		query += `)`
	}
	query += ` ORDER BY at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution logs: %w", err)
	}
	defer rows.Close()

	logs := make([]model.ExecutionLog, 0)
	for rows.Next() {
		var entry model.ExecutionLog
		var at string
		if err := rows.Scan(&entry.TaskID, &at, &entry.Quantity); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("parse log timestamp %q: %w", at, err)
		}
		entry.At = ts
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution logs: %w", err)
	}
	return logs, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskgate/internal/model"
)

// CreateTask inserts a task snapshot (with nested rules and tags) in one
// transaction and returns the generated ID.
func (s *Store) CreateTask(ctx context.Context, t model.Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	active := 0
	if t.Active {
		active = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, kind, active, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Kind), active, t.StartDate, t.EndDate); err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}

	for _, rule := range t.Rules {
		days, err := json.Marshal(rule.Days)
		if err != nil {
			return "", fmt.Errorf("encode rule days: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recurrence_rules (id, task_id, cadence, times_per_period, period_unit, days, timezone, rrule)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), t.ID, string(rule.Cadence), rule.TimesPerPeriod, rule.PeriodUnit, string(days), rule.Timezone, rule.RRule); err != nil {
			return "", fmt.Errorf("insert recurrence rule: %w", err)
		}
	}

	for _, tr := range t.Times {
		anytime := 0
		if tr.Anytime {
			anytime = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO time_rules (id, task_id, start_clock, end_clock, anytime)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), t.ID, tr.Start, tr.End, anytime); err != nil {
			return "", fmt.Errorf("insert time rule: %w", err)
		}
	}

	for _, tag := range t.Tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_tags (task_id, name) VALUES (?, ?)`, t.ID, tag); err != nil {
			return "", fmt.Errorf("insert tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return t.ID, nil
}

// LogCompletion records one completion of a task at the given instant.
func (s *Store) LogCompletion(ctx context.Context, taskID string, at time.Time, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, task_id, at, quantity)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), taskID, at.UTC().Format(time.RFC3339), quantity)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// Seed populates a small demo fixture: a strict weekday focus habit, a
// morning routine, and an anytime reading habit. Intended for first-run
// demos and manual testing; it is not idempotent.
func (s *Store) Seed(ctx context.Context) error {
	fixtures := []model.Task{
		{
			Title:  "Deep work",
			Kind:   model.KindHabit,
			Active: true,
			Rules: []model.RecurrenceRule{{
				Cadence:        model.CadenceWeekly,
				TimesPerPeriod: 1,
				PeriodUnit:     "week",
				Days:           []int{1, 2, 3, 4, 5},
			}},
			Times: []model.TimeRule{{Start: "09:00", End: "11:00"}},
			Tags:  []string{"focus", "work"},
		},
		{
			Title:  "Morning stretch",
			Kind:   model.KindHabit,
			Active: true,
			Rules: []model.RecurrenceRule{{
				Cadence:        model.CadenceDaily,
				TimesPerPeriod: 1,
				PeriodUnit:     "day",
			}},
			Times: []model.TimeRule{{Start: "07:30"}},
			Tags:  []string{"health"},
		},
		{
			Title:  "Read 20 pages",
			Kind:   model.KindHabit,
			Active: true,
			Times:  []model.TimeRule{{Anytime: true}},
			Tags:   []string{"reading"},
		},
	}

	for _, t := range fixtures {
		if _, err := s.CreateTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

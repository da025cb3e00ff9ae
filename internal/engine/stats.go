package engine

import (
	"time"

	appLog "taskgate/internal/log"
	"taskgate/internal/model"
)

// DayStat aggregates one date of the dashboard: how many tasks were due,
// how many were fully completed, and whether the day counts as done.
// Days with Required == 0 are transparent: they neither break nor extend
// a streak.
type DayStat struct {
	Date      string
	Required  int
	Completed int
	Done      bool
}

// StreakSummary describes consecutive fully-completed days around a
// reference date. BreakDate is the most recent non-done day, empty when
// the current streak reaches the start of the range unbroken.
type StreakSummary struct {
	Current   int
	Longest   int
	BreakDate string
}

// DayStats computes per-date required/completed/done aggregates over the
// inclusive [from, to] range. Logged quantities are bucketed into local
// dates using each task's resolved timezone, so a completion logged at
// 23:30 local still lands on the local date it happened.
func DayStats(tasks []model.Task, logs []model.ExecutionLog, from, to Date, defaultZone string, zones *ZoneCache) map[string]DayStat {
	totals := completionTotals(tasks, logs, defaultZone, zones)

	out := make(map[string]DayStat)
	for d := from; !d.After(to); d = d.AddDays(1) {
		stat := DayStat{Date: d.String()}
		for _, task := range tasks {
			target := Target(task, d)
			if target == 0 {
				continue
			}
			stat.Required++
			if totals[task.ID][d.String()] >= target {
				stat.Completed++
			}
		}
		stat.Done = stat.Required == 0 || stat.Completed == stat.Required
		out[d.String()] = stat
	}
	return out
}

// completionTotals sums logged quantities per task per local date.
func completionTotals(tasks []model.Task, logs []model.ExecutionLog, defaultZone string, zones *ZoneCache) map[string]map[string]int {
	locByTask := make(map[string]*time.Location, len(tasks))
	for _, task := range tasks {
		zone := EffectiveZone(task, defaultZone)
		loc, err := zones.Load(zone)
		if err != nil {
			// Skippable per-item anomaly: bucket this task's logs in UTC
			// rather than dropping them.
			appLog.Error("stats: unresolvable task timezone, using UTC", err, "task_id", task.ID, "zone", zone)
			loc = time.UTC
		}
		locByTask[task.ID] = loc
	}

	totals := make(map[string]map[string]int)
	for _, entry := range logs {
		loc, ok := locByTask[entry.TaskID]
		if !ok {
			continue
		}
		qty := entry.Quantity
		if qty <= 0 {
			qty = 1
		}
		localDate := entry.At.In(loc).Format(isoDate)
		if totals[entry.TaskID] == nil {
			totals[entry.TaskID] = make(map[string]int)
		}
		totals[entry.TaskID][localDate] += qty
	}
	return totals
}

// Streak computes the current and longest streaks over [from, to], with
// the current streak scanned descending from ref (inclusive). Transparent
// days (Required == 0) are skipped in both scans: they never break a
// streak and never extend it.
func Streak(stats map[string]DayStat, from, to, ref Date) StreakSummary {
	var s StreakSummary

	for d := ref; !d.Before(from); d = d.AddDays(-1) {
		stat, ok := stats[d.String()]
		if !ok || stat.Required == 0 {
			continue
		}
		if !stat.Done {
			s.BreakDate = d.String()
			break
		}
		s.Current++
	}

	run := 0
	for d := from; !d.After(to); d = d.AddDays(1) {
		stat, ok := stats[d.String()]
		if !ok || stat.Required == 0 {
			continue
		}
		if stat.Done {
			run++
			if run > s.Longest {
				s.Longest = run
			}
		} else {
			run = 0
		}
	}

	return s
}

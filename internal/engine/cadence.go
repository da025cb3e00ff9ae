package engine

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "taskgate/internal/log"
	"taskgate/internal/model"
)

// implicitRule backs tasks that own no recurrence rules: due once, daily.
var implicitRule = model.RecurrenceRule{
	Cadence:        model.CadenceDaily,
	TimesPerPeriod: 1,
}

// Target returns how many occurrences of the task are due on the given
// date. Inactive tasks and dates outside [StartDate, EndDate] score zero.
// Rules are additive: each matching rule contributes its TimesPerPeriod
// (1 when unset), so a task can demand more than one occurrence per day by
// stacking rules.
func Target(task model.Task, date Date) int {
	if !task.Active {
		return 0
	}
	// Date-only comparison; fixed-width ISO strings compare correctly.
	if task.StartDate != "" && date.String() < task.StartDate {
		return 0
	}
	if task.EndDate != "" && date.String() > task.EndDate {
		return 0
	}

	rules := task.Rules
	if len(rules) == 0 {
		rules = []model.RecurrenceRule{implicitRule}
	}

	total := 0
	for _, rule := range rules {
		if !ruleMatches(task, rule, date) {
			continue
		}
		times := rule.TimesPerPeriod
		if times <= 0 {
			times = 1
		}
		total += times
	}
	return total
}

func ruleMatches(task model.Task, rule model.RecurrenceRule, date Date) bool {
	if rule.RRule != "" {
		return rruleMatches(task, rule, date)
	}

	switch rule.Cadence {
	case model.CadenceDaily:
		return true
	case model.CadenceWeekly:
		// An empty day set matches every day.
		if len(rule.Days) == 0 {
			return true
		}
		return containsInt(rule.Days, date.Weekday())
	case model.CadenceMonthly:
		// An empty day set matches only the 1st of the month.
		if len(rule.Days) == 0 {
			return date.Day() == 1
		}
		return containsInt(rule.Days, date.Day())
	case model.CadenceInterval:
		// Reserved; never matches. See model.CadenceInterval.
		return false
	default:
		return false
	}
}

// rruleMatches reports whether the rule's raw RRULE has an occurrence on
// the given date. DTSTART anchors at the task's start date when set,
// otherwise one year before the date under evaluation so that unanchored
// rules still yield occurrences. A malformed RRULE is a skippable per-item
// anomaly: logged, never matching, never aborting the computation.
func rruleMatches(task model.Task, rule model.RecurrenceRule, date Date) bool {
	r, err := rrule.StrToRRule(rule.RRule)
	if err != nil {
		appLog.Error("cadence: failed to parse RRULE", err, "task_id", task.ID, "rrule", rule.RRule)
		return false
	}

	dtstart := date.Time().AddDate(-1, 0, 0)
	if task.StartDate != "" {
		if sd, perr := ParseDate(task.StartDate); perr == nil {
			dtstart = sd.Time()
		}
	}
	r.DTStart(dtstart)

	var set rrule.Set
	set.RRule(r)

	dayStart := date.Time()
	dayEnd := dayStart.Add(24*time.Hour - time.Second)
	return len(set.Between(dayStart, dayEnd, true)) > 0
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

package model

import "time"

// Kind distinguishes one-off tasks from recurring habits. The rule engine
// treats both identically; the distinction matters to dashboards.
type Kind string

const (
	KindSingle Kind = "single"
	KindHabit  Kind = "habit"
)

// Cadence is the recurrence pattern governing which dates a period rule
// applies to. Each cadence has exactly one match predicate in
// internal/engine; never compare cadence strings outside that dispatch.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"

	// CadenceInterval is reserved for fixed-interval recurrences
	// (e.g. "every 3 days"). It is not implemented and never matches
	// any date; rules carrying it contribute nothing to a day's target.
	CadenceInterval Cadence = "interval"
)

// Task is an immutable snapshot of a task definition together with its
// nested rules and tags. Snapshots come from the storage collaborator and
// are valid for a single computation; the engine never mutates them.
type Task struct {
	ID          string
	Title       string
	Description string
	Kind        Kind
	Active      bool

	// StartDate / EndDate are inclusive ISO calendar dates (YYYY-MM-DD),
	// empty meaning unbounded. When both are set, EndDate >= StartDate.
	StartDate string
	EndDate   string

	Rules []RecurrenceRule
	Times []TimeRule
	Tags  []string
}

// RecurrenceRule states how often a task is due. A task with no rules
// behaves as if it owned one implicit daily rule with TimesPerPeriod 1.
type RecurrenceRule struct {
	Cadence Cadence

	// TimesPerPeriod is the occurrence count this rule demands per matching
	// date. Zero means unset and is treated as 1.
	TimesPerPeriod int

	// PeriodUnit is an informational label (day/week/month).
	PeriodUnit string

	// Days semantics depend on Cadence: day-of-week (0=Sunday..6=Saturday)
	// for weekly, day-of-month for monthly.
	Days []int

	// Timezone is an IANA identifier. The first rule's timezone, when set,
	// becomes the task's effective timezone.
	Timezone string

	// RRule is an optional raw iCalendar RRULE. When non-empty it replaces
	// the cadence-based match predicate for this rule.
	RRule string
}

// TimeRule states the local time-of-day window during which a task's
// occurrence is expected. A task with no time rules behaves as if it owned
// one implicit anytime rule.
type TimeRule struct {
	// Start / End are local clock strings ("HH:MM", seconds tolerated),
	// empty meaning unset. When Anytime is false and both are set,
	// End > Start.
	Start   string
	End     string
	Anytime bool
}

// ExecutionLog records one logged completion of a task.
type ExecutionLog struct {
	TaskID string
	At     time.Time

	// Quantity defaults to 1 when zero.
	Quantity int
}

// Severity of a blocking window, derived from the focus-tag policy.
const (
	SeverityStrict  = "strict"
	SeverityLenient = "lenient"
)

// Window is one absolute blocking interval produced by the engine.
// Start/End carry the resolved zone so formatting preserves the local
// meaning of the interval.
type Window struct {
	Start       time.Time
	End         time.Time
	Reason      string
	Severity    string
	Timezone    string
	RedirectURL string
}

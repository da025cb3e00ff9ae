package engine

import (
	"sort"
	"strings"

	"taskgate/internal/model"
)

// implicitTimeRule backs tasks that own no time rules.
var implicitTimeRule = model.TimeRule{Anytime: true}

// WindowOptions configures one window computation.
type WindowOptions struct {
	Date            Date
	DefaultTimezone string

	PreGraceMin        int
	PostGraceMin       int
	DurationDefaultMin int

	// FocusTags is the tag set that promotes a task's windows to strict
	// severity. FocusOnly drops tasks with no focus-tag match entirely.
	FocusTags []string
	FocusOnly bool

	RedirectURL string

	// Merge collapses overlapping/adjacent windows with identical policy
	// attributes into a minimal disjoint cover.
	Merge bool
}

// BuildWindows computes the absolute blocking intervals for one date.
// Tasks are evaluated in input order; the output is sorted ascending by
// start instant and, when merging, pairwise non-overlapping per policy.
func BuildWindows(tasks []model.Task, opts WindowOptions, zones *ZoneCache) []model.Window {
	focus := normalizeTags(opts.FocusTags)
	spanCfg := SpanConfig{
		PreGraceMin:        opts.PreGraceMin,
		PostGraceMin:       opts.PostGraceMin,
		DurationDefaultMin: opts.DurationDefaultMin,
	}

	candidates := make([]model.Window, 0, len(tasks))

	for _, task := range tasks {
		if Target(task, opts.Date) == 0 {
			continue
		}

		focused := taskHasFocusTag(task, focus)
		if opts.FocusOnly && !focused {
			continue
		}
		severity := model.SeverityLenient
		if focused {
			severity = model.SeverityStrict
		}

		zone := EffectiveZone(task, opts.DefaultTimezone)
		reason := windowReason(task)

		times := task.Times
		if len(times) == 0 {
			times = []model.TimeRule{implicitTimeRule}
		}

		for _, tr := range times {
			span, ok := ResolveSpan(tr, spanCfg)
			if !ok {
				continue
			}
			start, ok := zones.ToInstant(opts.Date, span.StartMin, zone)
			if !ok {
				continue
			}
			end, ok := zones.ToInstant(opts.Date, span.EndMin, zone)
			if !ok {
				continue
			}
			if !end.After(start) {
				continue
			}
			candidates = append(candidates, model.Window{
				Start:       start,
				End:         end,
				Reason:      reason,
				Severity:    severity,
				Timezone:    zone,
				RedirectURL: opts.RedirectURL,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].Start.Equal(candidates[j].Start) {
			return candidates[i].Start.Before(candidates[j].Start)
		}
		return candidates[i].End.Before(candidates[j].End)
	})

	if !opts.Merge {
		return candidates
	}
	return mergeWindows(candidates)
}

// EffectiveZone resolves a task's timezone: the first recurrence rule's
// zone when set, else the given default.
func EffectiveZone(task model.Task, def string) string {
	if len(task.Rules) > 0 && task.Rules[0].Timezone != "" {
		return task.Rules[0].Timezone
	}
	return def
}

// mergeWindows walks sorted candidates left to right, merging a candidate
// into the last emitted window only when timezone, redirect target, and
// severity are identical and the candidate starts at or before the running
// window's end. Windows carrying different downstream policy are never
// merged even when they overlap in time.
func mergeWindows(sorted []model.Window) []model.Window {
	out := make([]model.Window, 0, len(sorted))
	for _, w := range sorted {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if w.Timezone == last.Timezone &&
				w.RedirectURL == last.RedirectURL &&
				w.Severity == last.Severity &&
				!w.Start.After(last.End) {
				if w.End.After(last.End) {
					last.End = w.End
				}
				last.Reason = unionReasons(last.Reason, w.Reason)
				continue
			}
		}
		out = append(out, w)
	}
	return out
}

const reasonSeparator = " / "

// unionReasons joins two reason strings, de-duplicating segments while
// preserving first-seen order.
func unionReasons(a, b string) string {
	seen := make(map[string]bool)
	parts := make([]string, 0, 4)
	for _, seg := range append(strings.Split(a, reasonSeparator), strings.Split(b, reasonSeparator)...) {
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		parts = append(parts, seg)
	}
	return strings.Join(parts, reasonSeparator)
}

// windowReason builds the human-readable reason string, e.g.
// "Task: Deep work #focus #writing".
func windowReason(task model.Task) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(task.Title)
	for _, tag := range task.Tags {
		b.WriteString(" #")
		b.WriteString(strings.TrimPrefix(tag, "#"))
	}
	return b.String()
}

// normalizeTags lowercases and strips a leading '#' so focus matching is
// case-insensitive and tolerant of both "#focus" and "focus" forms.
func normalizeTags(tags []string) map[string]bool {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func taskHasFocusTag(task model.Task, focus map[string]bool) bool {
	if len(focus) == 0 {
		return false
	}
	for _, tag := range task.Tags {
		tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if focus[tag] {
			return true
		}
	}
	return false
}

package engine

import (
	"fmt"
	"strconv"
	"strings"

	appLog "taskgate/internal/log"
	"taskgate/internal/model"
)

const minutesPerDay = 24 * 60

// SpanConfig carries the grace-period knobs applied around a time rule's
// nominal boundaries. All values are non-negative minutes.
type SpanConfig struct {
	PreGraceMin        int
	PostGraceMin       int
	DurationDefaultMin int
}

// Span is a local minute-of-day interval, 0 <= StartMin < EndMin <= 1440.
type Span struct {
	StartMin int
	EndMin   int
}

// ResolveSpan turns a time rule plus grace configuration into a local
// minute interval. The second return is false when the rule produces no
// interval: an empty span after grace adjustment, or an unparseable clock
// string (a skippable per-item anomaly, logged, never fatal).
func ResolveSpan(rule model.TimeRule, cfg SpanConfig) (Span, bool) {
	if rule.Anytime || rule.Start == "" {
		span := Span{
			StartMin: clampMinute(0 - cfg.PreGraceMin),
			EndMin:   clampMinute(minutesPerDay + cfg.PostGraceMin),
		}
		return span, span.EndMin > span.StartMin
	}

	rawStart, err := parseClock(rule.Start)
	if err != nil {
		appLog.Error("timeofday: bad start clock, skipping rule", err, "start", rule.Start)
		return Span{}, false
	}

	startMin := clampMinute(rawStart - cfg.PreGraceMin)

	var endMin int
	if rule.End != "" {
		rawEnd, err := parseClock(rule.End)
		if err != nil {
			appLog.Error("timeofday: bad end clock, skipping rule", err, "end", rule.End)
			return Span{}, false
		}
		endMin = clampMinute(rawEnd + cfg.PostGraceMin)
	} else {
		// Default duration applies from the un-graced start.
		endMin = clampMinute(rawStart + cfg.DurationDefaultMin + cfg.PostGraceMin)
	}

	if endMin <= startMin {
		return Span{}, false
	}
	return Span{StartMin: startMin, EndMin: endMin}, true
}

func clampMinute(m int) int {
	if m < 0 {
		return 0
	}
	if m > minutesPerDay {
		return minutesPerDay
	}
	return m
}

// parseClock parses a local "HH:MM" clock string into minutes since
// midnight. A trailing ":SS" component is tolerated and ignored.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}

package engine

import (
	"testing"

	"taskgate/internal/model"
)

func TestResolveSpan(t *testing.T) {
	tests := []struct {
		name string
		rule model.TimeRule
		cfg  SpanConfig
		want Span
		ok   bool
	}{
		{
			name: "graced morning window",
			rule: model.TimeRule{Start: "09:00", End: "10:00"},
			cfg:  SpanConfig{PreGraceMin: 5, PostGraceMin: 5},
			want: Span{StartMin: 8*60 + 55, EndMin: 10*60 + 5},
			ok:   true,
		},
		{
			name: "anytime covers the whole day",
			rule: model.TimeRule{Anytime: true},
			cfg:  SpanConfig{PreGraceMin: 10, PostGraceMin: 10},
			want: Span{StartMin: 0, EndMin: 1440},
			ok:   true,
		},
		{
			name: "no start behaves like anytime",
			rule: model.TimeRule{End: "10:00"},
			cfg:  SpanConfig{},
			want: Span{StartMin: 0, EndMin: 1440},
			ok:   true,
		},
		{
			name: "default duration from un-graced start",
			rule: model.TimeRule{Start: "09:00"},
			cfg:  SpanConfig{PreGraceMin: 5, PostGraceMin: 5, DurationDefaultMin: 60},
			want: Span{StartMin: 8*60 + 55, EndMin: 10*60 + 5},
			ok:   true,
		},
		{
			name: "clamped at end of day",
			rule: model.TimeRule{Start: "23:30"},
			cfg:  SpanConfig{DurationDefaultMin: 60},
			want: Span{StartMin: 23*60 + 30, EndMin: 1440},
			ok:   true,
		},
		{
			name: "seconds component tolerated",
			rule: model.TimeRule{Start: "09:00:00", End: "10:30:00"},
			cfg:  SpanConfig{},
			want: Span{StartMin: 9 * 60, EndMin: 10*60 + 30},
			ok:   true,
		},
		{
			name: "empty interval after grace is skipped",
			rule: model.TimeRule{Start: "10:00", End: "10:00"},
			cfg:  SpanConfig{},
			ok:   false,
		},
		{
			name: "zero-duration start-only rule is skipped",
			rule: model.TimeRule{Start: "10:00"},
			cfg:  SpanConfig{},
			ok:   false,
		},
		{
			name: "unparseable start is skipped",
			rule: model.TimeRule{Start: "nine o'clock"},
			cfg:  SpanConfig{DurationDefaultMin: 60},
			ok:   false,
		},
		{
			name: "unparseable end is skipped",
			rule: model.TimeRule{Start: "09:00", End: "25:99"},
			cfg:  SpanConfig{},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveSpan(tt.rule, tt.cfg)
			if ok != tt.ok {
				t.Fatalf("ResolveSpan ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ResolveSpan = %+v, want %+v", got, tt.want)
			}
		})
	}
}

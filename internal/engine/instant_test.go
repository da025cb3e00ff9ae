package engine

import (
	"strings"
	"testing"
	"time"
)

func TestToInstant_RoundTripOutsideDST(t *testing.T) {
	zones := NewZoneCache()

	tests := []struct {
		name    string
		date    string
		minute  int
		zone    string
		wantUTC string
	}{
		{"summer new york", "2024-06-10", 9 * 60, "America/New_York", "2024-06-10T13:00:00Z"},
		{"winter new york", "2024-01-15", 9 * 60, "America/New_York", "2024-01-15T14:00:00Z"},
		{"seoul has no dst", "2024-06-10", 9 * 60, "Asia/Seoul", "2024-06-10T00:00:00Z"},
		{"utc passthrough", "2024-06-10", 9 * 60, "UTC", "2024-06-10T09:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := zones.ToInstant(MustDate(tt.date), tt.minute, tt.zone)
			if !ok {
				t.Fatal("ToInstant failed")
			}
			if s := got.UTC().Format(time.RFC3339); s != tt.wantUTC {
				t.Errorf("instant = %s, want %s", s, tt.wantUTC)
			}
			// Round trip: the local wall clock must match the input minute.
			if h, m := got.Hour(), got.Minute(); h*60+m != tt.minute {
				t.Errorf("local wall clock = %02d:%02d, want minute %d", h, m, tt.minute)
			}
		})
	}
}

func TestToInstant_SpringForwardCorrection(t *testing.T) {
	zones := NewZoneCache()

	// 2024-03-10 02:30 does not exist in America/New_York. The two-pass
	// offset correction lands deterministically on 06:30Z (01:30 EST).
	got, ok := zones.ToInstant(MustDate("2024-03-10"), 2*60+30, "America/New_York")
	if !ok {
		t.Fatal("ToInstant failed")
	}
	if s := got.UTC().Format(time.RFC3339); s != "2024-03-10T06:30:00Z" {
		t.Errorf("instant = %s, want 2024-03-10T06:30:00Z", s)
	}
}

func TestToInstant_MinuteEndOfDay(t *testing.T) {
	zones := NewZoneCache()

	got, ok := zones.ToInstant(MustDate("2024-06-10"), 1440, "UTC")
	if !ok {
		t.Fatal("ToInstant failed")
	}
	if s := got.UTC().Format(time.RFC3339); s != "2024-06-11T00:00:00Z" {
		t.Errorf("minute 1440 = %s, want next midnight", s)
	}
}

func TestToInstant_UnresolvableZone(t *testing.T) {
	zones := NewZoneCache()
	if _, ok := zones.ToInstant(MustDate("2024-06-10"), 0, "Mars/Olympus_Mons"); ok {
		t.Error("expected failure for unknown zone")
	}
}

func TestFormatInstant_ExplicitOffsetNeverZ(t *testing.T) {
	utc := time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)
	got := FormatInstant(utc)
	if strings.HasSuffix(got, "Z") {
		t.Errorf("FormatInstant(%v) = %q, want explicit numeric offset", utc, got)
	}
	if got != "2024-06-10T13:00:00+00:00" {
		t.Errorf("FormatInstant = %q", got)
	}

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("zone database unavailable")
	}
	if got := FormatInstant(utc.In(ny)); got != "2024-06-10T09:00:00-04:00" {
		t.Errorf("FormatInstant in New York = %q", got)
	}
}

func TestZoneCache_PreloadAndReadThrough(t *testing.T) {
	zones := NewZoneCache()

	fake := time.FixedZone("X-Test", 3600)
	zones.Preload("X/Test", fake)

	loc, err := zones.Load("X/Test")
	if err != nil {
		t.Fatalf("Load preseeded zone: %v", err)
	}
	if loc != fake {
		t.Error("Load did not return the preseeded location")
	}

	if _, err := zones.Load("Not/A_Zone"); err == nil {
		t.Error("expected error for unknown zone")
	}
	if !zones.Valid("UTC") {
		t.Error("UTC must be valid")
	}
}

package engine

import (
	"sync"
	"time"

	appLog "taskgate/internal/log"
)

// InstantLayout formats instants with an explicit numeric UTC offset,
// never a bare "Z", so the local meaning of an interval stays auditable.
const InstantLayout = "2006-01-02T15:04:05-07:00"

// FormatInstant renders an instant in the wire format.
func FormatInstant(t time.Time) string {
	return t.Format(InstantLayout)
}

// ZoneCache is a thread-safe read-through cache of resolved time.Location
// values keyed by IANA identifier. Entries are write-once and never
// invalidated, so sharing one cache across concurrent computations is
// safe. It is injectable so tests can pre-seed or isolate it.
type ZoneCache struct {
	mu    sync.RWMutex
	zones map[string]*time.Location
}

func NewZoneCache() *ZoneCache {
	return &ZoneCache{zones: make(map[string]*time.Location)}
}

// Load resolves an IANA zone name via the platform zone database,
// memoizing successful lookups.
func (c *ZoneCache) Load(name string) (*time.Location, error) {
	c.mu.RLock()
	loc, ok := c.zones[name]
	c.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.zones[name] = loc
	c.mu.Unlock()
	return loc, nil
}

// Preload seeds the cache with a resolved location, bypassing the
// platform database. Intended for tests.
func (c *ZoneCache) Preload(name string, loc *time.Location) {
	c.mu.Lock()
	c.zones[name] = loc
	c.mu.Unlock()
}

// Valid reports whether the zone name resolves.
func (c *ZoneCache) Valid(name string) bool {
	_, err := c.Load(name)
	return err == nil
}

// ToInstant maps (date, minute-of-day, zone) to an absolute instant.
// Naive local-to-UTC conversion is wrong across daylight-saving
// boundaries, so the conversion self-corrects:
//
//  1. Form a provisional instant treating the zone offset as zero.
//  2. Look up the zone's offset at that provisional instant.
//  3. Subtract the offset.
//  4. Re-check the offset at the corrected instant; if the correction
//     crossed a transition, subtract once more with the new offset.
//
// The result carries the resolved location so formatting preserves the
// numeric offset. Returns false only when the zone cannot be resolved;
// callers are expected to have validated zones at the boundary already.
func (c *ZoneCache) ToInstant(date Date, minuteOfDay int, zone string) (time.Time, bool) {
	loc, err := c.Load(zone)
	if err != nil {
		appLog.Error("instant: unresolvable timezone", err, "zone", zone)
		return time.Time{}, false
	}

	base := date.Time()
	provisional := time.Date(base.Year(), base.Month(), base.Day(), 0, minuteOfDay, 0, 0, time.UTC)

	_, offset := provisional.In(loc).Zone()
	corrected := provisional.Add(-time.Duration(offset) * time.Second)

	if _, offset2 := corrected.In(loc).Zone(); offset2 != offset {
		corrected = provisional.Add(-time.Duration(offset2) * time.Second)
	}

	return corrected.In(loc), true
}

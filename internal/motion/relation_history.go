package motion

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// LookupOutcome describes how a RelationHistory query was answered.
type LookupOutcome int

const (
	// LookupNone means the history was empty; the returned relation is
	// explicitly invalid.
	LookupNone LookupOutcome = iota
	// LookupClampedEarliest means the query preceded all stored data and the
	// earliest entry was returned verbatim.
	LookupClampedEarliest
	// LookupInterpolated means the query fell inside the stored span.
	LookupInterpolated
	// LookupExtrapolated means the query was newer than all stored data and
	// the latest entry was extrapolated forward using its velocities.
	LookupExtrapolated
)

// Default retention bounds for a relation history. 4096 entries at typical
// tracker rates spans well past the oldest plausible query horizon.
const (
	DefaultHistoryMaxEntries = 4096
	DefaultHistoryMaxAge     = 5 * time.Second
)

type historyEntry struct {
	ts  int64
	rel Relation
}

// RelationHistory is a bounded, timestamp-ordered store of spatial relations
// supporting interpolated and extrapolated lookup. Writes come from the
// ingestion side, reads from the prediction side; all access is guarded by an
// internal lock.
type RelationHistory struct {
	mu         sync.RWMutex
	entries    []historyEntry
	maxEntries int
	maxAge     time.Duration
}

// NewRelationHistory creates a history with the default retention bounds.
func NewRelationHistory() *RelationHistory {
	return NewRelationHistoryWithBounds(DefaultHistoryMaxEntries, DefaultHistoryMaxAge)
}

// NewRelationHistoryWithBounds creates a history that retains at most
// maxEntries relations and evicts entries older than maxAge relative to the
// newest. Non-positive bounds fall back to the defaults.
func NewRelationHistoryWithBounds(maxEntries int, maxAge time.Duration) *RelationHistory {
	if maxEntries < 2 {
		maxEntries = DefaultHistoryMaxEntries
	}
	if maxAge <= 0 {
		maxAge = DefaultHistoryMaxAge
	}
	return &RelationHistory{
		entries:    make([]historyEntry, 0, 64),
		maxEntries: maxEntries,
		maxAge:     maxAge,
	}
}

// Push inserts a relation at the given timestamp. In-order input appends at
// the tail in amortised O(1); out-of-order input is inserted by bisection.
// Queries whose window spans an out-of-order gap are not guaranteed a
// consistent interpolation until newer in-order samples arrive.
func (h *RelationHistory) Push(rel Relation, ts int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	if n == 0 || ts >= h.entries[n-1].ts {
		h.entries = append(h.entries, historyEntry{ts: ts, rel: rel})
	} else {
		i := sort.Search(n, func(k int) bool { return h.entries[k].ts > ts })
		h.entries = append(h.entries, historyEntry{})
		copy(h.entries[i+1:], h.entries[i:])
		h.entries[i] = historyEntry{ts: ts, rel: rel}
	}

	h.evictLocked()
}

// evictLocked trims the front of the history to the retention bounds, always
// keeping at least two entries so interpolation stays possible.
func (h *RelationHistory) evictLocked() {
	horizon := h.entries[len(h.entries)-1].ts - h.maxAge.Nanoseconds()
	drop := 0
	for len(h.entries)-drop > 2 &&
		(len(h.entries)-drop > h.maxEntries || h.entries[drop].ts < horizon) {
		drop++
	}
	if drop > 0 {
		h.entries = append(h.entries[:0], h.entries[drop:]...)
	}
}

// Len returns the number of stored relations.
func (h *RelationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear removes all stored relations.
func (h *RelationHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}

// Latest returns the most recent entry, or false if the history is empty.
func (h *RelationHistory) Latest() (int64, Relation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return 0, InvalidRelation(), false
	}
	last := h.entries[len(h.entries)-1]
	return last.ts, last.rel, true
}

// Get answers a query at an arbitrary timestamp. Inside the stored span the
// pose is interpolated (slerp for orientation, lerp for position) between the
// bracketing samples with velocities taken from the nearer one; before the
// earliest sample the earliest entry is returned verbatim; after the latest
// the pose is extrapolated forward with the latest entry's velocities. An
// empty history yields an explicitly invalid relation. A single-entry history
// returns that entry for any query.
func (h *RelationHistory) Get(ts int64) (Relation, LookupOutcome) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.entries)
	if n == 0 {
		return InvalidRelation(), LookupNone
	}
	if ts <= h.entries[0].ts {
		if n == 1 || ts == h.entries[0].ts {
			return h.entries[0].rel, LookupInterpolated
		}
		return h.entries[0].rel, LookupClampedEarliest
	}
	last := h.entries[n-1]
	if ts >= last.ts {
		if ts == last.ts || n == 1 {
			return last.rel, LookupInterpolated
		}
		return extrapolate(last.rel, DurationSeconds(last.ts, ts)), LookupExtrapolated
	}

	// First entry with timestamp > ts; its predecessor brackets from below.
	i := sort.Search(n, func(k int) bool { return h.entries[k].ts > ts })
	before, after := h.entries[i-1], h.entries[i]
	if ts == before.ts {
		return before.rel, LookupInterpolated
	}

	span := DurationSeconds(before.ts, after.ts)
	if span < minDtSeconds {
		return after.rel, LookupInterpolated
	}
	u := DurationSeconds(before.ts, ts) / span

	out := Relation{
		// Intersecting the flags keeps the result fully valid or not at all,
		// never a silent mix of fresh and stale fields.
		Flags:       before.rel.Flags & after.rel.Flags,
		Orientation: Slerp(before.rel.Orientation, after.rel.Orientation, u),
		Position:    Lerp(before.rel.Position, after.rel.Position, u),
	}
	nearer := before.rel
	if u > 0.5 {
		nearer = after.rel
	}
	out.LinearVelocity = nearer.LinearVelocity
	out.AngularVelocity = nearer.AngularVelocity
	return out, LookupInterpolated
}

// extrapolate advances rel forward by dt seconds using its own velocities.
// Velocity fields without their valid bit contribute nothing.
func extrapolate(rel Relation, dt float64) Relation {
	if dt < minDtSeconds {
		return rel
	}
	out := rel
	if rel.Flags.Has(FlagLinearVelocityValid) {
		out.Position = r3.Add(rel.Position, r3.Scale(dt, rel.LinearVelocity))
	}
	if rel.Flags.Has(FlagAngularVelocityValid) {
		out.Orientation = IntegrateAngularVelocity(rel.Orientation, rel.AngularVelocity, dt)
	}
	return out
}

package motion

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const msec = int64(time.Millisecond)

// trackedRelation builds a fully valid relation at the given position.
func trackedRelation(pos r3.Vec) Relation {
	return Relation{
		Flags:       FlagsAll,
		Orientation: QuatIdentity(),
		Position:    pos,
	}
}

func TestRelationHistory_EmptyQuery(t *testing.T) {
	h := NewRelationHistory()

	rel, outcome := h.Get(100)
	if outcome != LookupNone {
		t.Errorf("expected LookupNone, got %v", outcome)
	}
	if rel.Flags != FlagsNone {
		t.Errorf("empty history must return an all-invalid relation, got flags %v", rel.Flags)
	}
	if _, _, ok := h.Latest(); ok {
		t.Error("Latest on empty history should report false")
	}
}

func TestRelationHistory_SingleEntryAnswersAnyQuery(t *testing.T) {
	h := NewRelationHistory()
	want := trackedRelation(r3.Vec{X: 2})
	h.Push(want, 100*msec)

	for _, ts := range []int64{0, 100 * msec, 500 * msec} {
		rel, outcome := h.Get(ts)
		if outcome == LookupNone {
			t.Fatalf("query at %d reported empty history", ts)
		}
		if rel.Position != want.Position {
			t.Errorf("query at %d: got position %+v, want %+v", ts, rel.Position, want.Position)
		}
	}
}

func TestRelationHistory_ClampsBeforeEarliest(t *testing.T) {
	h := NewRelationHistory()
	earliest := trackedRelation(r3.Vec{X: 1})
	h.Push(earliest, 100*msec)
	h.Push(trackedRelation(r3.Vec{X: 2}), 200*msec)

	rel, outcome := h.Get(50 * msec)
	if outcome != LookupClampedEarliest {
		t.Errorf("expected LookupClampedEarliest, got %v", outcome)
	}
	// Exactly the earliest entry, no extrapolation backward past data start.
	if rel.Position != earliest.Position {
		t.Errorf("got position %+v, want earliest %+v", rel.Position, earliest.Position)
	}
}

func TestRelationHistory_InterpolatesPosition(t *testing.T) {
	h := NewRelationHistory()
	h.Push(trackedRelation(r3.Vec{}), 0)
	h.Push(trackedRelation(r3.Vec{X: 1}), 100*msec)

	rel, outcome := h.Get(50 * msec)
	if outcome != LookupInterpolated {
		t.Fatalf("expected LookupInterpolated, got %v", outcome)
	}
	if !vecAlmostEqual(rel.Position, r3.Vec{X: 0.5}, 1e-9) {
		t.Errorf("got position %+v, want (0.5,0,0)", rel.Position)
	}
	if rel.Flags != FlagsAll {
		t.Errorf("interpolation of two valid samples must stay valid, got flags %v", rel.Flags)
	}
}

func TestRelationHistory_SlerpParameterMonotonic(t *testing.T) {
	a := trackedRelation(r3.Vec{})
	a.Orientation = QuatIdentity()
	b := trackedRelation(r3.Vec{})
	b.Orientation = quatAboutZ(math.Pi / 2)

	h := NewRelationHistory()
	h.Push(a, 0)
	h.Push(b, 100*msec)

	prevAngle := -1.0
	for ts := int64(10 * msec); ts < 100*msec; ts += 10 * msec {
		rel, _ := h.Get(ts)
		da := AngleBetween(rel.Orientation, a.Orientation)
		db := AngleBetween(rel.Orientation, b.Orientation)

		// Between the brackets the two distances partition the full angle.
		if !almostEqual(da+db, math.Pi/2, 1e-6) {
			t.Errorf("ts=%d: angles %v + %v do not sum to the endpoint separation", ts, da, db)
		}
		if da <= prevAngle {
			t.Errorf("ts=%d: interpolation parameter not monotonic (%v <= %v)", ts, da, prevAngle)
		}
		prevAngle = da
	}
}

func TestRelationHistory_VelocitiesFromNearerSample(t *testing.T) {
	a := trackedRelation(r3.Vec{})
	a.LinearVelocity = r3.Vec{X: 1}
	b := trackedRelation(r3.Vec{X: 1})
	b.LinearVelocity = r3.Vec{X: 9}

	h := NewRelationHistory()
	h.Push(a, 0)
	h.Push(b, 100*msec)

	rel, _ := h.Get(20 * msec)
	if rel.LinearVelocity != a.LinearVelocity {
		t.Errorf("query near first sample: got velocity %+v, want %+v", rel.LinearVelocity, a.LinearVelocity)
	}
	rel, _ = h.Get(80 * msec)
	if rel.LinearVelocity != b.LinearVelocity {
		t.Errorf("query near second sample: got velocity %+v, want %+v", rel.LinearVelocity, b.LinearVelocity)
	}
}

func TestRelationHistory_ExtrapolatesAfterLatest(t *testing.T) {
	latest := trackedRelation(r3.Vec{X: 1})
	latest.LinearVelocity = r3.Vec{X: 2}

	h := NewRelationHistory()
	h.Push(trackedRelation(r3.Vec{}), 0)
	h.Push(latest, int64(time.Second))

	rel, outcome := h.Get(int64(2 * time.Second))
	if outcome != LookupExtrapolated {
		t.Fatalf("expected LookupExtrapolated, got %v", outcome)
	}
	if !vecAlmostEqual(rel.Position, r3.Vec{X: 3}, 1e-9) {
		t.Errorf("got position %+v, want (3,0,0)", rel.Position)
	}
}

func TestRelationHistory_OutOfOrderInsertion(t *testing.T) {
	h := NewRelationHistory()
	h.Push(trackedRelation(r3.Vec{X: 1}), 100*msec)
	h.Push(trackedRelation(r3.Vec{}), 0) // older than the tail

	if h.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", h.Len())
	}
	rel, _ := h.Get(50 * msec)
	if !vecAlmostEqual(rel.Position, r3.Vec{X: 0.5}, 1e-9) {
		t.Errorf("interpolation across reordered entries: got %+v, want (0.5,0,0)", rel.Position)
	}
}

func TestRelationHistory_EvictsByEntryCount(t *testing.T) {
	h := NewRelationHistoryWithBounds(4, time.Hour)
	for i := 0; i < 10; i++ {
		h.Push(trackedRelation(r3.Vec{X: float64(i)}), int64(i)*msec)
	}
	if h.Len() != 4 {
		t.Errorf("expected 4 retained entries, got %d", h.Len())
	}
	// The earliest survivors are entries 6..9.
	rel, _ := h.Get(0)
	if rel.Position.X != 6 {
		t.Errorf("oldest retained entry: got x=%v, want 6", rel.Position.X)
	}
}

func TestRelationHistory_EvictsByAge(t *testing.T) {
	h := NewRelationHistoryWithBounds(100, time.Second)
	h.Push(trackedRelation(r3.Vec{X: 1}), 0)
	h.Push(trackedRelation(r3.Vec{X: 2}), int64(4500)*msec)
	h.Push(trackedRelation(r3.Vec{X: 3}), int64(5000)*msec)

	if h.Len() != 2 {
		t.Errorf("entry older than the retention span should be gone, len=%d", h.Len())
	}
}

func TestRelationHistory_NeverEvictsBelowTwo(t *testing.T) {
	h := NewRelationHistoryWithBounds(100, time.Millisecond)
	h.Push(trackedRelation(r3.Vec{X: 1}), 0)
	h.Push(trackedRelation(r3.Vec{X: 2}), int64(time.Minute)) // far past the age bound

	if h.Len() != 2 {
		t.Errorf("history must keep two entries for interpolation, len=%d", h.Len())
	}
}

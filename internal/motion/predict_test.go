package motion

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

func newTestPredictor() (*Predictor, *RelationHistory, *SampleRing, *SampleRing) {
	hist := NewRelationHistory()
	gyro := NewSampleRing(DefaultRingCapacity)
	accel := NewSampleRing(DefaultRingCapacity)
	return NewPredictor(hist, gyro, accel), hist, gyro, accel
}

func TestPredictor_EmptyHistoryIsInvalidInEveryMode(t *testing.T) {
	p, _, _, _ := newTestPredictor()

	for m := Mode(0); m < modeCount; m++ {
		p.SetMode(m)
		rel := p.PredictAt(int64(time.Second))
		if rel.Flags != FlagsNone {
			t.Errorf("mode %v: empty history must yield all-invalid relation, got flags %v", m, rel.Flags)
		}
	}
}

func TestPredictor_ModeNoneNarrowsFlags(t *testing.T) {
	p, hist, _, _ := newTestPredictor()
	p.SetMode(ModeNone)

	rel := trackedRelation(r3.Vec{X: 1})
	rel.LinearVelocity = r3.Vec{X: 5}
	rel.AngularVelocity = r3.Vec{Z: 5}
	hist.Push(rel, 0)

	got := p.PredictAt(int64(time.Second))
	if got.Position != rel.Position {
		t.Errorf("pose must be returned verbatim, got %+v", got.Position)
	}
	if got.Flags.Has(FlagLinearVelocityValid) || got.Flags.Has(FlagAngularVelocityValid) {
		t.Errorf("velocity bits must be cleared, got flags %v", got.Flags)
	}
	if !got.Flags.Has(FlagPositionValid | FlagOrientationValid) {
		t.Errorf("pose bits must survive, got flags %v", got.Flags)
	}
}

func TestPredictor_InterpolateDelegatesToHistory(t *testing.T) {
	p, hist, _, _ := newTestPredictor()
	p.SetMode(ModeInterpolate)

	hist.Push(trackedRelation(r3.Vec{}), 0)
	hist.Push(trackedRelation(r3.Vec{X: 1}), 100*msec)

	got := p.PredictAt(50 * msec)
	if !vecAlmostEqual(got.Position, r3.Vec{X: 0.5}, 1e-9) {
		t.Errorf("got position %+v, want (0.5,0,0)", got.Position)
	}
}

func TestPredictor_GyroModesDeferToHistoryForPastQueries(t *testing.T) {
	for _, mode := range []Mode{ModeInterpolateGyro, ModeInterpolateGyroAccel} {
		p, hist, gyro, _ := newTestPredictor()
		p.SetMode(mode)

		hist.Push(trackedRelation(r3.Vec{}), 0)
		hist.Push(trackedRelation(r3.Vec{X: 1}), 100*msec)
		// Poison the gyro window; a past query must not touch it.
		gyro.Push(r3.Vec{Z: 1000}, 50*msec)

		got := p.PredictAt(50 * msec)
		if !vecAlmostEqual(got.Position, r3.Vec{X: 0.5}, 1e-9) {
			t.Errorf("mode %v: got position %+v, want history interpolation (0.5,0,0)", mode, got.Position)
		}
		if AngleBetween(got.Orientation, QuatIdentity()) > 1e-9 {
			t.Errorf("mode %v: past query must not integrate gyro data", mode)
		}
	}
}

func TestPredictor_InterpolateGyroRederivesOrientation(t *testing.T) {
	p, hist, gyro, _ := newTestPredictor()
	p.SetMode(ModeInterpolateGyro)

	base := trackedRelation(r3.Vec{})
	base.LinearVelocity = r3.Vec{X: 1}
	hist.Push(base, 0)

	// Constant gyro reading of pi/2 rad/s about Z across the window.
	w := r3.Vec{Z: math.Pi / 2}
	for ts := int64(100 * msec); ts < int64(time.Second); ts += 100 * msec {
		gyro.Push(w, ts)
	}

	got := p.PredictAt(int64(time.Second))
	if !vecAlmostEqual(got.AngularVelocity, w, 1e-9) {
		t.Errorf("angular velocity must be the windowed average, got %+v", got.AngularVelocity)
	}
	// pi/2 rad/s for 1s is a quarter turn.
	if angle := AngleBetween(got.Orientation, quatAboutZ(math.Pi/2)); angle > 1e-6 {
		t.Errorf("orientation off by %v rad from quarter turn", angle)
	}
	// Position extrapolates with the existing linear velocity.
	if !vecAlmostEqual(got.Position, r3.Vec{X: 1}, 1e-9) {
		t.Errorf("got position %+v, want (1,0,0)", got.Position)
	}
}

func TestPredictor_InterpolateGyroAccelIntegratesVelocity(t *testing.T) {
	p, hist, _, accel := newTestPredictor()
	p.SetMode(ModeInterpolateGyroAccel)
	p.SetGravity(r3.Vec{})

	hist.Push(trackedRelation(r3.Vec{}), 0)
	for ts := int64(100 * msec); ts < int64(time.Second); ts += 100 * msec {
		accel.Push(r3.Vec{X: 1}, ts)
	}

	got := p.PredictAt(int64(time.Second))
	if !vecAlmostEqual(got.LinearVelocity, r3.Vec{X: 1}, 1e-9) {
		t.Errorf("got velocity %+v, want (1,0,0)", got.LinearVelocity)
	}
	if !vecAlmostEqual(got.Position, r3.Vec{X: 0.5}, 1e-9) {
		t.Errorf("got position %+v, want (0.5,0,0)", got.Position)
	}
	if !got.Flags.Has(FlagLinearVelocityValid) {
		t.Error("re-derived linear velocity must be flagged valid")
	}
}

func TestPredictor_IMUIntegrateConstantAcceleration(t *testing.T) {
	p, hist, gyro, accel := newTestPredictor()
	p.SetMode(ModeIMUIntegrate)
	p.SetGravity(r3.Vec{})

	// Start from rest; a single sample at t=0 is held constant to the query.
	hist.Push(trackedRelation(r3.Vec{}), 0)
	gyro.Push(r3.Vec{}, 0)
	accel.Push(r3.Vec{X: 1}, 0)

	got := p.PredictAt(int64(time.Second))
	if !almostEqual(got.Position.X, 0.5, 1e-6) {
		t.Errorf("got pos.x %v, want 0.5 (half a t squared)", got.Position.X)
	}
	if !almostEqual(got.LinearVelocity.X, 1, 1e-6) {
		t.Errorf("got vel.x %v, want 1", got.LinearVelocity.X)
	}
}

func TestPredictor_IMUIntegratePiecewiseMatchesClosedForm(t *testing.T) {
	p, hist, gyro, accel := newTestPredictor()
	p.SetMode(ModeIMUIntegrate)
	p.SetGravity(r3.Vec{})

	hist.Push(trackedRelation(r3.Vec{}), 0)
	// The same constant acceleration split into quarter-second samples must
	// integrate to the same closed-form displacement.
	for ts := int64(0); ts < int64(time.Second); ts += 250 * msec {
		gyro.Push(r3.Vec{}, ts)
		accel.Push(r3.Vec{X: 1}, ts)
	}

	got := p.PredictAt(int64(time.Second))
	if !almostEqual(got.Position.X, 0.5, 1e-6) {
		t.Errorf("got pos.x %v, want 0.5", got.Position.X)
	}
}

func TestPredictor_IMUIntegrateClampsToQueryTime(t *testing.T) {
	p, hist, gyro, accel := newTestPredictor()
	p.SetMode(ModeIMUIntegrate)
	p.SetGravity(r3.Vec{})

	hist.Push(trackedRelation(r3.Vec{}), 0)
	// Samples continue past the query time; integration must stop at it.
	for ts := int64(0); ts <= int64(2*time.Second); ts += 250 * msec {
		gyro.Push(r3.Vec{}, ts)
		accel.Push(r3.Vec{X: 1}, ts)
	}

	got := p.PredictAt(int64(time.Second))
	if !almostEqual(got.Position.X, 0.5, 1e-6) {
		t.Errorf("got pos.x %v, want 0.5 at the clamped query time", got.Position.X)
	}
}

func TestPredictor_IMUIntegrateNoDataLeavesVelocityInvalid(t *testing.T) {
	p, hist, _, _ := newTestPredictor()
	p.SetMode(ModeIMUIntegrate)
	p.SetGravity(r3.Vec{})

	// A pose-only base and empty rings: there is nothing to derive a linear
	// velocity from, so the zero value must stay unflagged.
	rel := Relation{
		Flags:       FlagOrientationValid | FlagPositionValid,
		Orientation: QuatIdentity(),
		Position:    r3.Vec{X: 1},
	}
	hist.Push(rel, 0)

	got := p.PredictAt(int64(time.Second))
	if got.Flags.Has(FlagLinearVelocityValid) {
		t.Errorf("fabricated zero velocity must not be flagged valid, got flags %v", got.Flags)
	}
	if !vecAlmostEqual(got.Position, r3.Vec{X: 1}, 1e-9) {
		t.Errorf("position must hold without data, got %+v", got.Position)
	}
}

func TestPredictor_GyroWindowIncludesQueryTimestamp(t *testing.T) {
	p, hist, gyro, _ := newTestPredictor()
	p.SetMode(ModeInterpolateGyro)

	hist.Push(trackedRelation(r3.Vec{}), 0)
	// The only reading lands exactly on the query time; the closed window
	// must still average it in.
	w := r3.Vec{Z: math.Pi / 2}
	gyro.Push(w, int64(time.Second))

	got := p.PredictAt(int64(time.Second))
	if !vecAlmostEqual(got.AngularVelocity, w, 1e-9) {
		t.Errorf("sample at the query timestamp must be in the window, got %+v", got.AngularVelocity)
	}
}

func TestPredictor_GravityCorrection(t *testing.T) {
	p, hist, gyro, accel := newTestPredictor()
	p.SetMode(ModeIMUIntegrate)
	// Default gravity: a stationary accelerometer reads the reaction force.
	p.SetGravity(DefaultGravity)

	hist.Push(trackedRelation(r3.Vec{}), 0)
	gyro.Push(r3.Vec{}, 0)
	accel.Push(r3.Vec{Y: -DefaultGravity.Y}, 0)

	got := p.PredictAt(int64(time.Second))
	if !vecAlmostEqual(got.Position, r3.Vec{}, 1e-6) {
		t.Errorf("stationary body must not drift, got position %+v", got.Position)
	}
}

func TestModeString_RoundTrip(t *testing.T) {
	for m := Mode(0); m < modeCount; m++ {
		parsed, err := ParseMode(m.String())
		if err != nil {
			t.Errorf("ParseMode(%q): %v", m.String(), err)
		}
		if parsed != m {
			t.Errorf("round trip of %v gave %v", m, parsed)
		}
	}
	if _, err := ParseMode("quantum"); err == nil {
		t.Error("expected error for unknown mode name")
	}
}

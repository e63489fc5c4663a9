package motion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const floatTol = 1e-9

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func vecAlmostEqual(a, b r3.Vec, tol float64) bool {
	return almostEqual(a.X, b.X, tol) && almostEqual(a.Y, b.Y, tol) && almostEqual(a.Z, b.Z, tol)
}

// quatAboutZ builds a rotation of the given angle about the Z axis.
func quatAboutZ(angle float64) quat.Number {
	return quat.Number{Real: math.Cos(angle / 2), Kmag: math.Sin(angle / 2)}
}

func TestSlerp_Endpoints(t *testing.T) {
	a := QuatIdentity()
	b := quatAboutZ(math.Pi / 2)

	if got := Slerp(a, b, 0); AngleBetween(got, a) > floatTol {
		t.Errorf("Slerp(0) should return the first endpoint, angle off by %v", AngleBetween(got, a))
	}
	if got := Slerp(a, b, 1); AngleBetween(got, b) > floatTol {
		t.Errorf("Slerp(1) should return the second endpoint, angle off by %v", AngleBetween(got, b))
	}
}

func TestSlerp_MidpointSplitsAngle(t *testing.T) {
	a := QuatIdentity()
	b := quatAboutZ(math.Pi / 2)

	mid := Slerp(a, b, 0.5)
	da := AngleBetween(mid, a)
	db := AngleBetween(mid, b)

	if !almostEqual(da, math.Pi/4, 1e-6) {
		t.Errorf("midpoint angle to a: got %v, want %v", da, math.Pi/4)
	}
	if !almostEqual(da, db, 1e-6) {
		t.Errorf("midpoint should be equidistant: %v vs %v", da, db)
	}
}

func TestSlerp_ShortestArc(t *testing.T) {
	a := QuatIdentity()
	b := quatAboutZ(math.Pi / 2)
	negB := quat.Scale(-1, b)

	// -b represents the same rotation; slerp must not take the long way round.
	mid := Slerp(a, negB, 0.5)
	if got := AngleBetween(mid, a); !almostEqual(got, math.Pi/4, 1e-6) {
		t.Errorf("slerp against negated quaternion took the long arc: angle %v", got)
	}
}

func TestIntegrateAngularVelocity_FiniteDifferenceRoundtrip(t *testing.T) {
	w := r3.Vec{X: 0.3, Y: -1.2, Z: 2.0}
	const dt = 0.1

	q0 := QuatIdentity()
	q1 := IntegrateAngularVelocity(q0, w, dt)
	got := FiniteDifference(q0, q1, dt)

	if !vecAlmostEqual(got, w, 1e-6) {
		t.Errorf("finite difference did not recover angular velocity: got %+v, want %+v", got, w)
	}
}

func TestIntegrateAngularVelocity_ZeroDt(t *testing.T) {
	q := quatAboutZ(0.7)
	if got := IntegrateAngularVelocity(q, r3.Vec{X: 100}, 0); got != q {
		t.Errorf("zero dt must leave orientation unchanged, got %+v", got)
	}
}

func TestFiniteDifference_ZeroDtGuard(t *testing.T) {
	got := FiniteDifference(QuatIdentity(), quatAboutZ(1), 0)
	if got != (r3.Vec{}) {
		t.Errorf("zero dt must yield zero angular velocity, got %+v", got)
	}
}

func TestRotate_QuarterTurnAboutZ(t *testing.T) {
	q := quatAboutZ(math.Pi / 2)
	got := Rotate(q, r3.Vec{X: 1})
	if !vecAlmostEqual(got, r3.Vec{Y: 1}, 1e-9) {
		t.Errorf("90 degree Z rotation of x-axis: got %+v, want (0,1,0)", got)
	}
}

func TestAngleBetween(t *testing.T) {
	if got := AngleBetween(QuatIdentity(), quatAboutZ(math.Pi/2)); !almostEqual(got, math.Pi/2, 1e-9) {
		t.Errorf("got %v, want %v", got, math.Pi/2)
	}
	if got := AngleBetween(QuatIdentity(), QuatIdentity()); got > floatTol {
		t.Errorf("identical quaternions should have zero angle, got %v", got)
	}
}

func TestQuatNormalize_Degenerate(t *testing.T) {
	got := QuatNormalize(quat.Number{})
	if got != QuatIdentity() {
		t.Errorf("degenerate quaternion should normalise to identity, got %+v", got)
	}
}

func TestInvalidRelation(t *testing.T) {
	rel := InvalidRelation()
	if rel.Flags != FlagsNone {
		t.Errorf("invalid relation must have no flags set, got %v", rel.Flags)
	}
	if rel.Orientation != QuatIdentity() {
		t.Errorf("invalid relation orientation should be identity, got %+v", rel.Orientation)
	}
}

func TestDurationSeconds(t *testing.T) {
	if got := DurationSeconds(0, 1_500_000_000); !almostEqual(got, 1.5, floatTol) {
		t.Errorf("got %v, want 1.5", got)
	}
	if got := DurationSeconds(2_000_000_000, 1_000_000_000); !almostEqual(got, -1, floatTol) {
		t.Errorf("got %v, want -1", got)
	}
}

// Package motion implements the math core of the pose tracking engine: the
// spatial relation type, the bounded relation history, timestamped sample
// rings, prediction and output filtering.
package motion

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Flags mark which fields of a Relation carry meaningful data. A field whose
// bit is unset is undefined, not zero; consumers must check before use.
type Flags uint32

const (
	// FlagOrientationValid indicates Orientation holds a usable rotation.
	FlagOrientationValid Flags = 1 << iota
	// FlagPositionValid indicates Position holds a usable location.
	FlagPositionValid
	// FlagLinearVelocityValid indicates LinearVelocity is meaningful.
	FlagLinearVelocityValid
	// FlagAngularVelocityValid indicates AngularVelocity is meaningful.
	FlagAngularVelocityValid
	// FlagOrientationTracked indicates the orientation comes from live
	// tracking rather than extrapolation or a last-known value.
	FlagOrientationTracked
	// FlagPositionTracked indicates the position comes from live tracking.
	FlagPositionTracked
)

// FlagsNone is an explicitly all-invalid relation.
const FlagsNone Flags = 0

// FlagsAll marks every field valid and tracked.
const FlagsAll = FlagOrientationValid | FlagPositionValid |
	FlagLinearVelocityValid | FlagAngularVelocityValid |
	FlagOrientationTracked | FlagPositionTracked

// flagsVelocity covers both velocity bits.
const flagsVelocity = FlagLinearVelocityValid | FlagAngularVelocityValid

// Has reports whether all of the given bits are set.
func (f Flags) Has(bits Flags) bool {
	return f&bits == bits
}

// Relation is a full 6-DoF spatial relation: a pose plus optional linear and
// angular velocity. Angular velocity is in world frame, radians per second.
type Relation struct {
	Flags           Flags
	Orientation     quat.Number
	Position        r3.Vec
	LinearVelocity  r3.Vec
	AngularVelocity r3.Vec
}

// InvalidRelation returns the explicit "no data" relation: identity
// orientation, all flags unset.
func InvalidRelation() Relation {
	return Relation{Orientation: QuatIdentity()}
}

// minDtSeconds is the elapsed-time floor below which divisions and
// integrations are treated as "no change" instead of risking a blowup.
const minDtSeconds = 1e-9

// DurationSeconds converts an interval between two nanosecond timestamps to
// seconds.
func DurationSeconds(fromNS, toNS int64) float64 {
	return float64(toNS-fromNS) / 1e9
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() quat.Number {
	return quat.Number{Real: 1}
}

// QuatNormalize scales q to unit norm. A degenerate (near-zero) quaternion
// normalises to identity rather than NaN.
func QuatNormalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < 1e-12 {
		return QuatIdentity()
	}
	return quat.Scale(1/n, q)
}

// Lerp linearly interpolates between two vectors; u is clamped to [0, 1] by
// the callers, not here.
func Lerp(a, b r3.Vec, u float64) r3.Vec {
	return r3.Add(a, r3.Scale(u, r3.Sub(b, a)))
}

// Slerp spherically interpolates between two unit quaternions, taking the
// shorter arc. Near-parallel inputs fall back to normalised linear
// interpolation to avoid dividing by a vanishing sine.
func Slerp(a, b quat.Number, u float64) quat.Number {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return QuatNormalize(quat.Add(quat.Scale(1-u, a), quat.Scale(u, b)))
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-u)*theta) / sinTheta
	wb := math.Sin(u*theta) / sinTheta
	return QuatNormalize(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

// AngleBetween returns the rotation angle in radians separating two unit
// quaternions, in [0, pi].
func AngleBetween(a, b quat.Number) float64 {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	dot = math.Abs(dot)
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot)
}

// IntegrateAngularVelocity advances orientation q by a constant world-frame
// angular velocity w applied for dt seconds, via the quaternion exponential
// map.
func IntegrateAngularVelocity(q quat.Number, w r3.Vec, dt float64) quat.Number {
	if dt < minDtSeconds && dt > -minDtSeconds {
		return q
	}
	half := r3.Scale(dt/2, w)
	delta := quat.Exp(quat.Number{Imag: half.X, Jmag: half.Y, Kmag: half.Z})
	return QuatNormalize(quat.Mul(delta, q))
}

// FiniteDifference estimates the world-frame angular velocity that rotates
// q0 into q1 over dt seconds, via the quaternion logarithm. A dt below the
// numeric floor yields the zero vector.
func FiniteDifference(q0, q1 quat.Number, dt float64) r3.Vec {
	if dt < minDtSeconds {
		return r3.Vec{}
	}
	delta := quat.Mul(q1, quat.Conj(q0))
	if delta.Real < 0 {
		delta = quat.Scale(-1, delta)
	}
	l := quat.Log(QuatNormalize(delta))
	return r3.Scale(2/dt, r3.Vec{X: l.Imag, Y: l.Jmag, Z: l.Kmag})
}

// Rotate applies the rotation q to vector v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

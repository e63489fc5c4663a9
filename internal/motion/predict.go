package motion

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mode selects how a pose query is answered. Modes are mutually exclusive
// and runtime-switchable; the default is chosen explicitly by configuration,
// never inferred from the data.
type Mode int

const (
	// ModeNone returns the last fused relation verbatim, with flags narrowed
	// to "not extrapolated".
	ModeNone Mode = iota
	// ModeInterpolate answers entirely from the relation history.
	ModeInterpolate
	// ModeInterpolateGyro extrapolates orientation from the gyro ring's
	// windowed average and position from the last fused linear velocity.
	ModeInterpolateGyro
	// ModeInterpolateGyroAccel additionally re-derives linear velocity from
	// the accelerometer ring's windowed average.
	ModeInterpolateGyroAccel
	// ModeIMUIntegrate forward-integrates every buffered IMU sample newer
	// than the last fused relation up to the query time.
	ModeIMUIntegrate

	modeCount
)

// String implements fmt.Stringer with the names used by the tuning config.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInterpolate:
		return "interpolate"
	case ModeInterpolateGyro:
		return "interpolate_gyro"
	case ModeInterpolateGyroAccel:
		return "interpolate_gyro_accel"
	case ModeIMUIntegrate:
		return "imu_integrate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a tuning-config name back to a Mode.
func ParseMode(s string) (Mode, error) {
	for m := Mode(0); m < modeCount; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return ModeNone, fmt.Errorf("unknown prediction mode %q", s)
}

// DefaultGravity is standard gravity in the y-up tracking frame, in m/s².
// Accelerometers measure specific force, so the world acceleration of a body
// is the rotated reading plus this vector.
var DefaultGravity = r3.Vec{Y: -9.80665}

// Predictor computes a best-estimate relation at an arbitrary query
// timestamp from the relation history and, depending on the mode, the IMU
// sample rings. Mode and gravity are runtime-mutable behind the predictor's
// own lock; the lock is never held across history or ring calls.
type Predictor struct {
	hist  *RelationHistory
	gyro  *SampleRing
	accel *SampleRing

	mu      sync.Mutex
	mode    Mode
	gravity r3.Vec
}

// NewPredictor wires a predictor to its data sources. The initial mode is
// ModeInterpolate and gravity is DefaultGravity.
func NewPredictor(hist *RelationHistory, gyro, accel *SampleRing) *Predictor {
	return &Predictor{
		hist:    hist,
		gyro:    gyro,
		accel:   accel,
		mode:    ModeInterpolate,
		gravity: DefaultGravity,
	}
}

// SetMode switches the prediction mode at runtime.
func (p *Predictor) SetMode(m Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
}

// Mode returns the currently configured prediction mode.
func (p *Predictor) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetGravity replaces the gravity-correction vector. The zero vector
// disables gravity correction entirely.
func (p *Predictor) SetGravity(g r3.Vec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gravity = g
}

// Gravity returns the configured gravity-correction vector.
func (p *Predictor) Gravity() r3.Vec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gravity
}

// PredictAt answers a pose query at the given timestamp. An empty history
// yields an explicitly invalid relation in every mode.
func (p *Predictor) PredictAt(ts int64) Relation {
	p.mu.Lock()
	mode, gravity := p.mode, p.gravity
	p.mu.Unlock()

	switch mode {
	case ModeNone:
		return p.predictNone()
	case ModeInterpolate:
		rel, _ := p.hist.Get(ts)
		return rel
	case ModeInterpolateGyro:
		return p.predictGyro(ts, false, gravity)
	case ModeInterpolateGyroAccel:
		return p.predictGyro(ts, true, gravity)
	case ModeIMUIntegrate:
		return p.predictIMUIntegrate(ts, gravity)
	default:
		return InvalidRelation()
	}
}

// predictNone returns the latest fused relation with its velocity bits
// cleared, so callers cannot mistake it for an extrapolated estimate.
func (p *Predictor) predictNone() Relation {
	_, rel, ok := p.hist.Latest()
	if !ok {
		return InvalidRelation()
	}
	rel.Flags &^= flagsVelocity
	rel.LinearVelocity = r3.Vec{}
	rel.AngularVelocity = r3.Vec{}
	return rel
}

// predictGyro extrapolates from the latest fused relation using IMU windowed
// averages: orientation from the gyro ring always, linear velocity from the
// accelerometer ring when useAccel is set. Queries at or before the latest
// fused timestamp defer to history interpolation.
func (p *Predictor) predictGyro(ts int64, useAccel bool, gravity r3.Vec) Relation {
	t0, base, ok := p.hist.Latest()
	if !ok {
		return InvalidRelation()
	}
	if ts <= t0 {
		rel, _ := p.hist.Get(ts)
		return rel
	}
	dt := DurationSeconds(t0, ts)
	if dt < minDtSeconds {
		return base
	}

	out := base
	// An empty gyro window averages to zero, which degrades to holding the
	// current orientation rather than failing the query. The window is the
	// closed [t0, ts]; +1 makes the exclusive ring bound inclusive of a
	// sample landing exactly on the query timestamp.
	avgW := p.gyro.WindowedAverage(t0, ts+1)
	out.Orientation = IntegrateAngularVelocity(base.Orientation, avgW, dt)
	out.AngularVelocity = avgW
	out.Flags |= FlagAngularVelocityValid

	lv := r3.Vec{}
	if base.Flags.Has(FlagLinearVelocityValid) {
		lv = base.LinearVelocity
	}
	if useAccel {
		avgA := p.accel.WindowedAverage(t0, ts+1)
		aWorld := r3.Add(Rotate(out.Orientation, avgA), gravity)
		out.Position = r3.Add(base.Position, r3.Add(r3.Scale(dt, lv), r3.Scale(0.5*dt*dt, aWorld)))
		out.LinearVelocity = r3.Add(lv, r3.Scale(dt, aWorld))
		out.Flags |= FlagLinearVelocityValid
	} else {
		out.Position = r3.Add(base.Position, r3.Scale(dt, lv))
	}
	return out
}

// predictIMUIntegrate walks every buffered IMU sample strictly newer than
// the latest fused relation, integrating orientation via the exponential
// map and position semi-implicitly, with each reading held constant over its
// interval. The final partial interval is clamped to the query time; if the
// query lies beyond the newest sample the last reading is held to the end.
// Cost is linear in the number of samples in the window.
func (p *Predictor) predictIMUIntegrate(ts int64, gravity r3.Vec) Relation {
	t0, base, ok := p.hist.Latest()
	if !ok {
		return InvalidRelation()
	}

	q := base.Orientation
	pos := base.Position
	v := r3.Vec{}
	if base.Flags.Has(FlagLinearVelocityValid) {
		v = base.LinearVelocity
	}

	// Seed with the newest readings at or before t0 so integration keeps
	// going when no newer samples have arrived yet.
	var w, a r3.Vec
	haveIMU := false
	if g, _, ok := p.gyro.Before(t0); ok {
		w = g
		haveIMU = true
	}
	if ac, _, ok := p.accel.Before(t0); ok {
		a = ac
		haveIMU = true
	}

	gyros := p.gyro.Since(t0)
	accels := p.accel.Since(t0)

	step := func(dt float64) {
		q = IntegrateAngularVelocity(q, w, dt)
		aWorld := r3.Add(Rotate(q, a), gravity)
		// Position first with the pre-update velocity, then the velocity.
		pos = r3.Add(pos, r3.Add(r3.Scale(dt, v), r3.Scale(0.5*dt*dt, aWorld)))
		v = r3.Add(v, r3.Scale(dt, aWorld))
	}

	prev := t0
	for i, gs := range gyros {
		end := gs.Timestamp
		clamped := false
		if end > ts {
			end = ts
			clamped = true
		}
		w = gs.Vec
		// Gyro and accel rings are fed from the same IMU packet stream, so
		// entries pair up index-wise.
		if i < len(accels) {
			a = accels[i].Vec
		}
		haveIMU = true
		if dt := DurationSeconds(prev, end); dt >= minDtSeconds {
			step(dt)
		}
		prev = end
		if clamped {
			break
		}
	}
	if prev < ts {
		if dt := DurationSeconds(prev, ts); dt >= minDtSeconds {
			if haveIMU {
				step(dt)
			} else {
				// No IMU data at all: degrade to velocity-only
				// extrapolation instead of integrating bare gravity.
				pos = r3.Add(pos, r3.Scale(dt, v))
			}
		}
	}

	out := base
	out.Orientation = q
	out.Position = pos
	// A velocity is only meaningful when it came from somewhere: the base
	// relation or an actual integrated reading. With neither, v is a
	// fabricated zero and stays unflagged.
	if base.Flags.Has(FlagLinearVelocityValid) || haveIMU {
		out.LinearVelocity = v
		out.Flags |= FlagLinearVelocityValid
	}
	if haveIMU {
		out.AngularVelocity = w
		out.Flags |= FlagAngularVelocityValid
	}
	return out
}

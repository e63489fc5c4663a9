package motion

import (
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Default filter parameters. The one-euro values are the head-tracking
// suggestions from the original publication's tuning.
const (
	DefaultMovingAverageWindow = 100 * time.Millisecond
	DefaultExpSmoothingAlpha   = 0.6
	DefaultOneEuroFcMin        = 30.0
	DefaultOneEuroFcMinD       = 25.0
	DefaultOneEuroBeta         = 0.6
)

// FilterConfig holds independent enables and parameters for the three
// post-prediction smoothing stages. All three may be enabled at once; they
// always apply in the fixed order moving average, exponential smoothing,
// adaptive low-pass.
type FilterConfig struct {
	MovingAverageEnabled bool
	MovingAverageWindow  time.Duration

	ExpSmoothingEnabled bool
	ExpSmoothingAlpha   float64 // blend factor in (0, 1]

	OneEuroEnabled bool
	OneEuroFcMin   float64 // minimum cutoff frequency, Hz
	OneEuroFcMinD  float64 // minimum cutoff for the derivative filter, Hz
	OneEuroBeta    float64 // speed coefficient
}

// DefaultFilterConfig returns all stages disabled with the documented
// default parameters in place, ready to be toggled at runtime.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MovingAverageWindow: DefaultMovingAverageWindow,
		ExpSmoothingAlpha:   DefaultExpSmoothingAlpha,
		OneEuroFcMin:        DefaultOneEuroFcMin,
		OneEuroFcMinD:       DefaultOneEuroFcMinD,
		OneEuroBeta:         DefaultOneEuroBeta,
	}
}

// Pipeline applies the configured smoothing stages to prediction output.
// It is owned by the single consumer context issuing pose queries and holds
// no lock: pose queries must never be issued concurrently for the same
// tracked object (a documented precondition, not enforced here).
//
// Stage state persists across config changes. Toggling a stage off and back
// on resumes from the persisted state, which may introduce an output
// discontinuity; that is accepted behavior, not hidden.
type Pipeline struct {
	cfg FilterConfig

	// Moving-average windows. The rotation window stores quaternion vector
	// parts, hemisphere-aligned on push; see averageOrientation.
	posWindow *SampleRing
	rotWindow *SampleRing

	expHavePos bool
	expHaveRot bool
	expPos     r3.Vec
	expRot     quat.Number

	euroPos euroVec3
	euroRot euroQuat
}

// NewPipeline creates a pipeline with the given stage configuration.
func NewPipeline(cfg FilterConfig) *Pipeline {
	p := &Pipeline{
		posWindow: NewSampleRing(DefaultRingCapacity),
		rotWindow: NewSampleRing(DefaultRingCapacity),
	}
	p.SetConfig(cfg)
	return p
}

// SetConfig replaces the stage parameters. Internal state is deliberately
// left untouched so a re-enabled stage resumes where it left off.
func (p *Pipeline) SetConfig(cfg FilterConfig) {
	if cfg.MovingAverageWindow <= 0 {
		cfg.MovingAverageWindow = DefaultMovingAverageWindow
	}
	if cfg.ExpSmoothingAlpha <= 0 || cfg.ExpSmoothingAlpha > 1 {
		cfg.ExpSmoothingAlpha = DefaultExpSmoothingAlpha
	}
	if cfg.OneEuroFcMin <= 0 {
		cfg.OneEuroFcMin = DefaultOneEuroFcMin
	}
	if cfg.OneEuroFcMinD <= 0 {
		cfg.OneEuroFcMinD = DefaultOneEuroFcMinD
	}
	if cfg.OneEuroBeta < 0 {
		cfg.OneEuroBeta = DefaultOneEuroBeta
	}
	p.cfg = cfg
	p.euroPos.fcMin, p.euroPos.fcMinD, p.euroPos.beta = cfg.OneEuroFcMin, cfg.OneEuroFcMinD, cfg.OneEuroBeta
	p.euroRot.fcMin, p.euroRot.fcMinD, p.euroRot.beta = cfg.OneEuroFcMin, cfg.OneEuroFcMinD, cfg.OneEuroBeta
}

// Config returns the current stage configuration.
func (p *Pipeline) Config() FilterConfig {
	return p.cfg
}

// Apply runs the enabled stages over a predicted relation. Disabled stages
// pass the prior stage's value through untouched. Only position and
// orientation are filtered, and only when their valid flags are set; the
// result is deterministic in the (relation, timestamp) input sequence.
func (p *Pipeline) Apply(rel Relation, ts int64) Relation {
	out := rel
	filterPos := rel.Flags.Has(FlagPositionValid)
	filterRot := rel.Flags.Has(FlagOrientationValid)

	if p.cfg.MovingAverageEnabled {
		if filterPos {
			p.posWindow.Push(out.Position, ts)
			from := ts - p.cfg.MovingAverageWindow.Nanoseconds()
			out.Position = p.posWindow.WindowedAverage(from, ts+1)
		}
		if filterRot {
			out.Orientation = p.averageOrientation(out.Orientation, ts)
		}
	}

	if p.cfg.ExpSmoothingEnabled {
		// Priming only ever consumes flagged-valid fields; an invalid
		// relation passing through must not poison the persisted state with
		// its undefined zero values. Position and orientation prime
		// independently since a 3-DoF source can carry one without the other.
		alpha := p.cfg.ExpSmoothingAlpha
		if filterPos {
			if !p.expHavePos {
				p.expPos, p.expHavePos = out.Position, true
			} else {
				p.expPos = Lerp(p.expPos, out.Position, alpha)
				out.Position = p.expPos
			}
		}
		if filterRot {
			if !p.expHaveRot {
				p.expRot, p.expHaveRot = out.Orientation, true
			} else {
				p.expRot = Slerp(p.expRot, out.Orientation, alpha)
				out.Orientation = p.expRot
			}
		}
	}

	if p.cfg.OneEuroEnabled {
		if filterPos {
			out.Position = p.euroPos.run(ts, out.Position)
		}
		if filterRot {
			out.Orientation = p.euroRot.run(ts, out.Orientation)
		}
	}

	return out
}

// averageOrientation pushes the quaternion's vector part into the rotation
// window and averages it component-wise, reconstructing the scalar part from
// the unit-norm constraint. This is an approximation, not a proper
// quaternion mean: it is only well behaved for the narrow rotation spreads a
// smoothing window sees. Samples are hemisphere-aligned on push so the
// reconstructed scalar keeps a consistent sign.
func (p *Pipeline) averageOrientation(q quat.Number, ts int64) quat.Number {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	p.rotWindow.Push(r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}, ts)

	from := ts - p.cfg.MovingAverageWindow.Nanoseconds()
	avg := p.rotWindow.WindowedAverage(from, ts+1)
	w := 1 - r3.Dot(avg, avg)
	if w < 0 {
		w = 0
	}
	return QuatNormalize(quat.Number{
		Real: math.Sqrt(w),
		Imag: avg.X,
		Jmag: avg.Y,
		Kmag: avg.Z,
	})
}

// euroBase carries the state shared by all one-euro filter variants: the
// tuning parameters and the previous sample timestamp. The cutoff frequency
// rises with the estimated signal speed, trading lag for noise rejection.
type euroBase struct {
	fcMin  float64
	fcMinD float64
	beta   float64

	havePrev bool
	prevTS   int64
}

// smoothingAlpha converts a cutoff frequency into an exponential blend
// factor for a sample dt seconds after the previous one.
func smoothingAlpha(dt, fc float64) float64 {
	r := 2 * math.Pi * fc * dt
	return r / (r + 1)
}

// euroVec3 is a one-euro filter over a 3-vector, filtered per axis with a
// shared speed estimate.
type euroVec3 struct {
	euroBase
	prevY  r3.Vec
	prevDy r3.Vec
}

func (f *euroVec3) run(ts int64, y r3.Vec) r3.Vec {
	if !f.havePrev {
		f.havePrev = true
		f.prevTS = ts
		f.prevY = y
		f.prevDy = r3.Vec{}
		return y
	}
	dt := DurationSeconds(f.prevTS, ts)
	if dt < minDtSeconds {
		return f.prevY
	}

	dy := r3.Scale(1/dt, r3.Sub(y, f.prevY))
	f.prevDy = Lerp(f.prevDy, dy, smoothingAlpha(dt, f.fcMinD))

	fc := f.fcMin + f.beta*r3.Norm(f.prevDy)
	f.prevY = Lerp(f.prevY, y, smoothingAlpha(dt, fc))
	f.prevTS = ts
	return f.prevY
}

// euroQuat is a one-euro filter over a unit quaternion. Signal speed is the
// angular rate between consecutive samples; the filtered value is a slerp
// toward the new measurement.
type euroQuat struct {
	euroBase
	prevY     quat.Number
	prevSpeed float64
}

func (f *euroQuat) run(ts int64, y quat.Number) quat.Number {
	if !f.havePrev {
		f.havePrev = true
		f.prevTS = ts
		f.prevY = y
		f.prevSpeed = 0
		return y
	}
	dt := DurationSeconds(f.prevTS, ts)
	if dt < minDtSeconds {
		return f.prevY
	}

	speed := AngleBetween(f.prevY, y) / dt
	f.prevSpeed += smoothingAlpha(dt, f.fcMinD) * (speed - f.prevSpeed)

	fc := f.fcMin + f.beta*f.prevSpeed
	f.prevY = Slerp(f.prevY, y, smoothingAlpha(dt, fc))
	f.prevTS = ts
	return f.prevY
}

package tracker

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/posetrack/internal/motion"
)

// TrackingQuality grades accumulated ground-truth error the same way pose
// calibration quality is graded elsewhere in the stack.
type TrackingQuality string

const (
	// QualityExcellent indicates RMSE < 0.05m.
	QualityExcellent TrackingQuality = "excellent"
	// QualityGood indicates RMSE 0.05-0.15m.
	QualityGood TrackingQuality = "good"
	// QualityFair indicates RMSE 0.15-0.30m.
	QualityFair TrackingQuality = "fair"
	// QualityPoor indicates RMSE > 0.30m.
	QualityPoor TrackingQuality = "poor"
)

// RMSE thresholds for the quality grades, in meters.
const (
	rmseThresholdExcellent = 0.05
	rmseThresholdGood      = 0.15
	rmseThresholdFair      = 0.30
)

// maxErrorSamples bounds the accumulated error series; beyond it the oldest
// samples are shed.
const maxErrorSamples = 10000

// groundTruthAxisCorrection rotates the recorder's z-up convention into the
// y-up tracking frame: a fixed -90 degree rotation about X. This is a
// constant transform only; no trajectory alignment or optimisation is
// attempted, so a ground-truth source with a different convention needs its
// own correction upstream.
var groundTruthAxisCorrection = quat.Number{
	Real: math.Sqrt2 / 2,
	Imag: -math.Sqrt2 / 2,
}

// GroundTruthComparator maintains a reference trajectory and measures the
// positional error of the tracked trajectory against it. The first pushed
// sample fixes the common origin.
type GroundTruthComparator struct {
	mu         sync.Mutex
	hist       *motion.RelationHistory
	origin     Pose
	haveOrigin bool
	errs       []float64
}

// NewGroundTruthComparator creates an empty comparator.
func NewGroundTruthComparator() *GroundTruthComparator {
	return &GroundTruthComparator{
		hist: motion.NewRelationHistory(),
	}
}

// Push ingests a reference pose. The first sample becomes the coordinate
// origin; every sample is re-expressed relative to it and axis-corrected
// into the tracking frame before being stored.
func (g *GroundTruthComparator) Push(p TimedPose) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.haveOrigin {
		g.origin = p.Pose
		g.haveOrigin = true
	}

	aligned := g.alignLocked(p.Pose)
	rel := motion.Relation{
		Flags:       motion.FlagOrientationValid | motion.FlagPositionValid,
		Orientation: aligned.Orientation,
		Position:    aligned.Position,
	}
	g.hist.Push(rel, p.Timestamp)
}

// alignLocked applies the origin offset and the constant axis correction.
// Callers hold the comparator lock.
func (g *GroundTruthComparator) alignLocked(p Pose) Pose {
	pos := motion.Rotate(groundTruthAxisCorrection, r3.Sub(p.Position, g.origin.Position))
	rot := quat.Mul(groundTruthAxisCorrection,
		quat.Mul(p.Orientation, quat.Conj(g.origin.Orientation)))
	return Pose{Orientation: motion.QuatNormalize(rot), Position: pos}
}

// ErrorAt interpolates the reference trajectory at ts and returns the
// Euclidean distance to the tracked position. The bool is false when no
// reference data exists. Each successful comparison is accumulated for
// Stats.
func (g *GroundTruthComparator) ErrorAt(ts int64, tracked r3.Vec) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rel, outcome := g.hist.Get(ts)
	if outcome == motion.LookupNone {
		return 0, false
	}
	err := r3.Norm(r3.Sub(tracked, rel.Position))

	g.errs = append(g.errs, err)
	if len(g.errs) > maxErrorSamples {
		g.errs = g.errs[len(g.errs)-maxErrorSamples:]
	}
	return err, true
}

// ErrorStats summarises the accumulated positional error.
type ErrorStats struct {
	Count      int
	MeanMeters float64
	RMSEMeters float64
	MaxMeters  float64
	Quality    TrackingQuality
}

// Stats reports error statistics over every comparison made so far. The
// bool is false before the first comparison.
func (g *GroundTruthComparator) Stats() (ErrorStats, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.errs) == 0 {
		return ErrorStats{}, false
	}

	sumSq := 0.0
	maxErr := 0.0
	for _, e := range g.errs {
		sumSq += e * e
		if e > maxErr {
			maxErr = e
		}
	}
	rmse := math.Sqrt(sumSq / float64(len(g.errs)))

	s := ErrorStats{
		Count:      len(g.errs),
		MeanMeters: stat.Mean(g.errs, nil),
		RMSEMeters: rmse,
		MaxMeters:  maxErr,
	}
	switch {
	case rmse < rmseThresholdExcellent:
		s.Quality = QualityExcellent
	case rmse < rmseThresholdGood:
		s.Quality = QualityGood
	case rmse < rmseThresholdFair:
		s.Quality = QualityFair
	default:
		s.Quality = QualityPoor
	}
	return s, true
}

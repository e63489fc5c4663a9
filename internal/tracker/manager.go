package tracker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/posetrack/internal/monitoring"
	"github.com/banshee-data/posetrack/internal/motion"
)

// StreamState is the lifecycle state of one logical producer stream.
type StreamState string

const (
	// StreamIdle means no sample has been accepted yet.
	StreamIdle StreamState = "idle"
	// StreamReceiving means at least one sample has been accepted and the
	// monotonic ordering invariant is being enforced.
	StreamReceiving StreamState = "receiving"
)

// stream tracks ordering state for one producer stream. The first sample is
// always accepted; afterwards timestamps must be strictly increasing, the
// sole ordering invariant enforced at ingestion. Violations drop the sample
// and keep the stream alive.
type stream struct {
	name    string
	state   StreamState
	lastTS  int64
	dropped int
}

func newStream(name string) stream {
	return stream{name: name, state: StreamIdle, lastTS: math.MinInt64}
}

// accept reports whether a sample at ts honors the ordering invariant and
// advances the stream state. Callers hold the manager lock.
func (s *stream) accept(ts int64) bool {
	if s.state == StreamReceiving && ts <= s.lastTS {
		s.dropped++
		monitoring.Logf("tracker: dropping out-of-order %s sample ts=%d last=%d", s.name, ts, s.lastTS)
		return false
	}
	s.state = StreamReceiving
	s.lastTS = ts
	monitoring.Debugf("tracker: %s sample ts=%d", s.name, ts)
	return true
}

// Config holds the construction-time parameters of a Manager. Everything
// here is also runtime-settable through the corresponding setter.
type Config struct {
	GyroCapacity     int
	AccelCapacity    int
	HistoryMaxAge    time.Duration
	HistoryMaxCount  int
	Mode             motion.Mode
	Gravity          r3.Vec
	Filters          motion.FilterConfig
	SubmitToExternal bool
}

// DefaultConfig returns the documented defaults: history interpolation,
// standard gravity, all filters off, submission enabled from the start.
func DefaultConfig() Config {
	return Config{
		GyroCapacity:     motion.DefaultRingCapacity,
		AccelCapacity:    motion.DefaultRingCapacity,
		HistoryMaxAge:    motion.DefaultHistoryMaxAge,
		HistoryMaxCount:  motion.DefaultHistoryMaxEntries,
		Mode:             motion.ModeInterpolate,
		Gravity:          motion.DefaultGravity,
		Filters:          motion.DefaultFilterConfig(),
		SubmitToExternal: true,
	}
}

// Manager is the ingestion boundary for one tracked object. Producer-side
// calls (PushIMU, PushFrame, PushGroundTruth and the external tracker's
// result queue) may arrive on independent transport threads; the pose query
// side is a single consumer context. The manager's lock guards stream and
// cache state only and is never held across a call into the external
// tracker or the filter pipeline.
type Manager struct {
	id       uuid.UUID
	external ExternalTracker // may be nil

	hist      *motion.RelationHistory
	gyro      *motion.SampleRing
	accel     *motion.SampleRing
	predictor *motion.Predictor

	// Owned by the consumer context; pose queries must not be issued
	// concurrently for the same tracked object.
	pipeline *motion.Pipeline

	groundTruth *GroundTruthComparator // optional, nil when disabled

	mu           sync.Mutex
	submit       bool
	imuStream    stream
	resultStream stream
	truthStream  stream
	frameStreams map[int]*stream
	lastPose     TimedPose
	haveLast     bool
	cacheTS      int64
	cacheRel     motion.Relation
	cacheValid   bool
}

// NewManager creates a manager around an external tracker. A nil tracker is
// allowed: ingestion and prediction then run purely on locally pushed data.
func NewManager(external ExternalTracker, cfg Config) *Manager {
	hist := motion.NewRelationHistoryWithBounds(cfg.HistoryMaxCount, cfg.HistoryMaxAge)
	gyro := motion.NewSampleRing(cfg.GyroCapacity)
	accel := motion.NewSampleRing(cfg.AccelCapacity)

	predictor := motion.NewPredictor(hist, gyro, accel)
	predictor.SetMode(cfg.Mode)
	predictor.SetGravity(cfg.Gravity)

	return &Manager{
		id:           uuid.New(),
		external:     external,
		hist:         hist,
		gyro:         gyro,
		accel:        accel,
		predictor:    predictor,
		pipeline:     motion.NewPipeline(cfg.Filters),
		submit:       cfg.SubmitToExternal,
		imuStream:    newStream("imu"),
		resultStream: newStream("tracker-result"),
		truthStream:  newStream("ground-truth"),
		frameStreams: make(map[int]*stream),
	}
}

// ID identifies this tracked object.
func (m *Manager) ID() uuid.UUID {
	return m.id
}

// SetGroundTruth attaches an optional ground-truth comparator. Pass nil to
// detach.
func (m *Manager) SetGroundTruth(gt *GroundTruthComparator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groundTruth = gt
}

// GroundTruth returns the attached comparator, or nil.
func (m *Manager) GroundTruth() *GroundTruthComparator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groundTruth
}

// PushIMU ingests a gyro/accelerometer sample from the sensor transport.
// Accepted samples land in the local rings and, while submission is enabled,
// are forwarded to the external tracker.
func (m *Manager) PushIMU(s IMUSample) {
	m.mu.Lock()
	ok := m.imuStream.accept(s.Timestamp)
	submit := ok && m.submit && m.external != nil
	if ok {
		m.cacheValid = false
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.gyro.Push(s.Gyro, s.Timestamp)
	m.accel.Push(s.Accel, s.Timestamp)

	if submit {
		m.external.PushIMU(s)
	}
}

// PushFrame ingests a camera frame. Frames carry no local state beyond
// ordering; while submission is enabled they are forwarded to the external
// tracker. Each camera index is its own ordered stream.
func (m *Manager) PushFrame(f Frame) {
	m.mu.Lock()
	st, found := m.frameStreams[f.Camera]
	if !found {
		s := newStream(fmt.Sprintf("camera-%d", f.Camera))
		st = &s
		m.frameStreams[f.Camera] = st
	}
	ok := st.accept(f.Timestamp)
	submit := ok && m.submit && m.external != nil
	m.mu.Unlock()

	if submit {
		m.external.PushFrame(f)
	}
}

// PushGroundTruth ingests an optional reference pose from an external
// ground-truth source.
func (m *Manager) PushGroundTruth(p TimedPose) {
	m.mu.Lock()
	ok := m.truthStream.accept(p.Timestamp)
	gt := m.groundTruth
	m.mu.Unlock()
	if !ok || gt == nil {
		return
	}
	gt.Push(p)
}

// Flush drains every currently queued tracker result into the relation
// history, preserving arrival order, and returns the number of accepted
// results. It never blocks: the external queue is polled until empty.
func (m *Manager) Flush() int {
	if m.external == nil {
		return 0
	}

	// Drain outside the manager lock; the external queue has its own.
	var drained []TimedPose
	for {
		p, ok := m.external.TryDequeuePose()
		if !ok {
			break
		}
		drained = append(drained, p)
	}
	if len(drained) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accepted := 0
	for _, p := range drained {
		if !m.resultStream.accept(p.Timestamp) {
			continue
		}
		rel := m.relationFromLocked(p)
		m.hist.Push(rel, p.Timestamp)
		m.lastPose = p
		m.haveLast = true
		accepted++
	}
	if accepted > 0 {
		m.cacheValid = false
	}
	return accepted
}

// relationFromLocked converts a dequeued tracker pose into a spatial
// relation, deriving linear velocity from the positional delta and angular
// velocity from a finite difference of consecutive orientations. The first
// pose, and poses arriving within the numeric dt floor, carry no
// velocities. Callers hold the manager lock.
func (m *Manager) relationFromLocked(p TimedPose) motion.Relation {
	rel := motion.Relation{
		Flags: motion.FlagOrientationValid | motion.FlagPositionValid |
			motion.FlagOrientationTracked | motion.FlagPositionTracked,
		Orientation: motion.QuatNormalize(p.Pose.Orientation),
		Position:    p.Pose.Position,
	}
	if !m.haveLast {
		return rel
	}
	dt := motion.DurationSeconds(m.lastPose.Timestamp, p.Timestamp)
	if dt < 1e-9 {
		return rel
	}
	rel.LinearVelocity = r3.Scale(1/dt, r3.Sub(p.Pose.Position, m.lastPose.Pose.Position))
	rel.AngularVelocity = motion.FiniteDifference(m.lastPose.Pose.Orientation, p.Pose.Orientation, dt)
	rel.Flags |= motion.FlagLinearVelocityValid | motion.FlagAngularVelocityValid
	return rel
}

// GetTrackedPose is the synchronous query entry point for the rendering
// side: flush, predict at the query time, filter, return. The last
// (timestamp, result) pair is cached so repeated queries at an identical
// timestamp with no intervening samples are idempotent without
// recomputation.
func (m *Manager) GetTrackedPose(ts int64) motion.Relation {
	m.Flush()

	m.mu.Lock()
	if m.cacheValid && m.cacheTS == ts {
		rel := m.cacheRel
		m.mu.Unlock()
		return rel
	}
	m.mu.Unlock()

	rel := m.predictor.PredictAt(ts)
	rel = m.pipeline.Apply(rel, ts)

	m.mu.Lock()
	m.cacheTS = ts
	m.cacheRel = rel
	m.cacheValid = true
	m.mu.Unlock()
	return rel
}

// TrackingErrorAt compares the tracked position at ts against the attached
// ground-truth trajectory. The bool is false when no comparator is attached
// or either side has no data at ts.
func (m *Manager) TrackingErrorAt(ts int64) (float64, bool) {
	m.mu.Lock()
	gt := m.groundTruth
	m.mu.Unlock()
	if gt == nil {
		return 0, false
	}
	rel := m.GetTrackedPose(ts)
	if !rel.Flags.Has(motion.FlagPositionValid) {
		return 0, false
	}
	return gt.ErrorAt(ts, rel.Position)
}

// SetPredictionMode switches the prediction mode at runtime.
func (m *Manager) SetPredictionMode(mode motion.Mode) {
	m.predictor.SetMode(mode)
	m.invalidateCache()
}

// PredictionMode returns the current prediction mode.
func (m *Manager) PredictionMode() motion.Mode {
	return m.predictor.Mode()
}

// SetGravity replaces the gravity-correction vector used by the IMU modes.
func (m *Manager) SetGravity(g r3.Vec) {
	m.predictor.SetGravity(g)
	m.invalidateCache()
}

// SetSubmit toggles forwarding of accepted samples to the external tracker.
// While paused, ingestion keeps updating the local history and rings.
func (m *Manager) SetSubmit(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submit = on
}

// Submitting reports whether accepted samples are forwarded onward.
func (m *Manager) Submitting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submit
}

// SetFilterConfig replaces the filter stage parameters. Must be called from
// the consumer context, like pose queries; filter state persists across
// reconfiguration.
func (m *Manager) SetFilterConfig(cfg motion.FilterConfig) {
	m.pipeline.SetConfig(cfg)
	m.invalidateCache()
}

// DroppedSamples reports how many samples each stream rejected for ordering
// violations.
func (m *Manager) DroppedSamples() (imu, frames, results int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.frameStreams {
		frames += st.dropped
	}
	return m.imuStream.dropped, frames, m.resultStream.dropped
}

func (m *Manager) invalidateCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheValid = false
}

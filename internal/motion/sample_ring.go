package motion

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultRingCapacity spans a few seconds of samples at typical IMU rates,
// enough to cover the largest supported prediction and smoothing windows.
const DefaultRingCapacity = 1000

// TimedVec is a timestamped 3-vector sample.
type TimedVec struct {
	Vec       r3.Vec
	Timestamp int64
}

// SampleRing is a fixed-capacity circular buffer of timestamped vectors that
// overwrites the oldest slot when full. Writers are sensor-sink callbacks and
// readers the prediction engine, so all access is guarded by an internal
// lock.
type SampleRing struct {
	mu    sync.Mutex
	slots []TimedVec
	head  int // next write position
	size  int
}

// NewSampleRing creates a ring with the given capacity. Non-positive
// capacities fall back to the default.
func NewSampleRing(capacity int) *SampleRing {
	if capacity < 1 {
		capacity = DefaultRingCapacity
	}
	return &SampleRing{slots: make([]TimedVec, capacity)}
}

// Push appends a sample in O(1), overwriting the oldest slot when full.
func (r *SampleRing) Push(v r3.Vec, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[r.head] = TimedVec{Vec: v, Timestamp: ts}
	r.head = (r.head + 1) % len(r.slots)
	if r.size < len(r.slots) {
		r.size++
	}
}

// At returns the sample n steps back from the most recent: At(0) is the
// newest, At(1) the one before it. The bool is false when n exceeds the
// populated count.
func (r *SampleRing) At(n int) (r3.Vec, int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 || n >= r.size {
		return r3.Vec{}, 0, false
	}
	s := r.slots[r.index(n)]
	return s.Vec, s.Timestamp, true
}

// index maps "n back from newest" onto the backing slice. Callers hold mu.
func (r *SampleRing) index(n int) int {
	return (r.head - 1 - n + 2*len(r.slots)) % len(r.slots)
}

// Before returns the most recent sample with timestamp at or before ts.
func (r *SampleRing) Before(ts int64) (r3.Vec, int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n := 0; n < r.size; n++ {
		s := r.slots[r.index(n)]
		if s.Timestamp <= ts {
			return s.Vec, s.Timestamp, true
		}
	}
	return r3.Vec{}, 0, false
}

// Since returns a copy of all samples with timestamps strictly after ts,
// ordered oldest to newest.
func (r *SampleRing) Since(ts int64) []TimedVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TimedVec
	for n := r.size - 1; n >= 0; n-- {
		s := r.slots[r.index(n)]
		if s.Timestamp > ts {
			out = append(out, s)
		}
	}
	return out
}

// WindowedAverage returns the arithmetic mean of all stored samples whose
// timestamp falls in [from, to). An empty window yields the zero vector,
// which callers must treat as "no data" rather than "zero motion".
func (r *SampleRing) WindowedAverage(from, to int64) r3.Vec {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum r3.Vec
	count := 0
	for n := 0; n < r.size; n++ {
		s := r.slots[r.index(n)]
		if s.Timestamp >= from && s.Timestamp < to {
			sum = r3.Add(sum, s.Vec)
			count++
		}
	}
	if count == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/float64(count), sum)
}

// Len returns the number of populated slots.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed slot count.
func (r *SampleRing) Capacity() int {
	return len(r.slots)
}

// Clear empties the ring.
func (r *SampleRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}

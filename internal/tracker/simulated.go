package tracker

import (
	"sync"
)

// DefaultSimulatedQueueCap bounds the simulated result queue; the real
// system's queue is unbounded but a simulation that is never drained should
// shed old results instead of growing without limit.
const DefaultSimulatedQueueCap = 256

// SimulatedTracker is an in-memory ExternalTracker for tests and the
// simulation harness. It does no tracking of its own: the driving code
// decides which poses to emit via QueuePose, and pushed samples are only
// counted so tests can assert on submission behavior.
type SimulatedTracker struct {
	mu         sync.Mutex
	queue      []TimedPose
	maxQueued  int
	imuCount   int
	frameCount int
}

// NewSimulatedTracker creates a simulated tracker with the default queue
// bound.
func NewSimulatedTracker() *SimulatedTracker {
	return &SimulatedTracker{maxQueued: DefaultSimulatedQueueCap}
}

// PushIMU counts a submitted IMU sample.
func (s *SimulatedTracker) PushIMU(IMUSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imuCount++
}

// PushFrame counts a submitted camera frame.
func (s *SimulatedTracker) PushFrame(Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCount++
}

// QueuePose enqueues a tracking result for later dequeue, dropping the
// oldest queued result when the bound is reached.
func (s *SimulatedTracker) QueuePose(p TimedPose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.maxQueued {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, p)
}

// TryDequeuePose pops the oldest queued result without blocking.
func (s *SimulatedTracker) TryDequeuePose() (TimedPose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return TimedPose{}, false
	}
	p := s.queue[0]
	s.queue = s.queue[1:]
	return p, true
}

// SubmittedCounts reports how many IMU samples and frames were pushed in.
func (s *SimulatedTracker) SubmittedCounts() (imu, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imuCount, s.frameCount
}

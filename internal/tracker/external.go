// Package tracker owns the concurrency boundary of the pose engine: it
// receives asynchronous pose results and raw sensor samples on producer
// threads, validates stream ordering, and answers synchronous deadline-bound
// pose queries from the consumer side.
package tracker

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a rigid transform as produced by the external tracking system.
type Pose struct {
	Orientation quat.Number
	Position    r3.Vec
}

// TimedPose is a pose stamped with monotonic nanoseconds.
type TimedPose struct {
	Timestamp int64
	Pose      Pose
}

// IMUSample is one gyro/accelerometer reading pair from the sensor
// transport. Gyro is rad/s in the body frame, Accel m/s² specific force.
type IMUSample struct {
	Timestamp int64
	Gyro      r3.Vec
	Accel     r3.Vec
}

// Frame is a timestamped camera frame. The payload is opaque to this
// subsystem; it is only ordered, counted and forwarded.
type Frame struct {
	Timestamp int64
	Camera    int
	Data      []byte
}

// ExternalTracker is the opaque asynchronous tracking system (visual-
// inertial odometry or an IMU fusion filter). Samples are pushed in on the
// callers' threads; tracked poses come back through an internal thread-safe
// result queue that TryDequeuePose polls without blocking.
type ExternalTracker interface {
	// PushIMU submits an IMU sample for fusion.
	PushIMU(s IMUSample)

	// PushFrame submits a camera frame for tracking.
	PushFrame(f Frame)

	// TryDequeuePose pops the oldest queued tracking result, reporting false
	// immediately when none is available.
	TryDequeuePose() (TimedPose, bool)
}

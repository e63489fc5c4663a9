// Command posesim drives the pose engine against a synthetic circular
// trajectory with analytically known IMU readings, then reports the tracking
// error of each prediction mode against the ground-truth path. It runs in
// virtual time, so a multi-second scenario finishes in milliseconds.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/posetrack/internal/config"
	"github.com/banshee-data/posetrack/internal/monitoring"
	"github.com/banshee-data/posetrack/internal/motion"
	"github.com/banshee-data/posetrack/internal/tracker"
	"github.com/banshee-data/posetrack/internal/version"
)

// duration wraps time.Duration so YAML can carry "40ms"-style strings.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// Scenario describes one simulated run. Zero fields fall back to the
// defaults in defaultScenario.
type Scenario struct {
	Name           string   `yaml:"name"`
	Duration       duration `yaml:"duration"`
	Radius         float64  `yaml:"radius"`       // meters
	AngularRate    float64  `yaml:"angular_rate"` // rad/s around the vertical axis
	IMURateHz      float64  `yaml:"imu_rate_hz"`
	TrackerRateHz  float64  `yaml:"tracker_rate_hz"`
	TrackerLatency duration `yaml:"tracker_latency"`
	QueryRateHz    float64  `yaml:"query_rate_hz"`
}

func defaultScenario() Scenario {
	return Scenario{
		Name:           "circle",
		Duration:       duration(5 * time.Second),
		Radius:         1.0,
		AngularRate:    math.Pi / 2, // one revolution per 4s
		IMURateHz:      500,
		TrackerRateHz:  30,
		TrackerLatency: duration(40 * time.Millisecond),
		QueryRateHz:    90,
	}
}

func loadScenario(path string) (Scenario, error) {
	sc := defaultScenario()
	if path == "" {
		return sc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.Duration <= 0 || sc.IMURateHz <= 0 || sc.TrackerRateHz <= 0 || sc.QueryRateHz <= 0 {
		return sc, fmt.Errorf("scenario rates and duration must be positive")
	}
	return sc, nil
}

// circleState evaluates the analytic trajectory at time t seconds: a circle
// of the given radius in the horizontal plane, the body yawing with the
// tangent. Gravity is the configured world vector; the returned accel is the
// specific force an ideal accelerometer would read.
type circleState struct {
	pos   r3.Vec
	orien quat.Number
	gyro  r3.Vec
	accel r3.Vec
}

func evalCircle(sc Scenario, gravity r3.Vec, t float64) circleState {
	w := sc.AngularRate
	angle := w * t

	// The circle is shifted so the trajectory starts at the tracking origin;
	// the comparator fixes its coordinate origin on the first sample.
	radial := r3.Vec{X: sc.Radius * math.Cos(angle), Z: sc.Radius * math.Sin(angle)}
	pos := r3.Sub(radial, r3.Vec{X: sc.Radius})
	// Yaw about the vertical so the body faces along the tangent.
	orien := quat.Number{Real: math.Cos(-angle / 2), Jmag: math.Sin(-angle / 2)}

	// Centripetal acceleration points at the circle's center.
	aWorld := r3.Scale(-w*w, radial)
	// Specific force is the body-frame view of (a - g).
	fBody := motion.Rotate(quat.Conj(orien), r3.Sub(aWorld, gravity))

	return circleState{
		pos:   pos,
		orien: orien,
		gyro:  r3.Vec{Y: -w},
		accel: fBody,
	}
}

// toRecorderFrame converts a tracking-frame (y-up) pose into the z-up
// convention a motion-capture recorder emits, the inverse of the comparator's
// axis correction.
func toRecorderFrame(p tracker.Pose) tracker.Pose {
	inv := quat.Number{Real: math.Sqrt2 / 2, Imag: math.Sqrt2 / 2}
	return tracker.Pose{
		Orientation: motion.QuatNormalize(quat.Mul(inv, p.Orientation)),
		Position:    motion.Rotate(inv, p.Position),
	}
}

func run(sc Scenario, mgr *tracker.Manager, sim *tracker.SimulatedTracker, gravity r3.Vec) (queries int) {
	imuPeriod := int64(float64(time.Second) / sc.IMURateHz)
	trackerPeriod := int64(float64(time.Second) / sc.TrackerRateHz)
	queryPeriod := int64(float64(time.Second) / sc.QueryRateHz)
	latency := int64(sc.TrackerLatency)
	end := int64(sc.Duration)

	// Seed the comparator's origin with the trajectory start.
	start := evalCircle(sc, gravity, 0)
	mgr.PushGroundTruth(tracker.TimedPose{
		Timestamp: 0,
		Pose:      toRecorderFrame(tracker.Pose{Orientation: start.orien, Position: start.pos}),
	})

	nextIMU, nextTracker, nextQuery := int64(0), int64(0), int64(0)
	for now := int64(0); now <= end; {
		if nextIMU <= now {
			st := evalCircle(sc, gravity, float64(nextIMU)/float64(time.Second))
			mgr.PushIMU(tracker.IMUSample{Timestamp: nextIMU, Gyro: st.gyro, Accel: st.accel})
			nextIMU += imuPeriod
		}
		if nextTracker <= now {
			// The tracker reports a pose for an earlier instant, modelling
			// its processing latency.
			ts := nextTracker - latency
			if ts >= 0 {
				st := evalCircle(sc, gravity, float64(ts)/float64(time.Second))
				truth := tracker.Pose{Orientation: st.orien, Position: st.pos}
				sim.QueuePose(tracker.TimedPose{Timestamp: ts, Pose: truth})
				mgr.PushGroundTruth(tracker.TimedPose{
					Timestamp: ts,
					Pose:      toRecorderFrame(truth),
				})
			}
			nextTracker += trackerPeriod
		}
		if nextQuery <= now {
			if _, ok := mgr.TrackingErrorAt(nextQuery); ok {
				queries++
			}
			nextQuery += queryPeriod
		}

		now = min(nextIMU, nextTracker, nextQuery)
	}
	return queries
}

func main() {
	scenarioPath := flag.String("scenario", "", "YAML scenario file (defaults to a 5s circle)")
	tuningPath := flag.String("tuning", "", "JSON tuning config (defaults to built-in values)")
	modeOverride := flag.String("mode", "", "Override the prediction mode for this run")
	allModes := flag.Bool("all-modes", false, "Run every prediction mode and compare")
	debug := flag.Bool("debug", false, "Enable per-sample trace logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("posesim %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	sc, err := loadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posesim: %v\n", err)
		os.Exit(1)
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "posesim: %v\n", err)
			os.Exit(1)
		}
	}
	monitoring.SetDebug(*debug || tuning.GetDebugSampleTrace())

	modeName := tuning.GetPredictionMode()
	if *modeOverride != "" {
		modeName = *modeOverride
	}
	modes := []string{modeName}
	if *allModes {
		modes = []string{"none", "interpolate", "interpolate_gyro", "interpolate_gyro_accel", "imu_integrate"}
	}

	gx, gy, gz := tuning.GetGravity()
	gravity := r3.Vec{X: gx, Y: gy, Z: gz}

	runID := uuid.New()
	fmt.Printf("run %s: scenario %q, %.1fs at r=%.2fm w=%.3frad/s, tracker latency %v\n",
		runID, sc.Name, time.Duration(sc.Duration).Seconds(), sc.Radius, sc.AngularRate,
		time.Duration(sc.TrackerLatency))
	fmt.Println("mode,queries,mean_m,rmse_m,max_m,quality")

	for _, name := range modes {
		mode, err := motion.ParseMode(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "posesim: %v\n", err)
			os.Exit(1)
		}

		cfg := tracker.DefaultConfig()
		cfg.GyroCapacity = tuning.GetGyroCapacity()
		cfg.AccelCapacity = tuning.GetAccelCapacity()
		cfg.HistoryMaxAge = tuning.GetHistoryMaxAge()
		cfg.HistoryMaxCount = tuning.GetHistoryMaxCount()
		cfg.Mode = mode
		cfg.Gravity = gravity
		cfg.SubmitToExternal = tuning.GetSubmitFromStart()
		cfg.Filters = motion.FilterConfig{
			MovingAverageEnabled: tuning.GetMovingAverageEnabled(),
			MovingAverageWindow:  tuning.GetMovingAverageWindow(),
			ExpSmoothingEnabled:  tuning.GetExpSmoothingEnabled(),
			ExpSmoothingAlpha:    tuning.GetExpSmoothingAlpha(),
			OneEuroEnabled:       tuning.GetOneEuroEnabled(),
			OneEuroFcMin:         tuning.GetOneEuroFcMin(),
			OneEuroFcMinD:        tuning.GetOneEuroFcMinD(),
			OneEuroBeta:          tuning.GetOneEuroBeta(),
		}

		sim := tracker.NewSimulatedTracker()
		mgr := tracker.NewManager(sim, cfg)
		mgr.SetGroundTruth(tracker.NewGroundTruthComparator())

		queries := run(sc, mgr, sim, gravity)

		stats, ok := mgr.GroundTruth().Stats()
		if !ok {
			fmt.Fprintf(os.Stderr, "posesim: mode %s produced no comparable queries\n", name)
			continue
		}
		fmt.Printf("%s,%d,%.4f,%.4f,%.4f,%s\n",
			name, queries, stats.MeanMeters, stats.RMSEMeters, stats.MaxMeters, stats.Quality)

		imuDropped, framesDropped, resultsDropped := mgr.DroppedSamples()
		if imuDropped+framesDropped+resultsDropped > 0 {
			monitoring.Logf("posesim: mode %s dropped imu=%d frames=%d results=%d",
				name, imuDropped, framesDropped, resultsDropped)
		}
	}
}

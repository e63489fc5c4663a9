package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// knownPredictionModes lists the accepted prediction_mode names.
var knownPredictionModes = map[string]bool{
	"none":                   true,
	"interpolate":            true,
	"interpolate_gyro":       true,
	"interpolate_gyro_accel": true,
	"imu_integrate":          true,
}

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply the defaults for everything else.
type TuningConfig struct {
	// Prediction params
	PredictionMode *string  `json:"prediction_mode,omitempty"`
	GravityX       *float64 `json:"gravity_x,omitempty"`
	GravityY       *float64 `json:"gravity_y,omitempty"`
	GravityZ       *float64 `json:"gravity_z,omitempty"`

	// Ingestion params
	GyroCapacity     *int    `json:"gyro_capacity,omitempty"`
	AccelCapacity    *int    `json:"accel_capacity,omitempty"`
	HistoryMaxCount  *int    `json:"history_max_count,omitempty"`
	HistoryMaxAge    *string `json:"history_max_age,omitempty"` // duration string like "5s"
	SubmitFromStart  *bool   `json:"submit_from_start,omitempty"`
	DebugSampleTrace *bool   `json:"debug_sample_trace,omitempty"`

	// Filter params
	MovingAverageEnabled *bool    `json:"moving_average_enabled,omitempty"`
	MovingAverageWindow  *string  `json:"moving_average_window,omitempty"` // duration string like "100ms"
	ExpSmoothingEnabled  *bool    `json:"exp_smoothing_enabled,omitempty"`
	ExpSmoothingAlpha    *float64 `json:"exp_smoothing_alpha,omitempty"`
	OneEuroEnabled       *bool    `json:"one_euro_enabled,omitempty"`
	OneEuroFcMin         *float64 `json:"one_euro_fc_min,omitempty"`
	OneEuroFcMinD        *float64 `json:"one_euro_fc_min_d,omitempty"`
	OneEuroBeta          *float64 `json:"one_euro_beta,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.PredictionMode != nil && !knownPredictionModes[*c.PredictionMode] {
		return fmt.Errorf("unknown prediction_mode %q", *c.PredictionMode)
	}

	if c.HistoryMaxAge != nil && *c.HistoryMaxAge != "" {
		if _, err := time.ParseDuration(*c.HistoryMaxAge); err != nil {
			return fmt.Errorf("invalid history_max_age '%s': %w", *c.HistoryMaxAge, err)
		}
	}

	if c.MovingAverageWindow != nil && *c.MovingAverageWindow != "" {
		if _, err := time.ParseDuration(*c.MovingAverageWindow); err != nil {
			return fmt.Errorf("invalid moving_average_window '%s': %w", *c.MovingAverageWindow, err)
		}
	}

	if c.ExpSmoothingAlpha != nil {
		if *c.ExpSmoothingAlpha <= 0 || *c.ExpSmoothingAlpha > 1 {
			return fmt.Errorf("exp_smoothing_alpha must be in (0, 1], got %f", *c.ExpSmoothingAlpha)
		}
	}

	if c.OneEuroFcMin != nil && *c.OneEuroFcMin <= 0 {
		return fmt.Errorf("one_euro_fc_min must be positive, got %f", *c.OneEuroFcMin)
	}
	if c.OneEuroFcMinD != nil && *c.OneEuroFcMinD <= 0 {
		return fmt.Errorf("one_euro_fc_min_d must be positive, got %f", *c.OneEuroFcMinD)
	}
	if c.OneEuroBeta != nil && *c.OneEuroBeta < 0 {
		return fmt.Errorf("one_euro_beta must be non-negative, got %f", *c.OneEuroBeta)
	}

	if c.GyroCapacity != nil && *c.GyroCapacity < 1 {
		return fmt.Errorf("gyro_capacity must be at least 1, got %d", *c.GyroCapacity)
	}
	if c.AccelCapacity != nil && *c.AccelCapacity < 1 {
		return fmt.Errorf("accel_capacity must be at least 1, got %d", *c.AccelCapacity)
	}
	if c.HistoryMaxCount != nil && *c.HistoryMaxCount < 2 {
		return fmt.Errorf("history_max_count must be at least 2, got %d", *c.HistoryMaxCount)
	}

	return nil
}

// GetPredictionMode returns the prediction_mode value or the default.
func (c *TuningConfig) GetPredictionMode() string {
	if c.PredictionMode == nil {
		return "interpolate" // default
	}
	return *c.PredictionMode
}

// GetGravity returns the gravity vector components or standard gravity in
// the y-up tracking frame.
func (c *TuningConfig) GetGravity() (x, y, z float64) {
	x, y, z = 0, -9.80665, 0
	if c.GravityX != nil {
		x = *c.GravityX
	}
	if c.GravityY != nil {
		y = *c.GravityY
	}
	if c.GravityZ != nil {
		z = *c.GravityZ
	}
	return x, y, z
}

// GetGyroCapacity returns the gyro_capacity value or the default.
func (c *TuningConfig) GetGyroCapacity() int {
	if c.GyroCapacity == nil {
		return 1000
	}
	return *c.GyroCapacity
}

// GetAccelCapacity returns the accel_capacity value or the default.
func (c *TuningConfig) GetAccelCapacity() int {
	if c.AccelCapacity == nil {
		return 1000
	}
	return *c.AccelCapacity
}

// GetHistoryMaxCount returns the history_max_count value or the default.
func (c *TuningConfig) GetHistoryMaxCount() int {
	if c.HistoryMaxCount == nil {
		return 4096
	}
	return *c.HistoryMaxCount
}

// GetHistoryMaxAge parses and returns the HistoryMaxAge as a time.Duration.
func (c *TuningConfig) GetHistoryMaxAge() time.Duration {
	if c.HistoryMaxAge == nil || *c.HistoryMaxAge == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.HistoryMaxAge)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetSubmitFromStart returns the submit_from_start value or the default.
func (c *TuningConfig) GetSubmitFromStart() bool {
	if c.SubmitFromStart == nil {
		return true // default: forward samples immediately
	}
	return *c.SubmitFromStart
}

// GetDebugSampleTrace returns the debug_sample_trace value or the default.
func (c *TuningConfig) GetDebugSampleTrace() bool {
	if c.DebugSampleTrace == nil {
		return false
	}
	return *c.DebugSampleTrace
}

// GetMovingAverageEnabled returns the moving_average_enabled value or the default.
func (c *TuningConfig) GetMovingAverageEnabled() bool {
	if c.MovingAverageEnabled == nil {
		return false
	}
	return *c.MovingAverageEnabled
}

// GetMovingAverageWindow parses and returns the MovingAverageWindow as a
// time.Duration.
func (c *TuningConfig) GetMovingAverageWindow() time.Duration {
	if c.MovingAverageWindow == nil || *c.MovingAverageWindow == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.MovingAverageWindow)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetExpSmoothingEnabled returns the exp_smoothing_enabled value or the default.
func (c *TuningConfig) GetExpSmoothingEnabled() bool {
	if c.ExpSmoothingEnabled == nil {
		return false
	}
	return *c.ExpSmoothingEnabled
}

// GetExpSmoothingAlpha returns the exp_smoothing_alpha value or the default.
func (c *TuningConfig) GetExpSmoothingAlpha() float64 {
	if c.ExpSmoothingAlpha == nil {
		return 0.6
	}
	return *c.ExpSmoothingAlpha
}

// GetOneEuroEnabled returns the one_euro_enabled value or the default.
func (c *TuningConfig) GetOneEuroEnabled() bool {
	if c.OneEuroEnabled == nil {
		return false
	}
	return *c.OneEuroEnabled
}

// GetOneEuroFcMin returns the one_euro_fc_min value or the default.
func (c *TuningConfig) GetOneEuroFcMin() float64 {
	if c.OneEuroFcMin == nil {
		return 30.0
	}
	return *c.OneEuroFcMin
}

// GetOneEuroFcMinD returns the one_euro_fc_min_d value or the default.
func (c *TuningConfig) GetOneEuroFcMinD() float64 {
	if c.OneEuroFcMinD == nil {
		return 25.0
	}
	return *c.OneEuroFcMinD
}

// GetOneEuroBeta returns the one_euro_beta value or the default.
func (c *TuningConfig) GetOneEuroBeta() float64 {
	if c.OneEuroBeta == nil {
		return 0.6
	}
	return *c.OneEuroBeta
}

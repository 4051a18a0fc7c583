// Package telemetry is the southbound bridge between the simulation
// and an external controller: it ships periodic measurement batches
// out and receives scalar actions back, with a bounded wait so the
// simulation never stalls on a slow controller.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// EnvConfig is the environment configuration consumed at startup. All
// times are millisecond integers, matching the persisted JSON format.
type EnvConfig struct {
	MeasurementStartTimeMs int `json:"measurement_start_time_ms"`
	MeasurementIntervalMs  int `json:"measurement_interval_ms"`
	MaxWaitTimeForActionMs int `json:"max_wait_time_for_action_ms"`
	EnvEndTimeMs           int `json:"env_end_time_ms"`
}

// DefaultEnvConfig returns the defaults the multi-BSS environment uses.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{
		MeasurementStartTimeMs: 1000,
		MeasurementIntervalMs:  100,
		MaxWaitTimeForActionMs: 500,
		EnvEndTimeMs:           20000,
	}
}

// LoadEnvConfig reads the JSON environment configuration from r.
func LoadEnvConfig(r io.Reader) (EnvConfig, error) {
	cfg := DefaultEnvConfig()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("decode env config: %w", err)
	}
	if cfg.MeasurementIntervalMs <= 0 {
		return EnvConfig{}, fmt.Errorf("measurement_interval_ms must be positive, got %d", cfg.MeasurementIntervalMs)
	}
	return cfg, nil
}

// MeasurementStart returns the offset before the first measurement.
func (c EnvConfig) MeasurementStart() time.Duration {
	return time.Duration(c.MeasurementStartTimeMs) * time.Millisecond
}

// MeasurementInterval returns the measurement period.
func (c EnvConfig) MeasurementInterval() time.Duration {
	return time.Duration(c.MeasurementIntervalMs) * time.Millisecond
}

// MaxActionWait bounds how long the simulation blocks for an action.
func (c EnvConfig) MaxActionWait() time.Duration {
	return time.Duration(c.MaxWaitTimeForActionMs) * time.Millisecond
}

// EnvEnd returns the simulation stop time.
func (c EnvConfig) EnvEnd() time.Duration {
	return time.Duration(c.EnvEndTimeMs) * time.Millisecond
}

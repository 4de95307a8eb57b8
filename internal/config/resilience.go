/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RecoveryMode selects whether hard stalls trigger recovery on their own.
type RecoveryMode string

const (
	RecoveryAuto   RecoveryMode = "auto"
	RecoveryManual RecoveryMode = "manual"
)

// Resilience is the single tuning object for stall detection, recovery and
// composite sync. Audio and video sessions share it.
type Resilience struct {
	SoftMs                  int          `yaml:"softMs"`
	HardMs                  int          `yaml:"hardMs"`
	RecoveryStrategies      []string     `yaml:"recoveryStrategies"`
	SeekBackOnReloadSeconds float64      `yaml:"seekBackOnReloadSeconds"`
	Mode                    RecoveryMode `yaml:"mode"`
	DriftThresholdSeconds   float64      `yaml:"driftThresholdSeconds"`
	AbortThresholdSeconds   float64      `yaml:"abortThresholdSeconds"`

	NudgeEpsilonSeconds  float64 `yaml:"nudgeEpsilonSeconds"`
	SeekBackSeconds      float64 `yaml:"seekBackSeconds"`
	SyncIntervalMs       int     `yaml:"syncIntervalMs"`
	CheckpointIntervalMs int     `yaml:"checkpointIntervalMs"`
	ResumeStaleAfterMs   int     `yaml:"resumeStaleAfterMs"`
	MaxSessionRebuilds   int     `yaml:"maxSessionRebuilds"`
}

// DefaultResilience returns the defaults used when a key is absent.
func DefaultResilience() Resilience {
	return Resilience{
		SoftMs:                  1200,
		HardMs:                  8000,
		RecoveryStrategies:      []string{"nudge", "seekback", "reload"},
		SeekBackOnReloadSeconds: 2,
		Mode:                    RecoveryAuto,
		DriftThresholdSeconds:   0.5,
		AbortThresholdSeconds:   3.0,
		NudgeEpsilonSeconds:     0.1,
		SeekBackSeconds:         5,
		SyncIntervalMs:          1000,
		CheckpointIntervalMs:    5000,
		ResumeStaleAfterMs:      30000,
		MaxSessionRebuilds:      3,
	}
}

// LoadResilience builds the resilience settings from defaults, an optional
// YAML file and GRIMNIR_* environment overrides, in that order.
func LoadResilience(path string) (Resilience, error) {
	r := DefaultResilience()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Resilience{}, fmt.Errorf("read resilience file: %w", err)
		}
		if err := yaml.Unmarshal(data, &r); err != nil {
			return Resilience{}, fmt.Errorf("parse resilience file: %w", err)
		}
	}

	r.SoftMs = getEnvIntAny([]string{"GRIMNIR_STALL_SOFT_MS"}, r.SoftMs)
	r.HardMs = getEnvIntAny([]string{"GRIMNIR_STALL_HARD_MS"}, r.HardMs)
	if list := getEnvListAny([]string{"GRIMNIR_RECOVERY_STRATEGIES"}); len(list) > 0 {
		r.RecoveryStrategies = list
	}
	r.SeekBackOnReloadSeconds = getEnvFloatAny([]string{"GRIMNIR_RELOAD_SEEKBACK_SECONDS"}, r.SeekBackOnReloadSeconds)
	r.Mode = RecoveryMode(getEnvAny([]string{"GRIMNIR_RECOVERY_MODE"}, string(r.Mode)))
	r.DriftThresholdSeconds = getEnvFloatAny([]string{"GRIMNIR_SYNC_DRIFT_SECONDS"}, r.DriftThresholdSeconds)
	r.AbortThresholdSeconds = getEnvFloatAny([]string{"GRIMNIR_SYNC_ABORT_SECONDS"}, r.AbortThresholdSeconds)
	r.NudgeEpsilonSeconds = getEnvFloatAny([]string{"GRIMNIR_NUDGE_EPSILON_SECONDS"}, r.NudgeEpsilonSeconds)
	r.SeekBackSeconds = getEnvFloatAny([]string{"GRIMNIR_SEEKBACK_SECONDS"}, r.SeekBackSeconds)
	r.SyncIntervalMs = getEnvIntAny([]string{"GRIMNIR_SYNC_INTERVAL_MS"}, r.SyncIntervalMs)
	r.CheckpointIntervalMs = getEnvIntAny([]string{"GRIMNIR_CHECKPOINT_INTERVAL_MS"}, r.CheckpointIntervalMs)
	r.ResumeStaleAfterMs = getEnvIntAny([]string{"GRIMNIR_RESUME_STALE_MS"}, r.ResumeStaleAfterMs)
	r.MaxSessionRebuilds = getEnvIntAny([]string{"GRIMNIR_MAX_SESSION_REBUILDS"}, r.MaxSessionRebuilds)

	if err := r.Validate(); err != nil {
		return Resilience{}, err
	}
	return r, nil
}

// Validate rejects settings the detector and sync cannot honour.
func (r Resilience) Validate() error {
	var errs []error
	if r.SoftMs <= 0 {
		errs = append(errs, fmt.Errorf("softMs must be positive, got %d", r.SoftMs))
	}
	if r.HardMs <= r.SoftMs {
		errs = append(errs, fmt.Errorf("hardMs (%d) must exceed softMs (%d)", r.HardMs, r.SoftMs))
	}
	if r.Mode != RecoveryAuto && r.Mode != RecoveryManual {
		errs = append(errs, fmt.Errorf("unknown recovery mode %q", r.Mode))
	}
	if r.SeekBackOnReloadSeconds < 0 || r.SeekBackSeconds < 0 || r.NudgeEpsilonSeconds < 0 {
		errs = append(errs, errors.New("seek distances must not be negative"))
	}
	if r.DriftThresholdSeconds <= 0 || r.AbortThresholdSeconds <= r.DriftThresholdSeconds {
		errs = append(errs, fmt.Errorf("abortThresholdSeconds (%v) must exceed driftThresholdSeconds (%v) > 0",
			r.AbortThresholdSeconds, r.DriftThresholdSeconds))
	}
	if r.MaxSessionRebuilds < 0 {
		errs = append(errs, fmt.Errorf("maxSessionRebuilds must not be negative, got %d", r.MaxSessionRebuilds))
	}
	if r.SyncIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("syncIntervalMs must be positive, got %d", r.SyncIntervalMs))
	}
	return errors.Join(errs...)
}

// Soft returns the soft stall threshold.
func (r Resilience) Soft() time.Duration { return time.Duration(r.SoftMs) * time.Millisecond }

// Hard returns the hard recovery threshold.
func (r Resilience) Hard() time.Duration { return time.Duration(r.HardMs) * time.Millisecond }

// SyncInterval returns the composite sync tick period.
func (r Resilience) SyncInterval() time.Duration {
	return time.Duration(r.SyncIntervalMs) * time.Millisecond
}

// CheckpointInterval returns how often playback position is persisted.
func (r Resilience) CheckpointInterval() time.Duration {
	return time.Duration(r.CheckpointIntervalMs) * time.Millisecond
}

// ResumeStaleAfter returns how long a pause may last before resume re-enters pending.
func (r Resilience) ResumeStaleAfter() time.Duration {
	return time.Duration(r.ResumeStaleAfterMs) * time.Millisecond
}

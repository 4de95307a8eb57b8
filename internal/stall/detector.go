/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package stall detects playback that has stopped making forward progress.
package stall

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/clock"
)

// Mode selects whether the detector escalates to hard recovery by itself.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Config holds detector thresholds.
type Config struct {
	Soft time.Duration // quiet period before a soft stall is declared
	Hard time.Duration // total quiet period before a recovery attempt
	Mode Mode
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{Soft: 1200 * time.Millisecond, Hard: 8000 * time.Millisecond, Mode: ModeAuto}
}

// Callbacks are invoked from timer goroutines without the detector lock held.
type Callbacks struct {
	// OnSoftStall fires when no progress arrived for at least Soft.
	OnSoftStall func(quiet time.Duration)
	// OnHardStall fires when the hard timer expires while still stalled.
	// Returning false leaves the detector stalled with nothing armed.
	OnHardStall func(quiet time.Duration) (rearm bool)
}

// State is the per-session stall record.
type State struct {
	LastProgressAt time.Time
	Stalled        bool
	StalledAt      time.Time
	Suspended      bool
	SoftArmed      bool
	HardArmed      bool
}

// Detector owns one session's State and its timer pair.
type Detector struct {
	cfg    Config
	clk    clock.Clock
	cb     Callbacks
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	soft    clock.Timer
	hard    clock.Timer
	softGen uint64
	hardGen uint64
	stopped bool
}

// New creates a detector. It starts suspended until Resume is called.
func New(cfg Config, clk clock.Clock, cb Callbacks, logger zerolog.Logger) *Detector {
	if clk == nil {
		clk = clock.Real()
	}
	return &Detector{
		cfg:    cfg,
		clk:    clk,
		cb:     cb,
		logger: logger.With().Str("component", "stall_detector").Logger(),
		state:  State{LastProgressAt: clk.Now(), Suspended: true},
	}
}

// MarkProgress records confirmed forward progress. When the session was
// stalled it cancels every timer, clears the stall and reports recovered.
func (d *Detector) MarkProgress() (recovered bool, stalledFor time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clk.Now()
	d.state.LastProgressAt = now
	if !d.state.Stalled {
		return false, 0
	}

	stalledFor = now.Sub(d.state.StalledAt)
	d.clearTimersLocked()
	d.state.Stalled = false
	d.state.StalledAt = time.Time{}

	d.logger.Info().Dur("stalled_for", stalledFor).Msg("progress resumed")
	return true, stalledFor
}

// ScheduleCheck arms the soft timer when the session intends to play and no
// timer is already armed.
func (d *Detector) ScheduleCheck() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armSoftLocked(d.cfg.Soft)
}

// Suspend clears timers and stops checking, for a paused or absent engine.
func (d *Detector) Suspend() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Suspended {
		return
	}
	d.clearTimersLocked()
	d.state.Suspended = true
	d.logger.Debug().Msg("detection suspended")
}

// Resume lifts a suspension and restarts the quiet-period baseline at now.
func (d *Detector) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.state.Suspended {
		return
	}
	d.state.Suspended = false
	d.state.LastProgressAt = d.clk.Now()
	d.logger.Debug().Msg("detection resumed")
}

// Stop clears every armed timer permanently.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearTimersLocked()
	d.stopped = true
	d.state.Suspended = true
}

// Snapshot returns a copy of the stall state.
func (d *Detector) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.state
	s.SoftArmed = d.soft != nil
	s.HardArmed = d.hard != nil
	return s
}

// Config returns the detector thresholds.
func (d *Detector) Config() Config {
	return d.cfg
}

func (d *Detector) armSoftLocked(after time.Duration) bool {
	if d.stopped || d.state.Suspended || d.soft != nil || d.hard != nil {
		return false
	}
	d.softGen++
	gen := d.softGen
	d.soft = d.clk.AfterFunc(after, func() { d.fireSoft(gen) })
	return true
}

func (d *Detector) fireSoft(gen uint64) {
	d.mu.Lock()
	if gen != d.softGen || d.soft == nil {
		d.mu.Unlock()
		return
	}
	d.soft = nil
	if d.state.Suspended {
		d.mu.Unlock()
		return
	}

	now := d.clk.Now()
	quiet := now.Sub(d.state.LastProgressAt)
	if quiet < d.cfg.Soft {
		d.armSoftLocked(d.cfg.Soft - quiet)
		d.mu.Unlock()
		return
	}

	if !d.state.Stalled {
		d.state.Stalled = true
		d.state.StalledAt = now
	}
	if d.cfg.Mode == ModeAuto {
		d.hardGen++
		hgen := d.hardGen
		d.hard = d.clk.AfterFunc(d.cfg.Hard-d.cfg.Soft, func() { d.fireHard(hgen) })
	}
	d.mu.Unlock()

	d.logger.Warn().Dur("quiet", quiet).Msg("soft stall")
	if d.cb.OnSoftStall != nil {
		d.cb.OnSoftStall(quiet)
	}
}

func (d *Detector) fireHard(gen uint64) {
	d.mu.Lock()
	if gen != d.hardGen || d.hard == nil {
		d.mu.Unlock()
		return
	}
	d.hard = nil
	if d.state.Suspended || !d.state.Stalled {
		d.mu.Unlock()
		return
	}
	quiet := d.clk.Now().Sub(d.state.LastProgressAt)
	d.mu.Unlock()

	d.logger.Warn().Dur("quiet", quiet).Msg("hard stall, requesting recovery")
	rearm := true
	if d.cb.OnHardStall != nil {
		rearm = d.cb.OnHardStall(quiet)
	}

	if rearm {
		d.mu.Lock()
		if d.state.Stalled {
			d.armSoftLocked(d.cfg.Soft)
		}
		d.mu.Unlock()
	}
}

func (d *Detector) clearTimersLocked() {
	if d.soft != nil {
		d.soft.Stop()
		d.soft = nil
	}
	if d.hard != nil {
		d.hard.Stop()
		d.hard = nil
	}
	d.softGen++
	d.hardGen++
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package composite keeps a follower engine in step with a leader engine,
// for example a separate audio bed under a silent video wall.
package composite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/clock"
	"github.com/friendsincode/grimnir_display/internal/engine"
	"github.com/friendsincode/grimnir_display/internal/events"
	"github.com/friendsincode/grimnir_display/internal/telemetry"
)

// ErrDesync indicates drift past the abort threshold. It is never corrected
// automatically.
var ErrDesync = errors.New("composite drift beyond abort threshold")

// Link pairs a leader and a follower. Links live only in memory.
type Link struct {
	LeaderID       string
	FollowerID     string
	DriftThreshold float64 // seconds; corrected by seeking the follower
	AbortThreshold float64 // seconds; reported as ErrDesync
}

// DefaultLink returns a link with the stock thresholds.
func DefaultLink(leaderID, followerID string) Link {
	return Link{LeaderID: leaderID, FollowerID: followerID, DriftThreshold: 0.5, AbortThreshold: 3.0}
}

// Validate checks the thresholds.
func (l Link) Validate() error {
	if l.DriftThreshold <= 0 {
		return fmt.Errorf("drift threshold must be positive, got %v", l.DriftThreshold)
	}
	if l.AbortThreshold <= l.DriftThreshold {
		return fmt.Errorf("abort threshold %v must exceed drift threshold %v", l.AbortThreshold, l.DriftThreshold)
	}
	return nil
}

// Action reports what one tick did.
type Action struct {
	Drift    float64
	Paused   bool // follower was paused to match the leader
	Played   bool // follower was resumed to match the leader
	Seeked   bool
	Fatal    bool
	Skipped  bool // an engine was absent or the link already failed
	SeekedTo float64
}

// Sync drives one link. The leader is only ever read.
type Sync struct {
	link     Link
	leader   engine.Accessor
	follower engine.Accessor
	interval time.Duration
	clk      clock.Clock
	bus      events.Publisher
	logger   zerolog.Logger

	mu      sync.Mutex
	failed  bool
	onFatal []func(error)
}

// NewSync builds a Sync for link. A nil clk uses the wall clock.
func NewSync(link Link, leader, follower engine.Accessor, interval time.Duration, clk clock.Clock, bus events.Publisher, logger zerolog.Logger) (*Sync, error) {
	if err := link.Validate(); err != nil {
		return nil, err
	}
	if leader == nil || follower == nil {
		return nil, fmt.Errorf("composite sync needs leader and follower accessors")
	}
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sync{
		link:     link,
		leader:   leader,
		follower: follower,
		interval: interval,
		clk:      clk,
		bus:      bus,
		logger: logger.With().
			Str("component", "composite").
			Str("leader", link.LeaderID).
			Str("follower", link.FollowerID).
			Logger(),
	}, nil
}

// OnFatal registers fn for ErrDesync.
func (s *Sync) OnFatal(fn func(error)) {
	s.mu.Lock()
	s.onFatal = append(s.onFatal, fn)
	s.mu.Unlock()
}

// Failed reports whether the link hit the abort threshold since the last Reset.
func (s *Sync) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Reset clears the failed mark so ticks correct drift again.
func (s *Sync) Reset() {
	s.mu.Lock()
	s.failed = false
	s.mu.Unlock()
}

// Tick aligns pause state, then corrects or reports drift.
func (s *Sync) Tick(ctx context.Context) (Action, error) {
	s.mu.Lock()
	failed := s.failed
	s.mu.Unlock()
	if failed {
		return Action{Skipped: true}, nil
	}

	leader, follower := s.leader(), s.follower()
	if leader == nil || follower == nil {
		return Action{Skipped: true}, nil
	}

	var act Action
	switch lp, fp := leader.Paused(), follower.Paused(); {
	case lp && !fp:
		if err := follower.Pause(ctx); err != nil {
			return act, fmt.Errorf("pause follower: %w", err)
		}
		act.Paused = true
		telemetry.CompositeCorrectionsTotal.WithLabelValues("pause").Inc()
	case !lp && fp:
		if err := follower.Play(ctx); err != nil {
			return act, fmt.Errorf("play follower: %w", err)
		}
		act.Played = true
		telemetry.CompositeCorrectionsTotal.WithLabelValues("play").Inc()
	}

	target := leader.Position()
	act.Drift = math.Abs(target - follower.Position())
	telemetry.CompositeDrift.Observe(act.Drift)

	switch {
	case act.Drift > s.link.AbortThreshold:
		act.Fatal = true
		s.fail(act.Drift)
		return act, fmt.Errorf("%w: %.3fs", ErrDesync, act.Drift)
	case act.Drift > s.link.DriftThreshold:
		if err := follower.Seek(ctx, target); err != nil {
			return act, fmt.Errorf("seek follower: %w", err)
		}
		act.Seeked = true
		act.SeekedTo = target
		telemetry.CompositeCorrectionsTotal.WithLabelValues("seek").Inc()
		s.logger.Debug().Float64("drift", act.Drift).Float64("target", target).Msg("follower resynced")
	}
	return act, nil
}

// Run ticks every interval until ctx is done. The next tick is armed only
// after the previous one finished, so ticks never overlap.
func (s *Sync) Run(ctx context.Context) {
	var (
		mu    sync.Mutex
		timer clock.Timer
		tick  func()
	)
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, ErrDesync) {
			s.logger.Warn().Err(err).Msg("composite sync tick failed")
		}
		mu.Lock()
		if ctx.Err() == nil {
			timer = s.clk.AfterFunc(s.interval, tick)
		}
		mu.Unlock()
	}

	s.logger.Info().Dur("interval", s.interval).Msg("composite sync started")
	mu.Lock()
	timer = s.clk.AfterFunc(s.interval, tick)
	mu.Unlock()

	<-ctx.Done()
	mu.Lock()
	timer.Stop()
	mu.Unlock()
	s.logger.Info().Msg("composite sync stopped")
}

func (s *Sync) fail(drift float64) {
	s.mu.Lock()
	if s.failed {
		s.mu.Unlock()
		return
	}
	s.failed = true
	fns := append([]func(error){}, s.onFatal...)
	s.mu.Unlock()

	err := fmt.Errorf("%w: %.3fs", ErrDesync, drift)
	telemetry.CompositeCorrectionsTotal.WithLabelValues("fatal").Inc()
	s.logger.Error().Float64("drift", drift).Float64("abort_threshold", s.link.AbortThreshold).Msg("composite desync")
	if s.bus != nil {
		s.bus.Publish(events.EventCompositeDesync, events.Payload{
			"leader":   s.link.LeaderID,
			"follower": s.link.FollowerID,
			"drift":    drift,
		})
	}
	for _, fn := range fns {
		fn(err)
	}
}

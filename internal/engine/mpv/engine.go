/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mpv drives a kiosk mpv instance over its JSON IPC socket.
package mpv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/engine"
)

// DefaultPollPeriod is how often properties are sampled.
const DefaultPollPeriod = 250 * time.Millisecond

// snapshot is one sample of the observed properties.
type snapshot struct {
	pos       float64
	hasPos    bool
	dur       float64
	hasDur    bool
	paused    bool
	buffering bool
	eof       bool
}

// Engine implements engine.Engine against mpv. Accessors return the values
// seen by the last poll.
type Engine struct {
	ipc    *client
	period time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	last  snapshot
	reset bool // forget the previous sample after a reload
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine bound to the IPC socket at socketPath.
func New(socketPath string, period time.Duration, logger zerolog.Logger) *Engine {
	if period <= 0 {
		period = DefaultPollPeriod
	}
	return &Engine{
		ipc:    &client{socketPath: socketPath},
		period: period,
		logger: logger.With().Str("component", "mpv").Str("socket", socketPath).Logger(),
	}
}

func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.pos
}

func (e *Engine) Duration() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.dur, e.last.hasDur
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.paused
}

func (e *Engine) Play(ctx context.Context) error {
	if err := e.ipc.set(ctx, "pause", false); err != nil {
		return fmt.Errorf("mpv play: %w", err)
	}
	return nil
}

func (e *Engine) Pause(ctx context.Context) error {
	if err := e.ipc.set(ctx, "pause", true); err != nil {
		return fmt.Errorf("mpv pause: %w", err)
	}
	return nil
}

func (e *Engine) Seek(ctx context.Context, seconds float64) error {
	if _, err := e.ipc.command(ctx, "seek", seconds, "absolute"); err != nil {
		return fmt.Errorf("mpv seek: %w", err)
	}
	return nil
}

func (e *Engine) SetPlaybackRate(ctx context.Context, rate float64) error {
	if err := e.ipc.set(ctx, "speed", rate); err != nil {
		return fmt.Errorf("mpv speed: %w", err)
	}
	return nil
}

func (e *Engine) SetVolume(ctx context.Context, level float64) error {
	if err := engine.ValidateVolume(level); err != nil {
		return err
	}
	if err := e.ipc.set(ctx, "volume", level*100); err != nil {
		return fmt.Errorf("mpv volume: %w", err)
	}
	return nil
}

func (e *Engine) Reload(ctx context.Context, sourceRef string) error {
	if _, err := e.ipc.command(ctx, "loadfile", sourceRef, "replace"); err != nil {
		return fmt.Errorf("mpv loadfile: %w", err)
	}
	e.mu.Lock()
	e.last = snapshot{}
	e.reset = true
	e.mu.Unlock()
	e.logger.Info().Str("source", sourceRef).Msg("loaded source")
	return nil
}

// Run polls mpv until ctx is done and sends property changes to sink.
func (e *Engine) Run(ctx context.Context, sink engine.Sink) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.poll(ctx, sink); err != nil && ctx.Err() == nil {
				e.logger.Debug().Err(err).Msg("poll failed")
			}
		}
	}
}

func (e *Engine) poll(ctx context.Context, sink engine.Sink) error {
	cur, err := e.sample(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	prev := e.last
	if e.reset {
		prev = snapshot{paused: cur.paused}
		e.reset = false
	}
	e.last = cur
	e.mu.Unlock()

	for _, sig := range diff(prev, cur) {
		sink(sig)
	}
	return nil
}

func (e *Engine) sample(ctx context.Context) (snapshot, error) {
	var s snapshot
	var err error

	if s.paused, err = e.ipc.getBool(ctx, "pause"); err != nil {
		return s, err
	}
	s.pos, err = e.ipc.getFloat(ctx, "time-pos")
	s.hasPos, err = optional(err)
	if err != nil {
		return s, err
	}
	s.dur, err = e.ipc.getFloat(ctx, "duration")
	s.hasDur, err = optional(err)
	if err != nil {
		return s, err
	}
	if s.buffering, err = e.ipc.getBool(ctx, "paused-for-cache"); err != nil && !errors.Is(err, ErrPropertyUnavailable) {
		return s, err
	}
	if s.eof, err = e.ipc.getBool(ctx, "eof-reached"); err != nil && !errors.Is(err, ErrPropertyUnavailable) {
		return s, err
	}
	return s, nil
}

func optional(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPropertyUnavailable):
		return false, nil
	default:
		return false, err
	}
}

// diff turns two samples into engine signals, in the order a session
// expects them.
func diff(prev, cur snapshot) []engine.Signal {
	var out []engine.Signal

	if cur.hasDur && !prev.hasDur {
		out = append(out, engine.DurationKnown(cur.dur))
	}
	if cur.paused != prev.paused {
		if cur.paused {
			out = append(out, engine.Signal{Kind: engine.SignalPaused})
		} else {
			out = append(out, engine.Signal{Kind: engine.SignalPlaying})
		}
	}
	if cur.buffering && !prev.buffering {
		out = append(out, engine.Signal{Kind: engine.SignalWaiting})
	}
	if cur.hasPos {
		switch {
		case !prev.hasPos || cur.pos > prev.pos:
			out = append(out, engine.Progress(cur.pos))
		case cur.pos < prev.pos:
			out = append(out, engine.Signal{Kind: engine.SignalSeeked, Time: cur.pos})
		}
	}
	if cur.eof && !prev.eof {
		out = append(out, engine.Signal{Kind: engine.SignalEnded})
	}
	return out
}

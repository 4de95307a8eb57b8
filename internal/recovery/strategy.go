/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recovery escalates through an ordered list of recovery strategies
// while a playback session stays stalled.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/friendsincode/grimnir_display/internal/engine"
)

var (
	// ErrUnknownStrategy indicates a strategy name with no registration.
	ErrUnknownStrategy = errors.New("unknown recovery strategy")

	// ErrExhausted indicates every strategy in the order was already attempted.
	ErrExhausted = errors.New("recovery strategies exhausted")
)

// Target is what a strategy acts on.
type Target struct {
	Engine   engine.Engine
	Source   string  // asset reference used by reload
	Position float64 // last confirmed playback position
}

// Outcome describes follow-up work the session must do after a strategy ran.
type Outcome struct {
	// ResumeAt is set when playback must seek and resume once the engine
	// reports the media duration again.
	ResumeAt    float64
	DeferResume bool
}

// Strategy is one recovery action. Execute reports whether the commands were
// issued, not whether playback recovered.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, t Target) (Outcome, error)
}

// Registry maps strategy names to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces a strategy under its name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Lookup returns the strategy registered under name.
func (r *Registry) Lookup(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config tunes the built-in strategies.
type Config struct {
	NudgeEpsilon  float64 // seconds rewound by nudge
	SeekBack      float64 // seconds rewound by seekback
	ReloadCushion float64 // seconds rewound after a reload
}

// DefaultConfig returns the stock strategy tuning.
func DefaultConfig() Config {
	return Config{NudgeEpsilon: 0.1, SeekBack: 5, ReloadCushion: 2}
}

// DefaultRegistry returns a registry holding nudge, reload and seekback.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	r.Register(Nudge{Epsilon: cfg.NudgeEpsilon})
	r.Register(Reload{Cushion: cfg.ReloadCushion})
	r.Register(SeekBack{Seconds: cfg.SeekBack})
	return r
}

// Nudge pauses, rewinds a tiny amount and resumes to shake a stuck decoder.
type Nudge struct {
	Epsilon float64
}

func (Nudge) Name() string { return "nudge" }

func (n Nudge) Execute(ctx context.Context, t Target) (Outcome, error) {
	if t.Engine == nil {
		return Outcome{}, engine.ErrNoEngine
	}
	if err := t.Engine.Pause(ctx); err != nil {
		return Outcome{}, fmt.Errorf("nudge pause: %w", err)
	}
	if err := t.Engine.Seek(ctx, rewind(t.Engine.Position(), n.Epsilon)); err != nil {
		return Outcome{}, fmt.Errorf("nudge seek: %w", err)
	}
	if err := t.Engine.Play(ctx); err != nil {
		return Outcome{}, fmt.Errorf("nudge play: %w", err)
	}
	return Outcome{}, nil
}

// Reload reopens the source. The seek and resume happen once the engine
// reports the duration, so the outcome carries the resume point.
type Reload struct {
	Cushion float64
}

func (Reload) Name() string { return "reload" }

func (r Reload) Execute(ctx context.Context, t Target) (Outcome, error) {
	if t.Engine == nil {
		return Outcome{}, engine.ErrNoEngine
	}
	if t.Source == "" {
		return Outcome{}, errors.New("reload: no source reference")
	}
	if err := t.Engine.Reload(ctx, t.Source); err != nil {
		return Outcome{}, fmt.Errorf("reload: %w", err)
	}
	return Outcome{ResumeAt: rewind(t.Position, r.Cushion), DeferResume: true}, nil
}

// SeekBack rewinds a few seconds without reopening the source.
type SeekBack struct {
	Seconds float64
}

func (SeekBack) Name() string { return "seekback" }

func (s SeekBack) Execute(ctx context.Context, t Target) (Outcome, error) {
	if t.Engine == nil {
		return Outcome{}, engine.ErrNoEngine
	}
	if err := t.Engine.Seek(ctx, rewind(t.Engine.Position(), s.Seconds)); err != nil {
		return Outcome{}, fmt.Errorf("seekback seek: %w", err)
	}
	if err := t.Engine.Play(ctx); err != nil {
		return Outcome{}, fmt.Errorf("seekback play: %w", err)
	}
	return Outcome{}, nil
}

func rewind(pos, by float64) float64 {
	if pos-by < 0 {
		return 0
	}
	return pos - by
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine defines the contract between the resilience core and the
// media-playing element it observes and commands.
package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoEngine indicates a command was issued while no engine is attached.
	ErrNoEngine = errors.New("no playback engine attached")

	// ErrInvalidVolume indicates a volume level outside [0,1].
	ErrInvalidVolume = errors.New("volume must be within [0,1]")
)

// Engine is a single live media-playing element.
type Engine interface {
	// Position returns the current playback position in seconds.
	Position() float64
	// Duration returns the media duration once known.
	Duration() (float64, bool)
	// Paused reports whether the engine is paused.
	Paused() bool

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetPlaybackRate(ctx context.Context, rate float64) error
	SetVolume(ctx context.Context, level float64) error
	Reload(ctx context.Context, sourceRef string) error
}

// Accessor returns the current engine, or nil when none is attached.
type Accessor func() Engine

// SignalKind enumerates the signals an engine emits.
type SignalKind string

const (
	SignalProgress      SignalKind = "progress"
	SignalDurationKnown SignalKind = "duration_known"
	SignalWaiting       SignalKind = "waiting"
	SignalStalled       SignalKind = "stalled"
	SignalPlaying       SignalKind = "playing"
	SignalPaused        SignalKind = "paused"
	SignalEnded         SignalKind = "ended"
	SignalSeeking       SignalKind = "seeking"
	SignalSeeked        SignalKind = "seeked"
)

// Signal is one notification from an engine.
type Signal struct {
	Kind     SignalKind
	Time     float64 // current time for progress/seeked
	Duration float64 // duration for duration_known
}

// Progress builds a progress signal.
func Progress(t float64) Signal { return Signal{Kind: SignalProgress, Time: t} }

// DurationKnown builds a duration signal.
func DurationKnown(d float64) Signal { return Signal{Kind: SignalDurationKnown, Duration: d} }

func (s Signal) String() string {
	switch s.Kind {
	case SignalProgress, SignalSeeked:
		return fmt.Sprintf("%s(%.3f)", s.Kind, s.Time)
	case SignalDurationKnown:
		return fmt.Sprintf("%s(%.3f)", s.Kind, s.Duration)
	default:
		return string(s.Kind)
	}
}

// Sink receives engine signals.
type Sink func(Signal)

// ValidateVolume checks a volume level.
func ValidateVolume(level float64) error {
	if level < 0 || level > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, level)
	}
	return nil
}

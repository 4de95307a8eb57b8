/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/friendsincode/grimnir_display/internal/engine"
)

// Call records one command issued to the Fake.
type Call struct {
	Op  string
	Arg any
}

func (c Call) String() string {
	if c.Arg == nil {
		return c.Op
	}
	return fmt.Sprintf("%s(%v)", c.Op, c.Arg)
}

// Fake implements engine.Engine and records every command.
type Fake struct {
	mu       sync.Mutex
	position float64
	duration float64
	hasDur   bool
	paused   bool
	rate     float64
	volume   float64
	source   string
	calls    []Call

	// Err, when set, is returned by every command.
	Err error
}

// New creates a playing Fake at position 0.
func New() *Fake {
	return &Fake{rate: 1, volume: 1}
}

var _ engine.Engine = (*Fake)(nil)

func (f *Fake) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *Fake) Duration() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, f.hasDur
}

func (f *Fake) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

// SetPosition moves the fake's position without recording a command.
func (f *Fake) SetPosition(p float64) {
	f.mu.Lock()
	f.position = p
	f.mu.Unlock()
}

// SetPaused changes pause state without recording a command.
func (f *Fake) SetPaused(p bool) {
	f.mu.Lock()
	f.paused = p
	f.mu.Unlock()
}

// SetDuration makes the duration known.
func (f *Fake) SetDuration(d float64) {
	f.mu.Lock()
	f.duration, f.hasDur = d, true
	f.mu.Unlock()
}

// Source returns the last reloaded source.
func (f *Fake) Source() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}

// Volume returns the last volume set.
func (f *Fake) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

// Rate returns the last playback rate set.
func (f *Fake) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

// Calls returns a copy of the recorded commands.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many times op was issued.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *Fake) record(op string, arg any) error {
	f.calls = append(f.calls, Call{Op: op, Arg: arg})
	return f.Err
}

func (f *Fake) Play(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("play", nil); err != nil {
		return err
	}
	f.paused = false
	return nil
}

func (f *Fake) Pause(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("pause", nil); err != nil {
		return err
	}
	f.paused = true
	return nil
}

func (f *Fake) Seek(_ context.Context, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("seek", seconds); err != nil {
		return err
	}
	f.position = seconds
	return nil
}

func (f *Fake) SetPlaybackRate(_ context.Context, rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("rate", rate); err != nil {
		return err
	}
	f.rate = rate
	return nil
}

func (f *Fake) SetVolume(_ context.Context, level float64) error {
	if err := engine.ValidateVolume(level); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("volume", level); err != nil {
		return err
	}
	f.volume = level
	return nil
}

func (f *Fake) Reload(_ context.Context, sourceRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reload", sourceRef); err != nil {
		return err
	}
	f.source = sourceRef
	f.position = 0
	f.hasDur = false
	return nil
}

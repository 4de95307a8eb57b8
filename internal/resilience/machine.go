/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package resilience tracks the playback status of one media session and
// drives stall detection and recovery for it.
package resilience

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates an event that is not allowed in the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the externally reported playback state.
type Status string

const (
	StatusStartup    Status = "startup"
	StatusPending    Status = "pending"
	StatusPlaying    Status = "playing"
	StatusPaused     Status = "paused"
	StatusStalling   Status = "stalling"
	StatusRecovering Status = "recovering"
)

// Event drives the machine.
type Event string

const (
	EventAttach         Event = "attach"
	EventDetach         Event = "detach"
	EventProgress       Event = "progress"
	EventSoftStall      Event = "soft_stall"
	EventRecoveryIssued Event = "recovery_issued"
	EventPause          Event = "pause"
	EventResume         Event = "resume"
)

// Transition is one row of the table.
type Transition struct {
	From  Status
	Event Event
	To    Status
}

// Transitions lists every allowed move. Resume targets are resolved by
// Machine.Resume.
var Transitions = []Transition{
	{StatusStartup, EventAttach, StatusPending},
	{StatusPending, EventProgress, StatusPlaying},
	{StatusPending, EventSoftStall, StatusStalling},
	{StatusPlaying, EventSoftStall, StatusStalling},
	{StatusStalling, EventRecoveryIssued, StatusRecovering},
	{StatusStalling, EventProgress, StatusPlaying},
	{StatusRecovering, EventProgress, StatusPlaying},
	{StatusRecovering, EventSoftStall, StatusStalling},
	{StatusRecovering, EventRecoveryIssued, StatusRecovering},

	{StatusStartup, EventPause, StatusPaused},
	{StatusPending, EventPause, StatusPaused},
	{StatusPlaying, EventPause, StatusPaused},
	{StatusStalling, EventPause, StatusPaused},
	{StatusRecovering, EventPause, StatusPaused},

	{StatusPending, EventDetach, StatusStartup},
	{StatusPlaying, EventDetach, StatusStartup},
	{StatusPaused, EventDetach, StatusStartup},
	{StatusStalling, EventDetach, StatusStartup},
	{StatusRecovering, EventDetach, StatusStartup},
}

type transitionKey struct {
	from  Status
	event Event
}

var transitionIndex = func() map[transitionKey]Status {
	idx := make(map[transitionKey]Status, len(Transitions))
	for _, t := range Transitions {
		idx[transitionKey{t.From, t.Event}] = t.To
	}
	return idx
}()

// Machine holds one session's status. It is not safe for concurrent use;
// the owning Session serializes access.
type Machine struct {
	status Status
	prior  Status
}

// NewMachine starts in startup.
func NewMachine() *Machine {
	return &Machine{status: StatusStartup}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.status
}

// Prior returns the status held before the last pause.
func (m *Machine) Prior() Status {
	return m.prior
}

// Can reports whether ev is allowed now.
func (m *Machine) Can(ev Event) bool {
	_, ok := transitionIndex[transitionKey{m.status, ev}]
	return ok
}

// Fire applies ev. On error the status is unchanged.
func (m *Machine) Fire(ev Event) (Status, error) {
	if ev == EventResume {
		return m.status, fmt.Errorf("%w: resume needs Machine.Resume", ErrInvalidTransition)
	}
	to, ok := transitionIndex[transitionKey{m.status, ev}]
	if !ok {
		return m.status, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, m.status)
	}
	if ev == EventPause {
		m.prior = m.status
	}
	m.status = to
	return to, nil
}

// Resume leaves paused. Playback that was flowing returns to playing unless
// the position went stale during the pause, in which case it re-enters
// through pending. Startup stays startup.
func (m *Machine) Resume(stale bool) (Status, error) {
	if m.status != StatusPaused {
		return m.status, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, EventResume, m.status)
	}
	switch {
	case m.prior == StatusStartup:
		m.status = StatusStartup
	case m.prior == StatusPlaying && !stale:
		m.status = StatusPlaying
	default:
		m.status = StatusPending
	}
	return m.status, nil
}

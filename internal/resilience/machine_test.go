/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resilience

import (
	"errors"
	"testing"
)

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   Status
	}{
		{"attach", []Event{EventAttach}, StatusPending},
		{"first progress", []Event{EventAttach, EventProgress}, StatusPlaying},
		{"startup stall", []Event{EventAttach, EventSoftStall}, StatusStalling},
		{"stall", []Event{EventAttach, EventProgress, EventSoftStall}, StatusStalling},
		{"recovery issued", []Event{EventAttach, EventProgress, EventSoftStall, EventRecoveryIssued}, StatusRecovering},
		{"recovered", []Event{EventAttach, EventProgress, EventSoftStall, EventRecoveryIssued, EventProgress}, StatusPlaying},
		{"stall after failed attempt", []Event{EventAttach, EventProgress, EventSoftStall, EventRecoveryIssued, EventSoftStall}, StatusStalling},
		{"progress during stall", []Event{EventAttach, EventProgress, EventSoftStall, EventProgress}, StatusPlaying},
		{"pause while stalling", []Event{EventAttach, EventProgress, EventSoftStall, EventPause}, StatusPaused},
		{"detach", []Event{EventAttach, EventProgress, EventDetach}, StatusStartup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for _, ev := range tt.events {
				if _, err := m.Fire(ev); err != nil {
					t.Fatalf("fire %s: %v", ev, err)
				}
			}
			if m.Status() != tt.want {
				t.Fatalf("status = %s, want %s", m.Status(), tt.want)
			}
		})
	}
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		bad    Event
	}{
		{"progress before attach", nil, EventProgress},
		{"recovery while playing", []Event{EventAttach, EventProgress}, EventRecoveryIssued},
		{"double pause", []Event{EventAttach, EventPause}, EventPause},
		{"attach twice", []Event{EventAttach}, EventAttach},
		{"resume through fire", []Event{EventAttach, EventPause}, EventResume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for _, ev := range tt.events {
				if _, err := m.Fire(ev); err != nil {
					t.Fatalf("fire %s: %v", ev, err)
				}
			}
			before := m.Status()
			if _, err := m.Fire(tt.bad); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if m.Status() != before {
				t.Fatalf("status changed on invalid transition: %s -> %s", before, m.Status())
			}
		})
	}
}

func TestMachineResume(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		stale  bool
		want   Status
	}{
		{"playing fresh", []Event{EventAttach, EventProgress}, false, StatusPlaying},
		{"playing stale", []Event{EventAttach, EventProgress}, true, StatusPending},
		{"pending", []Event{EventAttach}, false, StatusPending},
		{"stalling", []Event{EventAttach, EventProgress, EventSoftStall}, false, StatusPending},
		{"startup", nil, false, StatusStartup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for _, ev := range tt.events {
				if _, err := m.Fire(ev); err != nil {
					t.Fatalf("fire %s: %v", ev, err)
				}
			}
			if _, err := m.Fire(EventPause); err != nil {
				t.Fatalf("pause: %v", err)
			}
			got, err := m.Resume(tt.stale)
			if err != nil {
				t.Fatalf("resume: %v", err)
			}
			if got != tt.want {
				t.Fatalf("resume = %s, want %s", got, tt.want)
			}
		})
	}

	m := NewMachine()
	if _, err := m.Resume(false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume without pause: %v", err)
	}
}

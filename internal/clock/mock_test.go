/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"testing"
	"time"
)

func TestMockAdvanceFiresInDeadlineOrder(t *testing.T) {
	m := NewMock(time.Unix(0, 0))

	var order []string
	m.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	m.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(250 * time.Millisecond)
	if got := len(order); got != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("fired %v, want [a b]", order)
	}
	if m.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", m.Pending())
	}

	m.Advance(50 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("fired %v, want [a b c]", order)
	}
}

func TestMockStopPreventsFiring(t *testing.T) {
	m := NewMock(time.Unix(0, 0))

	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("expected first Stop to report true")
	}
	if timer.Stop() {
		t.Fatal("expected second Stop to report false")
	}

	m.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestMockCallbackCanArmDueTimer(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewMock(start)

	var firedAt []time.Duration
	m.AfterFunc(time.Second, func() {
		firedAt = append(firedAt, m.Now().Sub(start))
		m.AfterFunc(time.Second, func() {
			firedAt = append(firedAt, m.Now().Sub(start))
		})
	})

	m.Advance(2500 * time.Millisecond)
	if len(firedAt) != 2 || firedAt[0] != time.Second || firedAt[1] != 2*time.Second {
		t.Fatalf("fired at %v, want [1s 2s]", firedAt)
	}
	if got := m.Now().Sub(start); got != 2500*time.Millisecond {
		t.Fatalf("now = %v, want 2.5s", got)
	}
}

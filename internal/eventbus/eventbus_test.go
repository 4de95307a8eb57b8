/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/config"
	"github.com/friendsincode/grimnir_display/internal/events"
)

func testRedisConfig(addr string) RedisConfig {
	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.DialTimeout = 500 * time.Millisecond
	return cfg
}

func receive(t *testing.T, sub events.Subscriber) events.Payload {
	t.Helper()
	select {
	case p := <-sub:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestRedisBusRelaysBetweenNodes(t *testing.T) {
	mr := miniredis.RunT(t)

	lobby, err := NewRedisBus(testRedisConfig(mr.Addr()), "lobby", zerolog.Nop())
	if err != nil {
		t.Fatalf("lobby bus: %v", err)
	}
	defer lobby.Close()

	controller, err := NewRedisBus(testRedisConfig(mr.Addr()), "controller", zerolog.Nop())
	if err != nil {
		t.Fatalf("controller bus: %v", err)
	}
	defer controller.Close()

	sub := controller.Subscribe(events.EventStatusChanged)
	lobby.Publish(events.EventStatusChanged, events.Payload{"status": "stalling", "display_id": "lobby"})

	p := receive(t, sub)
	if p["status"] != "stalling" {
		t.Fatalf("unexpected payload %v", p)
	}
}

func TestRedisBusSkipsOwnMessages(t *testing.T) {
	mr := miniredis.RunT(t)

	bus, err := NewRedisBus(testRedisConfig(mr.Addr()), "lobby", zerolog.Nop())
	if err != nil {
		t.Fatalf("bus: %v", err)
	}
	defer bus.Close()

	sub := bus.Subscribe(events.EventQueueAdvanced)
	bus.Publish(events.EventQueueAdvanced, events.Payload{"head": "a"})

	// Local delivery happens once; the echo from redis must be dropped.
	receive(t, sub)
	select {
	case p := <-sub:
		t.Fatalf("received echo %v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBusFallsBackWhenUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	bus, err := NewRedisBus(testRedisConfig(addr), "lobby", zerolog.Nop())
	if err != nil {
		t.Fatalf("bus: %v", err)
	}
	defer bus.Close()

	if !bus.Fallback() {
		t.Fatal("expected fallback mode")
	}

	sub := bus.Subscribe(events.EventControl)
	bus.Publish(events.EventControl, events.Payload{"command": "next"})
	if p := receive(t, sub); p["command"] != "next" {
		t.Fatalf("unexpected payload %v", p)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := marshalEnvelope(events.EventCompositeDesync, events.Payload{"drift": 4.0}, "lobby")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := unmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.NodeID != "lobby" || env.EventType != events.EventCompositeDesync || env.MessageID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, err := unmarshalEnvelope([]byte("{")); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	bus, err := New(&config.Config{EventBus: config.EventBusMemory, DisplayID: "lobby"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("memory bus: %v", err)
	}
	if _, ok := bus.(memoryBus); !ok {
		t.Fatalf("expected memory bus, got %T", bus)
	}
	_ = bus.Close()

	if _, err := New(&config.Config{EventBus: "kafka", DisplayID: "lobby"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNATSSubjects(t *testing.T) {
	if got := subjectFor(events.EventStatusChanged); got != "grimnir.display.playback.status" {
		t.Fatalf("subject = %q", got)
	}
}

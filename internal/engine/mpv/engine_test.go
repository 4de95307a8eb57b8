/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/engine"
)

// fakeMPV answers JSON IPC requests from a property map.
type fakeMPV struct {
	ln net.Listener

	mu       sync.Mutex
	props    map[string]any
	commands [][]any
}

func startFakeMPV(t *testing.T, props map[string]any) (*fakeMPV, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "mpv")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "ipc.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeMPV{ln: ln, props: props}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f, path
}

func (f *fakeMPV) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeMPV) handle(conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}
	var req ipcCommand
	if err := json.Unmarshal(line, &req); err != nil {
		return
	}

	// An unsolicited event precedes every reply, as mpv does.
	_, _ = conn.Write([]byte(`{"event":"playback-restart"}` + "\n"))

	resp := map[string]any{"request_id": req.RequestID, "error": "success"}
	f.mu.Lock()
	f.commands = append(f.commands, req.Command)
	switch req.Command[0] {
	case "get_property":
		v, ok := f.props[req.Command[1].(string)]
		if !ok {
			resp["error"] = "property unavailable"
		} else {
			resp["data"] = v
		}
	case "set_property":
		f.props[req.Command[1].(string)] = req.Command[2]
	}
	f.mu.Unlock()

	data, _ := json.Marshal(resp)
	_, _ = conn.Write(append(data, '\n'))
}

func (f *fakeMPV) set(name string, v any) {
	f.mu.Lock()
	f.props[name] = v
	f.mu.Unlock()
}

func (f *fakeMPV) last() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[len(f.commands)-1]
}

func TestCommandsMapToIPC(t *testing.T) {
	fake, path := startFakeMPV(t, map[string]any{"pause": false})
	e := New(path, 0, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		want []any
	}{
		{"pause", func() error { return e.Pause(ctx) }, []any{"set_property", "pause", true}},
		{"play", func() error { return e.Play(ctx) }, []any{"set_property", "pause", false}},
		{"seek", func() error { return e.Seek(ctx, 12.5) }, []any{"seek", 12.5, "absolute"}},
		{"speed", func() error { return e.SetPlaybackRate(ctx, 1.25) }, []any{"set_property", "speed", 1.25}},
		{"volume", func() error { return e.SetVolume(ctx, 0.5) }, []any{"set_property", "volume", 50.0}},
		{"loadfile", func() error { return e.Reload(ctx, "/srv/media/loop.mp4") }, []any{"loadfile", "/srv/media/loop.mp4", "replace"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if got := fake.last(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("command = %v, want %v", got, tt.want)
			}
		})
	}

	if err := e.SetVolume(ctx, 2); err == nil {
		t.Fatal("expected volume validation error")
	}
}

func TestPollEmitsSignals(t *testing.T) {
	fake, path := startFakeMPV(t, map[string]any{
		"pause":            false,
		"paused-for-cache": false,
		"eof-reached":      false,
	})
	e := New(path, 0, zerolog.Nop())
	ctx := context.Background()

	var got []engine.Signal
	sink := func(s engine.Signal) { got = append(got, s) }

	// Nothing loaded yet: no signals.
	if err := e.poll(ctx, sink); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unexpected signals %v", got)
	}

	fake.set("time-pos", 1.5)
	fake.set("duration", 90.0)
	if err := e.poll(ctx, sink); err != nil {
		t.Fatalf("poll: %v", err)
	}
	want := []engine.Signal{engine.DurationKnown(90), engine.Progress(1.5)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("signals = %v, want %v", got, want)
	}
	if e.Position() != 1.5 {
		t.Fatalf("position = %v", e.Position())
	}

	got = nil
	fake.set("paused-for-cache", true)
	if err := e.poll(ctx, sink); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !reflect.DeepEqual(got, []engine.Signal{{Kind: engine.SignalWaiting}}) {
		t.Fatalf("signals = %v", got)
	}

	got = nil
	fake.set("paused-for-cache", false)
	fake.set("time-pos", 89.9)
	fake.set("eof-reached", true)
	if err := e.poll(ctx, sink); err != nil {
		t.Fatalf("poll: %v", err)
	}
	want = []engine.Signal{engine.Progress(89.9), {Kind: engine.SignalEnded}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("signals = %v, want %v", got, want)
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur snapshot
		want      []engine.Signal
	}{
		{"steady", snapshot{pos: 3, hasPos: true}, snapshot{pos: 3, hasPos: true}, nil},
		{"backwards is a seek", snapshot{pos: 30, hasPos: true}, snapshot{pos: 5, hasPos: true}, []engine.Signal{{Kind: engine.SignalSeeked, Time: 5}}},
		{"paused", snapshot{}, snapshot{paused: true}, []engine.Signal{{Kind: engine.SignalPaused}}},
		{"playing", snapshot{paused: true}, snapshot{}, []engine.Signal{{Kind: engine.SignalPlaying}}},
		{"eof held", snapshot{eof: true}, snapshot{eof: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := diff(tt.prev, tt.cur); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("diff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnreachableSocket(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "missing.sock"), 0, zerolog.Nop())
	if err := e.Play(context.Background()); err == nil {
		t.Fatal("expected error for missing socket")
	}
}

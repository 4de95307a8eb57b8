/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resilience

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/clock"
	"github.com/friendsincode/grimnir_display/internal/engine"
	"github.com/friendsincode/grimnir_display/internal/engine/enginetest"
	"github.com/friendsincode/grimnir_display/internal/events"
	"github.com/friendsincode/grimnir_display/internal/stall"
)

var epoch = time.Unix(1_700_000_000, 0)

type transitionLog struct {
	mu    sync.Mutex
	clk   *clock.Mock
	start time.Time
	seen  []string
	at    []time.Duration
}

func (l *transitionLog) record(p StatusPayload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := string(p.Status)
	if n := len(l.seen); n > 0 && l.seen[n-1] == s {
		return
	}
	l.seen = append(l.seen, s)
	l.at = append(l.at, l.clk.Now().Sub(l.start))
}

type memCheckpointer struct {
	mu    sync.Mutex
	saved []Checkpoint
}

func (m *memCheckpointer) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, cp)
	return nil
}

func (m *memCheckpointer) positions() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, 0, len(m.saved))
	for _, cp := range m.saved {
		out = append(out, cp.Position)
	}
	return out
}

func testOptions(strategies ...string) Options {
	opts := DefaultOptions()
	opts.Stall = stall.Config{Soft: time.Second, Hard: 4 * time.Second, Mode: stall.ModeAuto}
	opts.Strategies = strategies
	return opts
}

func newTestSession(t *testing.T, media Media, opts Options, deps Deps) (*Session, *enginetest.Fake, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(epoch)
	deps.Clock = clk
	if media.MediaKey == "" {
		media.MediaKey = "lobby-loop"
	}
	if media.SourceRef == "" {
		media.SourceRef = "asset://lobby-loop.mp4"
	}
	sess, err := NewSession(media, opts, deps, zerolog.Nop())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess, enginetest.New(), clk
}

func attach(t *testing.T, sess *Session, fake *enginetest.Fake) {
	t.Helper()
	if err := sess.Attach(context.Background(), fake); err != nil {
		t.Fatalf("attach: %v", err)
	}
	fake.Reset()
}

func callStrings(fake *enginetest.Fake) []string {
	var out []string
	for _, c := range fake.Calls() {
		out = append(out, c.String())
	}
	return out
}

func TestSessionStallScenario(t *testing.T) {
	sess, fake, clk := newTestSession(t, Media{}, testOptions("nudge", "reload"), Deps{})
	log := &transitionLog{clk: clk, start: clk.Now()}
	sess.OnStatusChange(log.record)
	// Listeners may read the session; this would deadlock if they ran under the lock.
	sess.OnStatusChange(func(StatusPayload) { _ = sess.Status() })

	attach(t, sess, fake)
	fake.SetPosition(0.5)
	sess.HandleSignal(engine.Progress(0.5))

	clk.Advance(4500 * time.Millisecond)

	wantStatus := []string{"pending", "playing", "stalling", "recovering"}
	wantAt := []time.Duration{0, 0, time.Second, 4 * time.Second}
	if !reflect.DeepEqual(log.seen, wantStatus) {
		t.Fatalf("transitions = %v, want %v", log.seen, wantStatus)
	}
	if !reflect.DeepEqual(log.at, wantAt) {
		t.Fatalf("transition times = %v, want %v", log.at, wantAt)
	}

	if got, want := callStrings(fake), []string{"pause", "seek(0.4)", "play"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("engine calls = %v, want %v", got, want)
	}

	st := sess.Status()
	if st.RecoveryAttemptIndex != 1 || st.LastStrategyUsed != "nudge" || !st.Stalled {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSessionRecoveryIndexResetsOnlyOnProgress(t *testing.T) {
	opts := testOptions("nudge", "seekback", "reload")
	opts.ResumeStaleAfter = time.Hour
	sess, fake, clk := newTestSession(t, Media{}, opts, Deps{})
	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(10))

	clk.Advance(4 * time.Second)
	if got := sess.Status().RecoveryAttemptIndex; got != 1 {
		t.Fatalf("index after first attempt = %d", got)
	}

	// Pausing, resuming and repeated non-forward progress leave the index alone.
	if err := sess.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := sess.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	sess.HandleSignal(engine.Progress(10))
	if got := sess.Status().RecoveryAttemptIndex; got != 1 {
		t.Fatalf("index changed without progress: %d", got)
	}

	clk.Advance(4 * time.Second)
	if got := sess.Status().RecoveryAttemptIndex; got != 2 {
		t.Fatalf("index after second attempt = %d", got)
	}

	// The first sample after a strategy moved the playhead is only a baseline.
	sess.HandleSignal(engine.Progress(10.25))
	if got := sess.Status().RecoveryAttemptIndex; got != 2 {
		t.Fatalf("baseline sample reset the index: %d", got)
	}
	sess.HandleSignal(engine.Progress(10.5))
	st := sess.Status()
	if st.RecoveryAttemptIndex != 0 || st.Status != StatusPlaying || st.Stalled {
		t.Fatalf("progress did not reset recovery: %+v", st)
	}
}

func TestSessionExhaustionNeedsExternalReload(t *testing.T) {
	bus := events.NewBus()
	exhausted := bus.Subscribe(events.EventRecoveryExhausted)
	sess, fake, clk := newTestSession(t, Media{}, testOptions("nudge"), Deps{Bus: bus})

	var reloads int
	sess.OnNeedsExternalReload(func() { reloads++ })

	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(1))

	clk.Advance(8 * time.Second)
	st := sess.Status()
	if !st.NeedsExternalReload {
		t.Fatalf("expected needs external reload, got %+v", st)
	}
	if st.Status != StatusStalling {
		t.Fatalf("status = %s, want stalling", st.Status)
	}
	if reloads != 1 {
		t.Fatalf("needs-reload listener called %d times", reloads)
	}
	select {
	case <-exhausted:
	default:
		t.Fatal("no exhaustion event published")
	}

	// Nothing stays armed once exhausted.
	clk.Advance(time.Minute)
	if clk.Pending() != 0 {
		t.Fatalf("timers still armed: %d", clk.Pending())
	}
	if fake.Count("pause") != 1 {
		t.Fatalf("nudge ran %d times", fake.Count("pause"))
	}

	sess.HandleSignal(engine.Progress(2))
	sess.HandleSignal(engine.Progress(2.25))
	st = sess.Status()
	if st.NeedsExternalReload || st.RecoveryAttemptIndex != 0 || st.Status != StatusPlaying {
		t.Fatalf("progress did not clear exhaustion: %+v", st)
	}
}

func TestSessionReloadResumesAfterDuration(t *testing.T) {
	sess, fake, clk := newTestSession(t, Media{SourceRef: "asset://promo.webm"}, testOptions("reload"), Deps{})
	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(30))

	clk.Advance(4 * time.Second)
	if got, want := callStrings(fake), []string{"reload(asset://promo.webm)"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if sess.Status().Status != StatusRecovering {
		t.Fatalf("status = %s", sess.Status().Status)
	}

	fake.Reset()
	sess.HandleSignal(engine.DurationKnown(120))
	if got, want := callStrings(fake), []string{"seek(28)", "play"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("calls after metadata = %v, want %v", got, want)
	}

	sess.HandleSignal(engine.Progress(28.25))
	sess.HandleSignal(engine.Progress(28.5))
	st := sess.Status()
	if st.Status != StatusPlaying || st.RecoveryAttemptIndex != 0 {
		t.Fatalf("unexpected status after reload %+v", st)
	}
	if st.Duration == nil || *st.Duration != 120 {
		t.Fatalf("duration = %v", st.Duration)
	}
}

func TestSessionStartPosition(t *testing.T) {
	tests := []struct {
		name     string
		start    float64
		duration float64
		want     []string
	}{
		{"within media", 42, 100, []string{"seek(42)", "play"}},
		{"past the end", 150, 100, []string{"seek(0)", "play"}},
		{"none", 0, 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, fake, _ := newTestSession(t, Media{StartPositionSeconds: tt.start}, testOptions("nudge"), Deps{})
			attach(t, sess, fake)
			sess.HandleSignal(engine.DurationKnown(tt.duration))
			sess.HandleSignal(engine.DurationKnown(tt.duration))
			if got := callStrings(fake); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("calls = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionEnded(t *testing.T) {
	t.Run("loop replays", func(t *testing.T) {
		sess, fake, _ := newTestSession(t, Media{Loop: true}, testOptions("nudge"), Deps{})
		var ended int
		sess.OnEnded(func() { ended++ })
		attach(t, sess, fake)
		sess.HandleSignal(engine.Progress(59))
		sess.HandleSignal(engine.Signal{Kind: engine.SignalEnded})

		if ended != 0 {
			t.Fatal("looping media reported ended")
		}
		if got, want := callStrings(fake), []string{"seek(0)", "play"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("calls = %v, want %v", got, want)
		}
		// Restarted playback counts as progress again.
		sess.HandleSignal(engine.Progress(0.25))
		if sess.Status().Seconds != 0.25 {
			t.Fatalf("seconds = %v", sess.Status().Seconds)
		}
	})

	t.Run("single play ends once", func(t *testing.T) {
		sess, fake, clk := newTestSession(t, Media{}, testOptions("nudge"), Deps{})
		var ended int
		sess.OnEnded(func() { ended++ })
		attach(t, sess, fake)
		sess.HandleSignal(engine.Progress(59))
		sess.HandleSignal(engine.Signal{Kind: engine.SignalEnded})

		if ended != 1 {
			t.Fatalf("ended listener called %d times", ended)
		}
		if clk.Pending() != 0 {
			t.Fatalf("timers armed after end: %d", clk.Pending())
		}
		clk.Advance(time.Minute)
		if sess.Status().Stalled {
			t.Fatal("ended media reported a stall")
		}
	})
}

func TestSessionPauseSuspendsDetection(t *testing.T) {
	opts := testOptions("nudge")
	opts.ResumeStaleAfter = 30 * time.Second
	sess, fake, clk := newTestSession(t, Media{}, opts, Deps{})
	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(3))

	ctx := context.Background()
	if err := sess.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if clk.Pending() != 0 {
		t.Fatalf("timers armed while paused: %d", clk.Pending())
	}
	clk.Advance(20 * time.Second)
	if st := sess.Status(); st.Status != StatusPaused || st.Stalled {
		t.Fatalf("unexpected status while paused %+v", st)
	}
	if err := sess.Pause(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second pause: %v", err)
	}

	if err := sess.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if st := sess.Status(); st.Status != StatusPlaying {
		t.Fatalf("fresh resume = %s, want playing", st.Status)
	}

	if err := sess.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clk.Advance(31 * time.Second)
	if err := sess.Play(ctx); err != nil {
		t.Fatalf("play after pause: %v", err)
	}
	if st := sess.Status(); st.Status != StatusPending {
		t.Fatalf("stale resume = %s, want pending", st.Status)
	}
	if fake.Paused() {
		t.Fatal("engine still paused")
	}
}

func TestSessionManualMode(t *testing.T) {
	opts := testOptions("nudge", "seekback")
	opts.Stall.Mode = stall.ModeManual
	sess, fake, clk := newTestSession(t, Media{}, opts, Deps{})
	attach(t, sess, fake)

	ctx := context.Background()
	if _, err := sess.RequestRecovery(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("recovery before stall: %v", err)
	}

	sess.HandleSignal(engine.Progress(5))
	clk.Advance(10 * time.Second)
	if st := sess.Status(); st.Status != StatusStalling || st.RecoveryAttemptIndex != 0 {
		t.Fatalf("manual mode recovered on its own: %+v", st)
	}
	if len(fake.Calls()) != 0 {
		t.Fatalf("unexpected engine calls %v", fake.Calls())
	}

	res, err := sess.RequestRecovery(ctx)
	if err != nil {
		t.Fatalf("request recovery: %v", err)
	}
	if res.Strategy != "nudge" || sess.Status().Status != StatusRecovering {
		t.Fatalf("unexpected result %+v status %s", res, sess.Status().Status)
	}

	sess.ResetRecovery()
	if got := sess.Status().RecoveryAttemptIndex; got != 0 {
		t.Fatalf("index after reset = %d", got)
	}
}

func TestSessionCheckpoints(t *testing.T) {
	cp := &memCheckpointer{}
	opts := testOptions("nudge")
	opts.CheckpointInterval = 5 * time.Second
	sess, fake, _ := newTestSession(t, Media{}, opts, Deps{Checkpointer: cp})
	attach(t, sess, fake)

	for _, p := range []float64{1, 5, 7, 10.5} {
		sess.HandleSignal(engine.Progress(p))
	}
	if err := sess.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}
	sess.Close()

	if got, want := cp.positions(), []float64{5, 10.5, 10.5, 10.5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("checkpoints = %v, want %v", got, want)
	}
}

func TestSessionCheckpointKeepsPendingSeekTarget(t *testing.T) {
	cp := &memCheckpointer{}
	sess, fake, clk := newTestSession(t, Media{}, testOptions("reload"), Deps{Checkpointer: cp})
	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(50))

	clk.Advance(4 * time.Second)
	if fake.Count("reload") != 1 {
		t.Fatalf("reload issued %d times", fake.Count("reload"))
	}
	if got := sess.Status().Seconds; got != 48 {
		t.Fatalf("seconds while the reload loads = %v, want 48", got)
	}

	// The reloaded source reports its start before the deferred seek lands.
	sess.HandleSignal(engine.DurationKnown(120))
	sess.HandleSignal(engine.Progress(0))
	if got := sess.Status().Seconds; got != 48 {
		t.Fatalf("seconds after pre-seek sample = %v, want 48", got)
	}

	sess.Close()
	got := cp.positions()
	if len(got) == 0 || got[len(got)-1] != 48 {
		t.Fatalf("checkpoints = %v, want the last at 48", got)
	}
}

func TestSessionEndedSkipsFinalCheckpoint(t *testing.T) {
	cp := &memCheckpointer{}
	sess, fake, _ := newTestSession(t, Media{}, testOptions("nudge"), Deps{Checkpointer: cp})
	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(119.75))
	sess.HandleSignal(engine.Signal{Kind: engine.SignalEnded})
	before := len(cp.positions())

	sess.Close()
	if got := cp.positions(); len(got) != before {
		t.Fatalf("close after end saved a checkpoint: %v", got)
	}
}

func TestSessionCommandsWithoutEngine(t *testing.T) {
	sess, _, clk := newTestSession(t, Media{}, testOptions("nudge"), Deps{})
	ctx := context.Background()

	if err := sess.Pause(ctx); !errors.Is(err, engine.ErrNoEngine) {
		t.Fatalf("pause: %v", err)
	}
	if err := sess.SetVolume(ctx, 0.5); !errors.Is(err, engine.ErrNoEngine) {
		t.Fatalf("volume: %v", err)
	}
	sess.HandleSignal(engine.Progress(3))
	clk.Advance(time.Minute)
	if st := sess.Status(); st.Status != StatusStartup || st.Stalled {
		t.Fatalf("idle session changed: %+v", st)
	}
}

func TestSessionVolumeAndRate(t *testing.T) {
	sess, fake, _ := newTestSession(t, Media{}, testOptions("nudge"), Deps{})
	attach(t, sess, fake)
	ctx := context.Background()

	if err := sess.SetVolume(ctx, 1.5); !errors.Is(err, engine.ErrInvalidVolume) {
		t.Fatalf("expected ErrInvalidVolume, got %v", err)
	}
	if err := sess.SetVolume(ctx, 0.25); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if err := sess.SetPlaybackRate(ctx, 0); err == nil {
		t.Fatal("expected error for zero rate")
	}
	if err := sess.SetPlaybackRate(ctx, 1.5); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	st := sess.Status()
	if st.Volume != 0.25 || st.PlaybackRate != 1.5 || fake.Volume() != 0.25 || fake.Rate() != 1.5 {
		t.Fatalf("unexpected levels %+v", st)
	}
}

func TestSessionCloseClearsTimers(t *testing.T) {
	sess, fake, clk := newTestSession(t, Media{}, testOptions("nudge"), Deps{})
	attach(t, sess, fake)
	sess.HandleSignal(engine.Progress(1))
	if clk.Pending() == 0 {
		t.Fatal("expected an armed soft timer")
	}

	sess.Close()
	sess.Close()
	if clk.Pending() != 0 {
		t.Fatalf("timers armed after close: %d", clk.Pending())
	}
	clk.Advance(time.Minute)
	if len(fake.Calls()) != 0 {
		t.Fatalf("closed session commanded the engine: %v", fake.Calls())
	}
	if err := sess.Attach(context.Background(), fake); err == nil {
		t.Fatal("attach after close should fail")
	}
}

func TestNewSessionRejectsUnknownStrategy(t *testing.T) {
	_, err := NewSession(Media{MediaKey: "a"}, testOptions("nudge", "reboot"), Deps{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

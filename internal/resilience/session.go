/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/clock"
	"github.com/friendsincode/grimnir_display/internal/config"
	"github.com/friendsincode/grimnir_display/internal/engine"
	"github.com/friendsincode/grimnir_display/internal/events"
	"github.com/friendsincode/grimnir_display/internal/recovery"
	"github.com/friendsincode/grimnir_display/internal/stall"
	"github.com/friendsincode/grimnir_display/internal/telemetry"
)

// seekLandingWindow is how close a progress sample must be to an issued seek
// target to confirm that the seek took effect.
const seekLandingWindow = 1.0

// Media is the per-asset playback request a session is built for.
type Media struct {
	MediaKey             string
	SourceRef            string
	StartPositionSeconds float64
	PlaybackRate         float64
	Volume               float64 // zero means full volume
	Muted                bool
	Loop                 bool
}

// Options tunes one session.
type Options struct {
	Stall              stall.Config
	Strategies         []string
	Recovery           recovery.Config
	Registry           *recovery.Registry // nil builds the default registry from Recovery
	ResumeStaleAfter   time.Duration
	CheckpointInterval time.Duration
}

// DefaultOptions mirrors config.DefaultResilience.
func DefaultOptions() Options {
	return OptionsFrom(config.DefaultResilience())
}

// OptionsFrom converts the unified resilience settings.
func OptionsFrom(r config.Resilience) Options {
	mode := stall.ModeAuto
	if r.Mode == config.RecoveryManual {
		mode = stall.ModeManual
	}
	return Options{
		Stall:      stall.Config{Soft: r.Soft(), Hard: r.Hard(), Mode: mode},
		Strategies: append([]string(nil), r.RecoveryStrategies...),
		Recovery: recovery.Config{
			NudgeEpsilon:  r.NudgeEpsilonSeconds,
			SeekBack:      r.SeekBackSeconds,
			ReloadCushion: r.SeekBackOnReloadSeconds,
		},
		ResumeStaleAfter:   r.ResumeStaleAfter(),
		CheckpointInterval: r.CheckpointInterval(),
	}
}

// Deps are the collaborators a session talks to. Every field is optional.
type Deps struct {
	Clock        clock.Clock
	Bus          events.Publisher
	Checkpointer Checkpointer
}

// StatusPayload is what the presentation layer renders.
type StatusPayload struct {
	Status               Status   `json:"status"`
	Stalled              bool     `json:"stalled"`
	RecoveryAttemptIndex int      `json:"recoveryAttemptIndex"`
	LastStrategyUsed     string   `json:"lastStrategyUsed,omitempty"`
	Seconds              float64  `json:"seconds"`
	Duration             *float64 `json:"duration"`
	NeedsExternalReload  bool     `json:"needsExternalReload"`
	MediaKey             string   `json:"mediaKey"`
	PlaybackRate         float64  `json:"playbackRate"`
	Volume               float64  `json:"volume"`
	Loop                 bool     `json:"loop"`
}

// Session binds one engine to a stall detector, a recovery executor and a
// status machine. Listener callbacks run after the session lock is released.
type Session struct {
	media    Media
	opts     Options
	clk      clock.Clock
	bus      events.Publisher
	cp       Checkpointer
	logger   zerolog.Logger
	detector *stall.Detector
	executor *recovery.Executor

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	machine      *Machine
	eng          engine.Engine
	current      float64
	baseline     *float64 // last position counted as forward progress
	rebase       bool
	duration     *float64
	resumeAt     *float64 // seek target applied on the next duration signal
	seekTarget   *float64 // issued seek not yet confirmed by a sample
	intendPlay   bool
	pausedAt     time.Time
	needsReload  bool
	checkpointAt float64
	ended        bool
	closed       bool

	lmu          sync.RWMutex
	onStatus     []func(StatusPayload)
	onEnded      []func()
	onNeedReload []func()
	onAttempt    []func(recovery.Result)
}

// NewSession builds a session for media. It starts in startup with no engine.
func NewSession(media Media, opts Options, deps Deps, logger zerolog.Logger) (*Session, error) {
	if media.MediaKey == "" {
		return nil, fmt.Errorf("session requires a media key")
	}
	if media.PlaybackRate <= 0 {
		media.PlaybackRate = 1
	}
	switch {
	case media.Muted:
		media.Volume = 0
	case media.Volume == 0:
		media.Volume = 1
	}
	if err := engine.ValidateVolume(media.Volume); err != nil {
		return nil, err
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}

	registry := opts.Registry
	if registry == nil {
		registry = recovery.DefaultRegistry(opts.Recovery)
	}

	logger = logger.With().Str("media_key", media.MediaKey).Logger()
	executor, err := recovery.NewExecutor(opts.Strategies, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("build recovery executor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		media:    media,
		opts:     opts,
		clk:      clk,
		bus:      deps.Bus,
		cp:       deps.Checkpointer,
		logger:   logger.With().Str("component", "session").Logger(),
		executor: executor,
		ctx:      ctx,
		cancel:   cancel,
		machine:  NewMachine(),
	}
	s.detector = stall.New(opts.Stall, clk, stall.Callbacks{
		OnSoftStall: s.onSoftStall,
		OnHardStall: s.onHardStall,
	}, logger)

	if media.StartPositionSeconds > 0 {
		start := media.StartPositionSeconds
		s.resumeAt = &start
		s.current = start
	}
	return s, nil
}

// OnStatusChange registers fn for status payload changes.
func (s *Session) OnStatusChange(fn func(StatusPayload)) {
	s.lmu.Lock()
	s.onStatus = append(s.onStatus, fn)
	s.lmu.Unlock()
}

// OnEnded registers fn for the end of non-looping media.
func (s *Session) OnEnded(fn func()) {
	s.lmu.Lock()
	s.onEnded = append(s.onEnded, fn)
	s.lmu.Unlock()
}

// OnNeedsExternalReload registers fn for recovery exhaustion.
func (s *Session) OnNeedsExternalReload(fn func()) {
	s.lmu.Lock()
	s.onNeedReload = append(s.onNeedReload, fn)
	s.lmu.Unlock()
}

// OnRecoveryAttempt registers fn for every issued strategy and for exhaustion.
func (s *Session) OnRecoveryAttempt(fn func(recovery.Result)) {
	s.lmu.Lock()
	s.onAttempt = append(s.onAttempt, fn)
	s.lmu.Unlock()
}

// Media returns the media this session plays.
func (s *Session) Media() Media {
	return s.media
}

// Attach binds eng and starts stall detection with play intent.
func (s *Session) Attach(ctx context.Context, eng engine.Engine) error {
	if eng == nil {
		return engine.ErrNoEngine
	}

	out := outbox{s: s}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.media.MediaKey)
	}
	if s.eng != nil {
		s.detachLocked(&out)
	}
	s.eng = eng
	s.baseline = nil
	s.rebase = false
	s.seekTarget = nil
	s.fireLocked(EventAttach, &out)

	if s.media.PlaybackRate != 1 {
		if err := eng.SetPlaybackRate(ctx, s.media.PlaybackRate); err != nil {
			s.logger.Warn().Err(err).Msg("failed to apply playback rate")
		}
	}
	if err := eng.SetVolume(ctx, s.media.Volume); err != nil {
		s.logger.Warn().Err(err).Msg("failed to apply volume")
	}

	s.intendPlay = true
	s.detector.Resume()
	s.detector.ScheduleCheck()
	s.mu.Unlock()

	s.logger.Debug().Msg("engine attached")
	out.flush()
	return nil
}

// Detach drops the engine. Detection stays suspended until the next Attach.
func (s *Session) Detach() {
	out := outbox{s: s}
	s.mu.Lock()
	s.detachLocked(&out)
	s.mu.Unlock()
	out.flush()
}

func (s *Session) detachLocked(out *outbox) {
	if s.eng == nil {
		return
	}
	s.detector.Suspend()
	s.eng = nil
	s.intendPlay = false
	s.fireLocked(EventDetach, out)
}

// HandleSignal feeds one engine signal into the session.
func (s *Session) HandleSignal(sig engine.Signal) {
	out := outbox{s: s}
	s.mu.Lock()
	if s.closed || s.eng == nil {
		s.mu.Unlock()
		return
	}

	switch sig.Kind {
	case engine.SignalProgress:
		s.handleProgressLocked(sig.Time, &out)

	case engine.SignalDurationKnown:
		d := sig.Duration
		s.duration = &d
		if s.resumeAt != nil {
			target := *s.resumeAt
			s.resumeAt = nil
			if d > 0 && target >= d {
				target = 0
			}
			s.seekLocked(target)
			if s.intendPlay {
				if err := s.eng.Play(s.ctx); err != nil {
					s.logger.Error().Err(err).Msg("deferred play failed")
				}
			}
		}
		out.status(s.payloadLocked())

	case engine.SignalWaiting, engine.SignalStalled:
		s.logger.Debug().Str("signal", sig.String()).Msg("engine reports buffering")
		if s.intendPlay {
			s.detector.ScheduleCheck()
		}

	case engine.SignalPlaying:
		if s.intendPlay {
			s.detector.Resume()
			s.detector.ScheduleCheck()
		}

	case engine.SignalPaused:
		// An engine-side pause suspends detection; only Pause changes status.
		s.detector.Suspend()

	case engine.SignalSeeking:
		s.rebase = true

	case engine.SignalSeeked:
		t := sig.Time
		s.current = t
		s.baseline = &t
		s.rebase = false
		s.seekTarget = nil

	case engine.SignalEnded:
		s.handleEndedLocked(&out)
	}
	s.mu.Unlock()
	out.flush()
}

// seekLocked moves the playhead to target and holds progress accounting
// until a sample lands near it.
func (s *Session) seekLocked(target float64) {
	if err := s.eng.Seek(s.ctx, target); err != nil {
		s.logger.Error().Err(err).Float64("target", target).Msg("seek failed")
		s.seekTarget = nil
		s.rebase = true
		return
	}
	s.seekTarget = &target
}

func (s *Session) handleProgressLocked(t float64, out *outbox) {
	if s.seekTarget != nil {
		if absDiff(t, *s.seekTarget) > seekLandingWindow {
			// Sampled before the seek took effect.
			return
		}
		s.seekTarget = nil
		s.rebase = false
		s.current = t
		s.baseline = &t
		return
	}
	if s.resumeAt != nil {
		// The source has not reported its duration, so the deferred seek is
		// still pending and the resume point stays the position.
		if s.rebase || s.baseline == nil || t <= *s.baseline {
			s.rebase = false
			s.baseline = &t
			return
		}
		s.logger.Debug().Float64("resume_at", *s.resumeAt).Float64("position", t).Msg("source plays without a duration, dropping deferred seek")
		s.resumeAt = nil
	}

	s.current = t
	if s.rebase {
		// First sample after the playhead moved only sets the baseline.
		s.rebase = false
		s.baseline = &t
		return
	}
	forward := (s.baseline == nil && t > 0) || (s.baseline != nil && t > *s.baseline)
	if !forward {
		return
	}
	s.baseline = &t

	recovered, stalledFor := s.detector.MarkProgress()
	if recovered {
		s.executor.Reset()
		s.needsReload = false
		telemetry.StallDuration.Observe(stalledFor.Seconds())
		s.publish(events.EventStallRecovered, events.Payload{
			"stalled_for_ms": stalledFor.Milliseconds(),
			"position":       t,
		})
		s.logger.Info().Dur("stalled_for", stalledFor).Float64("position", t).Msg("playback recovered")
	}

	switch s.machine.Status() {
	case StatusPending, StatusStalling, StatusRecovering:
		s.fireLocked(EventProgress, out)
	}
	if s.intendPlay {
		s.detector.ScheduleCheck()
	}

	if s.cp != nil && s.opts.CheckpointInterval > 0 &&
		absDiff(t, s.checkpointAt) >= s.opts.CheckpointInterval.Seconds() {
		s.checkpointAt = t
		out.add(s.checkpointFunc(s.checkpointLocked()))
	}
}

func (s *Session) handleEndedLocked(out *outbox) {
	if s.media.Loop {
		s.current = 0
		s.seekLocked(0)
		if err := s.eng.Play(s.ctx); err != nil {
			s.logger.Error().Err(err).Msg("loop play failed")
		}
		s.logger.Debug().Msg("looping media")
		return
	}

	s.intendPlay = false
	s.ended = true
	s.detector.Suspend()
	s.publish(events.EventPlaybackEnded, events.Payload{"media_key": s.media.MediaKey})
	s.logger.Info().Msg("media ended")

	s.lmu.RLock()
	fns := append([]func(){}, s.onEnded...)
	s.lmu.RUnlock()
	for _, fn := range fns {
		out.add(fn)
	}
}

// Play starts playback, or resumes it when paused.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	paused := s.machine.Status() == StatusPaused
	s.mu.Unlock()
	if paused {
		return s.Resume(ctx)
	}

	out := outbox{s: s}
	s.mu.Lock()
	if s.eng == nil {
		s.mu.Unlock()
		return engine.ErrNoEngine
	}
	if err := s.eng.Play(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("play: %w", err)
	}
	s.intendPlay = true
	s.detector.Resume()
	s.detector.ScheduleCheck()
	s.mu.Unlock()
	out.flush()
	return nil
}

// Pause is user intent: it pauses the engine and suspends detection.
func (s *Session) Pause(ctx context.Context) error {
	out := outbox{s: s}
	s.mu.Lock()
	if s.eng == nil {
		s.mu.Unlock()
		return engine.ErrNoEngine
	}
	if !s.machine.Can(EventPause) {
		s.mu.Unlock()
		return fmt.Errorf("%w: pause on %s", ErrInvalidTransition, s.machine.Status())
	}
	if err := s.eng.Pause(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("pause: %w", err)
	}
	s.intendPlay = false
	s.pausedAt = s.clk.Now()
	s.detector.Suspend()
	s.fireLocked(EventPause, &out)
	if s.cp != nil {
		out.add(s.checkpointFunc(s.checkpointLocked()))
	}
	s.mu.Unlock()
	out.flush()
	return nil
}

// Resume is user intent to continue after Pause.
func (s *Session) Resume(ctx context.Context) error {
	out := outbox{s: s}
	s.mu.Lock()
	if s.eng == nil {
		s.mu.Unlock()
		return engine.ErrNoEngine
	}
	if s.machine.Status() != StatusPaused {
		s.mu.Unlock()
		return fmt.Errorf("%w: resume on %s", ErrInvalidTransition, s.machine.Status())
	}
	if err := s.eng.Play(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("resume: %w", err)
	}

	stale := s.opts.ResumeStaleAfter > 0 && s.clk.Now().Sub(s.pausedAt) >= s.opts.ResumeStaleAfter
	from := s.machine.Status()
	to, _ := s.machine.Resume(stale)
	s.recordTransitionLocked(from, to, &out)
	if stale {
		s.rebase = true
	}

	s.intendPlay = true
	s.detector.Resume()
	s.detector.ScheduleCheck()
	s.mu.Unlock()
	out.flush()
	return nil
}

// SetPlaybackRate changes the playback speed.
func (s *Session) SetPlaybackRate(ctx context.Context, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("playback rate must be positive, got %v", rate)
	}
	out := outbox{s: s}
	s.mu.Lock()
	if s.eng == nil {
		s.mu.Unlock()
		return engine.ErrNoEngine
	}
	if err := s.eng.SetPlaybackRate(ctx, rate); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set playback rate: %w", err)
	}
	s.media.PlaybackRate = rate
	out.status(s.payloadLocked())
	s.mu.Unlock()
	out.flush()
	return nil
}

// SetVolume changes the output level within [0,1].
func (s *Session) SetVolume(ctx context.Context, level float64) error {
	if err := engine.ValidateVolume(level); err != nil {
		return err
	}
	out := outbox{s: s}
	s.mu.Lock()
	if s.eng == nil {
		s.mu.Unlock()
		return engine.ErrNoEngine
	}
	if err := s.eng.SetVolume(ctx, level); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set volume: %w", err)
	}
	s.media.Volume = level
	out.status(s.payloadLocked())
	s.mu.Unlock()
	out.flush()
	return nil
}

// RequestRecovery issues the next strategy now. It is how manual mode
// recovers, and how an operator forces an attempt during a stall.
func (s *Session) RequestRecovery(ctx context.Context) (recovery.Result, error) {
	out := outbox{s: s}
	s.mu.Lock()
	if s.eng == nil {
		s.mu.Unlock()
		return recovery.Result{}, engine.ErrNoEngine
	}
	if !s.machine.Can(EventRecoveryIssued) {
		s.mu.Unlock()
		return recovery.Result{}, fmt.Errorf("%w: recovery on %s", ErrInvalidTransition, s.machine.Status())
	}
	res := s.attemptLocked(ctx, &out)
	s.mu.Unlock()
	out.flush()
	return res, res.Err
}

// ResetRecovery rewinds the strategy cursor and clears the reload request,
// for an operator who fixed the source by hand.
func (s *Session) ResetRecovery() {
	out := outbox{s: s}
	s.mu.Lock()
	s.executor.Reset()
	if s.needsReload {
		s.needsReload = false
		out.status(s.payloadLocked())
	}
	s.mu.Unlock()
	out.flush()
}

// Status returns the current presentation payload.
func (s *Session) Status() StatusPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloadLocked()
}

// Close stops every timer and releases the engine. It saves a final
// checkpoint unless the media ended.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.detector.Stop()
	s.eng = nil
	var final func()
	if s.cp != nil && !s.ended {
		final = s.checkpointFunc(s.checkpointLocked())
	}
	s.mu.Unlock()

	if final != nil {
		final()
	}
	s.cancel()
	s.logger.Debug().Msg("session closed")
}

func (s *Session) onSoftStall(quiet time.Duration) {
	out := outbox{s: s}
	s.mu.Lock()
	if s.closed || s.eng == nil || !s.detector.Snapshot().Stalled {
		s.mu.Unlock()
		return
	}
	if s.machine.Can(EventSoftStall) {
		s.fireLocked(EventSoftStall, &out)
	}
	telemetry.StallsTotal.WithLabelValues("soft").Inc()
	s.publish(events.EventSoftStall, events.Payload{
		"media_key": s.media.MediaKey,
		"quiet_ms":  quiet.Milliseconds(),
		"position":  s.positionLocked(),
	})
	s.mu.Unlock()
	out.flush()
}

func (s *Session) onHardStall(quiet time.Duration) bool {
	out := outbox{s: s}
	s.mu.Lock()
	if s.closed || s.eng == nil {
		s.mu.Unlock()
		return false
	}
	telemetry.StallsTotal.WithLabelValues("hard").Inc()
	if !s.machine.Can(EventRecoveryIssued) {
		s.mu.Unlock()
		return false
	}
	res := s.attemptLocked(s.ctx, &out)
	s.mu.Unlock()
	out.flush()
	return !res.Exhausted
}

func (s *Session) attemptLocked(ctx context.Context, out *outbox) recovery.Result {
	res := s.executor.Attempt(ctx, recovery.Target{
		Engine:   s.eng,
		Source:   s.media.SourceRef,
		Position: s.current,
	})

	if res.Exhausted {
		if !s.needsReload {
			s.attemptListenersLocked(res, out)
			s.needsReload = true
			s.publish(events.EventRecoveryExhausted, events.Payload{
				"media_key":     s.media.MediaKey,
				"attempt_index": res.Index,
			})
			out.status(s.payloadLocked())
			s.lmu.RLock()
			fns := append([]func(){}, s.onNeedReload...)
			s.lmu.RUnlock()
			for _, fn := range fns {
				out.add(fn)
			}
		}
		return res
	}

	// Strategies move the playhead, so progress is measured afresh.
	s.rebase = true
	s.seekTarget = nil
	if res.Outcome.DeferResume {
		at := res.Outcome.ResumeAt
		s.resumeAt = &at
		s.duration = nil
	}
	s.fireLocked(EventRecoveryIssued, out)
	payload := events.Payload{
		"media_key":     s.media.MediaKey,
		"strategy":      res.Strategy,
		"attempt_index": res.Index,
	}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	s.publish(events.EventRecoveryAttempt, payload)
	s.attemptListenersLocked(res, out)
	return res
}

func (s *Session) attemptListenersLocked(res recovery.Result, out *outbox) {
	s.lmu.RLock()
	fns := append([]func(recovery.Result){}, s.onAttempt...)
	s.lmu.RUnlock()
	for _, fn := range fns {
		out.add(func() { fn(res) })
	}
}

func (s *Session) fireLocked(ev Event, out *outbox) {
	from := s.machine.Status()
	to, err := s.machine.Fire(ev)
	if err != nil {
		s.logger.Debug().Err(err).Msg("ignored status event")
		return
	}
	s.recordTransitionLocked(from, to, out)
}

func (s *Session) recordTransitionLocked(from, to Status, out *outbox) {
	if from == to {
		return
	}
	telemetry.StatusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("status changed")

	p := s.payloadLocked()
	s.publish(events.EventStatusChanged, payloadToEvent(p))
	out.status(p)
}

func (s *Session) payloadLocked() StatusPayload {
	snap := s.detector.Snapshot()
	p := StatusPayload{
		Status:               s.machine.Status(),
		Stalled:              snap.Stalled,
		RecoveryAttemptIndex: s.executor.Index(),
		LastStrategyUsed:     s.executor.LastStrategy(),
		Seconds:              s.positionLocked(),
		NeedsExternalReload:  s.needsReload,
		MediaKey:             s.media.MediaKey,
		PlaybackRate:         s.media.PlaybackRate,
		Volume:               s.media.Volume,
		Loop:                 s.media.Loop,
	}
	if s.duration != nil {
		d := *s.duration
		p.Duration = &d
	}
	return p
}

// positionLocked is the best known playback position. A pending seek or
// deferred resume reports its target until a sample confirms it.
func (s *Session) positionLocked() float64 {
	switch {
	case s.resumeAt != nil:
		return *s.resumeAt
	case s.seekTarget != nil:
		return *s.seekTarget
	}
	return s.current
}

func (s *Session) publish(eventType events.EventType, payload events.Payload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, payload)
}

// outbox defers listener calls until the session lock is released.
type outbox struct {
	s   *Session
	fns []func()
}

func (o *outbox) add(fn func()) {
	o.fns = append(o.fns, fn)
}

func (o *outbox) flush() {
	for _, fn := range o.fns {
		fn()
	}
	o.fns = nil
}

func (o *outbox) status(p StatusPayload) {
	o.add(func() {
		if o.s == nil {
			return
		}
		o.s.lmu.RLock()
		fns := append([]func(StatusPayload){}, o.s.onStatus...)
		o.s.lmu.RUnlock()
		for _, fn := range fns {
			fn(p)
		}
	})
}

func payloadToEvent(p StatusPayload) events.Payload {
	ev := events.Payload{
		"status":                 string(p.Status),
		"stalled":                p.Stalled,
		"recovery_attempt_index": p.RecoveryAttemptIndex,
		"last_strategy_used":     p.LastStrategyUsed,
		"seconds":                p.Seconds,
		"needs_external_reload":  p.NeedsExternalReload,
		"media_key":              p.MediaKey,
	}
	if p.Duration != nil {
		ev["duration"] = *p.Duration
	}
	return ev
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

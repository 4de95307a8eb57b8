/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_display/internal/clock"
	"github.com/friendsincode/grimnir_display/internal/composite"
	"github.com/friendsincode/grimnir_display/internal/engine"
	"github.com/friendsincode/grimnir_display/internal/events"
	"github.com/friendsincode/grimnir_display/internal/queue"
	"github.com/friendsincode/grimnir_display/internal/recovery"
	"github.com/friendsincode/grimnir_display/internal/resilience"
	"github.com/friendsincode/grimnir_display/internal/telemetry"
)

var (
	// ErrIdle indicates a command that needs an active item.
	ErrIdle = errors.New("nothing is playing")

	// ErrUnknownCommand indicates a remote control command the director does not know.
	ErrUnknownCommand = errors.New("unknown playback command")
)

// Command names accepted by Command and relayed on the control channel.
const (
	CommandPause    = "pause"
	CommandResume   = "resume"
	CommandNext     = "next"
	CommandPrevious = "previous"
	CommandReload   = "reload"
	CommandRecover  = "recover"
)

// Store is the persistence the director needs. *store.Store satisfies it.
type Store interface {
	resilience.Checkpointer
	LoadCheckpoint(ctx context.Context, mediaKey string) (resilience.Checkpoint, bool, error)
	DeleteCheckpoint(ctx context.Context, mediaKey string) error
	RecordRecovery(ctx context.Context, mediaKey string, res recovery.Result, at time.Time) error
}

// Config tunes a Director.
type Config struct {
	Session            resilience.Options
	MaxSessionRebuilds int
}

// Deps are the director's collaborators. Engine is required.
type Deps struct {
	Engine   engine.Engine
	Follower engine.Engine   // optional second element of a composite display
	Sync     *composite.Sync // optional; reset whenever a new item loads
	Store    Store
	Bus      events.Publisher
	Clock    clock.Clock
}

// Status is what the control API and status stream report.
type Status struct {
	resilience.StatusPayload
	Active         bool   `json:"active"`
	GUID           string `json:"guid,omitempty"`
	AssetRef       string `json:"assetRef,omitempty"`
	QueueRemaining int    `json:"queueRemaining"`
	Rebuilds       int    `json:"sessionRebuilds"`
}

// Director drives the queue through one engine, one session per item.
type Director struct {
	queue  *queue.Controller
	cfg    Config
	eng    engine.Engine
	follow engine.Engine
	sync   *composite.Sync
	store  Store
	bus    events.Publisher
	clk    clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	session  *resilience.Session
	item     queue.Item
	active   bool
	rebuilds int

	wmu      sync.Mutex
	watchers map[chan Status]struct{}
}

// NewDirector creates a playout director over ctrl.
func NewDirector(ctrl *queue.Controller, cfg Config, deps Deps, logger zerolog.Logger) (*Director, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("director requires a queue controller")
	}
	if deps.Engine == nil {
		return nil, engine.ErrNoEngine
	}
	if cfg.MaxSessionRebuilds < 0 {
		cfg.MaxSessionRebuilds = 0
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Director{
		queue:    ctrl,
		cfg:      cfg,
		eng:      deps.Engine,
		follow:   deps.Follower,
		sync:     deps.Sync,
		store:    deps.Store,
		bus:      deps.Bus,
		clk:      clk,
		logger:   logger.With().Str("component", "director").Logger(),
		watchers: make(map[chan Status]struct{}),
	}, nil
}

// Start loads src and plays its head. Loading a source identical to the
// current one keeps playing what is already on screen.
func (d *Director) Start(ctx context.Context, src queue.Source) error {
	changed, err := d.queue.Load(ctx, src)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !changed && d.active {
		return nil
	}
	head, ok := d.queue.Head()
	if !ok {
		return queue.ErrEmpty
	}
	return d.openLocked(ctx, head, 0)
}

// HandleSignal routes an engine signal to the current session. It is the
// engine.Sink handed to the engine adapter.
func (d *Director) HandleSignal(sig engine.Signal) {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s != nil {
		s.HandleSignal(sig)
	}
}

// Next skips to the following item.
func (d *Director) Next(ctx context.Context) error {
	return d.advance(ctx, 1, false)
}

// Previous returns to the prior item.
func (d *Director) Previous(ctx context.Context) error {
	return d.advance(ctx, -1, false)
}

// Pause pauses the current item.
func (d *Director) Pause(ctx context.Context) error {
	s, err := d.current()
	if err != nil {
		return err
	}
	return s.Pause(ctx)
}

// Resume continues the current item after Pause.
func (d *Director) Resume(ctx context.Context) error {
	s, err := d.current()
	if err != nil {
		return err
	}
	return s.Resume(ctx)
}

// Recover issues the next recovery strategy now.
func (d *Director) Recover(ctx context.Context) (recovery.Result, error) {
	s, err := d.current()
	if err != nil {
		return recovery.Result{}, err
	}
	return s.RequestRecovery(ctx)
}

// Reload replaces the session for the current item from its last position.
// It is the operator's answer to needsExternalReload and resets the rebuild budget.
func (d *Director) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || d.session == nil {
		return ErrIdle
	}
	d.rebuilds = 0
	return d.rebuildLocked(ctx, "operator")
}

// Command dispatches a named remote control command.
func (d *Director) Command(ctx context.Context, name string) error {
	switch name {
	case CommandPause:
		return d.Pause(ctx)
	case CommandResume:
		return d.Resume(ctx)
	case CommandNext:
		return d.Next(ctx)
	case CommandPrevious:
		return d.Previous(ctx)
	case CommandReload:
		return d.Reload(ctx)
	case CommandRecover:
		_, err := d.Recover(ctx)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// Status reports the current item and session.
func (d *Director) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

// Healthy reports false while the current item waits for an external reload.
func (d *Director) Healthy() bool {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if s == nil {
		return true
	}
	return !s.Status().NeedsExternalReload
}

// Watch streams status updates until cancel is called. Slow readers miss
// intermediate updates rather than blocking playback.
func (d *Director) Watch() (<-chan Status, func()) {
	ch := make(chan Status, 8)
	d.wmu.Lock()
	d.watchers[ch] = struct{}{}
	d.wmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.wmu.Lock()
			delete(d.watchers, ch)
			d.wmu.Unlock()
			close(ch)
		})
	}
}

// Stop closes the current session, saving a final checkpoint.
func (d *Director) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	d.active = false
	d.logger.Info().Msg("playout director stopped")
}

// Listen executes control commands relayed on the bus until ctx is done.
func (d *Director) Listen(ctx context.Context, sub events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			name, _ := payload["command"].(string)
			if err := d.Command(ctx, name); err != nil {
				d.logger.Warn().Err(err).Str("command", name).Msg("control command failed")
				continue
			}
			d.logger.Info().Str("command", name).Msg("control command applied")
		}
	}
}

func (d *Director) current() (*resilience.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || d.session == nil {
		return nil, ErrIdle
	}
	return d.session, nil
}

func (d *Director) advance(ctx context.Context, step int, finished bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.advanceLocked(ctx, step, finished)
}

func (d *Director) advanceLocked(ctx context.Context, step int, finished bool) error {
	if !d.active {
		return ErrIdle
	}
	if finished {
		// Close first so the outgoing session cannot save the position again.
		d.closeLocked()
	}
	if finished && d.store != nil {
		if err := d.store.DeleteCheckpoint(ctx, d.item.AssetRef); err != nil {
			d.logger.Warn().Err(err).Str("asset", d.item.AssetRef).Msg("failed to clear checkpoint")
		}
	}

	next, ok := d.queue.Advance(step)
	if !ok {
		d.teardownLocked(ctx)
		return nil
	}
	return d.openLocked(ctx, next, 0)
}

// openLocked replaces the session with one for item. A positive from wins over
// both the item's start override and any saved checkpoint.
func (d *Director) openLocked(ctx context.Context, item queue.Item, from float64) error {
	ctx, span := telemetry.StartSpan(ctx, "playout", "playout.open")
	defer span.End()

	if item.GUID != d.item.GUID {
		d.rebuilds = 0
	}
	d.closeLocked()

	media := d.mediaFor(ctx, item, from)
	deps := resilience.Deps{Clock: d.clk, Bus: d.bus}
	if d.store != nil {
		deps.Checkpointer = d.store
	}
	s, err := resilience.NewSession(media, d.cfg.Session, deps, d.logger)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("open session: %w", err)
	}
	s.OnStatusChange(func(resilience.StatusPayload) { d.broadcast(s) })
	s.OnEnded(func() { d.onEnded(s) })
	s.OnNeedsExternalReload(func() { d.onNeedsReload(s) })
	s.OnRecoveryAttempt(func(res recovery.Result) { d.journal(media.MediaKey, res) })

	if err := d.eng.Reload(ctx, item.AssetRef); err != nil {
		s.Close()
		span.RecordError(err)
		return fmt.Errorf("load %s: %w", item.AssetRef, err)
	}
	if d.follow != nil {
		ref := item.FollowerAssetRef
		if ref == "" {
			ref = item.AssetRef
		}
		if err := d.follow.Reload(ctx, ref); err != nil {
			d.logger.Warn().Err(err).Str("asset", ref).Msg("follower load failed")
		}
	}
	if d.sync != nil {
		d.sync.Reset()
	}

	d.session = s
	d.item = item
	d.active = true

	if err := s.Attach(ctx, d.eng); err != nil {
		return fmt.Errorf("attach engine: %w", err)
	}
	if err := s.Play(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("initial play failed")
	}

	d.logger.Info().
		Str("guid", item.GUID).
		Str("asset", item.AssetRef).
		Float64("start", media.StartPositionSeconds).
		Msg("item loaded")
	return nil
}

func (d *Director) mediaFor(ctx context.Context, item queue.Item, from float64) resilience.Media {
	o := item.Overrides
	media := resilience.Media{
		MediaKey:             item.AssetRef,
		SourceRef:            item.AssetRef,
		StartPositionSeconds: o.StartPositionSeconds,
		PlaybackRate:         o.PlaybackRate,
		Muted:                o.Muted,
		Loop:                 o.Loop,
	}
	if o.Volume != nil {
		media.Volume = *o.Volume
		media.Muted = media.Muted || *o.Volume == 0
	}

	switch {
	case from > 0:
		media.StartPositionSeconds = from
	case d.store != nil && o.StartPositionSeconds == 0:
		cp, ok, err := d.store.LoadCheckpoint(ctx, item.AssetRef)
		if err != nil {
			d.logger.Warn().Err(err).Str("asset", item.AssetRef).Msg("failed to load checkpoint")
		} else if ok && cp.Position > 0 {
			media.StartPositionSeconds = cp.Position
		}
	}
	return media
}

func (d *Director) rebuildLocked(ctx context.Context, reason string) error {
	from := d.session.Status().Seconds
	item := d.item
	d.rebuilds++
	rebuilds := d.rebuilds

	if err := d.openLocked(ctx, item, from); err != nil {
		return err
	}

	telemetry.SessionRebuildsTotal.Inc()
	d.publish(events.EventSessionRebuilt, events.Payload{
		"guid":     item.GUID,
		"asset":    item.AssetRef,
		"position": from,
		"rebuilds": rebuilds,
		"reason":   reason,
	})
	d.logger.Warn().
		Str("asset", item.AssetRef).
		Float64("position", from).
		Int("rebuilds", rebuilds).
		Str("reason", reason).
		Msg("session rebuilt")
	return nil
}

func (d *Director) onEnded(s *resilience.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s != d.session {
		return
	}
	if err := d.advanceLocked(context.Background(), 1, true); err != nil {
		d.logger.Error().Err(err).Msg("failed to advance after item ended")
	}
}

func (d *Director) onNeedsReload(s *resilience.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s != d.session {
		return
	}
	ctx := context.Background()

	d.publish(events.EventNeedsExternalReload, events.Payload{
		"guid":     d.item.GUID,
		"asset":    d.item.AssetRef,
		"rebuilds": d.rebuilds,
	})

	if d.rebuilds >= d.cfg.MaxSessionRebuilds {
		d.logger.Error().
			Str("asset", d.item.AssetRef).
			Int("rebuilds", d.rebuilds).
			Msg("item keeps stalling, skipping")
		d.rebuilds = 0
		if err := d.advanceLocked(ctx, 1, false); err != nil {
			d.logger.Error().Err(err).Msg("failed to skip stalled item")
		}
		return
	}
	if err := d.rebuildLocked(ctx, "recovery_exhausted"); err != nil {
		d.logger.Error().Err(err).Msg("session rebuild failed")
	}
}

func (d *Director) journal(mediaKey string, res recovery.Result) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.RecordRecovery(ctx, mediaKey, res, d.clk.Now()); err != nil {
		d.logger.Warn().Err(err).Str("strategy", res.Strategy).Msg("failed to journal recovery")
	}
}

func (d *Director) teardownLocked(ctx context.Context) {
	d.closeLocked()
	d.active = false
	d.item = queue.Item{}
	if err := d.eng.Pause(ctx); err != nil {
		d.logger.Debug().Err(err).Msg("pause after queue exhaustion failed")
	}
	if d.follow != nil {
		_ = d.follow.Pause(ctx)
	}
	d.logger.Info().Msg("queue exhausted, playback stopped")
	d.broadcastLocked()
}

func (d *Director) closeLocked() {
	if d.session == nil {
		return
	}
	d.session.Close()
	d.session = nil
}

func (d *Director) statusLocked() Status {
	st := Status{
		Active:         d.active,
		QueueRemaining: d.queue.Len(),
		Rebuilds:       d.rebuilds,
	}
	if d.active {
		st.GUID = d.item.GUID
		st.AssetRef = d.item.AssetRef
	}
	if d.session != nil {
		st.StatusPayload = d.session.Status()
	}
	return st
}

// broadcast runs from session listeners, which may fire while d.mu is held by
// the goroutine that triggered them, so it never takes d.mu.
func (d *Director) broadcast(s *resilience.Session) {
	st := Status{StatusPayload: s.Status(), Active: true, QueueRemaining: d.queue.Len()}
	if head, ok := d.queue.Head(); ok {
		st.GUID = head.GUID
		st.AssetRef = head.AssetRef
	}
	d.send(st)
}

func (d *Director) broadcastLocked() {
	d.send(d.statusLocked())
}

func (d *Director) send(st Status) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	for ch := range d.watchers {
		select {
		case ch <- st:
		default:
		}
	}
}

func (d *Director) publish(eventType events.EventType, payload events.Payload) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventType, payload)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue keeps the ordered list of assets a display plays and moves
// through it forward, backward or in an endless loop.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/friendsincode/grimnir_display/internal/events"
	"github.com/friendsincode/grimnir_display/internal/telemetry"
)

var (
	// ErrEmpty indicates a source that resolved to no items.
	ErrEmpty = errors.New("queue source is empty")

	// ErrNotFound indicates a playlist or asset the resolver does not know.
	ErrNotFound = errors.New("queue source not found")
)

// Item is one queued asset. The GUID is minted per enqueue.
type Item struct {
	GUID             string    `json:"guid"`
	AssetRef         string    `json:"assetRef"`
	FollowerAssetRef string    `json:"followerAssetRef,omitempty"`
	Overrides        Overrides `json:"overrides"`
}

// Options configures a Controller.
type Options struct {
	Continuous  bool
	OnExhausted func()
	Bus         events.Publisher
	// Shuffle permutes n items through swap. Nil uses math/rand.
	Shuffle func(n int, swap func(i, j int))
}

// Controller owns originalQueue, the ordering built at Load, and playQueue,
// the items still ahead of the head.
type Controller struct {
	resolver Resolver
	logger   zerolog.Logger
	bus      events.Publisher
	shuffle  func(n int, swap func(i, j int))

	mu          sync.Mutex
	continuous  bool
	onExhausted func()
	signature   string
	original    []Item
	play        []Item
	current     int // original index of the head
}

// NewController creates an empty controller.
func NewController(resolver Resolver, opts Options, logger zerolog.Logger) *Controller {
	shuffle := opts.Shuffle
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	return &Controller{
		resolver:    resolver,
		logger:      logger.With().Str("component", "queue").Logger(),
		bus:         opts.Bus,
		shuffle:     shuffle,
		continuous:  opts.Continuous,
		onExhausted: opts.OnExhausted,
	}
}

// Load builds the queue from src. A source whose signature matches the
// loaded one leaves the queue untouched and reports false.
func (c *Controller) Load(ctx context.Context, src Source) (bool, error) {
	sig := src.Signature()

	c.mu.Lock()
	same := c.original != nil && sig == c.signature
	c.mu.Unlock()
	if same {
		return false, nil
	}
	if src.Empty() {
		return false, ErrEmpty
	}

	entries, err := c.resolver.Resolve(ctx, src)
	if err != nil {
		return false, fmt.Errorf("resolve queue source: %w", err)
	}
	if len(entries) == 0 {
		return false, ErrEmpty
	}

	items := lo.Map(entries, func(e Entry, _ int) Item {
		return Item{GUID: uuid.NewString(), AssetRef: e.AssetRef, FollowerAssetRef: e.FollowerAssetRef, Overrides: e.Overrides}
	})
	if src.Shuffle {
		c.shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}

	c.mu.Lock()
	c.signature = sig
	c.original = items
	c.play = append([]Item(nil), items...)
	c.current = 0
	c.mu.Unlock()

	c.logger.Info().Int("items", len(items)).Bool("shuffle", src.Shuffle).Str("signature", sig).Msg("queue loaded")
	return true, nil
}

// Advance moves the head by step and returns the new head.
func (c *Controller) Advance(step int) (Item, bool) {
	c.mu.Lock()
	n := len(c.original)
	if n == 0 {
		c.mu.Unlock()
		return Item{}, false
	}
	if step == 0 {
		head, ok := c.headLocked()
		c.mu.Unlock()
		return head, ok
	}

	mode := "single"
	if c.continuous {
		mode = "continuous"
	}

	switch {
	case step < 0:
		// Backtracking keeps everything still ahead.
		idx := mod(c.current+step, n)
		c.play = append([]Item{c.original[idx]}, c.play...)
		c.current = idx
		telemetry.QueueAdvancesTotal.WithLabelValues("back", mode).Inc()

	case c.continuous:
		idx := mod(c.current+step, n)
		c.play = append(append(make([]Item, 0, n), c.original[idx:]...), c.original[:idx]...)
		c.current = idx
		telemetry.QueueAdvancesTotal.WithLabelValues("forward", mode).Inc()

	default:
		c.play = c.play[min(step, len(c.play)):]
		telemetry.QueueAdvancesTotal.WithLabelValues("forward", mode).Inc()
		if len(c.play) == 0 {
			c.original = nil
			c.play = nil
			c.signature = ""
			c.current = 0
			onExhausted := c.onExhausted
			c.mu.Unlock()

			c.logger.Info().Msg("queue exhausted")
			c.publish(events.EventQueueExhausted, events.Payload{})
			if onExhausted != nil {
				onExhausted()
			}
			return Item{}, false
		}
		c.current = c.originalIndexLocked(c.play[0].GUID)
	}

	head := c.play[0]
	remaining := len(c.play)
	c.mu.Unlock()

	c.logger.Debug().Int("step", step).Str("asset", head.AssetRef).Int("remaining", remaining).Msg("queue advanced")
	c.publish(events.EventQueueAdvanced, events.Payload{
		"step":      step,
		"guid":      head.GUID,
		"asset_ref": head.AssetRef,
		"remaining": remaining,
	})
	return head, true
}

// Head returns the item at the front of playQueue.
func (c *Controller) Head() (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headLocked()
}

// Len returns the length of playQueue.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.play)
}

// Original returns a copy of originalQueue.
func (c *Controller) Original() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.original...)
}

// Remaining returns a copy of playQueue.
func (c *Controller) Remaining() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.play...)
}

// CurrentIndex returns the original index of the head.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Signature returns the signature of the loaded source, or "" when empty.
func (c *Controller) Signature() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signature
}

// SetContinuous switches between looping and play-once.
func (c *Controller) SetContinuous(continuous bool) {
	c.mu.Lock()
	c.continuous = continuous
	c.mu.Unlock()
}

// Continuous reports the looping mode.
func (c *Controller) Continuous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.continuous
}

// OnExhausted replaces the exhausted callback.
func (c *Controller) OnExhausted(fn func()) {
	c.mu.Lock()
	c.onExhausted = fn
	c.mu.Unlock()
}

func (c *Controller) headLocked() (Item, bool) {
	if len(c.play) == 0 {
		return Item{}, false
	}
	return c.play[0], true
}

func (c *Controller) originalIndexLocked(guid string) int {
	_, idx, ok := lo.FindIndexOf(c.original, func(it Item) bool { return it.GUID == guid })
	if !ok {
		return 0
	}
	return idx
}

func (c *Controller) publish(eventType events.EventType, payload events.Payload) {
	if c.bus != nil {
		c.bus.Publish(eventType, payload)
	}
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

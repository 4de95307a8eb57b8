/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/friendsincode/grimnir_display/internal/telemetry"
)

// Result reports one Attempt.
type Result struct {
	Strategy  string
	Index     int // cursor after the attempt
	Outcome   Outcome
	Err       error // issuance failure, or ErrExhausted
	Exhausted bool
}

// Executor walks an ordered list of strategies. The cursor only moves
// forward until Reset.
type Executor struct {
	order      []string
	strategies []Strategy
	logger     zerolog.Logger

	mu     sync.Mutex
	cursor int
	last   string
}

// NewExecutor resolves every name in order against the registry and
// rejects unknown names. Later registry changes do not affect the executor.
func NewExecutor(order []string, registry *Registry, logger zerolog.Logger) (*Executor, error) {
	if registry == nil {
		registry = DefaultRegistry(DefaultConfig())
	}
	strategies := make([]Strategy, 0, len(order))
	for _, name := range order {
		s, err := registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return &Executor{
		order:      append([]string(nil), order...),
		strategies: strategies,
		logger:     logger.With().Str("component", "recovery").Logger(),
	}, nil
}

// Attempt runs the strategy at the cursor and advances the cursor whether or
// not the commands could be issued.
func (e *Executor) Attempt(ctx context.Context, t Target) Result {
	e.mu.Lock()
	if e.cursor >= len(e.order) {
		idx := e.cursor
		e.mu.Unlock()
		telemetry.RecoveryExhaustedTotal.Inc()
		e.logger.Warn().Int("attempt_index", idx).Msg("recovery strategies exhausted")
		return Result{Index: idx, Err: ErrExhausted, Exhausted: true}
	}
	name, strategy := e.order[e.cursor], e.strategies[e.cursor]
	e.cursor++
	e.last = name
	idx := e.cursor
	e.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "recovery", "recovery.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("recovery.strategy", name),
		attribute.Int("recovery.attempt_index", idx),
		attribute.Float64("playback.position", t.Position),
	)

	res := Result{Strategy: name, Index: idx}
	var err error
	res.Outcome, err = strategy.Execute(ctx, t)

	result := "issued"
	if err != nil {
		result = "failed"
		res.Err = fmt.Errorf("recovery %s: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error().Err(err).Str("strategy", name).Int("attempt_index", idx).Msg("recovery attempt failed to issue")
	} else {
		e.logger.Info().Str("strategy", name).Int("attempt_index", idx).Msg("recovery attempt issued")
	}
	telemetry.RecoveryAttemptsTotal.WithLabelValues(name, result).Inc()
	return res
}

// Reset moves the cursor back to the first strategy.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cursor = 0
}

// Index returns how many attempts were made since the last Reset.
func (e *Executor) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// LastStrategy returns the most recently attempted strategy name.
func (e *Executor) LastStrategy() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Exhausted reports whether no strategy remains before the next Reset.
func (e *Executor) Exhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor >= len(e.order)
}

// Order returns the configured strategy order.
func (e *Executor) Order() []string {
	return append([]string(nil), e.order...)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resilience

import (
	"context"
	"time"
)

// Checkpoint is the last known playback position of a media item, saved so a
// restarted display resumes where it left off.
type Checkpoint struct {
	MediaKey  string
	Position  float64
	Duration  *float64
	Status    Status
	UpdatedAt time.Time
}

// Checkpointer persists checkpoints.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

func (s *Session) checkpointLocked() Checkpoint {
	cp := Checkpoint{
		MediaKey:  s.media.MediaKey,
		Position:  s.positionLocked(),
		Status:    s.machine.Status(),
		UpdatedAt: s.clk.Now(),
	}
	if s.duration != nil {
		d := *s.duration
		cp.Duration = &d
	}
	return cp
}

func (s *Session) checkpointFunc(cp Checkpoint) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cp.SaveCheckpoint(ctx, cp); err != nil {
			s.logger.Warn().Err(err).Float64("position", cp.Position).Msg("failed to save checkpoint")
		}
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/grimnir_display/internal/models"
	"github.com/friendsincode/grimnir_display/internal/recovery"
	"github.com/friendsincode/grimnir_display/internal/resilience"
)

// Store persists playback checkpoints and the recovery journal for one display.
type Store struct {
	db        *gorm.DB
	displayID string
	logger    zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*models.PlaybackCheckpoint // mediaKey -> checkpoint
}

// New creates a store scoped to displayID.
func New(db *gorm.DB, displayID string, logger zerolog.Logger) *Store {
	return &Store{
		db:        db,
		displayID: displayID,
		logger:    logger.With().Str("component", "store").Logger(),
		cache:     make(map[string]*models.PlaybackCheckpoint),
	}
}

// SaveCheckpoint upserts the checkpoint for cp.MediaKey.
func (s *Store) SaveCheckpoint(ctx context.Context, cp resilience.Checkpoint) error {
	if cp.MediaKey == "" {
		return errors.New("checkpoint requires a media key")
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.cache[cp.MediaKey]
	if !ok {
		row = &models.PlaybackCheckpoint{
			DisplayID: s.displayID,
			MediaKey:  cp.MediaKey,
			CreatedAt: updated,
		}
	}
	next := *row
	// The existing row keeps its ID; a fresh one only avoids a primary key conflict.
	next.ID = uuid.NewString()
	next.Position = cp.Position
	next.Duration = cp.Duration
	next.Status = string(cp.Status)
	next.UpdatedAt = updated

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "display_id"}, {Name: "media_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "duration", "status", "updated_at"}),
	}).Create(&next).Error
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.cache[cp.MediaKey] = &next

	s.logger.Debug().
		Str("media_key", cp.MediaKey).
		Float64("position", cp.Position).
		Msg("checkpoint saved")
	return nil
}

// LoadCheckpoint returns the saved checkpoint for mediaKey, if any.
func (s *Store) LoadCheckpoint(ctx context.Context, mediaKey string) (resilience.Checkpoint, bool, error) {
	s.mu.RLock()
	cached, ok := s.cache[mediaKey]
	s.mu.RUnlock()
	if ok {
		return toCheckpoint(cached), true, nil
	}

	var row models.PlaybackCheckpoint
	err := s.db.WithContext(ctx).
		Where("display_id = ? AND media_key = ?", s.displayID, mediaKey).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return resilience.Checkpoint{}, false, nil
	}
	if err != nil {
		return resilience.Checkpoint{}, false, fmt.Errorf("query checkpoint: %w", err)
	}

	s.mu.Lock()
	s.cache[mediaKey] = &row
	s.mu.Unlock()
	return toCheckpoint(&row), true, nil
}

// DeleteCheckpoint forgets mediaKey, so the next play starts from the top.
func (s *Store) DeleteCheckpoint(ctx context.Context, mediaKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).
		Where("display_id = ? AND media_key = ?", s.displayID, mediaKey).
		Delete(&models.PlaybackCheckpoint{}).Error
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	delete(s.cache, mediaKey)
	return nil
}

// RecordRecovery journals one recovery attempt.
func (s *Store) RecordRecovery(ctx context.Context, mediaKey string, res recovery.Result, at time.Time) error {
	rec := models.RecoveryRecord{
		ID:           uuid.NewString(),
		DisplayID:    s.displayID,
		MediaKey:     mediaKey,
		Strategy:     res.Strategy,
		AttemptIndex: res.Index,
		Exhausted:    res.Exhausted,
		OccurredAt:   at,
	}
	if res.Err != nil && !res.Exhausted {
		rec.Error = res.Err.Error()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record recovery: %w", err)
	}
	return nil
}

// RecentRecoveries returns up to limit journal entries, newest first.
func (s *Store) RecentRecoveries(ctx context.Context, limit int) ([]models.RecoveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.RecoveryRecord
	err := s.db.WithContext(ctx).
		Where("display_id = ?", s.displayID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query recoveries: %w", err)
	}
	return out, nil
}

func toCheckpoint(row *models.PlaybackCheckpoint) resilience.Checkpoint {
	cp := resilience.Checkpoint{
		MediaKey:  row.MediaKey,
		Position:  row.Position,
		Status:    resilience.Status(row.Status),
		UpdatedAt: row.UpdatedAt,
	}
	if row.Duration != nil {
		d := *row.Duration
		cp.Duration = &d
	}
	return cp
}

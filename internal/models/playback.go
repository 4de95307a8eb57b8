/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// PlaybackCheckpoint is the last saved position of one media item on one display.
type PlaybackCheckpoint struct {
	ID        string   `gorm:"type:varchar(36);primaryKey"`
	DisplayID string   `gorm:"type:varchar(128);uniqueIndex:idx_checkpoint_display_media"`
	MediaKey  string   `gorm:"type:varchar(255);uniqueIndex:idx_checkpoint_display_media"`
	Position  float64  `gorm:"type:float"`
	Duration  *float64 `gorm:"type:float"`
	Status    string   `gorm:"type:varchar(32)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PlaybackCheckpoint) TableName() string {
	return "playback_checkpoints"
}

// RecoveryRecord journals one recovery attempt for fleet diagnostics.
type RecoveryRecord struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	DisplayID    string `gorm:"type:varchar(128);index"`
	MediaKey     string `gorm:"type:varchar(255);index"`
	Strategy     string `gorm:"type:varchar(64)"`
	AttemptIndex int
	Exhausted    bool
	Error        string `gorm:"type:text"`
	OccurredAt   time.Time `gorm:"index"`
}

func (RecoveryRecord) TableName() string {
	return "recovery_records"
}

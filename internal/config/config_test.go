/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRIMNIR_DISPLAY_ID", "lobby-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("DBBackend = %q, want sqlite", cfg.DBBackend)
	}
	if !cfg.QueueContinuous {
		t.Fatal("expected continuous queue by default")
	}
	if cfg.Resilience.SoftMs != 1200 || cfg.Resilience.HardMs != 8000 {
		t.Fatalf("unexpected thresholds: soft=%d hard=%d", cfg.Resilience.SoftMs, cfg.Resilience.HardMs)
	}
	if cfg.HTTPAddr() != "127.0.0.1:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
}

func TestLoadReadsQueueItems(t *testing.T) {
	t.Setenv("GRIMNIR_DISPLAY_ID", "lobby-1")
	t.Setenv("GRIMNIR_QUEUE_ITEMS", " /media/a.mp4, ,/media/b.mp4 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.QueueItems) != 2 || cfg.QueueItems[0] != "/media/a.mp4" || cfg.QueueItems[1] != "/media/b.mp4" {
		t.Fatalf("QueueItems = %v", cfg.QueueItems)
	}
}

func TestLoadRejectsItemsAndPlaylist(t *testing.T) {
	t.Setenv("GRIMNIR_DISPLAY_ID", "lobby-1")
	t.Setenv("GRIMNIR_QUEUE_ITEMS", "/media/a.mp4")
	t.Setenv("GRIMNIR_QUEUE_PLAYLIST", "lobby-loop")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when both items and playlist are set")
	}
}

func TestLoadPlaylistNeedsFile(t *testing.T) {
	t.Setenv("GRIMNIR_DISPLAY_ID", "lobby-1")
	t.Setenv("GRIMNIR_QUEUE_PLAYLIST", "lobby-loop")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for playlist without playlist file")
	}

	t.Setenv("GRIMNIR_PLAYLIST_FILE", "/etc/grimnir/playlists.yaml")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PlaylistFile != "/etc/grimnir/playlists.yaml" {
		t.Fatalf("PlaylistFile = %q", cfg.PlaylistFile)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("GRIMNIR_DISPLAY_ID", "lobby-1")
	t.Setenv("GRIMNIR_EVENT_BUS", "kafka")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported event bus")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("GRIMNIR_DISPLAY_ID", "lobby-1")
	t.Setenv("GRIMNIR_VIDEO_STALL_SOFT_MS", "900")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) != 1 {
		t.Fatalf("expected one legacy warning, got %v", cfg.LegacyEnvWarnings)
	}
}

func TestLoadResilienceFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resilience.yaml")
	body := "softMs: 1000\nhardMs: 4000\nrecoveryStrategies: [nudge, reload]\nseekBackOnReloadSeconds: 0\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("GRIMNIR_STALL_HARD_MS", "5000")

	r, err := LoadResilience(path)
	if err != nil {
		t.Fatalf("load resilience: %v", err)
	}
	if r.SoftMs != 1000 {
		t.Fatalf("SoftMs = %d, want 1000 from file", r.SoftMs)
	}
	if r.HardMs != 5000 {
		t.Fatalf("HardMs = %d, want env override 5000", r.HardMs)
	}
	if len(r.RecoveryStrategies) != 2 || r.RecoveryStrategies[1] != "reload" {
		t.Fatalf("RecoveryStrategies = %v", r.RecoveryStrategies)
	}
	if r.SeekBackOnReloadSeconds != 0 {
		t.Fatalf("explicit zero cushion lost: %v", r.SeekBackOnReloadSeconds)
	}
	// Absent keys keep defaults.
	if r.AbortThresholdSeconds != 3.0 || r.Mode != RecoveryAuto {
		t.Fatalf("defaults not kept: abort=%v mode=%q", r.AbortThresholdSeconds, r.Mode)
	}
}

func TestResilienceValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Resilience)
		valid  bool
	}{
		{"defaults", func(*Resilience) {}, true},
		{"hard not above soft", func(r *Resilience) { r.HardMs = r.SoftMs }, false},
		{"unknown mode", func(r *Resilience) { r.Mode = "eager" }, false},
		{"abort below drift", func(r *Resilience) { r.AbortThresholdSeconds = 0.2 }, false},
		{"negative cushion", func(r *Resilience) { r.SeekBackOnReloadSeconds = -1 }, false},
		{"manual mode", func(r *Resilience) { r.Mode = RecoveryManual }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultResilience()
			tt.mutate(&r)
			err := r.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, valid want %v", err, tt.valid)
			}
		})
	}
}

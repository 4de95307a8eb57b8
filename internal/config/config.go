/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects where status events are relayed.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment    string
	DisplayID      string // Stable identity of this display in fleet telemetry
	HTTPBind       string
	HTTPPort       int
	HealthGRPCPort int // 0 disables the gRPC health service
	DBBackend      DatabaseBackend
	DBDSN          string

	// Engine
	MPVSocket         string
	MPVFollowerSocket string // second mpv of a composite display; empty disables sync
	MPVPollPeriod     time.Duration

	// Queue
	QueueItems      []string // Explicit asset references, in order
	QueuePlaylist   string   // Playlist key resolved by the asset backend
	QueueShuffle    bool
	QueueContinuous bool
	PlaylistFile    string // YAML map of playlist key to entries

	// Event relay
	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Resilience tuning shared by audio and video sessions
	ResilienceFile string
	Resilience     Resilience

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	host, _ := os.Hostname()

	cfg := &Config{
		Environment:    getEnvAny([]string{"GRIMNIR_ENV"}, "development"),
		DisplayID:      getEnvAny([]string{"GRIMNIR_DISPLAY_ID"}, host),
		HTTPBind:       getEnvAny([]string{"GRIMNIR_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:       getEnvIntAny([]string{"GRIMNIR_HTTP_PORT"}, 8080),
		HealthGRPCPort: getEnvIntAny([]string{"GRIMNIR_HEALTH_GRPC_PORT"}, 9095),
		DBBackend:      DatabaseBackend(getEnvAny([]string{"GRIMNIR_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:          getEnvAny([]string{"GRIMNIR_DB_DSN"}, "grimnir_display.db"),

		MPVSocket:         getEnvAny([]string{"GRIMNIR_MPV_SOCKET", "MPV_SOCKET"}, "/run/grimnir/mpv.sock"),
		MPVFollowerSocket: getEnvAny([]string{"GRIMNIR_MPV_FOLLOWER_SOCKET"}, ""),
		MPVPollPeriod:     time.Duration(getEnvIntAny([]string{"GRIMNIR_MPV_POLL_MS"}, 250)) * time.Millisecond,

		QueueItems:      getEnvListAny([]string{"GRIMNIR_QUEUE_ITEMS"}),
		QueuePlaylist:   getEnvAny([]string{"GRIMNIR_QUEUE_PLAYLIST"}, ""),
		QueueShuffle:    getEnvBoolAny([]string{"GRIMNIR_QUEUE_SHUFFLE"}, false),
		QueueContinuous: getEnvBoolAny([]string{"GRIMNIR_QUEUE_CONTINUOUS"}, true),
		PlaylistFile:    getEnvAny([]string{"GRIMNIR_PLAYLIST_FILE"}, ""),

		EventBus:      EventBusBackend(getEnvAny([]string{"GRIMNIR_EVENT_BUS"}, string(EventBusMemory))),
		RedisAddr:     getEnvAny([]string{"GRIMNIR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"GRIMNIR_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"GRIMNIR_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"GRIMNIR_NATS_URL"}, "nats://localhost:4222"),

		TracingEnabled:    getEnvBoolAny([]string{"GRIMNIR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"GRIMNIR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"GRIMNIR_TRACING_SAMPLE_RATE"}, 1.0),

		ResilienceFile: getEnvAny([]string{"GRIMNIR_RESILIENCE_FILE"}, ""),
	}

	res, err := LoadResilience(cfg.ResilienceFile)
	if err != nil {
		return nil, err
	}
	cfg.Resilience = res

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.EventBus != EventBusMemory && cfg.EventBus != EventBusRedis && cfg.EventBus != EventBusNATS {
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.DisplayID == "" {
		return nil, fmt.Errorf("GRIMNIR_DISPLAY_ID must be provided when the hostname is unavailable")
	}

	if cfg.QueuePlaylist != "" && cfg.PlaylistFile == "" {
		return nil, fmt.Errorf("GRIMNIR_QUEUE_PLAYLIST requires GRIMNIR_PLAYLIST_FILE")
	}

	if len(cfg.QueueItems) > 0 && cfg.QueuePlaylist != "" {
		return nil, fmt.Errorf("GRIMNIR_QUEUE_ITEMS and GRIMNIR_QUEUE_PLAYLIST are mutually exclusive")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// The audio and video players used to carry their own thresholds; both now
// read the unified resilience keys.
func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"GRIMNIR_AUDIO_STALL_SOFT_MS": "use GRIMNIR_STALL_SOFT_MS",
		"GRIMNIR_VIDEO_STALL_SOFT_MS": "use GRIMNIR_STALL_SOFT_MS",
		"GRIMNIR_AUDIO_STALL_HARD_MS": "use GRIMNIR_STALL_HARD_MS",
		"GRIMNIR_VIDEO_STALL_HARD_MS": "use GRIMNIR_STALL_HARD_MS",
		"GRIMNIR_VIDEO_RECOVERY":      "use GRIMNIR_RECOVERY_STRATEGIES",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the listen address for the control API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvListAny splits the first set variable on commas, dropping blanks.
func getEnvListAny(keys []string) []string {
	raw := getEnvAny(keys, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

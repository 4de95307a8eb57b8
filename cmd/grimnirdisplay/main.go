/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_display/internal/composite"
	"github.com/friendsincode/grimnir_display/internal/config"
	"github.com/friendsincode/grimnir_display/internal/db"
	"github.com/friendsincode/grimnir_display/internal/engine"
	"github.com/friendsincode/grimnir_display/internal/engine/mpv"
	"github.com/friendsincode/grimnir_display/internal/events"
	"github.com/friendsincode/grimnir_display/internal/eventbus"
	"github.com/friendsincode/grimnir_display/internal/logging"
	"github.com/friendsincode/grimnir_display/internal/playout"
	"github.com/friendsincode/grimnir_display/internal/queue"
	"github.com/friendsincode/grimnir_display/internal/resilience"
	"github.com/friendsincode/grimnir_display/internal/server"
	"github.com/friendsincode/grimnir_display/internal/store"
	"github.com/friendsincode/grimnir_display/internal/telemetry"
	"github.com/friendsincode/grimnir_display/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "grimnirdisplay",
	Short: "Grimnir Display - resilient playback for unattended screens",
	Long:  "Grimnir Display keeps signage and kiosk playback running: it detects stalls, walks a recovery ladder and reports status to the fleet.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start playback and the control API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment).With().Str("display_id", cfg.DisplayID).Logger()
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	return nil
}

func openStore() (*store.Store, *gorm.DB, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, nil, err
	}
	return store.New(database, cfg.DisplayID, logger), database, nil
}

func queueSource() queue.Source {
	src := queue.Source{Playlist: cfg.QueuePlaylist, Shuffle: cfg.QueueShuffle}
	for _, ref := range cfg.QueueItems {
		src.Items = append(src.Items, queue.Entry{AssetRef: ref})
	}
	return src
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Grimnir Display starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "grimnir-display",
		ServiceVersion: version.Version,
		DisplayID:      cfg.DisplayID,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	st, database, err := openStore()
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer db.Close(database)

	bus, err := eventbus.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer bus.Close()

	resolver, err := queue.LoadPlaylists(cfg.PlaylistFile)
	if err != nil {
		return err
	}
	ctrl := queue.NewController(resolver, queue.Options{Continuous: cfg.QueueContinuous, Bus: bus}, logger)

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	leader := mpv.New(cfg.MPVSocket, cfg.MPVPollPeriod, logger)
	deps := playout.Deps{Engine: leader, Store: st, Bus: bus}

	if cfg.MPVFollowerSocket != "" {
		follower := mpv.New(cfg.MPVFollowerSocket, cfg.MPVPollPeriod, logger)
		link := composite.Link{
			LeaderID:       "leader",
			FollowerID:     "follower",
			DriftThreshold: cfg.Resilience.DriftThresholdSeconds,
			AbortThreshold: cfg.Resilience.AbortThresholdSeconds,
		}
		syncer, err := composite.NewSync(link,
			func() engine.Engine { return leader },
			func() engine.Engine { return follower },
			cfg.Resilience.SyncInterval(), nil, bus, logger)
		if err != nil {
			return fmt.Errorf("composite sync: %w", err)
		}
		syncer.OnFatal(func(err error) {
			if perr := follower.Pause(context.Background()); perr != nil {
				logger.Warn().Err(perr).Msg("failed to pause desynced follower")
			}
		})
		deps.Follower = follower
		deps.Sync = syncer
		goRun(func() { follower.Run(ctx, func(engine.Signal) {}) })
		goRun(func() { syncer.Run(ctx) })
	}

	director, err := playout.NewDirector(ctrl, playout.Config{
		Session:            resilience.OptionsFrom(cfg.Resilience),
		MaxSessionRebuilds: cfg.Resilience.MaxSessionRebuilds,
	}, deps, logger)
	if err != nil {
		return fmt.Errorf("initialize director: %w", err)
	}
	defer director.Stop()

	goRun(func() { leader.Run(ctx, director.HandleSignal) })

	control := bus.Subscribe(events.EventControl)
	goRun(func() {
		director.Listen(ctx, control)
		bus.Unsubscribe(events.EventControl, control)
	})

	if src := queueSource(); !src.Empty() {
		if err := director.Start(ctx, src); err != nil {
			return fmt.Errorf("start playback: %w", err)
		}
	} else {
		logger.Warn().Msg("no queue configured, waiting for control commands")
	}

	srv := server.New(cfg, director, st, logger)
	updates := version.NewChecker(logger)
	srv.SetUpdateChecker(updates)
	goRun(func() { updates.Run(ctx) })

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	var health *server.HealthServer
	if cfg.HealthGRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HealthGRPCPort))
		if err != nil {
			return fmt.Errorf("listen gRPC health: %w", err)
		}
		health = server.NewHealthServer(director, time.Second, logger)
		goRun(func() { health.Watch(ctx) })
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server exited")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully...")

	timeoutCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if health != nil {
		health.Stop()
	}
	cancel()
	wg.Wait()

	logger.Info().Msg("Grimnir Display stopped")
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PlaybackService is the gRPC health service name fleet probes query.
const PlaybackService = "grimnir.display.playback"

// HealthServer publishes playback health over the standard gRPC health
// protocol: SERVING while recovery can still fix playback, NOT_SERVING once
// the current item needs an external reload.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	playback interface{ Healthy() bool }
	interval time.Duration
	logger   zerolog.Logger
}

// NewHealthServer registers the health service on a new gRPC server.
func NewHealthServer(playback interface{ Healthy() bool }, interval time.Duration, logger zerolog.Logger) *HealthServer {
	if interval <= 0 {
		interval = time.Second
	}
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ConnectionTimeout(10*time.Second),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	h := &HealthServer{
		grpc:     gs,
		health:   hs,
		playback: playback,
		interval: interval,
		logger:   logger.With().Str("component", "grpc-health").Logger(),
	}
	h.refresh()
	return h
}

// Serve accepts connections on lis until Stop.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health listening")
	if err := h.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serve gRPC health: %w", err)
	}
	return nil
}

// Watch refreshes the serving status every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.refresh()
		}
	}
}

// Stop marks every service NOT_SERVING and drains the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

func (h *HealthServer) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if !h.playback.Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(PlaybackService, status)
	h.health.SetServingStatus("", status)
}

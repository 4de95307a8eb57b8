/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/friendsincode/grimnir_display/internal/config"
	"github.com/friendsincode/grimnir_display/internal/engine"
	"github.com/friendsincode/grimnir_display/internal/models"
	"github.com/friendsincode/grimnir_display/internal/playout"
	"github.com/friendsincode/grimnir_display/internal/resilience"
	"github.com/friendsincode/grimnir_display/internal/telemetry"
	"github.com/friendsincode/grimnir_display/internal/version"
)

// Playback is the part of the director the control API drives.
type Playback interface {
	Status() playout.Status
	Command(ctx context.Context, name string) error
	Watch() (<-chan playout.Status, func())
	Healthy() bool
}

// Journal lists recent recovery attempts. *store.Store satisfies it.
type Journal interface {
	RecentRecoveries(ctx context.Context, limit int) ([]models.RecoveryRecord, error)
}

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	playback   Playback
	journal    Journal
	updates    *version.Checker
}

// New builds the control API. journal may be nil.
func New(cfg *config.Config, playback Playback, journal Journal, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("grimnir-display-api"))
	router.Use(telemetry.MetricsMiddleware)

	srv := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		router:   router,
		playback: playback,
		journal:  journal,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// SetUpdateChecker adds release information to /healthz.
func (s *Server) SetUpdateChecker(c *version.Checker) {
	s.updates = c
}

// HTTPServer exposes the underlying server for ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Get("/status", s.handleStatus)
			r.Post("/playback/{command}", s.handleCommand)
			r.Get("/recoveries", s.handleRecoveries)
		})
		// Long-lived, so it stays outside the timeout group.
		r.Get("/status/ws", s.handleStatusStream)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, state := http.StatusOK, "ok"
	if !s.playback.Healthy() {
		status, state = http.StatusServiceUnavailable, "needs_reload"
	}
	body := map[string]any{
		"status":    state,
		"displayId": s.cfg.DisplayID,
		"version":   version.Version,
	}
	if s.updates != nil {
		body["update"] = s.updates.Info()
	}
	writeJSON(w, status, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playback.Status())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "command")
	if err := s.playback.Command(r.Context(), name); err != nil {
		status := commandStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("command", name).Msg("playback command failed")
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info().Str("command", name).Msg("playback command applied")
	writeJSON(w, http.StatusOK, s.playback.Status())
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, playout.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, playout.ErrIdle), errors.Is(err, resilience.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoEngine):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRecoveries(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []models.RecoveryRecord{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.journal.RecentRecoveries(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list recoveries failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list recoveries failed"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleStatusStream pushes the current status, then every change, to an
// overlay client until it disconnects.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	updates, cancel := s.playback.Watch()
	defer cancel()

	// Clients never send; CloseRead notices when they go away.
	ctx := conn.CloseRead(r.Context())

	if err := s.writeStatus(ctx, conn, s.playback.Status()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeStatus(ctx, conn, st); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStatus(ctx context.Context, conn *websocket.Conn, st playout.Status) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(wctx, conn, st); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Debug().Err(err).Msg("status stream write failed")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface: routing, middleware, and the
// handler set over the scan, file, storage, and config services.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/api/handlers"
	"github.com/sweepd/sweepd/internal/api/middleware"
	"github.com/sweepd/sweepd/internal/config"
	"github.com/sweepd/sweepd/internal/fileops"
	"github.com/sweepd/sweepd/internal/metrics"
	"github.com/sweepd/sweepd/internal/scans"
	"github.com/sweepd/sweepd/internal/storage"
)

// Dependencies contains all the dependencies needed by the API server.
type Dependencies struct {
	Config      *config.AppConfig
	ScanService *scans.Service
	Broadcaster *scans.Broadcaster
	FileOps     *fileops.Service
	Storage     *storage.Service
	Metrics     *metrics.Manager
}

// Server is the HTTP server for the API.
type Server struct {
	deps *Dependencies
	srv  *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the full router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	baseURL := s.deps.Config.Config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}

	r.Route(joinBaseURL(baseURL, "/api"), func(r chi.Router) {
		scansHandler := handlers.NewScansHandler(s.deps.ScanService)
		eventsHandler := handlers.NewScanEventsHandler(s.deps.ScanService, s.deps.Broadcaster)
		filesHandler := handlers.NewFilesHandler(s.deps.FileOps)
		storageHandler := handlers.NewStorageHandler(s.deps.Storage)
		configHandler := handlers.NewConfigHandler(s.deps.Config)
		healthHandler := handlers.NewHealthHandler()

		r.Get("/health", healthHandler.Health)

		r.Route("/scans", func(r chi.Router) {
			scansHandler.Routes(r)
			r.Get("/{scanID}/events", eventsHandler.HandleSSE)
		})
		r.Route("/files", filesHandler.Routes)
		r.Route("/storage", storageHandler.Routes)
		r.Route("/config", configHandler.Routes)
	})

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, joinBaseURL(baseURL, "/metrics"), s.deps.Metrics.Handler())
	}

	return r
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.deps.Config.Config.Host, fmt.Sprintf("%d", s.deps.Config.Config.Port))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("Shutting down HTTP server")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func joinBaseURL(base, suffix string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return suffix
	}
	return base + suffix
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/api/handlers"
	"github.com/autobrr/unitorrent/internal/api/middleware"
	"github.com/autobrr/unitorrent/internal/config"
	"github.com/autobrr/unitorrent/internal/orchestrator"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	pool *orchestrator.Pool
}

type Dependencies struct {
	Config  *config.AppConfig
	Version string
	Pool    *orchestrator.Pool
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:  log.Logger.With().Str("module", "api").Logger(),
		config:  deps.Config,
		version: deps.Version,
		pool:    deps.Pool,
	}
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := net.JoinHostPort(s.config.Config.Host, fmt.Sprint(s.config.Config.Port))

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// 0.0.0.0 and :: are not clickable
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Int("instances", len(s.pool.Names())).
		Msgf("Starting API server - Open: http://%s%s", host, s.baseURL())

	s.server.Handler = s.Handler()

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) baseURL() string {
	baseURL := s.config.Config.BaseURL
	if baseURL == "" {
		return "/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL
}

// Handler builds the router. The API is mounted under the configured base URL.
func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.pool)
	instancesHandler := handlers.NewInstancesHandler(s.pool)
	torrentsHandler := handlers.NewTorrentsHandler(s.pool)
	preferencesHandler := handlers.NewPreferencesHandler(s.pool)

	apiRouter := chi.NewRouter()
	apiRouter.Use(middleware.Logger(s.logger))

	apiRouter.Route("/instances", func(r chi.Router) {
		r.Get("/", instancesHandler.ListInstances)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/version", instancesHandler.GetVersion)

			r.Get("/preferences", preferencesHandler.GetPreferences)
			r.Put("/preferences", preferencesHandler.UpdatePreferences)
			r.Post("/preferences/match", preferencesHandler.MatchPreferences)

			r.Route("/torrents", func(r chi.Router) {
				r.Get("/", torrentsHandler.ListTorrents)
				r.Post("/start", torrentsHandler.StartTorrents)
				r.Post("/stop", torrentsHandler.StopTorrents)
				r.Post("/upload-limit", torrentsHandler.SetUploadLimit)

				r.Route("/{hash}", func(r chi.Router) {
					r.Get("/files", torrentsHandler.GetTorrentFiles)
					r.Post("/rename", torrentsHandler.RenameFile)
				})
			})
		})
	})

	baseURL := s.baseURL()

	r.Get(baseURL+"health", healthHandler.HandleHealth)
	if s.config.Config.MetricsEnabled {
		r.Handle(baseURL+"metrics", promhttp.Handler())
	}
	r.Mount(baseURL+"api", apiRouter)

	return r
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/orchestrator"
)

type errorResponse struct {
	Error string `json:"error"`
}

// RespondJSON writes data as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, errorResponse{Error: message})
}

// statusFor maps orchestrator and domain errors onto HTTP statuses.
func statusFor(err error) int {
	var cfgErr *domain.ConfigError
	switch {
	case errors.Is(err, orchestrator.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInstanceBackoff), errors.Is(err, orchestrator.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case domain.IsAuthError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusBadGateway
	}
}

// instanceHandler is the shared lookup half of every per-instance handler.
type instanceHandler struct {
	pool *orchestrator.Pool
}

// instance resolves the {name} URL parameter. It writes the error response
// itself and returns nil when the instance cannot serve the request.
func (h instanceHandler) instance(w http.ResponseWriter, r *http.Request) *orchestrator.Orchestrator {
	name := chi.URLParam(r, "name")
	o, err := h.pool.Get(name)
	if err != nil {
		RespondError(w, statusFor(err), err.Error())
		return nil
	}
	return o
}

// fail logs err, feeds the pool backoff for daemon-side failures, and writes
// the mapped status.
func (h instanceHandler) fail(w http.ResponseWriter, o *orchestrator.Orchestrator, op string, err error) {
	status := statusFor(err)
	if status == http.StatusBadGateway {
		h.pool.TrackFailure(o.Name(), err)
	}

	log.Error().Err(err).Str("instance", o.Name()).Str("op", op).Int("status", status).Msg("request failed")
	RespondError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

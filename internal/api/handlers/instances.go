// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/unitorrent/internal/orchestrator"
)

type InstancesHandler struct {
	instanceHandler
}

func NewInstancesHandler(pool *orchestrator.Pool) *InstancesHandler {
	return &InstancesHandler{instanceHandler{pool: pool}}
}

type versionResponse struct {
	Instance   string `json:"instance"`
	ClientType string `json:"clientType"`
	AppVersion string `json:"appVersion"`
	APIVersion string `json:"apiVersion"`
}

// ListInstances returns every registered instance with its health state.
func (h *InstancesHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.pool.Status())
}

func (h *InstancesHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	app, err := o.GetAppVersion(r.Context())
	if err != nil {
		h.fail(w, o, "app_version", err)
		return
	}
	api, err := o.GetAPIVersion(r.Context())
	if err != nil {
		h.fail(w, o, "api_version", err)
		return
	}

	RespondJSON(w, http.StatusOK, versionResponse{
		Instance:   o.Name(),
		ClientType: o.ClientType().String(),
		AppVersion: app,
		APIVersion: api,
	})
}

type HealthHandler struct {
	pool *orchestrator.Pool
}

func NewHealthHandler(pool *orchestrator.Pool) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// HandleHealth reports ok once the pool is serving, along with the number of
// instances currently outside backoff.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.pool.Status()
	healthy := 0
	for _, s := range status {
		if s.Healthy {
			healthy++
		}
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"instances": len(status),
		"healthy":   healthy,
	})
}

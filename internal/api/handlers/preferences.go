// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/orchestrator"
)

type PreferencesHandler struct {
	instanceHandler
}

func NewPreferencesHandler(pool *orchestrator.Pool) *PreferencesHandler {
	return &PreferencesHandler{instanceHandler{pool: pool}}
}

// GetPreferences returns the daemon preferences, or only their names when
// keys=true.
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	if queryBool(r, "keys") {
		keys, err := o.GetPreferenceKeys(r.Context())
		if err != nil {
			h.fail(w, o, "preference_keys", err)
			return
		}
		RespondJSON(w, http.StatusOK, keys)
		return
	}

	prefs, err := o.GetPreferences(r.Context())
	if err != nil {
		h.fail(w, o, "preferences", err)
		return
	}
	RespondJSON(w, http.StatusOK, prefs)
}

func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	var prefs map[string]any
	if err := decodeJSON(r, &prefs); err != nil {
		log.Warn().Err(err).Msg("failed to decode preferences request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(prefs) == 0 {
		RespondError(w, http.StatusBadRequest, "No preferences provided")
		return
	}

	if err := o.SetPreferences(r.Context(), prefs); err != nil {
		h.fail(w, o, "set_preferences", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type matchPreferencesRequest struct {
	// Targets names the instances to update; empty means every other instance.
	Targets []string `json:"targets"`
	// Keys selects the preferences to copy; empty copies all of them.
	Keys []string `json:"keys"`
}

// MatchPreferences copies the selected preferences of {name} onto the target
// instances of the same client type.
func (h *PreferencesHandler) MatchPreferences(w http.ResponseWriter, r *http.Request) {
	master := h.instance(w, r)
	if master == nil {
		return
	}

	var req matchPreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Msg("failed to decode match preferences request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	var targets []*orchestrator.Orchestrator
	if len(req.Targets) == 0 {
		targets = h.pool.All()
	} else {
		for _, name := range req.Targets {
			o, err := h.pool.Get(name)
			if err != nil {
				RespondError(w, statusFor(err), name+": "+err.Error())
				return
			}
			targets = append(targets, o)
		}
	}

	if err := orchestrator.MatchPreferences(r.Context(), master, targets, req.Keys); err != nil {
		h.fail(w, master, "match_preferences", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

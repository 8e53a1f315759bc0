// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/orchestrator"
	"github.com/autobrr/unitorrent/internal/query"
)

// maxLoggedExpr caps how much of an expression filter reaches the logs.
const maxLoggedExpr = 150

type TorrentsHandler struct {
	instanceHandler
}

func NewTorrentsHandler(pool *orchestrator.Pool) *TorrentsHandler {
	return &TorrentsHandler{instanceHandler{pool: pool}}
}

func truncateExpr(expr string, maxLen int) string {
	if len(expr) <= maxLen {
		return expr
	}
	return expr[:maxLen] + "..."
}

// splitList accepts both repeated parameters and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseQueryOptions(r *http.Request) query.Options {
	q := r.URL.Query()
	return query.Options{
		Hashes:      splitList(q["hashes"]),
		Filter:      domain.ParseFilter(q.Get("filter")),
		Sort:        q.Get("sort"),
		Reverse:     queryBool(r, "reverse"),
		SearchTerm:  q.Get("search"),
		Fuzzy:       queryBool(r, "fuzzy"),
		Expr:        q.Get("expr"),
		PerPage:     queryInt(r, "perPage", 0),
		CurrentPage: queryInt(r, "page", 1),
		Raw:         queryBool(r, "raw"),
		Fresh:       queryBool(r, "fresh"),
	}
}

// ListTorrents returns the filtered, sorted and paginated torrent list.
func (h *TorrentsHandler) ListTorrents(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	opts := parseQueryOptions(r)

	logEvent := log.Debug().
		Str("instance", o.Name()).
		Str("filter", opts.Filter.String()).
		Str("sort", opts.Sort).
		Bool("reverse", opts.Reverse).
		Int("page", opts.CurrentPage).
		Int("perPage", opts.PerPage).
		Str("search", opts.SearchTerm).
		Bool("fresh", opts.Fresh)
	if opts.Expr != "" {
		logEvent = logEvent.Str("expr", truncateExpr(opts.Expr, maxLoggedExpr))
	}
	logEvent.Msg("Torrent list request parameters")

	res, err := o.GetTorrents(r.Context(), opts)
	if err != nil {
		h.fail(w, o, "torrents", err)
		return
	}

	RespondJSON(w, http.StatusOK, res)
}

func (h *TorrentsHandler) GetTorrentFiles(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	res, err := o.GetTorrentFiles(r.Context(), chi.URLParam(r, "hash"), orchestrator.FileOptions{
		AsTree: queryBool(r, "tree"),
		Raw:    queryBool(r, "raw"),
		Fresh:  queryBool(r, "fresh"),
	})
	if err != nil {
		h.fail(w, o, "files", err)
		return
	}

	RespondJSON(w, http.StatusOK, res)
}

type hashesRequest struct {
	Hashes []string `json:"hashes"`
}

type uploadLimitRequest struct {
	Hashes []string `json:"hashes"`
	// Limit is in KiB/s; values below 1 remove the limit.
	Limit int64 `json:"limit"`
}

type renameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type actionResponse struct {
	OK bool `json:"ok"`
}

func (h *TorrentsHandler) StartTorrents(w http.ResponseWriter, r *http.Request) {
	h.hashesAction(w, r, "start", (*orchestrator.Orchestrator).StartTorrents)
}

func (h *TorrentsHandler) StopTorrents(w http.ResponseWriter, r *http.Request) {
	h.hashesAction(w, r, "stop", (*orchestrator.Orchestrator).StopTorrents)
}

func (h *TorrentsHandler) hashesAction(w http.ResponseWriter, r *http.Request, op string,
	action func(*orchestrator.Orchestrator, context.Context, []string) (bool, error)) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	var req hashesRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("failed to decode torrent action request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ok, err := action(o, r.Context(), req.Hashes)
	if err != nil {
		h.fail(w, o, op, err)
		return
	}
	RespondJSON(w, http.StatusOK, actionResponse{OK: ok})
}

func (h *TorrentsHandler) SetUploadLimit(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	var req uploadLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Msg("failed to decode upload limit request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ok, err := o.SetTorrentUploadSpeed(r.Context(), req.Hashes, req.Limit)
	if err != nil {
		h.fail(w, o, "upload_limit", err)
		return
	}
	RespondJSON(w, http.StatusOK, actionResponse{OK: ok})
}

// RenameFile renames one file or folder segment inside a torrent.
func (h *TorrentsHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	o := h.instance(w, r)
	if o == nil {
		return
	}

	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn().Err(err).Msg("failed to decode rename request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		RespondError(w, http.StatusBadRequest, "oldPath and newPath are required")
		return
	}

	ok, err := o.RenameFile(r.Context(), chi.URLParam(r, "hash"), req.OldPath, req.NewPath)
	if err != nil {
		h.fail(w, o, "rename", err)
		return
	}
	RespondJSON(w, http.StatusOK, actionResponse{OK: ok})
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultRestore = "restore"

	kindList  = "list"
	kindFiles = "files"
)

// Metrics contains the prometheus collectors shared by every orchestrator.
type Metrics struct {
	BackendCalls  *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

// metrics is registered once with the default registry.
var metrics = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		BackendCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unitorrent_backend_calls_total",
			Help: "Backend calls by operation and outcome",
		}, []string{"instance", "client", "op", "result"}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unitorrent_auth_failures_total",
			Help: "Calls that failed with a fatal authentication error",
		}, []string{"instance", "client"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "unitorrent_cache_lookups_total",
			Help: "Cache lookups by kind and result (hit, miss, restore)",
		}, []string{"instance", "kind", "result"}),
		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unitorrent_fetch_duration_seconds",
			Help:    "Duration of live torrent and file fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"instance", "client", "kind"}),
	}
}

func (o *Orchestrator) observeCall(op string, err error) {
	client := o.backend.ClientType().String()
	result := "success"
	switch {
	case err == nil:
	case domain.IsAuthError(err):
		result = "auth_error"
		metrics.AuthFailures.WithLabelValues(o.name, client).Inc()
	default:
		result = "error"
	}
	metrics.BackendCalls.WithLabelValues(o.name, client, op, result).Inc()
}

func (o *Orchestrator) observeCache(kind, result string) {
	metrics.CacheLookups.WithLabelValues(o.name, kind, result).Inc()
}

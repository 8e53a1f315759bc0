// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/deluge"
	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/qbittorrent"
	"github.com/autobrr/unitorrent/internal/rtorrent"
	"github.com/autobrr/unitorrent/internal/transmission"
	"github.com/autobrr/unitorrent/internal/utorrent"
)

// NewBackend builds the adapter for opts.ClientType.
func NewBackend(opts backend.Options) (backend.Backend, error) {
	switch opts.ClientType {
	case domain.ClientDeluge:
		return asBackend(deluge.New(opts))
	case domain.ClientRTorrent:
		return asBackend(rtorrent.New(opts))
	case domain.ClientQBittorrent:
		return asBackend(qbittorrent.New(opts))
	case domain.ClientUTorrent:
		return asBackend(utorrent.New(opts))
	case domain.ClientTransmission:
		return asBackend(transmission.New(opts))
	}
	return nil, &domain.ConfigError{Field: "clientType", Reason: "unknown client type"}
}

// asBackend keeps a nil client from turning into a non-nil interface.
func asBackend[T backend.Backend](client T, err error) (backend.Backend, error) {
	if err != nil {
		return nil, err
	}
	return client, nil
}

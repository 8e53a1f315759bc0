// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// MagnetLink builds a magnet uri for daemons that do not report one. It
// returns an empty string when hash is not a v1 infohash.
func MagnetLink(hash, name string) string {
	hash = strings.TrimSpace(hash)
	if len(hash) != 40 {
		return ""
	}

	var ih metainfo.Hash
	if err := ih.FromHexString(hash); err != nil {
		return ""
	}

	m := metainfo.Magnet{
		InfoHash:    ih,
		DisplayName: name,
	}
	return m.String()
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"math"
	"strings"
)

// ClientType identifies the daemon behind a backend.
type ClientType int

const (
	ClientDeluge       ClientType = 1
	ClientRTorrent     ClientType = 2
	ClientQBittorrent  ClientType = 3
	ClientUTorrent     ClientType = 4
	ClientTransmission ClientType = 5
)

func (c ClientType) Valid() bool {
	return c >= ClientDeluge && c <= ClientTransmission
}

func (c ClientType) String() string {
	switch c {
	case ClientDeluge:
		return "deluge"
	case ClientRTorrent:
		return "rtorrent"
	case ClientQBittorrent:
		return "qbittorrent"
	case ClientUTorrent:
		return "utorrent"
	case ClientTransmission:
		return "transmission"
	default:
		return "unknown"
	}
}

// ParseClientType accepts either the daemon name or its numeric id.
func ParseClientType(s string) (ClientType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deluge", "1":
		return ClientDeluge, true
	case "rtorrent", "2":
		return ClientRTorrent, true
	case "qbittorrent", "qbit", "3":
		return ClientQBittorrent, true
	case "utorrent", "4":
		return ClientUTorrent, true
	case "transmission", "5":
		return ClientTransmission, true
	}
	return 0, false
}

// Status is the canonical torrent state. Exactly one applies to a torrent.
type Status int

const (
	StatusStopped     Status = 1
	StatusDownloading Status = 2
	StatusSeeding     Status = 3
	StatusError       Status = 4
	StatusChecking    Status = 5
)

func (s Status) Valid() bool {
	return s >= StatusStopped && s <= StatusChecking
}

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusDownloading:
		return "downloading"
	case StatusSeeding:
		return "seeding"
	case StatusError:
		return "error"
	case StatusChecking:
		return "checking"
	default:
		return "unknown"
	}
}

// ActiveStatus picks seeding or downloading for a torrent the daemon reports as active.
func ActiveStatus(isFinished bool) Status {
	if isFinished {
		return StatusSeeding
	}
	return StatusDownloading
}

// Torrent is the normalized view of a torrent, identical for every backend.
type Torrent struct {
	AddedAt           int64   `json:"addedAt"`
	CompletedAt       int64   `json:"completedAt"`
	Downloaded        int64   `json:"downloaded"`
	DownloadingTime   int64   `json:"downloadingTime"`
	DownloadLimitKBps int64   `json:"downloadLimitKBps"`
	DownloadRate      int64   `json:"downloadRate"`
	Error             bool    `json:"error"`
	FileCount         int64   `json:"fileCount"`
	Hash              string  `json:"hash"`
	HashV2            string  `json:"hashV2"`
	IsFinished        bool    `json:"isFinished"`
	IsPrivate         bool    `json:"isPrivate"`
	MagnetLink        string  `json:"magnetLink"`
	Message           string  `json:"message"`
	MimeType          string  `json:"mimeType"`
	Name              string  `json:"name"`
	Peers             int64   `json:"peers"`
	PercentDone       int64   `json:"percentDone"`
	PieceCount        int64   `json:"pieceCount"`
	PieceSize         int64   `json:"pieceSize"`
	Position          int64   `json:"position"`
	Ratio             float64 `json:"ratio"`
	RecheckProgress   int64   `json:"recheckProgress"`
	SavePath          string  `json:"savePath"`
	SeedingTime       int64   `json:"seedingTime"`
	Size              int64   `json:"size"`
	Status            Status  `json:"status"`
	TotalSize         int64   `json:"totalSize"`
	Uploaded          int64   `json:"uploaded"`
	UploadLimitKBps   int64   `json:"uploadLimitKBps"`
	UploadRate        int64   `json:"uploadRate"`
}

// TorrentFile is a single file inside a torrent. Path is relative to the torrent root.
type TorrentFile struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Progress int64  `json:"progress"`
}

// FormatRatio rounds a share ratio to three decimals.
func FormatRatio(ratio float64) float64 {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return math.Round(ratio*1000) / 1000
}

// Percent returns floor(done/total*100) clamped to [0,100].
func Percent(done, total float64) int64 {
	if total <= 0 || math.IsNaN(done) {
		return 0
	}
	return ClampPercent(math.Floor(done / total * 100))
}

// ClampPercent floors p and clamps it to [0,100].
func ClampPercent(p float64) int64 {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	if p >= 100 {
		return 100
	}
	return int64(math.Floor(p))
}

func ClampPeers(n int64) int64 {
	return max(n, 0)
}

// SlashPath converts backslash separated paths to forward slashes.
func SlashPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"fmt"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/autobrr/unitorrent/internal/domain"
)

var (
	stoppedStates = []qbt.TorrentState{
		qbt.TorrentStatePausedDl, qbt.TorrentStatePausedUp,
		qbt.TorrentStateStoppedDl, qbt.TorrentStateStoppedUp,
		"paused", "stopped",
	}
	downloadingStates = []qbt.TorrentState{
		qbt.TorrentStateDownloading, qbt.TorrentStateMetaDl, qbt.TorrentStateQueuedDl,
		qbt.TorrentStateStalledDl, qbt.TorrentStateForcedDl,
	}
	seedingStates = []qbt.TorrentState{
		qbt.TorrentStateUploading, qbt.TorrentStateQueuedUp,
		qbt.TorrentStateStalledUp, qbt.TorrentStateForcedUp,
	}
	errorStates = []qbt.TorrentState{
		qbt.TorrentStateError, qbt.TorrentStateMissingFiles,
	}
	checkingStates = []qbt.TorrentState{
		qbt.TorrentStateCheckingDl, qbt.TorrentStateCheckingUp,
		qbt.TorrentStateCheckingResumeData, qbt.TorrentStateAllocating, qbt.TorrentStateMoving,
	}
)

func hasState(states []qbt.TorrentState, state qbt.TorrentState) bool {
	for _, s := range states {
		if strings.EqualFold(string(s), string(state)) {
			return true
		}
	}
	return false
}

// NormalizeStatus maps a qBittorrent state to the canonical status. Unknown
// states count as stopped.
func NormalizeStatus(state qbt.TorrentState) domain.Status {
	switch {
	case hasState(errorStates, state):
		return domain.StatusError
	case hasState(checkingStates, state):
		return domain.StatusChecking
	case hasState(downloadingStates, state):
		return domain.StatusDownloading
	case hasState(seedingStates, state):
		return domain.StatusSeeding
	default:
		return domain.StatusStopped
	}
}

func (c *Client) NormalizeTorrents(raw any) ([]domain.Torrent, error) {
	torrents, ok := raw.([]qbt.Torrent)
	if !ok {
		return nil, fmt.Errorf("unexpected torrent payload %T", raw)
	}
	return NormalizeTorrents(torrents), nil
}

func NormalizeTorrents(torrents []qbt.Torrent) []domain.Torrent {
	out := make([]domain.Torrent, 0, len(torrents))
	for i := range torrents {
		out = append(out, normalizeTorrent(&torrents[i]))
	}
	return out
}

func normalizeTorrent(s *qbt.Torrent) domain.Torrent {
	t := domain.Torrent{
		AddedAt:           int64(s.AddedOn),
		CompletedAt:       max(int64(s.CompletionOn), 0),
		Downloaded:        int64(s.Downloaded),
		DownloadLimitKBps: limitKBps(int64(s.DlLimit)),
		DownloadRate:      int64(s.DlSpeed),
		Hash:              s.InfohashV1,
		HashV2:            s.InfohashV2,
		IsFinished:        int64(s.AmountLeft) == 0 || float64(s.Progress) >= 1,
		MagnetLink:        s.MagnetURI,
		Name:              s.Name,
		Peers:             domain.ClampPeers(int64(s.NumComplete) + int64(s.NumIncomplete) + int64(s.NumLeechs) + int64(s.NumSeeds)),
		PercentDone:       domain.ClampPercent(float64(s.Progress) * 100),
		Position:          int64(s.Priority),
		Ratio:             domain.FormatRatio(float64(s.Ratio)),
		SavePath:          domain.SlashPath(s.ContentPath),
		SeedingTime:       int64(s.SeedingTime),
		Size:              int64(s.Size),
		Status:            NormalizeStatus(s.State),
		TotalSize:         int64(s.TotalSize),
		Uploaded:          int64(s.Uploaded),
		UploadLimitKBps:   limitKBps(int64(s.UpLimit)),
		UploadRate:        int64(s.UpSpeed),
	}
	if t.Hash == "" {
		t.Hash = s.Hash
	}
	if hasState(errorStates, s.State) {
		t.Error = true
		t.Message = string(s.State)
	}
	return t
}

// limitKBps converts a byte rate limit to KiB/s, 0 meaning unlimited.
func limitKBps(bytes int64) int64 {
	kbps := bytes / 1024
	if kbps < 1 {
		return 0
	}
	return kbps
}

func (c *Client) NormalizeTorrentFiles(raw any) ([]domain.TorrentFile, error) {
	files, ok := raw.(qbt.TorrentFiles)
	if !ok {
		return nil, fmt.Errorf("unexpected file payload %T", raw)
	}
	return NormalizeTorrentFiles(files), nil
}

func NormalizeTorrentFiles(files qbt.TorrentFiles) []domain.TorrentFile {
	out := make([]domain.TorrentFile, 0, len(files))
	for _, f := range files {
		out = append(out, domain.TorrentFile{
			Path:     domain.SlashPath(f.Name),
			Size:     int64(f.Size),
			Progress: domain.ClampPercent(float64(f.Progress) * 100),
		})
	}
	return out
}

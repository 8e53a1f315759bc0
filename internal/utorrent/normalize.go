// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package utorrent

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

// status bits of the list=1 status column
const (
	statusStarted         = 1
	statusChecking        = 2
	statusStartAfterCheck = 4
	statusChecked         = 8
	statusError           = 16
	statusPaused          = 32
	statusQueued          = 64
	statusLoaded          = 128
)

// Torrent is one list=1 row with the getprops rate limits merged in.
// Percent and ratio columns are per mille.
type Torrent struct {
	Hash           string
	Status         int64
	Name           string
	Size           int64
	PerMille       int64
	Downloaded     int64
	Uploaded       int64
	RatioPerMille  int64
	UploadSpeed    int64
	DownloadSpeed  int64
	ETA            int64
	Label          string
	PeersConnected int64
	PeersInSwarm   int64
	SeedsConnected int64
	SeedsInSwarm   int64
	QueueOrder     int64
	Remaining      int64
	StatusMessage  string
	DateAdded      int64
	DateCompleted  int64
	SavePath       string

	ULRate int64
	DLRate int64
}

// Props is the subset of getprops used by the adapter.
type Props struct {
	Hash   string `json:"hash"`
	ULRate int64  `json:"ulrate"`
	DLRate int64  `json:"dlrate"`
}

type File struct {
	Name       string
	Size       int64
	Downloaded int64
	Priority   int64
}

func torrentFromRow(row []any) Torrent {
	return Torrent{
		Hash:           rowString(row, 0),
		Status:         rowInt(row, 1),
		Name:           rowString(row, 2),
		Size:           rowInt(row, 3),
		PerMille:       rowInt(row, 4),
		Downloaded:     rowInt(row, 5),
		Uploaded:       rowInt(row, 6),
		RatioPerMille:  rowInt(row, 7),
		UploadSpeed:    rowInt(row, 8),
		DownloadSpeed:  rowInt(row, 9),
		ETA:            rowInt(row, 10),
		Label:          rowString(row, 11),
		PeersConnected: rowInt(row, 12),
		PeersInSwarm:   rowInt(row, 13),
		SeedsConnected: rowInt(row, 14),
		SeedsInSwarm:   rowInt(row, 15),
		QueueOrder:     rowInt(row, 17),
		Remaining:      rowInt(row, 18),
		StatusMessage:  rowString(row, 21),
		DateAdded:      rowInt(row, 23),
		DateCompleted:  rowInt(row, 24),
		SavePath:       rowString(row, 26),
	}
}

func fileFromRow(row []any) File {
	return File{
		Name:       rowString(row, 0),
		Size:       rowInt(row, 1),
		Downloaded: rowInt(row, 2),
		Priority:   rowInt(row, 3),
	}
}

func rowString(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func rowInt(row []any, i int) int64 {
	if i >= len(row) {
		return 0
	}
	n, _ := asInt64(row[i])
	return n
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}

// NormalizeStatus maps the status bitmask. Error and checking bits win; a
// paused torrent keeps its started bit so paused is tested before started.
func NormalizeStatus(status int64, isFinished bool) domain.Status {
	switch {
	case status&statusError != 0:
		return domain.StatusError
	case status&statusChecking != 0:
		return domain.StatusChecking
	case status&statusPaused != 0:
		return domain.StatusStopped
	case status&(statusStarted|statusQueued) != 0:
		return domain.ActiveStatus(isFinished)
	default:
		return domain.StatusStopped
	}
}

func (c *Client) NormalizeTorrents(raw any) ([]domain.Torrent, error) {
	torrents, ok := raw.([]Torrent)
	if !ok {
		return nil, fmt.Errorf("unexpected torrent payload %T", raw)
	}
	return NormalizeTorrents(torrents), nil
}

func NormalizeTorrents(torrents []Torrent) []domain.Torrent {
	out := make([]domain.Torrent, 0, len(torrents))
	for i := range torrents {
		s := &torrents[i]
		isFinished := s.DateCompleted > 0 || s.Remaining == 0

		out = append(out, domain.Torrent{
			AddedAt:           s.DateAdded,
			CompletedAt:       max(s.DateCompleted, 0),
			Downloaded:        s.Downloaded,
			DownloadLimitKBps: max(s.DLRate/1024, 0),
			DownloadRate:      s.DownloadSpeed,
			Error:             s.Status&statusError != 0,
			Hash:              s.Hash,
			IsFinished:        isFinished,
			MagnetLink:        backend.MagnetLink(s.Hash, s.Name),
			Message:           s.StatusMessage,
			Name:              s.Name,
			Peers:             domain.ClampPeers(s.PeersConnected + s.SeedsConnected),
			PercentDone:       domain.ClampPercent(float64(s.PerMille) / 10),
			Position:          s.QueueOrder,
			Ratio:             domain.FormatRatio(float64(s.RatioPerMille) / 1000),
			SavePath:          domain.SlashPath(s.SavePath),
			Size:              s.Size,
			Status:            NormalizeStatus(s.Status, isFinished),
			TotalSize:         s.Size,
			Uploaded:          s.Uploaded,
			UploadLimitKBps:   max(s.ULRate/1024, 0),
			UploadRate:        s.UploadSpeed,
		})
	}
	return out
}

func (c *Client) NormalizeTorrentFiles(raw any) ([]domain.TorrentFile, error) {
	files, ok := raw.([]File)
	if !ok {
		return nil, fmt.Errorf("unexpected file payload %T", raw)
	}
	return NormalizeTorrentFiles(files), nil
}

func NormalizeTorrentFiles(files []File) []domain.TorrentFile {
	out := make([]domain.TorrentFile, 0, len(files))
	for _, f := range files {
		out = append(out, domain.TorrentFile{
			Path:     domain.SlashPath(f.Name),
			Size:     f.Size,
			Progress: domain.Percent(float64(f.Downloaded), float64(f.Size)),
		})
	}
	return out
}

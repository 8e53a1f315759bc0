// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package deluge

import (
	"fmt"
	"path"
	"strings"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

// Torrent is the subset of core.get_torrents_status fields the adapter requests.
type Torrent struct {
	Hash                string  `json:"hash"`
	Name                string  `json:"name"`
	State               string  `json:"state"`
	Paused              bool    `json:"paused"`
	IsFinished          bool    `json:"is_finished"`
	IsSeed              bool    `json:"is_seed"`
	Progress            float64 `json:"progress"`
	TimeAdded           float64 `json:"time_added"`
	CompletedTime       float64 `json:"completed_time"`
	SeedingTime         float64 `json:"seeding_time"`
	ActiveTime          float64 `json:"active_time"`
	FinishedTime        float64 `json:"finished_time"`
	TimeSinceDownload   float64 `json:"time_since_download"`
	TimeSinceUpload     float64 `json:"time_since_upload"`
	AllTimeDownload     float64 `json:"all_time_download"`
	TotalUploaded       float64 `json:"total_uploaded"`
	TotalWanted         float64 `json:"total_wanted"`
	TotalSize           float64 `json:"total_size"`
	TotalDone           float64 `json:"total_done"`
	DownloadPayloadRate float64 `json:"download_payload_rate"`
	UploadPayloadRate   float64 `json:"upload_payload_rate"`
	MaxDownloadSpeed    float64 `json:"max_download_speed"`
	MaxUploadSpeed      float64 `json:"max_upload_speed"`
	NumPeers            float64 `json:"num_peers"`
	NumSeeds            float64 `json:"num_seeds"`
	TotalPeers          float64 `json:"total_peers"`
	TotalSeeds          float64 `json:"total_seeds"`
	Queue               float64 `json:"queue"`
	Ratio               float64 `json:"ratio"`
	SavePath            string  `json:"save_path"`
	DownloadLocation    string  `json:"download_location"`
	Message             string  `json:"message"`
	NumFiles            float64 `json:"num_files"`
	NumPieces           float64 `json:"num_pieces"`
	PieceLength         float64 `json:"piece_length"`
	Private             bool    `json:"private"`
	TrackerHost         string  `json:"tracker_host"`
	ETA                 float64 `json:"eta"`
}

// File is an entry of the files status key merged with its file_progress value.
type File struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Offset   int64   `json:"offset"`
	Progress float64 `json:"progress"`
}

type fileStatus struct {
	Files        []File    `json:"files"`
	FileProgress []float64 `json:"file_progress"`
}

// NormalizeStatus maps a Deluge state string. Active states resolve by isFinished.
func NormalizeStatus(state string, isFinished bool) domain.Status {
	switch strings.ToLower(state) {
	case "paused":
		return domain.StatusStopped
	case "downloading", "seeding", "queued":
		return domain.ActiveStatus(isFinished)
	case "error":
		return domain.StatusError
	case "checking", "allocating", "moving":
		return domain.StatusChecking
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
		out = append(out, normalizeTorrent(&torrents[i]))
	}
	return out
}

func normalizeTorrent(s *Torrent) domain.Torrent {
	t := domain.Torrent{
		AddedAt:           int64(s.TimeAdded),
		CompletedAt:       max(int64(s.CompletedTime), 0),
		Downloaded:        int64(s.AllTimeDownload),
		DownloadingTime:   max(int64(s.TimeSinceDownload-s.TimeSinceUpload), 0),
		DownloadLimitKBps: max(int64(s.MaxDownloadSpeed), 0),
		DownloadRate:      int64(s.DownloadPayloadRate),
		Error:             strings.EqualFold(s.State, "error"),
		FileCount:         int64(s.NumFiles),
		Hash:              s.Hash,
		IsFinished:        s.IsFinished,
		IsPrivate:         s.Private,
		MagnetLink:        backend.MagnetLink(s.Hash, s.Name),
		Message:           s.Message,
		Name:              s.Name,
		Peers:             domain.ClampPeers(int64(s.NumSeeds) + int64(s.NumPeers)),
		PercentDone:       domain.ClampPercent(s.Progress),
		PieceCount:        int64(s.NumPieces),
		PieceSize:         int64(s.PieceLength),
		Position:          int64(s.Queue),
		Ratio:             domain.FormatRatio(s.Ratio),
		SavePath:          domain.SlashPath(joinSavePath(s.SavePath, s.Name)),
		SeedingTime:       int64(s.SeedingTime),
		Size:              int64(s.TotalWanted),
		Status:            NormalizeStatus(s.State, s.IsFinished),
		TotalSize:         int64(s.TotalSize),
		Uploaded:          int64(s.TotalUploaded),
		UploadLimitKBps:   max(int64(s.MaxUploadSpeed), 0),
		UploadRate:        int64(s.UploadPayloadRate),
	}
	if t.Message == "" || strings.EqualFold(t.Message, "OK") {
		t.Message = s.State
	}
	return t
}

func joinSavePath(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(domain.SlashPath(dir), name)
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
			Path:     domain.SlashPath(f.Path),
			Size:     f.Size,
			Progress: domain.ClampPercent(f.Progress * 100),
		})
	}
	return out
}

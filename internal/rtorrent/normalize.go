// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rtorrent

import (
	"fmt"
	"path"
	"strconv"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

// Torrent is one d.multicall2 row in torrentCommands order.
type Torrent struct {
	Hash             string
	Name             string
	State            int64
	IsActive         bool
	Complete         bool
	Hashing          int64
	Message          string
	SizeBytes        int64
	CompletedBytes   int64
	LeftBytes        int64
	UpTotal          int64
	DownTotal        int64
	UpRate           int64
	DownRate         int64
	RatioPerMille    int64
	PeersConnected   int64
	Directory        string
	IsMultiFile      bool
	LoadDate         int64
	TimestampStarted int64
	TimestampDone    int64
	SizeFiles        int64
	SizeChunks       int64
	ChunkSize        int64
	IsPrivate        bool
	Priority         int64
}

type File struct {
	Path            string
	SizeBytes       int64
	CompletedChunks int64
	SizeChunks      int64
}

func torrentFromRow(row []any) Torrent {
	return Torrent{
		Hash:             rowString(row, 0),
		Name:             rowString(row, 1),
		State:            rowInt(row, 2),
		IsActive:         rowInt(row, 3) != 0,
		Complete:         rowInt(row, 4) != 0,
		Hashing:          rowInt(row, 5),
		Message:          rowString(row, 6),
		SizeBytes:        rowInt(row, 7),
		CompletedBytes:   rowInt(row, 8),
		LeftBytes:        rowInt(row, 9),
		UpTotal:          rowInt(row, 10),
		DownTotal:        rowInt(row, 11),
		UpRate:           rowInt(row, 12),
		DownRate:         rowInt(row, 13),
		RatioPerMille:    rowInt(row, 14),
		PeersConnected:   rowInt(row, 15),
		Directory:        rowString(row, 16),
		IsMultiFile:      rowInt(row, 17) != 0,
		LoadDate:         rowInt(row, 18),
		TimestampStarted: rowInt(row, 19),
		TimestampDone:    rowInt(row, 20),
		SizeFiles:        rowInt(row, 21),
		SizeChunks:       rowInt(row, 22),
		ChunkSize:        rowInt(row, 23),
		IsPrivate:        rowInt(row, 24) != 0,
		Priority:         rowInt(row, 25),
	}
}

func fileFromRow(row []any) File {
	return File{
		Path:            rowString(row, 0),
		SizeBytes:       rowInt(row, 1),
		CompletedChunks: rowInt(row, 2),
		SizeChunks:      rowInt(row, 3),
	}
}

func rowString(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

// rowInt reads an integer column; rTorrent returns some as strings.
func rowInt(row []any, i int) int64 {
	if i >= len(row) {
		return 0
	}
	switch v := row[i].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// NormalizeStatus maps rTorrent's state flags. A tracker or storage message
// marks the torrent as errored.
func NormalizeStatus(t *Torrent) domain.Status {
	switch {
	case t.Message != "":
		return domain.StatusError
	case t.Hashing != 0:
		return domain.StatusChecking
	case t.State == 0 || !t.IsActive:
		return domain.StatusStopped
	default:
		return domain.ActiveStatus(t.Complete)
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
		out = append(out, domain.Torrent{
			AddedAt:      s.LoadDate,
			CompletedAt:  max(s.TimestampDone, 0),
			Downloaded:   s.DownTotal,
			DownloadRate: s.DownRate,
			Error:        s.Message != "",
			FileCount:    s.SizeFiles,
			Hash:         s.Hash,
			IsFinished:   s.Complete,
			IsPrivate:    s.IsPrivate,
			MagnetLink:   backend.MagnetLink(s.Hash, s.Name),
			Message:      s.Message,
			Name:         s.Name,
			Peers:        domain.ClampPeers(s.PeersConnected),
			PercentDone:  domain.Percent(float64(s.CompletedBytes), float64(s.SizeBytes)),
			PieceCount:   s.SizeChunks,
			PieceSize:    s.ChunkSize,
			Position:     s.Priority,
			Ratio:        domain.FormatRatio(float64(s.RatioPerMille) / 1000),
			SavePath:     savePath(s),
			Size:         s.SizeBytes,
			Status:       NormalizeStatus(s),
			TotalSize:    s.SizeBytes,
			Uploaded:     s.UpTotal,
			UploadRate:   s.UpRate,
		})
	}
	return out
}

// savePath returns the content path; d.directory already includes the
// torrent name for multi-file torrents.
func savePath(t *Torrent) string {
	dir := domain.SlashPath(t.Directory)
	if t.IsMultiFile || dir == "" {
		return dir
	}
	return path.Join(dir, t.Name)
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
			Size:     f.SizeBytes,
			Progress: domain.Percent(float64(f.CompletedChunks), float64(f.SizeChunks)),
		})
	}
	return out
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"fmt"
	"path"

	"github.com/autobrr/unitorrent/internal/domain"
)

// torrent-get status codes
const (
	statusStopped      = 0
	statusCheckWait    = 1
	statusCheck        = 2
	statusDownloadWait = 3
	statusDownload     = 4
	statusSeedWait     = 5
	statusSeed         = 6
)

var readOnlySessionFields = []string{
	"blocklist-size", "config-dir", "rpc-version-minimum", "rpc-version-semver",
	"rpc-version", "session-id", "units", "version",
}

var mutableSessionFields = []string{
	"alt-speed-down", "alt-speed-enabled", "alt-speed-time-begin", "alt-speed-time-day",
	"alt-speed-time-enabled", "alt-speed-time-end", "alt-speed-up", "blocklist-enabled",
	"blocklist-url", "cache-size-mb", "default-trackers", "dht-enabled", "download-dir",
	"download-dir-free-space", "download-queue-enabled", "download-queue-size", "encryption",
	"idle-seeding-limit-enabled", "idle-seeding-limit", "incomplete-dir-enabled", "incomplete-dir",
	"lpd-enabled", "peer-limit-global", "peer-limit-per-torrent", "peer-port-random-on-start",
	"peer-port", "pex-enabled", "port-forwarding-enabled", "queue-stalled-enabled",
	"queue-stalled-minutes", "rename-partial-files", "script-torrent-added-enabled",
	"script-torrent-added-filename", "script-torrent-done-enabled", "script-torrent-done-filename",
	"seed-queue-enabled", "seed-queue-size", "seedRatioLimit", "seedRatioLimited",
	"speed-limit-down-enabled", "speed-limit-down", "speed-limit-up-enabled", "speed-limit-up",
	"start-added-torrents", "trash-original-torrent-files", "utp-enabled",
}

var torrentFields = []string{
	"activityDate", "addedDate", "doneDate", "downloadDir", "downloadedEver", "downloadLimit",
	"downloadLimited", "error", "errorString", "eta", "file-count", "hashString", "id",
	"isFinished", "isPrivate", "isStalled", "leftUntilDone", "magnetLink", "name",
	"peersConnected", "percentDone", "pieceCount", "pieceSize", "primary-mime-type",
	"queuePosition", "rateDownload", "rateUpload", "recheckProgress", "secondsDownloading",
	"secondsSeeding", "sizeWhenDone", "status", "totalSize", "uploadedEver", "uploadLimit",
	"uploadLimited", "uploadRatio",
}

// Torrent mirrors the torrent-get fields the adapter requests.
type Torrent struct {
	ID                 int64   `json:"id"`
	ActivityDate       int64   `json:"activityDate"`
	AddedDate          int64   `json:"addedDate"`
	DoneDate           int64   `json:"doneDate"`
	DownloadDir        string  `json:"downloadDir"`
	DownloadedEver     int64   `json:"downloadedEver"`
	DownloadLimit      int64   `json:"downloadLimit"`
	DownloadLimited    bool    `json:"downloadLimited"`
	Error              int64   `json:"error"`
	ErrorString        string  `json:"errorString"`
	ETA                int64   `json:"eta"`
	FileCount          int64   `json:"file-count"`
	HashString         string  `json:"hashString"`
	IsFinished         bool    `json:"isFinished"`
	IsPrivate          bool    `json:"isPrivate"`
	IsStalled          bool    `json:"isStalled"`
	LeftUntilDone      int64   `json:"leftUntilDone"`
	MagnetLink         string  `json:"magnetLink"`
	Name               string  `json:"name"`
	PeersConnected     int64   `json:"peersConnected"`
	PercentDone        float64 `json:"percentDone"`
	PieceCount         int64   `json:"pieceCount"`
	PieceSize          int64   `json:"pieceSize"`
	PrimaryMimeType    string  `json:"primary-mime-type"`
	QueuePosition      int64   `json:"queuePosition"`
	RateDownload       int64   `json:"rateDownload"`
	RateUpload         int64   `json:"rateUpload"`
	RecheckProgress    float64 `json:"recheckProgress"`
	SecondsDownloading int64   `json:"secondsDownloading"`
	SecondsSeeding     int64   `json:"secondsSeeding"`
	SizeWhenDone       int64   `json:"sizeWhenDone"`
	Status             int     `json:"status"`
	TotalSize          int64   `json:"totalSize"`
	UploadedEver       int64   `json:"uploadedEver"`
	UploadLimit        int64   `json:"uploadLimit"`
	UploadLimited      bool    `json:"uploadLimited"`
	UploadRatio        float64 `json:"uploadRatio"`
}

type File struct {
	Name           string `json:"name"`
	Length         int64  `json:"length"`
	BytesCompleted int64  `json:"bytesCompleted"`
}

// NormalizeStatus maps a torrent-get status code. A non-zero error code wins
// over every other state.
func NormalizeStatus(status int, isFinished bool, errCode int64) domain.Status {
	if errCode != 0 {
		return domain.StatusError
	}
	switch status {
	case statusDownloadWait, statusDownload, statusSeedWait, statusSeed:
		return domain.ActiveStatus(isFinished)
	case statusCheckWait, statusCheck:
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
		s := &torrents[i]
		out = append(out, domain.Torrent{
			AddedAt:           s.AddedDate,
			CompletedAt:       max(s.DoneDate, 0),
			Downloaded:        s.DownloadedEver,
			DownloadingTime:   s.SecondsDownloading,
			DownloadLimitKBps: max(s.DownloadLimit, 0),
			DownloadRate:      s.RateDownload,
			Error:             s.Error > 0,
			FileCount:         s.FileCount,
			Hash:              s.HashString,
			IsFinished:        s.IsFinished,
			IsPrivate:         s.IsPrivate,
			MagnetLink:        s.MagnetLink,
			Message:           s.ErrorString,
			MimeType:          s.PrimaryMimeType,
			Name:              s.Name,
			Peers:             domain.ClampPeers(s.PeersConnected),
			PercentDone:       domain.ClampPercent(s.PercentDone * 100),
			PieceCount:        s.PieceCount,
			PieceSize:         s.PieceSize,
			Position:          s.QueuePosition,
			Ratio:             domain.FormatRatio(s.UploadRatio),
			RecheckProgress:   domain.ClampPercent(s.RecheckProgress * 100),
			SavePath:          joinSavePath(s.DownloadDir, s.Name),
			SeedingTime:       s.SecondsSeeding,
			Size:              s.SizeWhenDone,
			Status:            NormalizeStatus(s.Status, s.IsFinished, s.Error),
			TotalSize:         s.TotalSize,
			Uploaded:          s.UploadedEver,
			UploadLimitKBps:   max(s.UploadLimit, 0),
			UploadRate:        s.RateUpload,
		})
	}
	return out
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
			Path:     domain.SlashPath(f.Name),
			Size:     f.Length,
			Progress: domain.Percent(float64(f.BytesCompleted), float64(f.Length)),
		})
	}
	return out
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// TorrentFields is the canonical field order. It is the column order of the
// disk snapshot, so appending or reordering entries changes the snapshot schema.
var TorrentFields = []string{
	"addedAt", "completedAt", "downloaded", "downloadingTime", "downloadLimitKBps",
	"downloadRate", "error", "fileCount", "hash", "hashV2", "isFinished", "isPrivate",
	"magnetLink", "message", "mimeType", "name", "peers", "percentDone", "pieceCount",
	"pieceSize", "position", "ratio", "recheckProgress", "savePath", "seedingTime",
	"size", "status", "totalSize", "uploaded", "uploadLimitKBps", "uploadRate",
}

var TorrentFileFields = []string{"path", "size", "progress"}

// FieldKind classifies a canonical field for comparison.
type FieldKind int

const (
	KindNumber FieldKind = iota
	KindString
	KindBool
)

// TorrentField returns the named canonical field. Names match case-insensitively.
func (t *Torrent) TorrentField(name string) (any, bool) {
	switch strings.ToLower(name) {
	case "addedat":
		return t.AddedAt, true
	case "completedat":
		return t.CompletedAt, true
	case "downloaded":
		return t.Downloaded, true
	case "downloadingtime":
		return t.DownloadingTime, true
	case "downloadlimitkbps":
		return t.DownloadLimitKBps, true
	case "downloadrate":
		return t.DownloadRate, true
	case "error":
		return t.Error, true
	case "filecount":
		return t.FileCount, true
	case "hash":
		return t.Hash, true
	case "hashv2":
		return t.HashV2, true
	case "isfinished":
		return t.IsFinished, true
	case "isprivate":
		return t.IsPrivate, true
	case "magnetlink":
		return t.MagnetLink, true
	case "message":
		return t.Message, true
	case "mimetype":
		return t.MimeType, true
	case "name":
		return t.Name, true
	case "peers":
		return t.Peers, true
	case "percentdone":
		return t.PercentDone, true
	case "piececount":
		return t.PieceCount, true
	case "piecesize":
		return t.PieceSize, true
	case "position":
		return t.Position, true
	case "ratio":
		return t.Ratio, true
	case "recheckprogress":
		return t.RecheckProgress, true
	case "savepath":
		return t.SavePath, true
	case "seedingtime":
		return t.SeedingTime, true
	case "size":
		return t.Size, true
	case "status":
		return t.Status, true
	case "totalsize":
		return t.TotalSize, true
	case "uploaded":
		return t.Uploaded, true
	case "uploadlimitkbps":
		return t.UploadLimitKBps, true
	case "uploadrate":
		return t.UploadRate, true
	}
	return nil, false
}

// FieldKindOf reports how the named field compares; ok is false for unknown names.
func FieldKindOf(name string) (FieldKind, bool) {
	var zero Torrent
	v, ok := zero.TorrentField(name)
	if !ok {
		return 0, false
	}
	switch v.(type) {
	case string:
		return KindString, true
	case bool:
		return KindBool, true
	default:
		return KindNumber, true
	}
}

// Values returns t in TorrentFields order.
func (t *Torrent) Values() []any {
	out := make([]any, len(TorrentFields))
	for i, name := range TorrentFields {
		out[i], _ = t.TorrentField(name)
	}
	return out
}

// TorrentFromValues is the inverse of Values. Numbers may arrive as float64
// after a JSON round trip.
func TorrentFromValues(values []any) (Torrent, error) {
	var t Torrent
	if len(values) != len(TorrentFields) {
		return t, fmt.Errorf("expected %d values, got %d", len(TorrentFields), len(values))
	}

	r := valueReader{values: values}
	t.AddedAt = r.asInt(0)
	t.CompletedAt = r.asInt(1)
	t.Downloaded = r.asInt(2)
	t.DownloadingTime = r.asInt(3)
	t.DownloadLimitKBps = r.asInt(4)
	t.DownloadRate = r.asInt(5)
	t.Error = r.asBool(6)
	t.FileCount = r.asInt(7)
	t.Hash = r.asString(8)
	t.HashV2 = r.asString(9)
	t.IsFinished = r.asBool(10)
	t.IsPrivate = r.asBool(11)
	t.MagnetLink = r.asString(12)
	t.Message = r.asString(13)
	t.MimeType = r.asString(14)
	t.Name = r.asString(15)
	t.Peers = r.asInt(16)
	t.PercentDone = r.asInt(17)
	t.PieceCount = r.asInt(18)
	t.PieceSize = r.asInt(19)
	t.Position = r.asInt(20)
	t.Ratio = r.asFloat(21)
	t.RecheckProgress = r.asInt(22)
	t.SavePath = r.asString(23)
	t.SeedingTime = r.asInt(24)
	t.Size = r.asInt(25)
	t.Status = Status(r.asInt(26))
	t.TotalSize = r.asInt(27)
	t.Uploaded = r.asInt(28)
	t.UploadLimitKBps = r.asInt(29)
	t.UploadRate = r.asInt(30)

	if r.err != nil {
		return Torrent{}, r.err
	}
	if !t.Status.Valid() {
		return Torrent{}, fmt.Errorf("invalid status %d", t.Status)
	}
	return t, nil
}

// Values returns f in TorrentFileFields order.
func (f *TorrentFile) Values() []any {
	return []any{f.Path, f.Size, f.Progress}
}

func TorrentFileFromValues(values []any) (TorrentFile, error) {
	if len(values) != len(TorrentFileFields) {
		return TorrentFile{}, fmt.Errorf("expected %d values, got %d", len(TorrentFileFields), len(values))
	}
	r := valueReader{values: values}
	f := TorrentFile{Path: r.asString(0), Size: r.asInt(1), Progress: r.asInt(2)}
	if r.err != nil {
		return TorrentFile{}, r.err
	}
	return f, nil
}

// valueReader converts decoded JSON values and keeps the first type error.
type valueReader struct {
	values []any
	err    error
}

func (r *valueReader) fail(i int, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("column %d: expected %s, got %T", i, want, r.values[i])
	}
}

func (r *valueReader) asFloat(i int) float64 {
	switch v := r.values[i].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case Status:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f
		}
	}
	r.fail(i, "number")
	return 0
}

func (r *valueReader) asInt(i int) int64 {
	if n, ok := r.values[i].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			return v
		}
	}
	f := r.asFloat(i)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		r.fail(i, "finite number")
		return 0
	}
	return int64(f)
}

func (r *valueReader) asBool(i int) bool {
	v, ok := r.values[i].(bool)
	if !ok {
		r.fail(i, "bool")
	}
	return v
}

func (r *valueReader) asString(i int) string {
	v, ok := r.values[i].(string)
	if !ok {
		r.fail(i, "string")
	}
	return v
}

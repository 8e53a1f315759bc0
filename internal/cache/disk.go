// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/domain"
)

// SchemaVersion is bumped whenever the snapshot layout changes in a way the
// field fingerprint does not capture.
const SchemaVersion = 1

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

var (
	torrentFingerprint = fingerprint(domain.TorrentFields)
	fileFingerprint    = fingerprint(domain.TorrentFileFields)
)

func fingerprint(fields []string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(fields, ",")), 16)
}

// Sanitize turns an arbitrary key into a single safe file name.
func Sanitize(key string) string {
	s := unsafeChars.ReplaceAllString(key, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "_"
	}
	return s
}

// ListMeta is the query context stored with a torrent list snapshot.
type ListMeta struct {
	Filter     string `json:"filter"`
	Reverse    bool   `json:"reverse"`
	Sort       string `json:"sort"`
	SearchTerm string `json:"searchTerm"`
}

type listSnapshot struct {
	Version    int     `json:"version"`
	Fields     string  `json:"fields"`
	TimestampS *int64  `json:"timestampS"`
	Torrents   [][]any `json:"torrents"`
	ListMeta
}

type fileSnapshot struct {
	Version    int     `json:"version"`
	Fields     string  `json:"fields"`
	Hash       string  `json:"hash"`
	TimestampS *int64  `json:"timestampS"`
	Files      [][]any `json:"files"`
}

// Disk persists snapshots under one directory. Every failure is logged and
// reported as a miss; nothing here is fatal to callers.
type Disk struct {
	dir        string
	host       string
	clientType domain.ClientType
}

// NewDisk returns nil when dir is empty, which disables the disk tier.
func NewDisk(dir, host string, clientType domain.ClientType) *Disk {
	if dir == "" {
		return nil
	}
	return &Disk{dir: dir, host: host, clientType: clientType}
}

func (d *Disk) typeSuffix() string {
	return strconv.Itoa(int(d.clientType))
}

// ListPath is the snapshot file of the torrent list.
func (d *Disk) ListPath() string {
	return filepath.Join(d.dir, Sanitize(d.host+"-"+d.typeSuffix()))
}

// FilesPath is the snapshot file of a torrent's file listing.
func (d *Disk) FilesPath(hash string) string {
	return filepath.Join(d.dir, Sanitize(hash+"-"+d.typeSuffix()))
}

func (d *Disk) SaveList(entry *ListEntry) {
	if d == nil || entry == nil {
		return
	}

	rows := make([][]any, 0, len(entry.Torrents))
	for i := range entry.Torrents {
		rows = append(rows, entry.Torrents[i].Values())
	}
	ts := entry.TimestampS

	d.write(d.ListPath(), listSnapshot{
		Version:    SchemaVersion,
		Fields:     torrentFingerprint,
		TimestampS: &ts,
		Torrents:   rows,
		ListMeta:   entry.Meta,
	})
}

// LoadList returns the list snapshot when it is present and well formed.
func (d *Disk) LoadList() (*ListEntry, bool) {
	if d == nil {
		return nil, false
	}

	var snap listSnapshot
	if !d.read(d.ListPath(), &snap) {
		return nil, false
	}
	if snap.Version != SchemaVersion || snap.Fields != torrentFingerprint || snap.TimestampS == nil || snap.Torrents == nil {
		d.discard(d.ListPath(), "schema mismatch")
		return nil, false
	}

	torrents := make([]domain.Torrent, 0, len(snap.Torrents))
	for _, row := range snap.Torrents {
		t, err := domain.TorrentFromValues(row)
		if err != nil {
			d.discard(d.ListPath(), err.Error())
			return nil, false
		}
		torrents = append(torrents, t)
	}

	return &ListEntry{Torrents: torrents, TimestampS: *snap.TimestampS, Meta: snap.ListMeta}, true
}

// RemoveList deletes the list snapshot, used once a live fetch supersedes it.
func (d *Disk) RemoveList() {
	if d == nil {
		return
	}
	if err := os.Remove(d.ListPath()); err != nil && !os.IsNotExist(err) {
		logCacheError(&domain.CacheError{Path: d.ListPath(), Op: "remove", Err: err})
	}
}

func (d *Disk) SaveFiles(entry *FileEntry) {
	if d == nil || entry == nil {
		return
	}

	rows := make([][]any, 0, len(entry.Files))
	for i := range entry.Files {
		rows = append(rows, entry.Files[i].Values())
	}
	ts := entry.TimestampS

	d.write(d.FilesPath(entry.Hash), fileSnapshot{
		Version:    SchemaVersion,
		Fields:     fileFingerprint,
		Hash:       entry.Hash,
		TimestampS: &ts,
		Files:      rows,
	})
}

// RemoveFiles deletes the file snapshot of hash.
func (d *Disk) RemoveFiles(hash string) {
	if d == nil {
		return
	}
	p := d.FilesPath(hash)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		logCacheError(&domain.CacheError{Path: p, Op: "remove", Err: err})
	}
}

func (d *Disk) LoadFiles(hash string) (*FileEntry, bool) {
	if d == nil {
		return nil, false
	}

	p := d.FilesPath(hash)
	var snap fileSnapshot
	if !d.read(p, &snap) {
		return nil, false
	}
	if snap.Version != SchemaVersion || snap.Fields != fileFingerprint || snap.TimestampS == nil || snap.Files == nil || snap.Hash != hash {
		d.discard(p, "schema mismatch")
		return nil, false
	}

	files := make([]domain.TorrentFile, 0, len(snap.Files))
	for _, row := range snap.Files {
		f, err := domain.TorrentFileFromValues(row)
		if err != nil {
			d.discard(p, err.Error())
			return nil, false
		}
		files = append(files, f)
	}

	return &FileEntry{Hash: hash, Files: files, TimestampS: *snap.TimestampS}, true
}

func (d *Disk) write(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logCacheError(&domain.CacheError{Path: path, Op: "encode", Err: err})
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logCacheError(&domain.CacheError{Path: path, Op: "mkdir", Err: err})
		return
	}

	// write then rename so readers never see a partial snapshot
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logCacheError(&domain.CacheError{Path: path, Op: "write", Err: err})
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		logCacheError(&domain.CacheError{Path: path, Op: "rename", Err: err})
		return
	}

	log.Trace().Str("path", path).Int("bytes", len(data)).Msg("Cache snapshot written")
}

func (d *Disk) read(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logCacheError(&domain.CacheError{Path: path, Op: "read", Err: err})
		}
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		d.discard(path, errors.Wrap(err, "invalid json").Error())
		return false
	}
	return true
}

func (d *Disk) discard(path, reason string) {
	log.Debug().Str("path", path).Str("reason", reason).Msg("Discarding cache snapshot")
}

func logCacheError(err *domain.CacheError) {
	log.Warn().Err(err).Msg("Cache persistence failed")
}

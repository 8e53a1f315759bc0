// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cache keeps normalized torrent lists and file listings in memory
// and snapshots them to disk when the memory tier goes idle.
package cache

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	DefaultTTL           = 60 * time.Second
	DefaultFileCacheMax  = 10
	DefaultFileCacheKeep = 5
)

// ListEntry is a cached torrent list.
type ListEntry struct {
	Torrents   []domain.Torrent
	TimestampS int64
	Meta       ListMeta
}

// FileEntry is a cached file listing of one torrent.
type FileEntry struct {
	Hash       string
	Files      []domain.TorrentFile
	TimestampS int64
}

type Options struct {
	// Dir enables the disk tier when set.
	Dir        string
	Host       string
	ClientType domain.ClientType
	TTL        time.Duration
	// FileCacheMax is the history length that triggers eviction down to FileCacheKeep.
	FileCacheMax  int
	FileCacheKeep int
}

// Store is the two-tier cache of one orchestrator. The memory tier is dropped
// as a whole once no call touched it for TTL.
type Store struct {
	disk *Disk
	ttl  time.Duration
	max  int
	keep int

	mu         sync.Mutex
	list       *ListEntry
	files      map[string]*FileEntry
	history    []string
	saveToDisk bool
	// dirty holds hashes whose listing came from a live fetch.
	dirty map[string]struct{}
	timer      *time.Timer
	stopped    bool
}

func New(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FileCacheMax < 1 {
		opts.FileCacheMax = DefaultFileCacheMax
	}
	if opts.FileCacheKeep < 1 || opts.FileCacheKeep > opts.FileCacheMax {
		opts.FileCacheKeep = min(DefaultFileCacheKeep, opts.FileCacheMax)
	}

	return &Store{
		disk:  NewDisk(opts.Dir, opts.Host, opts.ClientType),
		ttl:   opts.TTL,
		max:   opts.FileCacheMax,
		keep:  opts.FileCacheKeep,
		files: make(map[string]*FileEntry),
		dirty: make(map[string]struct{}),
	}
}

// Disk exposes the disk tier; it is nil when persistence is disabled.
func (s *Store) Disk() *Disk {
	return s.disk
}

// Touch rearms the idle timer.
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Store) touchLocked() {
	s.stopped = false
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.ttl, s.expire)
}

func (s *Store) expire() {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	log.Debug().Dur("ttl", s.ttl).Msg("Cache idle, clearing memory tier")
	s.Clear()
}

// List returns the in-memory torrent list.
func (s *Store) List() (*ListEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list, s.list != nil
}

// SetList replaces the in-memory list and marks it for persistence.
func (s *Store) SetList(entry *ListEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = entry
	s.saveToDisk = true
	s.touchLocked()
}

// RestoreList loads the disk snapshot into memory. A restored list is not
// written back unless it is replaced.
func (s *Store) RestoreList() (*ListEntry, bool) {
	entry, ok := s.disk.LoadList()
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = entry
	s.saveToDisk = false
	s.touchLocked()
	return entry, true
}

// DropDiskList removes the list snapshot once a live fetch superseded it.
func (s *Store) DropDiskList() {
	s.disk.RemoveList()
}

func (s *Store) Files(hash string) (*FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.files[hash]
	return entry, ok
}

// SetFiles stores a live file listing, records hash in the history queue and
// marks it for persistence.
func (s *Store) SetFiles(entry *FileEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[entry.Hash] = entry
	s.dirty[entry.Hash] = struct{}{}
	s.pushHistoryLocked(entry.Hash)
	s.touchLocked()
}

// DropDiskFiles removes the file snapshot of hash once a live fetch
// superseded it.
func (s *Store) DropDiskFiles(hash string) {
	s.disk.RemoveFiles(hash)
}

// RestoreFiles loads a file listing snapshot into memory. Like a restored
// list, it is not written back unless it is replaced.
func (s *Store) RestoreFiles(hash string) (*FileEntry, bool) {
	entry, ok := s.disk.LoadFiles(hash)
	if !ok {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[hash] = entry
	s.pushHistoryLocked(hash)
	s.touchLocked()
	return entry, true
}

// History returns the tracked hashes, most recent last.
func (s *Store) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Store) pushHistoryLocked(hash string) {
	if i := slices.Index(s.history, hash); i >= 0 {
		s.history = slices.Delete(s.history, i, i+1)
	}
	s.history = append(s.history, hash)

	if len(s.history) <= s.max {
		return
	}

	cut := len(s.history) - s.keep
	for _, evicted := range s.history[:cut] {
		delete(s.files, evicted)
		delete(s.dirty, evicted)
	}
	s.history = slices.Clone(s.history[cut:])
}

// Clear persists pending state and drops the memory tier.
func (s *Store) Clear() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	list := s.list
	save := s.saveToDisk
	pending := make([]*FileEntry, 0, len(s.dirty))
	for _, hash := range s.history {
		if _, ok := s.dirty[hash]; !ok {
			continue
		}
		if entry, ok := s.files[hash]; ok {
			pending = append(pending, entry)
		}
	}

	s.list = nil
	s.files = make(map[string]*FileEntry)
	s.dirty = make(map[string]struct{})
	s.history = nil
	s.saveToDisk = false
	s.mu.Unlock()

	if save && list != nil {
		s.disk.SaveList(list)
	}
	for _, entry := range pending {
		s.disk.SaveFiles(entry)
	}
}

// Stop cancels the idle timer without clearing anything.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

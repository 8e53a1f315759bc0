// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package orchestrator puts caching, querying and rename reconciliation in
// front of a single torrent daemon adapter.
package orchestrator

import (
	"context"
	"path/filepath"
	"reflect"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/cache"
	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/filetree"
	"github.com/autobrr/unitorrent/internal/query"
)

const (
	DefaultMemCacheTimeout = 60 * time.Second
	MinMemCacheTimeout     = time.Second
	DefaultRenameSettle    = 500 * time.Millisecond
)

// Options configures one orchestrator instance.
type Options struct {
	// Name labels logs and metrics; it defaults to the backend host.
	Name    string
	Backend backend.Options

	// CacheDir enables the disk tier. It must be absolute.
	CacheDir        string
	MemCacheTimeout time.Duration
	FileCacheMax    int
	FileCacheKeep   int
	// RenameSettle is the pause between a rename and the file listing refresh.
	RenameSettle time.Duration
}

func (o *Options) validate() error {
	if o.MemCacheTimeout == 0 {
		o.MemCacheTimeout = DefaultMemCacheTimeout
	}
	if o.MemCacheTimeout < MinMemCacheTimeout {
		return &domain.ConfigError{Field: "memCacheTimeout", Reason: "must be at least 1s"}
	}
	if o.CacheDir != "" && !filepath.IsAbs(o.CacheDir) {
		return &domain.ConfigError{Field: "cacheDir", Reason: "must be an absolute path"}
	}
	if o.RenameSettle == 0 {
		o.RenameSettle = DefaultRenameSettle
	}
	if o.RenameSettle < 0 {
		return &domain.ConfigError{Field: "renameSettle", Reason: "must not be negative"}
	}
	return nil
}

// FileOptions selects how GetTorrentFiles answers.
type FileOptions struct {
	AsTree bool
	Raw    bool
	Fresh  bool
}

// TorrentsResult is a query result; Raw carries the daemon's own records in
// raw mode.
type TorrentsResult struct {
	query.Result
	Raw any `json:"raw,omitempty"`
}

// FilesResult is the file listing of one torrent.
type FilesResult struct {
	Hash       string               `json:"hash"`
	TimestampS int64                `json:"timestampS"`
	Files      []domain.TorrentFile `json:"files"`
	Tree       []*filetree.Node     `json:"tree,omitempty"`
	Raw        any                  `json:"raw,omitempty"`
}

// Orchestrator is the façade over one daemon.
type Orchestrator struct {
	name         string
	backend      backend.Backend
	cache        *cache.Store
	query        *query.Engine
	renameSettle time.Duration
	now          func() time.Time
}

// New validates opts and builds the adapter for its client type.
func New(opts Options) (*Orchestrator, error) {
	b, err := NewBackend(opts.Backend)
	if err != nil {
		return nil, err
	}

	o, err := NewWithBackend(b, opts)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return o, nil
}

// NewWithBackend wraps an existing adapter. opts.Backend is ignored.
func NewWithBackend(b backend.Backend, opts Options) (*Orchestrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = b.Host()
	}

	store := cache.New(cache.Options{
		Dir:           opts.CacheDir,
		Host:          b.Host(),
		ClientType:    b.ClientType(),
		TTL:           opts.MemCacheTimeout,
		FileCacheMax:  opts.FileCacheMax,
		FileCacheKeep: opts.FileCacheKeep,
	})

	return &Orchestrator{
		name:         name,
		backend:      b,
		cache:        store,
		query:        query.NewEngine(),
		renameSettle: opts.RenameSettle,
		now:          time.Now,
	}, nil
}

func (o *Orchestrator) Name() string { return o.name }

func (o *Orchestrator) ClientType() domain.ClientType { return o.backend.ClientType() }

func (o *Orchestrator) Host() string { return o.backend.Host() }

// Backend exposes the adapter for callers that need daemon specific calls.
func (o *Orchestrator) Backend() backend.Backend { return o.backend }

func (o *Orchestrator) GetAppVersion(ctx context.Context) (string, error) {
	v, err := o.backend.GetAppVersion(ctx)
	o.observeCall("app_version", err)
	return v, err
}

func (o *Orchestrator) GetAPIVersion(ctx context.Context) (string, error) {
	v, err := o.backend.GetAPIVersion(ctx)
	o.observeCall("api_version", err)
	return v, err
}

func (o *Orchestrator) IsVersionOrUp(ctx context.Context, version string) (bool, error) {
	return o.backend.IsVersionOrUp(ctx, version)
}

func (o *Orchestrator) IsAPIVersionOrUp(ctx context.Context, version string) (bool, error) {
	return o.backend.IsAPIVersionOrUp(ctx, version)
}

// HealthCheck forces a login round trip.
func (o *Orchestrator) HealthCheck(ctx context.Context) error {
	err := o.backend.Login(ctx)
	o.observeCall("login", err)
	return err
}

// GetTorrents answers from the memory tier, then a disk snapshot, then the
// daemon. Fresh skips both cache tiers and raw skips caching altogether.
func (o *Orchestrator) GetTorrents(ctx context.Context, opts query.Options) (*TorrentsResult, error) {
	o.cache.Touch()

	if opts.Raw {
		return o.rawTorrents(ctx, opts)
	}

	entry, err := o.torrentList(ctx, opts)
	if err != nil {
		return nil, err
	}

	res, err := o.query.Apply(entry.Torrents, entry.TimestampS, opts)
	if err != nil {
		return nil, err
	}
	return &TorrentsResult{Result: res}, nil
}

func (o *Orchestrator) rawTorrents(ctx context.Context, opts query.Options) (*TorrentsResult, error) {
	res := &TorrentsResult{Result: query.Result{
		Filter:      opts.Filter.String(),
		SearchTerm:  opts.SearchTerm,
		Fresh:       opts.Fresh,
		Hashes:      opts.Hashes,
		Sort:        query.SortKey(opts.Sort),
		Reverse:     opts.Reverse,
		TimestampS:  o.now().Unix(),
		Torrents:    []domain.Torrent{},
		PerPage:     opts.PerPage,
		CurrentPage: max(opts.CurrentPage, 1),
	}}

	raw, err := o.backend.GetTorrents(ctx)
	o.observeCall("torrents_raw", err)
	if err != nil {
		if fatal(err) {
			return nil, err
		}
		log.Warn().Err(err).Str("instance", o.name).Msg("Raw torrent fetch failed")
		res.Raw = []any{}
		return res, nil
	}

	res.Total = rawLen(raw)
	res.Raw = paginateRaw(raw, opts.PerPage, res.CurrentPage)
	return res, nil
}

func (o *Orchestrator) torrentList(ctx context.Context, opts query.Options) (*cache.ListEntry, error) {
	if !opts.Fresh {
		if entry, ok := o.cache.List(); ok {
			o.observeCache(kindList, resultHit)
			return entry, nil
		}
		if entry, ok := o.cache.RestoreList(); ok {
			o.observeCache(kindList, resultRestore)
			return entry, nil
		}
		o.observeCache(kindList, resultMiss)
	}

	torrents, err := o.fetchTorrents(ctx)
	if err != nil {
		if fatal(err) {
			return nil, err
		}
		log.Warn().Err(err).Str("instance", o.name).Msg("Torrent fetch failed, serving cached list")
		if entry, ok := o.cache.List(); ok {
			return entry, nil
		}
		return &cache.ListEntry{Torrents: []domain.Torrent{}, TimestampS: o.now().Unix()}, nil
	}

	entry := &cache.ListEntry{
		Torrents:   torrents,
		TimestampS: o.now().Unix(),
		Meta: cache.ListMeta{
			Filter:     opts.Filter.String(),
			Reverse:    opts.Reverse,
			Sort:       query.SortKey(opts.Sort),
			SearchTerm: opts.SearchTerm,
		},
	}
	o.cache.SetList(entry)
	o.cache.DropDiskList()
	return entry, nil
}

func (o *Orchestrator) fetchTorrents(ctx context.Context) ([]domain.Torrent, error) {
	start := o.now()
	raw, err := o.backend.GetTorrents(ctx)
	o.observeCall("torrents", err)
	if err != nil {
		return nil, err
	}
	metrics.FetchDuration.WithLabelValues(o.name, o.backend.ClientType().String(), kindList).Observe(time.Since(start).Seconds())

	torrents, err := o.backend.NormalizeTorrents(raw)
	if err != nil {
		return nil, &domain.TransportError{Op: "normalize torrents", Err: err}
	}
	return torrents, nil
}

// GetTorrentFiles returns the file listing of hash, optionally as a tree.
func (o *Orchestrator) GetTorrentFiles(ctx context.Context, hash string, opts FileOptions) (*FilesResult, error) {
	if hash == "" {
		return nil, &domain.ConfigError{Field: "hash", Reason: "required", Err: domain.ErrHashRequired}
	}
	o.cache.Touch()

	if opts.Raw {
		res := &FilesResult{Hash: hash, TimestampS: o.now().Unix(), Files: []domain.TorrentFile{}}
		raw, err := o.backend.GetTorrentFiles(ctx, hash)
		o.observeCall("files_raw", err)
		if err != nil {
			if fatal(err) {
				return nil, err
			}
			log.Warn().Err(err).Str("instance", o.name).Str("hash", hash).Msg("Raw file fetch failed")
			res.Raw = []any{}
			return res, nil
		}
		res.Raw = raw
		return res, nil
	}

	entry, err := o.fileList(ctx, hash, opts.Fresh)
	if err != nil {
		return nil, err
	}

	res := &FilesResult{Hash: hash, TimestampS: entry.TimestampS, Files: entry.Files}
	if res.Files == nil {
		res.Files = []domain.TorrentFile{}
	}
	if opts.AsTree {
		res.Tree = filetree.Build(res.Files)
	}
	return res, nil
}

func (o *Orchestrator) fileList(ctx context.Context, hash string, fresh bool) (*cache.FileEntry, error) {
	if !fresh {
		if entry, ok := o.cache.Files(hash); ok {
			o.observeCache(kindFiles, resultHit)
			return entry, nil
		}
		if entry, ok := o.cache.RestoreFiles(hash); ok {
			o.observeCache(kindFiles, resultRestore)
			return entry, nil
		}
		o.observeCache(kindFiles, resultMiss)
	}

	start := o.now()
	raw, err := o.backend.GetTorrentFiles(ctx, hash)
	o.observeCall("files", err)
	if err == nil {
		metrics.FetchDuration.WithLabelValues(o.name, o.backend.ClientType().String(), kindFiles).Observe(time.Since(start).Seconds())
	}

	var files []domain.TorrentFile
	if err == nil {
		files, err = o.backend.NormalizeTorrentFiles(raw)
		if err != nil {
			err = &domain.TransportError{Op: "normalize files", Err: err}
		}
	}
	if err != nil {
		if fatal(err) {
			return nil, err
		}
		log.Warn().Err(err).Str("instance", o.name).Str("hash", hash).Msg("File fetch failed, serving cached listing")
		if entry, ok := o.cache.Files(hash); ok {
			return entry, nil
		}
		return &cache.FileEntry{Hash: hash, Files: []domain.TorrentFile{}, TimestampS: o.now().Unix()}, nil
	}

	entry := &cache.FileEntry{Hash: hash, Files: files, TimestampS: o.now().Unix()}
	o.cache.SetFiles(entry)
	o.cache.DropDiskFiles(hash)
	return entry, nil
}

// StartTorrents resumes hashes; it reports false when there was nothing to do.
func (o *Orchestrator) StartTorrents(ctx context.Context, hashes []string) (bool, error) {
	if len(hashes) == 0 {
		return false, nil
	}
	o.cache.Touch()

	err := o.backend.StartTorrents(ctx, hashes)
	o.observeCall("start", err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// StopTorrents pauses hashes; it reports false when there was nothing to do.
func (o *Orchestrator) StopTorrents(ctx context.Context, hashes []string) (bool, error) {
	if len(hashes) == 0 {
		return false, nil
	}
	o.cache.Touch()

	err := o.backend.StopTorrents(ctx, hashes)
	o.observeCall("stop", err)
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetTorrentUploadSpeed limits upload of hashes in KiB/s. Limits below 1
// remove the limit.
func (o *Orchestrator) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) (bool, error) {
	if len(hashes) == 0 {
		return false, nil
	}
	o.cache.Touch()

	if limitKBps < 1 {
		limitKBps = 0
	}

	err := o.backend.SetTorrentUploadSpeed(ctx, hashes, limitKBps)
	o.observeCall("upload_limit", err)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) GetPreferences(ctx context.Context) (map[string]any, error) {
	o.cache.Touch()
	prefs, err := o.backend.GetPreferences(ctx)
	o.observeCall("get_preferences", err)
	return prefs, err
}

// GetPreferenceKeys returns the sorted preference names.
func (o *Orchestrator) GetPreferenceKeys(ctx context.Context) ([]string, error) {
	prefs, err := o.GetPreferences(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (o *Orchestrator) SetPreferences(ctx context.Context, prefs map[string]any) error {
	o.cache.Touch()
	err := o.backend.SetPreferences(ctx, prefs)
	o.observeCall("set_preferences", err)
	return err
}

// ClearTimers stops the idle timer so the process can exit. Cached state is
// kept as is.
func (o *Orchestrator) ClearTimers() {
	o.cache.Stop()
}

// Close stops timers and releases the adapter.
func (o *Orchestrator) Close() error {
	o.ClearTimers()
	o.query.Close()
	return errors.Wrapf(o.backend.Close(), "close %s", o.name)
}

// fatal reports errors that read paths must not swallow.
func fatal(err error) bool {
	if domain.IsAuthError(err) || domain.IsConfigError(err) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func rawLen(raw any) int {
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice {
		return 0
	}
	return v.Len()
}

// paginateRaw slices adapter records, which are always slices, the same way
// query.Paginate does.
func paginateRaw(raw any, perPage, currentPage int) any {
	v := reflect.ValueOf(raw)
	if v.Kind() != reflect.Slice || perPage < 1 {
		return raw
	}

	offset := (max(currentPage, 1) - 1) * perPage
	if offset >= v.Len() {
		return v.Slice(0, 0).Interface()
	}
	end := min(offset+perPage, v.Len())
	return v.Slice(offset, end).Interface()
}

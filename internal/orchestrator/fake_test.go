// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

type renameCall struct {
	hash, oldPath, newPath string
	isFile                 bool
}

// fakeBackend records calls and serves canned data. Raw records are the
// canonical values themselves.
type fakeBackend struct {
	clientType domain.ClientType
	host       string

	mu           sync.Mutex
	torrents     []domain.Torrent
	files        map[string][]domain.TorrentFile
	prefs        map[string]any
	setPrefs     []map[string]any
	fetchErr     error
	loginErr     error
	calls        map[string]int
	renames      []renameCall
	renameResult bool
	started      [][]string
	stopped      [][]string
	limits       []int64
	closed       bool
}

var _ backend.Backend = (*fakeBackend)(nil)

func newFakeBackend(host string) *fakeBackend {
	return &fakeBackend{
		clientType:   domain.ClientQBittorrent,
		host:         host,
		files:        make(map[string][]domain.TorrentFile),
		prefs:        make(map[string]any),
		calls:        make(map[string]int),
		renameResult: true,
	}
}

func (f *fakeBackend) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeBackend) ClientType() domain.ClientType { return f.clientType }
func (f *fakeBackend) Host() string                  { return f.host }

func (f *fakeBackend) Login(ctx context.Context) error {
	f.record("login")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginErr
}

func (f *fakeBackend) GetAppVersion(ctx context.Context) (string, error) { return "4.6.0", nil }
func (f *fakeBackend) GetAPIVersion(ctx context.Context) (string, error) { return "2.9.3", nil }

func (f *fakeBackend) IsVersionOrUp(ctx context.Context, version string) (bool, error) {
	return backend.VersionOrUp("4.6.0", version), nil
}

func (f *fakeBackend) IsAPIVersionOrUp(ctx context.Context, version string) (bool, error) {
	return backend.VersionOrUp("2.9.3", version), nil
}

func (f *fakeBackend) GetPreferences(ctx context.Context) (map[string]any, error) {
	f.record("get_preferences")
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.prefs), nil
}

func (f *fakeBackend) SetPreferences(ctx context.Context, prefs map[string]any) error {
	f.record("set_preferences")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setPrefs = append(f.setPrefs, prefs)
	return nil
}

func (f *fakeBackend) GetTorrents(ctx context.Context) (any, error) {
	f.record("torrents")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return slices.Clone(f.torrents), nil
}

func (f *fakeBackend) GetTorrentFiles(ctx context.Context, hash string) (any, error) {
	f.record("files")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return slices.Clone(f.files[hash]), nil
}

func (f *fakeBackend) StartTorrents(ctx context.Context, hashes []string) error {
	f.record("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, hashes)
	return nil
}

func (f *fakeBackend) StopTorrents(ctx context.Context, hashes []string) error {
	f.record("stop")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, hashes)
	return nil
}

func (f *fakeBackend) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error {
	f.record("upload_limit")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limitKBps)
	return nil
}

func (f *fakeBackend) RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error) {
	f.record("rename")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, renameCall{hash, oldPath, newPath, isFile})
	return f.renameResult, nil
}

func (f *fakeBackend) NormalizeTorrents(raw any) ([]domain.Torrent, error) {
	torrents, ok := raw.([]domain.Torrent)
	if !ok {
		return nil, fmt.Errorf("unexpected torrent payload %T", raw)
	}
	return torrents, nil
}

func (f *fakeBackend) NormalizeTorrentFiles(raw any) ([]domain.TorrentFile, error) {
	files, ok := raw.([]domain.TorrentFile)
	if !ok {
		return nil, fmt.Errorf("unexpected file payload %T", raw)
	}
	return files, nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/query"
)

func sampleTorrents() []domain.Torrent {
	return []domain.Torrent{
		{Hash: "aaa", Name: "alpha", Position: 1, Status: domain.StatusSeeding, IsFinished: true, PercentDone: 100, Ratio: 1.5, SavePath: "/data/alpha"},
		{Hash: "bbb", Name: "bravo", Position: 2, Status: domain.StatusDownloading, PercentDone: 40, Peers: 3},
		{Hash: "ccc", Name: "charlie", Position: 3, Status: domain.StatusStopped, IsFinished: true, PercentDone: 100},
		{Hash: "ddd", Name: "delta", Position: 4, Status: domain.StatusError, Error: true, Message: "missing files"},
	}
}

func newTestOrchestrator(t *testing.T, fb *fakeBackend, mutate func(*Options)) *Orchestrator {
	t.Helper()
	opts := Options{
		Name:            "test",
		CacheDir:        t.TempDir(),
		MemCacheTimeout: time.Hour,
		RenameSettle:    time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	o, err := NewWithBackend(fb, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func resultHashes(res *TorrentsResult) []string {
	out := make([]string, 0, len(res.Torrents))
	for _, t := range res.Torrents {
		out = append(out, t.Hash)
	}
	return out
}

func TestOptionsValidation(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"short mem cache timeout", Options{MemCacheTimeout: 500 * time.Millisecond}, "memCacheTimeout"},
		{"relative cache dir", Options{CacheDir: "cache"}, "cacheDir"},
		{"negative settle", Options{RenameSettle: -time.Second}, "renameSettle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithBackend(newFakeBackend("h"), tt.opts)
			var cfgErr *domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	opts := Options{}
	require.NoError(t, opts.validate())
	assert.Equal(t, DefaultMemCacheTimeout, opts.MemCacheTimeout)
	assert.Equal(t, DefaultRenameSettle, opts.RenameSettle)
}

func TestNewBackendRejectsUnknownClient(t *testing.T) {
	_, err := NewBackend(backend.Options{ClientType: 9, URL: "localhost"})
	assert.True(t, domain.IsConfigError(err))

	_, err = New(Options{Backend: backend.Options{ClientType: domain.ClientTransmission, URL: "http://localhost:9091"}, CacheDir: "relative"})
	assert.True(t, domain.IsConfigError(err))
}

func TestGetTorrentsUsesMemoryCache(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.torrents = sampleTorrents()
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	res, err := o.GetTorrents(ctx, query.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb", "ccc", "ddd"}, resultHashes(res))
	assert.Equal(t, 1, fb.count("torrents"))

	_, err = o.GetTorrents(ctx, query.Options{Sort: "name", Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.count("torrents"))

	_, err = o.GetTorrents(ctx, query.Options{Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, fb.count("torrents"), "fresh forces a live fetch")
}

func TestGetTorrentsRestoresFromDisk(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.torrents = sampleTorrents()
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	first, err := o.GetTorrents(ctx, query.Options{})
	require.NoError(t, err)

	// idle expiry
	o.cache.Clear()
	_, err = os.Stat(o.cache.Disk().ListPath())
	require.NoError(t, err)

	restored, err := o.GetTorrents(ctx, query.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.count("torrents"))
	assert.Equal(t, first.Torrents, restored.Torrents)
	assert.Equal(t, first.TimestampS, restored.TimestampS)

	// a live fetch supersedes the snapshot
	_, err = o.GetTorrents(ctx, query.Options{Fresh: true})
	require.NoError(t, err)
	_, err = os.Stat(o.cache.Disk().ListPath())
	assert.True(t, os.IsNotExist(err))
}

func TestGetTorrentsSwallowsTransportErrors(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.torrents = sampleTorrents()
	fb.fetchErr = &domain.TransportError{Op: "torrents", Err: errors.New("connection refused")}
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	res, err := o.GetTorrents(ctx, query.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Torrents)
	assert.NotZero(t, res.TimestampS)

	fb.setFetchErr(nil)
	_, err = o.GetTorrents(ctx, query.Options{Fresh: true})
	require.NoError(t, err)

	fb.setFetchErr(&domain.TransportError{Op: "torrents", Err: errors.New("timeout")})
	res, err = o.GetTorrents(ctx, query.Options{Fresh: true})
	require.NoError(t, err)
	assert.Len(t, res.Torrents, 4, "previous list is kept")
}

func TestGetTorrentsReturnsAuthErrors(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.fetchErr = &domain.AuthError{Host: "localhost:8080", Attempts: 3, Err: backend.ErrUnauthorized}
	o := newTestOrchestrator(t, fb, nil)

	_, err := o.GetTorrents(context.Background(), query.Options{})
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
}

func TestGetTorrentsAppliesQuery(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.torrents = sampleTorrents()
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	completed, err := o.GetTorrents(ctx, query.Options{Filter: domain.FilterCompleted})
	require.NoError(t, err)
	incomplete, err := o.GetTorrents(ctx, query.Options{Filter: domain.FilterIncomplete})
	require.NoError(t, err)

	assert.Equal(t, []string{"aaa", "ccc"}, resultHashes(completed))
	assert.Equal(t, []string{"bbb", "ddd"}, resultHashes(incomplete))
	assert.Equal(t, 4, completed.Total+incomplete.Total)

	page, err := o.GetTorrents(ctx, query.Options{PerPage: 2, CurrentPage: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"ccc", "ddd"}, resultHashes(page))
	assert.Equal(t, 4, page.Total)

	page, err = o.GetTorrents(ctx, query.Options{PerPage: 2, CurrentPage: -3})
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, resultHashes(page))
	assert.Equal(t, 1, page.CurrentPage)
}

func TestGetTorrentsRaw(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.torrents = sampleTorrents()
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	res, err := o.GetTorrents(ctx, query.Options{Raw: true, PerPage: 3, CurrentPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	raw, ok := res.Raw.([]domain.Torrent)
	require.True(t, ok)
	require.Len(t, raw, 1)
	assert.Equal(t, "ddd", raw[0].Hash)

	// raw mode never populates the cache
	_, ok = o.cache.List()
	assert.False(t, ok)

	fb.setFetchErr(errors.New("boom"))
	res, err = o.GetTorrents(ctx, query.Options{Raw: true})
	require.NoError(t, err)
	assert.Equal(t, []any{}, res.Raw)
}

func TestGetTorrentFiles(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.files["aaa"] = []domain.TorrentFile{
		{Path: "alpha/a.mkv", Size: 10, Progress: 100},
		{Path: "alpha/sub/b.srt", Size: 1, Progress: 0},
	}
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	_, err := o.GetTorrentFiles(ctx, "", FileOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHashRequired)
	assert.True(t, domain.IsConfigError(err))

	res, err := o.GetTorrentFiles(ctx, "aaa", FileOptions{AsTree: true})
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
	require.Len(t, res.Tree, 1)
	assert.Equal(t, "alpha", res.Tree[0].Path)
	assert.Len(t, res.Tree[0].Children, 2)

	_, err = o.GetTorrentFiles(ctx, "aaa", FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.count("files"))

	_, err = o.GetTorrentFiles(ctx, "aaa", FileOptions{Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, fb.count("files"))

	o.cache.Clear()
	res, err = o.GetTorrentFiles(ctx, "aaa", FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, fb.count("files"), "restored from disk")
	assert.Equal(t, fb.files["aaa"], res.Files)
}

func TestGetTorrentFilesLiveFetchSupersedesSnapshot(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.files["aaa"] = []domain.TorrentFile{{Path: "old.mkv", Size: 1}}
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	_, err := o.GetTorrentFiles(ctx, "aaa", FileOptions{})
	require.NoError(t, err)
	o.cache.Clear()
	_, err = os.Stat(o.cache.Disk().FilesPath("aaa"))
	require.NoError(t, err)

	fb.files["aaa"] = []domain.TorrentFile{{Path: "new.mkv", Size: 1}}
	res, err := o.GetTorrentFiles(ctx, "aaa", FileOptions{Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, "new.mkv", res.Files[0].Path)
	_, err = os.Stat(o.cache.Disk().FilesPath("aaa"))
	assert.True(t, os.IsNotExist(err))

	// push aaa out of the file history
	for i := range 10 {
		_, err := o.GetTorrentFiles(ctx, fmt.Sprintf("h%02d", i), FileOptions{})
		require.NoError(t, err)
	}
	_, ok := o.cache.Files("aaa")
	require.False(t, ok)

	fetches := fb.count("files")
	res, err = o.GetTorrentFiles(ctx, "aaa", FileOptions{})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "new.mkv", res.Files[0].Path)
	assert.Equal(t, fetches+1, fb.count("files"))
}

func TestActions(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	ok, err := o.StartTorrents(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = o.StopTorrents(ctx, []string{})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = o.SetTorrentUploadSpeed(ctx, nil, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fb.count("start")+fb.count("stop")+fb.count("upload_limit"))

	ok, err = o.StartTorrents(ctx, []string{"aaa"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = o.StopTorrents(ctx, []string{"bbb", "ccc"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, [][]string{{"aaa"}}, fb.started)
	assert.Equal(t, [][]string{{"bbb", "ccc"}}, fb.stopped)

	_, err = o.SetTorrentUploadSpeed(ctx, []string{"aaa"}, -5)
	require.NoError(t, err)
	_, err = o.SetTorrentUploadSpeed(ctx, []string{"aaa"}, 250)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 250}, fb.limits)
}

func TestRenameFile(t *testing.T) {
	files := []domain.TorrentFile{
		{Path: "Show/S01/e01.mkv", Size: 10},
		{Path: "Show/S01/e02.mkv", Size: 10},
		{Path: "Show/info.nfo", Size: 1},
	}

	tests := []struct {
		name      string
		oldPath   string
		newPath   string
		want      bool
		wantCall  *renameCall
		wantFetch int
	}{
		{"depth mismatch", "Show/info.nfo", "Show/extra/info.nfo", false, nil, 0},
		{"two segments differ", "Show/S01/e01.mkv", "Series/S01/e1.mkv", false, nil, 0},
		{"identical paths", "Show/info.nfo", "Show/info.nfo", false, nil, 0},
		{"unknown path", "Show/S02", "Show/S03", false, nil, 1},
		{"file rename", "Show/info.nfo", "Show/show.nfo", true, &renameCall{"aaa", "Show/info.nfo", "Show/show.nfo", true}, 2},
		{"folder rename", `Show\S01`, "Show/Season 1", true, &renameCall{"aaa", "Show/S01", "Show/Season 1", false}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend("localhost:8080")
			fb.files["aaa"] = files
			o := newTestOrchestrator(t, fb, nil)

			ok, err := o.RenameFile(context.Background(), "aaa", tt.oldPath, tt.newPath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.wantFetch, fb.count("files"))

			if tt.wantCall == nil {
				assert.Empty(t, fb.renames)
				return
			}
			require.Len(t, fb.renames, 1)
			assert.Equal(t, *tt.wantCall, fb.renames[0])
		})
	}
}

func TestRenameFileWithoutHash(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.files["aaa"] = []domain.TorrentFile{{Path: "a.mkv"}}
	o := newTestOrchestrator(t, fb, nil)

	ok, err := o.RenameFile(context.Background(), "", "a.mkv", "b.mkv")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fb.count("files"))
	assert.Empty(t, fb.renames)
}

func TestRenameFileSettleHonorsContext(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.files["aaa"] = []domain.TorrentFile{{Path: "a.mkv"}}
	o := newTestOrchestrator(t, fb, func(opts *Options) { opts.RenameSettle = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	ok, err := o.RenameFile(ctx, "aaa", "a.mkv", "b.mkv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fb.count("files"), "no refresh after cancellation")
}

func TestPreferences(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.prefs = map[string]any{"up_limit": 100, "dht": true, "alt_dl_limit": 5}
	o := newTestOrchestrator(t, fb, nil)
	ctx := context.Background()

	keys, err := o.GetPreferenceKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alt_dl_limit", "dht", "up_limit"}, keys)

	require.NoError(t, o.SetPreferences(ctx, map[string]any{"dht": false}))
	assert.Equal(t, []map[string]any{{"dht": false}}, fb.setPrefs)
}

func TestMatchPreferences(t *testing.T) {
	masterBackend := newFakeBackend("master:8080")
	masterBackend.prefs = map[string]any{"up_limit": 100, "dht": true, "save_path": "/data"}
	master := newTestOrchestrator(t, masterBackend, func(o *Options) { o.Name = "master" })

	sameA := newFakeBackend("a:8080")
	sameB := newFakeBackend("b:8080")
	other := newFakeBackend("c:8112")
	other.clientType = domain.ClientDeluge

	targets := []*Orchestrator{
		master,
		newTestOrchestrator(t, sameA, func(o *Options) { o.Name = "a" }),
		newTestOrchestrator(t, sameB, func(o *Options) { o.Name = "b" }),
		newTestOrchestrator(t, other, func(o *Options) { o.Name = "c" }),
	}

	err := MatchPreferences(context.Background(), master, targets, []string{"up_limit", "dht", "unknown"})
	require.NoError(t, err)

	want := []map[string]any{{"up_limit": 100, "dht": true}}
	assert.Equal(t, want, sameA.setPrefs)
	assert.Equal(t, want, sameB.setPrefs)
	assert.Empty(t, other.setPrefs)
	assert.Empty(t, masterBackend.setPrefs)

	require.NoError(t, MatchPreferences(context.Background(), master, targets[1:2], nil))
	assert.Len(t, sameA.setPrefs, 2)
	assert.Len(t, sameA.setPrefs[1], 3)
}

func TestVersionChecks(t *testing.T) {
	o := newTestOrchestrator(t, newFakeBackend("localhost:8080"), nil)
	ctx := context.Background()

	ok, err := o.IsVersionOrUp(ctx, "4.5.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = o.IsAPIVersionOrUp(ctx, "2.11.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearTimersStopsIdleExpiry(t *testing.T) {
	fb := newFakeBackend("localhost:8080")
	fb.torrents = sampleTorrents()
	o := newTestOrchestrator(t, fb, func(opts *Options) { opts.MemCacheTimeout = time.Second })

	_, err := o.GetTorrents(context.Background(), query.Options{})
	require.NoError(t, err)
	o.ClearTimers()

	time.Sleep(1200 * time.Millisecond)
	_, ok := o.cache.List()
	assert.True(t, ok)
}

func TestPaginateRaw(t *testing.T) {
	items := []string{"a", "b", "c"}
	assert.Equal(t, []string{"c"}, paginateRaw(items, 2, 2))
	assert.Equal(t, []string{}, paginateRaw(items, 2, 5))
	assert.Equal(t, items, paginateRaw(items, 0, 1))
	assert.Equal(t, "x", paginateRaw("x", 1, 1))
}

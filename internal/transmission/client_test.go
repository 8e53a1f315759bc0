// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

type fakeTransmission struct {
	mu        sync.Mutex
	sessionID string
	conflicts int
	requests  []map[string]any
}

func (f *fakeTransmission) rotate(id string) {
	f.mu.Lock()
	f.sessionID = id
	f.mu.Unlock()
}

func (f *fakeTransmission) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Header.Get(sessionIDHeader) != f.sessionID {
			f.conflicts++
			w.Header().Set(sessionIDHeader, f.sessionID)
			w.WriteHeader(http.StatusConflict)
			return
		}

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.requests = append(f.requests, req)

		reply := func(args any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"result": "success", "arguments": args})
		}

		switch req["method"] {
		case "session-get":
			reply(map[string]any{"version": "4.0.5 (a6fe2a64aa)", "rpc-version": 18, "download-dir": "/downloads"})
		case "torrent-get":
			args, _ := req["arguments"].(map[string]any)
			if _, ok := args["ids"]; ok {
				reply(map[string]any{"torrents": []map[string]any{{
					"files": []map[string]any{
						{"name": "Show/e01.mkv", "length": 200, "bytesCompleted": 101},
						{"name": "Show/e02.mkv", "length": 0, "bytesCompleted": 0},
					},
				}}})
				return
			}
			reply(map[string]any{"torrents": []map[string]any{
				{
					"hashString": "aaaa", "name": "Show", "status": 4, "isFinished": false,
					"percentDone": 0.4567, "downloadDir": "/downloads", "uploadLimit": -1,
					"doneDate": -1, "peersConnected": 3, "uploadRatio": 1.23456, "file-count": 2,
				},
				{
					"hashString": "bbbb", "name": "Movie", "status": 6, "isFinished": true,
					"error": 3, "errorString": "tracker gone", "percentDone": 1,
				},
			}})
		default:
			reply(map[string]any{})
		}
	}
}

func newTestClient(t *testing.T, fake *fakeTransmission) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c, err := New(backend.Options{URL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSessionHandshake(t *testing.T) {
	fake := &fakeTransmission{sessionID: "first"}
	c := newTestClient(t, fake)

	version, err := c.GetAppVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4.0.5 (a6fe2a64aa)", version)
	assert.Equal(t, 1, fake.conflicts)

	api, err := c.GetAPIVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "18", api)

	fake.rotate("second")
	_, err = c.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.conflicts)
	assert.Equal(t, "second", c.session.Token())
}

func TestClientTorrents(t *testing.T) {
	fake := &fakeTransmission{sessionID: "id"}
	c := newTestClient(t, fake)

	raw, err := c.GetTorrents(context.Background())
	require.NoError(t, err)
	torrents, err := c.NormalizeTorrents(raw)
	require.NoError(t, err)
	require.Len(t, torrents, 2)

	show := torrents[0]
	assert.Equal(t, "aaaa", show.Hash)
	assert.Equal(t, domain.StatusDownloading, show.Status)
	assert.Equal(t, int64(45), show.PercentDone)
	assert.Equal(t, int64(0), show.UploadLimitKBps)
	assert.Equal(t, int64(0), show.CompletedAt)
	assert.Equal(t, "/downloads/Show", show.SavePath)
	assert.Equal(t, 1.235, show.Ratio)

	movie := torrents[1]
	assert.Equal(t, domain.StatusError, movie.Status)
	assert.True(t, movie.Error)
	assert.Equal(t, "tracker gone", movie.Message)
	assert.Equal(t, int64(100), movie.PercentDone)
}

func TestClientFiles(t *testing.T) {
	fake := &fakeTransmission{sessionID: "id"}
	c := newTestClient(t, fake)

	raw, err := c.GetTorrentFiles(context.Background(), "aaaa")
	require.NoError(t, err)
	files, err := c.NormalizeTorrentFiles(raw)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentFile{
		{Path: "Show/e01.mkv", Size: 200, Progress: 50},
		{Path: "Show/e02.mkv", Size: 0, Progress: 0},
	}, files)
}

func TestClientMutations(t *testing.T) {
	fake := &fakeTransmission{sessionID: "id"}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ok, err := c.RenameFile(ctx, "aaaa", "Show/e01.mkv", "Show/pilot.mkv", true)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SetTorrentUploadSpeed(ctx, []string{"aaaa"}, 0))
	require.NoError(t, c.SetTorrentUploadSpeed(ctx, []string{"aaaa"}, 250))
	require.NoError(t, c.StopTorrents(ctx, nil))
	require.NoError(t, c.SetPreferences(ctx, map[string]any{"version": "x", "speed-limit-up": 10}))

	require.Len(t, fake.requests, 5)

	rename := fake.requests[0]["arguments"].(map[string]any)
	assert.Equal(t, "torrent-rename-path", fake.requests[0]["method"])
	assert.Equal(t, "Show/e01.mkv", rename["path"])
	assert.Equal(t, "pilot.mkv", rename["name"])

	unlimited := fake.requests[1]["arguments"].(map[string]any)
	assert.Equal(t, false, unlimited["uploadLimited"])
	assert.InDelta(t, 0, unlimited["uploadLimit"], 0)

	limited := fake.requests[2]["arguments"].(map[string]any)
	assert.Equal(t, true, limited["uploadLimited"])
	assert.InDelta(t, 250, limited["uploadLimit"], 0)

	stop := fake.requests[3]
	assert.Equal(t, "torrent-stop", stop["method"])
	assert.Empty(t, stop["arguments"])

	prefs := fake.requests[4]["arguments"].(map[string]any)
	assert.NotContains(t, prefs, "version")
	assert.Contains(t, prefs, "speed-limit-up")
}

func TestClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(backend.Options{URL: srv.URL, Username: "admin", Password: "bad"})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetTorrents(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, domain.StatusStopped, NormalizeStatus(statusStopped, false, 0))
	assert.Equal(t, domain.StatusChecking, NormalizeStatus(statusCheckWait, false, 0))
	assert.Equal(t, domain.StatusDownloading, NormalizeStatus(statusDownloadWait, false, 0))
	assert.Equal(t, domain.StatusSeeding, NormalizeStatus(statusSeed, true, 0))
	assert.Equal(t, domain.StatusError, NormalizeStatus(statusSeed, true, 2))
	assert.Equal(t, domain.StatusStopped, NormalizeStatus(42, false, 0))
}

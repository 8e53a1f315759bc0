// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"encoding/json"
	"testing"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		state qbt.TorrentState
		want  domain.Status
	}{
		{state: qbt.TorrentStatePausedUp, want: domain.StatusStopped},
		{state: qbt.TorrentStateStoppedDl, want: domain.StatusStopped},
		{state: "stopped", want: domain.StatusStopped},
		{state: qbt.TorrentStateMetaDl, want: domain.StatusDownloading},
		{state: qbt.TorrentStateStalledDl, want: domain.StatusDownloading},
		{state: qbt.TorrentStateForcedUp, want: domain.StatusSeeding},
		{state: qbt.TorrentStateUploading, want: domain.StatusSeeding},
		{state: qbt.TorrentStateMissingFiles, want: domain.StatusError},
		{state: qbt.TorrentStateError, want: domain.StatusError},
		{state: qbt.TorrentStateCheckingResumeData, want: domain.StatusChecking},
		{state: qbt.TorrentStateMoving, want: domain.StatusChecking},
		{state: "somethingNew", want: domain.StatusStopped},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.state))
		})
	}
}

func TestNormalizeTorrents(t *testing.T) {
	raw := []qbt.Torrent{
		{
			AddedOn:       1700000000,
			CompletionOn:  -1,
			Downloaded:    2048,
			DlLimit:       512,
			DlSpeed:       100,
			Hash:          "legacyhash",
			InfohashV1:    "v1hash",
			InfohashV2:    "v2hash",
			AmountLeft:    1024,
			Progress:      0.456,
			MagnetURI:     "magnet:?xt=urn:btih:v1hash",
			Name:          "Some.Release",
			NumComplete:   3,
			NumIncomplete: 2,
			NumLeechs:     1,
			NumSeeds:      4,
			Priority:      7,
			Ratio:         1.23456,
			ContentPath:   "C:\\downloads\\Some.Release",
			SeedingTime:   60,
			Size:          4096,
			State:         qbt.TorrentStateDownloading,
			TotalSize:     8192,
			Uploaded:      512,
			UpLimit:       10240,
			UpSpeed:       50,
		},
		{
			Hash:       "onlyhash",
			AmountLeft: 0,
			Progress:   1,
			State:      qbt.TorrentStateMissingFiles,
			NumSeeds:   -5,
		},
	}

	c := &Client{}
	torrents, err := c.NormalizeTorrents(raw)
	require.NoError(t, err)
	require.Len(t, torrents, 2)

	first := torrents[0]
	assert.Equal(t, "v1hash", first.Hash)
	assert.Equal(t, "v2hash", first.HashV2)
	assert.Equal(t, int64(0), first.CompletedAt)
	assert.Equal(t, int64(0), first.DownloadLimitKBps)
	assert.Equal(t, int64(10), first.UploadLimitKBps)
	assert.Equal(t, int64(10), first.Peers)
	assert.Equal(t, int64(45), first.PercentDone)
	assert.Equal(t, int64(7), first.Position)
	assert.InDelta(t, 1.235, first.Ratio, 1e-9)
	assert.Equal(t, "C:/downloads/Some.Release", first.SavePath)
	assert.Equal(t, domain.StatusDownloading, first.Status)
	assert.False(t, first.IsFinished)
	assert.False(t, first.Error)

	second := torrents[1]
	assert.Equal(t, "onlyhash", second.Hash)
	assert.True(t, second.IsFinished)
	assert.True(t, second.Error)
	assert.Equal(t, "missingFiles", second.Message)
	assert.Equal(t, domain.StatusError, second.Status)
	assert.GreaterOrEqual(t, second.Peers, int64(0))

	_, err = c.NormalizeTorrents("nope")
	require.Error(t, err)
}

func TestNormalizeTorrentFiles(t *testing.T) {
	var files qbt.TorrentFiles
	payload := `[{"index":0,"name":"dir\\a.mkv","size":100,"progress":0.999},{"index":1,"name":"dir/b.nfo","size":5,"progress":1}]`
	require.NoError(t, json.Unmarshal([]byte(payload), &files))

	c := &Client{}
	out, err := c.NormalizeTorrentFiles(files)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentFile{
		{Path: "dir/a.mkv", Size: 100, Progress: 99},
		{Path: "dir/b.nfo", Size: 5, Progress: 100},
	}, out)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.True(t, errors.Is(classify(errors.New("unexpected status: 403")), backend.ErrUnauthorized))
	assert.True(t, errors.Is(classify(errors.New("login failed: bad credentials")), backend.ErrUnauthorized))
	assert.False(t, errors.Is(classify(errors.New("dial tcp: connection refused")), backend.ErrUnauthorized))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(backend.Options{URL: ""})
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))

	c, err := New(backend.Options{URL: "localhost:8080", Username: "admin", Password: "adminadmin"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, domain.ClientQBittorrent, c.ClientType())
	assert.Equal(t, "localhost:8080", c.Host())
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rtorrent

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

const hashA = "0123456789ABCDEF0123456789ABCDEF01234567"

type methodCall struct {
	MethodName string     `xml:"methodName"`
	Params     []xmlValue `xml:"params>param>value"`
}

type fakeRTorrent struct {
	mu    sync.Mutex
	calls []string
	last  []any
}

func writeResponse(t *testing.T, w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header + "<methodResponse><params><param>")
	require.NoError(t, encodeValue(&buf, v))
	buf.WriteString("</param></params></methodResponse>")
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(buf.Bytes())
}

func (f *fakeRTorrent) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rt" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var call methodCall
		require.NoError(t, xml.Unmarshal(body, &call))

		params := make([]any, 0, len(call.Params))
		for i := range call.Params {
			v, err := call.Params[i].decode()
			require.NoError(t, err)
			params = append(params, v)
		}

		f.mu.Lock()
		f.calls = append(f.calls, call.MethodName)
		f.last = params
		f.mu.Unlock()

		switch call.MethodName {
		case "system.client_version":
			writeResponse(t, w, "0.9.8")
		case "system.api_version":
			writeResponse(t, w, "10")
		case "d.multicall2":
			writeResponse(t, w, []any{
				[]any{hashA, "Show", 1, 1, 0, 0, "", 1000, 250, 750, 100, 250, 5, 10, 400, 4, "/data/Show", 1, 1700000000, 1700000100, 0, 3, 4, 262144, 1, 2},
				[]any{"FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", "movie.mkv", 1, 1, 1, 0, "Tracker: timeout", 500, 500, 0, 900, 500, 0, 0, 1800, 0, "/data", 0, 1600000000, 1600000100, 1600000200, 1, 2, 262144, 0, 1},
			})
		case "f.multicall":
			writeResponse(t, w, []any{
				[]any{"e01.mkv", 600, 1, 2},
				[]any{"sub\\e02.mkv", 400, 2, 2},
			})
		case "download_list":
			writeResponse(t, w, []any{hashA})
		case "system.multicall":
			batch := params[0].([]any)
			results := make([]any, 0, len(batch))
			for _, item := range batch {
				m := item.(map[string]any)
				if m["methodName"] == "pieces.hash.on_completion" {
					results = append(results, map[string]any{"faultCode": int64(-506), "faultString": "unknown method"})
					continue
				}
				results = append(results, []any{int64(0)})
			}
			writeResponse(t, w, results)
		default:
			writeResponse(t, w, int64(0))
		}
	}
}

func newTestClient(t *testing.T, fake *fakeRTorrent) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c, err := New(backend.Options{URL: srv.URL, Username: "rt", Password: "pw"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestXMLRPCRoundTrip(t *testing.T) {
	body, err := encodeCall("d.multicall2", []any{"", "main", "d.hash=", int64(1) << 40, true, 1.5, map[string]any{"a": "b&c"}})
	require.NoError(t, err)

	var call methodCall
	require.NoError(t, xml.Unmarshal(body, &call))
	assert.Equal(t, "d.multicall2", call.MethodName)

	var got []any
	for i := range call.Params {
		v, err := call.Params[i].decode()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []any{"", "main", "d.hash=", int64(1) << 40, true, 1.5, map[string]any{"a": "b&c"}}, got)
}

func TestDecodeFault(t *testing.T) {
	_, err := decodeResponse([]byte(`<?xml version="1.0"?><methodResponse><fault><value><struct>
<member><name>faultCode</name><value><i4>-501</i4></value></member>
<member><name>faultString</name><value><string>Could not find info-hash.</string></value></member>
</struct></value></fault></methodResponse>`))
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, int64(-501), fault.Code)
	assert.Equal(t, "Could not find info-hash.", fault.String)

	v, err := decodeResponse([]byte(`<methodResponse><params><param><value>plain</value></param></params></methodResponse>`))
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestClientVersions(t *testing.T) {
	c := newTestClient(t, &fakeRTorrent{})

	version, err := c.GetAppVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.9.8", version)

	ok, err := c.IsAPIVersionOrUp(context.Background(), "9")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientTorrents(t *testing.T) {
	c := newTestClient(t, &fakeRTorrent{})

	raw, err := c.GetTorrents(context.Background())
	require.NoError(t, err)
	torrents, err := c.NormalizeTorrents(raw)
	require.NoError(t, err)
	require.Len(t, torrents, 2)

	show := torrents[0]
	assert.Equal(t, domain.StatusDownloading, show.Status)
	assert.Equal(t, int64(25), show.PercentDone)
	assert.Equal(t, "/data/Show", show.SavePath)
	assert.Equal(t, 0.4, show.Ratio)
	assert.True(t, show.IsPrivate)
	assert.Equal(t, int64(262144), show.PieceSize)

	movie := torrents[1]
	assert.Equal(t, domain.StatusError, movie.Status)
	assert.Equal(t, "/data/movie.mkv", movie.SavePath)
	assert.Equal(t, int64(100), movie.PercentDone)
	assert.Equal(t, int64(1600000200), movie.CompletedAt)
}

func TestClientFiles(t *testing.T) {
	c := newTestClient(t, &fakeRTorrent{})

	raw, err := c.GetTorrentFiles(context.Background(), hashA)
	require.NoError(t, err)
	files, err := c.NormalizeTorrentFiles(raw)
	require.NoError(t, err)
	assert.Equal(t, []domain.TorrentFile{
		{Path: "e01.mkv", Size: 600, Progress: 50},
		{Path: "sub/e02.mkv", Size: 400, Progress: 100},
	}, files)
}

func TestClientActions(t *testing.T) {
	fake := &fakeRTorrent{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	require.NoError(t, c.StartTorrents(ctx, nil))
	assert.Equal(t, []string{"download_list", "system.multicall"}, fake.calls)
	batch := fake.last[0].([]any)
	require.Len(t, batch, 2)
	assert.Equal(t, "d.open", batch[0].(map[string]any)["methodName"])
	assert.Equal(t, "d.start", batch[1].(map[string]any)["methodName"])

	prefs, err := c.GetPreferences(ctx)
	require.NoError(t, err)
	assert.NotContains(t, prefs, "pieces.hash.on_completion")
	assert.Contains(t, prefs, "throttle.global_up.max_rate")

	ok, err := c.RenameFile(ctx, hashA, "a", "b", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer((&fakeRTorrent{}).handler(t))
	defer srv.Close()

	c, err := New(backend.Options{URL: srv.URL, Username: "rt", Password: "wrong"})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetTorrents(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, domain.StatusStopped, NormalizeStatus(&Torrent{State: 0}))
	assert.Equal(t, domain.StatusStopped, NormalizeStatus(&Torrent{State: 1, IsActive: false}))
	assert.Equal(t, domain.StatusSeeding, NormalizeStatus(&Torrent{State: 1, IsActive: true, Complete: true}))
	assert.Equal(t, domain.StatusChecking, NormalizeStatus(&Torrent{State: 1, Hashing: 1}))
	assert.Equal(t, domain.StatusError, NormalizeStatus(&Torrent{State: 1, IsActive: true, Message: "x"}))
}

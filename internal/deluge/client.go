// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package deluge adapts the Deluge WebUI JSON-RPC interface to the backend contract.
package deluge

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	defaultAPIPath = "/json"
	// message ids cycle through [0, maxMessageID)
	maxMessageID = 1024
)

var torrentFields = []string{
	"hash", "name", "state", "paused", "is_finished", "is_seed", "progress",
	"time_added", "completed_time", "seeding_time", "active_time", "finished_time",
	"time_since_download", "time_since_upload", "all_time_download", "total_uploaded",
	"total_wanted", "total_size", "total_done", "download_payload_rate", "upload_payload_rate",
	"max_download_speed", "max_upload_speed", "num_peers", "num_seeds", "total_peers",
	"total_seeds", "queue", "ratio", "save_path", "download_location", "message",
	"num_files", "num_pieces", "piece_length", "private", "tracker_host", "eta",
}

var _ backend.Backend = (*Client)(nil)

type Client struct {
	opts     backend.Options
	http     *http.Client
	session  *backend.Session
	versions *backend.VersionCache

	idMu  sync.Mutex
	msgID int
}

func New(opts backend.Options) (*Client, error) {
	opts.ClientType = domain.ClientDeluge
	opts.RequirePassword = true
	if opts.APIPath == "" {
		opts.APIPath = defaultAPIPath
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	httpClient, err := backend.NewHTTPClient(&opts)
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:     opts,
		http:     httpClient,
		versions: backend.NewVersionCache(opts.Host()),
	}
	c.session = backend.NewSession(opts.Host(), c.login)
	return c, nil
}

func (c *Client) ClientType() domain.ClientType { return domain.ClientDeluge }

func (c *Client) Host() string { return c.opts.Host() }

func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int    `json:"id"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) nextID() int {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.msgID >= maxMessageID {
		c.msgID = 0
	}
	id := c.msgID
	c.msgID++
	return id
}

func (c *Client) resetID() {
	c.idMu.Lock()
	c.msgID = 0
	c.idMu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, time.Time, error) {
	c.resetID()

	var ok bool
	if err := c.call(ctx, "auth.login", []any{c.opts.Password}, &ok); err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		return "", time.Time{}, fmt.Errorf("%w: deluge rejected password", backend.ErrUnauthorized)
	}

	token := c.sessionCookie()
	if token == "" {
		return "", time.Time{}, errors.New("deluge login returned no session cookie")
	}
	return token, time.Time{}, nil
}

func (c *Client) sessionCookie() string {
	for _, name := range []string{"_session_id", "session_id"} {
		if v := backend.Cookie(c.http, c.opts.Endpoint(), name); v != "" {
			return v
		}
	}
	return ""
}

// call performs a single JSON-RPC round trip without session handling.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: c.nextID()})
	if err != nil {
		return errors.Wrapf(err, "could not encode %s", method)
	}

	req, err := http.NewRequest(http.MethodPost, c.opts.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.BasicUser != "" {
		req.SetBasicAuth(c.opts.BasicUser, c.opts.BasicPass)
	}

	data, _, err := backend.DoRequest(ctx, c.http, req)
	if err != nil {
		return err
	}

	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return errors.Wrapf(err, "could not decode %s response", method)
	}

	if resp.Error != nil {
		if strings.Contains(strings.ToLower(resp.Error.Message), "not authenticated") {
			return fmt.Errorf("%w: %s", backend.ErrUnauthorized, resp.Error.Message)
		}
		return fmt.Errorf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}

	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.Wrapf(err, "could not decode %s result", method)
	}
	return nil
}

// request runs an authenticated call under the session retry protocol.
func (c *Client) request(ctx context.Context, method string, params []any, result any) error {
	return c.session.Do(ctx, method, func(ctx context.Context) error {
		return c.call(ctx, method, params, result)
	})
}

func (c *Client) GetAppVersion(ctx context.Context) (string, error) {
	return c.versions.App(ctx, func(ctx context.Context) (string, error) {
		var version string
		if err := c.request(ctx, "daemon.get_version", nil, &version); err != nil {
			return "", err
		}
		return version, nil
	})
}

// GetAPIVersion returns an empty string; the Deluge WebUI does not version its RPC.
func (c *Client) GetAPIVersion(ctx context.Context) (string, error) {
	return "", nil
}

func (c *Client) IsVersionOrUp(ctx context.Context, version string) (bool, error) {
	have, err := c.GetAppVersion(ctx)
	if err != nil {
		return false, err
	}
	return backend.VersionOrUp(have, version), nil
}

func (c *Client) IsAPIVersionOrUp(ctx context.Context, version string) (bool, error) {
	return false, nil
}

func (c *Client) GetPreferences(ctx context.Context) (map[string]any, error) {
	prefs := make(map[string]any)
	if err := c.request(ctx, "core.get_config", nil, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

func (c *Client) SetPreferences(ctx context.Context, prefs map[string]any) error {
	if len(prefs) == 0 {
		return nil
	}
	return c.request(ctx, "core.set_config", []any{prefs}, nil)
}

func (c *Client) GetTorrents(ctx context.Context) (any, error) {
	byHash := make(map[string]Torrent)
	if err := c.request(ctx, "core.get_torrents_status", []any{map[string]any{}, torrentFields}, &byHash); err != nil {
		return nil, err
	}

	torrents := make([]Torrent, 0, len(byHash))
	for hash, t := range byHash {
		if t.Hash == "" {
			t.Hash = hash
		}
		torrents = append(torrents, t)
	}
	slices.SortFunc(torrents, func(a, b Torrent) int {
		return cmp.Compare(a.Hash, b.Hash)
	})
	return torrents, nil
}

func (c *Client) GetTorrentFiles(ctx context.Context, hash string) (any, error) {
	var status fileStatus
	if err := c.request(ctx, "core.get_torrent_status", []any{hash, []string{"files", "file_progress"}}, &status); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(status.Files))
	for _, f := range status.Files {
		if f.Index >= 0 && f.Index < len(status.FileProgress) {
			f.Progress = status.FileProgress[f.Index]
		}
		files = append(files, f)
	}
	return files, nil
}

func (c *Client) StartTorrents(ctx context.Context, hashes []string) error {
	return c.request(ctx, "core.resume_torrent", []any{hashes}, nil)
}

func (c *Client) StopTorrents(ctx context.Context, hashes []string) error {
	return c.request(ctx, "core.pause_torrent", []any{hashes}, nil)
}

// SetTorrentUploadSpeed sets max_upload_speed in KiB/s; -1 removes the limit.
func (c *Client) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error {
	if limitKBps < 1 {
		limitKBps = -1
	}
	return c.request(ctx, "core.set_torrent_options", []any{hashes, map[string]any{"max_upload_speed": limitKBps}}, nil)
}

func (c *Client) RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error) {
	if !isFile {
		if err := c.request(ctx, "core.rename_folder", []any{hash, oldPath, newPath}, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	raw, err := c.GetTorrentFiles(ctx, hash)
	if err != nil {
		return false, err
	}

	for _, f := range raw.([]File) {
		if domain.SlashPath(f.Path) != oldPath {
			continue
		}
		if err := c.request(ctx, "core.rename_files", []any{hash, [][]any{{f.Index, newPath}}}, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	log.Debug().Str("host", c.Host()).Str("hash", hash).Str("path", oldPath).Msg("Deluge file not found for rename")
	return false, nil
}

func (c *Client) Close() error {
	c.versions.Close()
	c.http.CloseIdleConnections()
	return nil
}

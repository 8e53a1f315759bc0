// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package rtorrent adapts the rTorrent XML-RPC interface to the backend contract.
package rtorrent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	defaultAPIPath = "/RPC2"
	// rTorrent has no login; basic auth travels with every request
	staticToken = "basic"
)

var torrentCommands = []string{
	"d.hash=", "d.name=", "d.state=", "d.is_active=", "d.complete=", "d.hashing=",
	"d.message=", "d.size_bytes=", "d.completed_bytes=", "d.left_bytes=", "d.up.total=",
	"d.down.total=", "d.up.rate=", "d.down.rate=", "d.ratio=", "d.peers_connected=",
	"d.directory=", "d.is_multi_file=", "d.load_date=", "d.timestamp.started=",
	"d.timestamp.finished=", "d.size_files=", "d.size_chunks=", "d.chunk_size=",
	"d.is_private=", "d.priority=",
}

var fileCommands = []string{"f.path=", "f.size_bytes=", "f.completed_chunks=", "f.size_chunks="}

// preferenceGetters are readable with a bare call and writable via <name>.set.
var preferenceGetters = []string{
	"throttle.global_up.max_rate",
	"throttle.global_down.max_rate",
	"throttle.max_uploads.global",
	"throttle.max_downloads.global",
	"throttle.max_uploads",
	"throttle.max_downloads",
	"throttle.min_peers.normal",
	"throttle.max_peers.normal",
	"throttle.min_peers.seed",
	"throttle.max_peers.seed",
	"network.port_range",
	"network.port_random",
	"network.max_open_files",
	"network.max_open_sockets",
	"network.http.max_open",
	"directory.default",
	"pieces.memory.max",
	"pieces.hash.on_completion",
	"protocol.pex",
	"trackers.use_udp",
}

var _ backend.Backend = (*Client)(nil)

type Client struct {
	opts     backend.Options
	http     *http.Client
	session  *backend.Session
	versions *backend.VersionCache
}

func New(opts backend.Options) (*Client, error) {
	opts.ClientType = domain.ClientRTorrent
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
	c.session = backend.NewSession(opts.Host(), func(context.Context) (string, time.Time, error) {
		return staticToken, time.Time{}, nil
	})
	return c, nil
}

func (c *Client) ClientType() domain.ClientType { return domain.ClientRTorrent }

func (c *Client) Host() string { return c.opts.Host() }

func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

func (c *Client) call(ctx context.Context, method string, params ...any) (any, error) {
	body, err := encodeCall(method, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.opts.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Accept", "text/xml")
	if c.opts.Username != "" || c.opts.Password != "" {
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	}

	data, _, err := backend.DoRequest(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(data)
}

func (c *Client) request(ctx context.Context, method string, params ...any) (any, error) {
	var result any
	err := c.session.Do(ctx, method, func(ctx context.Context) error {
		var err error
		result, err = c.call(ctx, method, params...)
		return err
	})
	return result, err
}

func (c *Client) multicall(ctx context.Context, calls []Call) ([]any, error) {
	res, err := c.request(ctx, "system.multicall", multicallParams(calls)...)
	if err != nil {
		return nil, err
	}
	return multicallResults(res)
}

func (c *Client) GetAppVersion(ctx context.Context) (string, error) {
	return c.versions.App(ctx, func(ctx context.Context) (string, error) {
		res, err := c.request(ctx, "system.client_version")
		if err != nil {
			return "", err
		}
		return fmt.Sprint(res), nil
	})
}

func (c *Client) GetAPIVersion(ctx context.Context) (string, error) {
	return c.versions.API(ctx, func(ctx context.Context) (string, error) {
		res, err := c.request(ctx, "system.api_version")
		if err != nil {
			return "", err
		}
		return fmt.Sprint(res), nil
	})
}

func (c *Client) IsVersionOrUp(ctx context.Context, version string) (bool, error) {
	have, err := c.GetAppVersion(ctx)
	if err != nil {
		return false, err
	}
	return backend.VersionOrUp(have, version), nil
}

func (c *Client) IsAPIVersionOrUp(ctx context.Context, version string) (bool, error) {
	have, err := c.GetAPIVersion(ctx)
	if err != nil {
		return false, err
	}
	return backend.VersionOrUp(have, version), nil
}

func (c *Client) GetPreferences(ctx context.Context) (map[string]any, error) {
	calls := make([]Call, 0, len(preferenceGetters))
	for _, name := range preferenceGetters {
		calls = append(calls, Call{Method: name, Params: []any{""}})
	}

	results, err := c.multicall(ctx, calls)
	if err != nil {
		return nil, err
	}

	prefs := make(map[string]any, len(results))
	for i, res := range results {
		if i >= len(preferenceGetters) {
			break
		}
		if fault, ok := res.(*Fault); ok {
			log.Trace().Str("host", c.Host()).Str("key", preferenceGetters[i]).Str("fault", fault.String).Msg("rTorrent preference unavailable")
			continue
		}
		prefs[preferenceGetters[i]] = res
	}
	return prefs, nil
}

// SetPreferences writes known keys through their .set commands and skips the rest.
func (c *Client) SetPreferences(ctx context.Context, prefs map[string]any) error {
	calls := make([]Call, 0, len(prefs))
	for _, name := range preferenceGetters {
		v, ok := prefs[name]
		if !ok {
			continue
		}
		calls = append(calls, Call{Method: name + ".set", Params: []any{"", v}})
	}
	if len(calls) < len(prefs) {
		log.Debug().Str("host", c.Host()).Int("skipped", len(prefs)-len(calls)).Msg("Skipping unknown rTorrent preferences")
	}
	if len(calls) == 0 {
		return nil
	}

	results, err := c.multicall(ctx, calls)
	if err != nil {
		return err
	}
	for i, res := range results {
		if fault, ok := res.(*Fault); ok {
			return errors.Wrapf(fault, "could not set %s", calls[i].Method)
		}
	}
	return nil
}

func (c *Client) GetTorrents(ctx context.Context) (any, error) {
	params := make([]any, 0, len(torrentCommands)+2)
	params = append(params, "", "main")
	for _, cmd := range torrentCommands {
		params = append(params, cmd)
	}

	res, err := c.request(ctx, "d.multicall2", params...)
	if err != nil {
		return nil, err
	}
	rows, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected d.multicall2 result %T", res)
	}

	torrents := make([]Torrent, 0, len(rows))
	for _, row := range rows {
		values, ok := row.([]any)
		if !ok {
			continue
		}
		torrents = append(torrents, torrentFromRow(values))
	}
	return torrents, nil
}

func (c *Client) GetTorrentFiles(ctx context.Context, hash string) (any, error) {
	params := make([]any, 0, len(fileCommands)+2)
	params = append(params, hash, "")
	for _, cmd := range fileCommands {
		params = append(params, cmd)
	}

	res, err := c.request(ctx, "f.multicall", params...)
	if err != nil {
		return nil, err
	}
	rows, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected f.multicall result %T", res)
	}

	files := make([]File, 0, len(rows))
	for _, row := range rows {
		values, ok := row.([]any)
		if !ok {
			continue
		}
		files = append(files, fileFromRow(values))
	}
	return files, nil
}

func (c *Client) StartTorrents(ctx context.Context, hashes []string) error {
	return c.hashAction(ctx, []string{"d.open", "d.start"}, hashes)
}

func (c *Client) StopTorrents(ctx context.Context, hashes []string) error {
	return c.hashAction(ctx, []string{"d.stop"}, hashes)
}

// hashAction runs methods for each hash in one system.multicall. An empty
// hash list targets every loaded torrent.
func (c *Client) hashAction(ctx context.Context, methods []string, hashes []string) error {
	if len(hashes) == 0 {
		res, err := c.request(ctx, "download_list", "")
		if err != nil {
			return err
		}
		list, _ := res.([]any)
		for _, h := range list {
			if s, ok := h.(string); ok {
				hashes = append(hashes, s)
			}
		}
	}
	if len(hashes) == 0 {
		return nil
	}

	calls := make([]Call, 0, len(hashes)*len(methods))
	for _, h := range hashes {
		for _, m := range methods {
			calls = append(calls, Call{Method: m, Params: []any{h}})
		}
	}

	results, err := c.multicall(ctx, calls)
	if err != nil {
		return err
	}
	for i, res := range results {
		if fault, ok := res.(*Fault); ok {
			log.Warn().Str("host", c.Host()).Str("method", calls[i].Method).Str("fault", fault.String).Msg("rTorrent rejected torrent action")
		}
	}
	return nil
}

// SetTorrentUploadSpeed sets the global upload throttle; rTorrent only limits
// individual torrents through pre-configured throttle groups.
func (c *Client) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error {
	log.Debug().Str("host", c.Host()).Int("torrents", len(hashes)).Int64("limit", limitKBps).Msg("Applying upload limit to the rTorrent global throttle")
	_, err := c.request(ctx, "throttle.global_up.max_rate.set_kb", "", max(limitKBps, 0))
	return err
}

// RenameFile is not available over XML-RPC.
func (c *Client) RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error) {
	log.Debug().Str("host", c.Host()).Str("hash", hash).Msg("rTorrent does not support renaming files")
	return false, nil
}

func (c *Client) Close() error {
	c.versions.Close()
	c.http.CloseIdleConnections()
	return nil
}

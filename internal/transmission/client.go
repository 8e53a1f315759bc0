// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package transmission adapts the Transmission RPC protocol to the backend contract.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	defaultAPIPath  = "/transmission/rpc"
	sessionIDHeader = "X-Transmission-Session-Id"
	resultSuccess   = "success"
)

var _ backend.Backend = (*Client)(nil)

type Client struct {
	opts     backend.Options
	http     *http.Client
	session  *backend.Session
	versions *backend.VersionCache

	// rotatedID holds the session id announced by the last 409 response
	mu        sync.Mutex
	rotatedID string
}

func New(opts backend.Options) (*Client, error) {
	opts.ClientType = domain.ClientTransmission
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

func (c *Client) ClientType() domain.ClientType { return domain.ClientTransmission }

func (c *Client) Host() string { return c.opts.Host() }

func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

// login obtains a session id. A 409 from an earlier call already carries the
// new id, otherwise a session-get probe triggers the handshake.
func (c *Client) login(ctx context.Context) (string, time.Time, error) {
	c.mu.Lock()
	id := c.rotatedID
	c.rotatedID = ""
	c.mu.Unlock()
	if id != "" {
		return id, time.Time{}, nil
	}

	_, err := c.call(ctx, "", "session-get", map[string]any{"fields": []string{"version"}}, nil)
	if err == nil {
		// daemon does not enforce session ids
		return "-", time.Time{}, nil
	}
	if !errors.Is(err, backend.ErrUnauthorized) || backend.StatusCode(err) != http.StatusConflict {
		return "", time.Time{}, err
	}

	c.mu.Lock()
	id = c.rotatedID
	c.rotatedID = ""
	c.mu.Unlock()
	if id == "" {
		return "", time.Time{}, errors.New("transmission returned 409 without a session id")
	}
	return id, time.Time{}, nil
}

func (c *Client) call(ctx context.Context, sessionID, method string, args any, result any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode %s", method)
	}

	req, err := http.NewRequest(http.MethodPost, c.opts.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionIDHeader, sessionID)
	}
	if c.opts.Username != "" {
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	}

	data, resp, err := backend.DoRequest(ctx, c.http, req, http.StatusUnauthorized, http.StatusConflict)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			c.mu.Lock()
			c.rotatedID = resp.Header.Get(sessionIDHeader)
			c.mu.Unlock()
		}
		return nil, err
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s response", method)
	}
	if out.Result != resultSuccess {
		return &out, fmt.Errorf("%s: %s", method, out.Result)
	}
	if result != nil && len(out.Arguments) > 0 {
		if err := json.Unmarshal(out.Arguments, result); err != nil {
			return &out, errors.Wrapf(err, "could not decode %s arguments", method)
		}
	}
	return &out, nil
}

func (c *Client) request(ctx context.Context, method string, args any, result any) error {
	return c.session.Do(ctx, method, func(ctx context.Context) error {
		_, err := c.call(ctx, c.session.Token(), method, args, result)
		return err
	})
}

type sessionVersion struct {
	Version    string `json:"version"`
	RPCVersion int    `json:"rpc-version"`
}

func (c *Client) sessionVersion(ctx context.Context) (sessionVersion, error) {
	var v sessionVersion
	err := c.request(ctx, "session-get", map[string]any{
		"fields": []string{"version", "rpc-version", "rpc-version-minimum", "rpc-version-semver"},
	}, &v)
	return v, err
}

func (c *Client) GetAppVersion(ctx context.Context) (string, error) {
	return c.versions.App(ctx, func(ctx context.Context) (string, error) {
		v, err := c.sessionVersion(ctx)
		return v.Version, err
	})
}

func (c *Client) GetAPIVersion(ctx context.Context) (string, error) {
	return c.versions.API(ctx, func(ctx context.Context) (string, error) {
		v, err := c.sessionVersion(ctx)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(v.RPCVersion), nil
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
	fields := append(append([]string{}, readOnlySessionFields...), mutableSessionFields...)
	prefs := make(map[string]any)
	if err := c.request(ctx, "session-get", map[string]any{"fields": fields}, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetPreferences drops read-only keys before calling session-set.
func (c *Client) SetPreferences(ctx context.Context, prefs map[string]any) error {
	args := make(map[string]any, len(prefs))
	for k, v := range prefs {
		if backend.ContainsFold(readOnlySessionFields, k) {
			log.Trace().Str("host", c.Host()).Str("key", k).Msg("Skipping read-only transmission setting")
			continue
		}
		args[k] = v
	}
	if len(args) == 0 {
		return nil
	}
	return c.request(ctx, "session-set", args, nil)
}

type torrentGetResult struct {
	Torrents []Torrent `json:"torrents"`
}

func (c *Client) GetTorrents(ctx context.Context) (any, error) {
	var res torrentGetResult
	if err := c.request(ctx, "torrent-get", map[string]any{"fields": torrentFields}, &res); err != nil {
		return nil, err
	}
	if res.Torrents == nil {
		res.Torrents = []Torrent{}
	}
	return res.Torrents, nil
}

type filesGetResult struct {
	Torrents []struct {
		Files []File `json:"files"`
	} `json:"torrents"`
}

func (c *Client) GetTorrentFiles(ctx context.Context, hash string) (any, error) {
	var res filesGetResult
	if err := c.request(ctx, "torrent-get", map[string]any{"ids": []string{hash}, "fields": []string{"files"}}, &res); err != nil {
		return nil, err
	}
	if len(res.Torrents) == 0 || res.Torrents[0].Files == nil {
		return []File{}, nil
	}
	return res.Torrents[0].Files, nil
}

func idsArgs(hashes []string) map[string]any {
	args := map[string]any{}
	if len(hashes) > 0 {
		args["ids"] = hashes
	}
	return args
}

func (c *Client) StartTorrents(ctx context.Context, hashes []string) error {
	return c.request(ctx, "torrent-start", idsArgs(hashes), nil)
}

func (c *Client) StopTorrents(ctx context.Context, hashes []string) error {
	return c.request(ctx, "torrent-stop", idsArgs(hashes), nil)
}

func (c *Client) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error {
	args := map[string]any{
		"ids":           hashes,
		"uploadLimit":   int64(0),
		"uploadLimited": false,
	}
	if limitKBps > 0 {
		args["uploadLimit"] = limitKBps
		args["uploadLimited"] = true
	}
	return c.request(ctx, "torrent-set", args, nil)
}

// RenameFile renames the last component of oldPath to the base name of newPath.
// Files and folders share the same primitive.
func (c *Client) RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error) {
	err := c.request(ctx, "torrent-rename-path", map[string]any{
		"ids":  []string{hash},
		"path": oldPath,
		"name": backend.BaseName(newPath),
	}, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Close() error {
	c.versions.Close()
	c.http.CloseIdleConnections()
	return nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package utorrent adapts the uTorrent WebUI token API to the backend contract.
package utorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	defaultAPIPath = "/gui/"

	propsChunkSize    = 50
	actionChunkSize   = 150
	setpropsChunkSize = 100
	settingsChunkSize = 15

	propsConcurrency = 4
)

// setting types reported by getsettings
const (
	settingInt    = 0
	settingBool   = 1
	settingString = 2
)

var (
	tokenPattern    = regexp.MustCompile(`>([^<]+)</`)
	skippedPrefixes = []string{"webui.", "gui.", "sys."}
)

var _ backend.Backend = (*Client)(nil)

type Client struct {
	opts     backend.Options
	http     *http.Client
	session  *backend.Session
	versions *backend.VersionCache
}

func New(opts backend.Options) (*Client, error) {
	opts.ClientType = domain.ClientUTorrent
	opts.RequireUsername = true
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

func (c *Client) ClientType() domain.ClientType { return domain.ClientUTorrent }

func (c *Client) Host() string { return c.opts.Host() }

func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

// ParseToken extracts the token from the token.html page.
func ParseToken(page string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	token := strings.TrimSpace(m[1])
	return token, token != ""
}

// login fetches a fresh token; the GUID cookie set alongside it lands in the jar.
func (c *Client) login(ctx context.Context) (string, time.Time, error) {
	q := url.Values{}
	q.Set("t", strconv.FormatInt(time.Now().UnixMilli(), 10))

	req, err := http.NewRequest(http.MethodGet, c.opts.Endpoint("token.html")+"?"+q.Encode(), nil)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "could not create request")
	}
	req.SetBasicAuth(c.opts.Username, c.opts.Password)

	body, _, err := backend.DoRequest(ctx, c.http, req, http.StatusBadRequest, http.StatusUnauthorized)
	if err != nil {
		return "", time.Time{}, err
	}

	token, ok := ParseToken(string(body))
	if !ok {
		return "", time.Time{}, errors.New("utorrent token page did not contain a token")
	}
	return token, time.Time{}, nil
}

func (c *Client) call(ctx context.Context, action string, params url.Values, result any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if action != "" {
		q.Set("action", action)
	}
	q.Set("token", c.session.Token())

	req, err := http.NewRequest(http.MethodGet, c.opts.Endpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "could not create request")
	}
	req.SetBasicAuth(c.opts.Username, c.opts.Password)

	body, _, err := backend.DoRequest(ctx, c.http, req, http.StatusBadRequest, http.StatusUnauthorized)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return errors.Wrapf(err, "could not decode %q response", action)
	}
	return nil
}

func (c *Client) request(ctx context.Context, action string, params url.Values, result any) error {
	op := action
	if op == "" {
		op = "list"
	}
	return c.session.Do(ctx, op, func(ctx context.Context) error {
		return c.call(ctx, action, params, result)
	})
}

func (c *Client) GetAppVersion(ctx context.Context) (string, error) {
	return c.versions.App(ctx, func(ctx context.Context) (string, error) {
		var res struct {
			Build json.Number `json:"build"`
		}
		if err := c.request(ctx, "getversion", nil, &res); err != nil {
			return "", err
		}
		if res.Build == "" {
			return "", errors.New("utorrent getversion returned no build")
		}
		return res.Build.String(), nil
	})
}

// GetAPIVersion returns an empty string; the WebUI API is unversioned.
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

// GetPreferences returns every setting as name -> [type, value].
func (c *Client) GetPreferences(ctx context.Context) (map[string]any, error) {
	var res struct {
		Settings [][]any `json:"settings"`
	}
	if err := c.request(ctx, "getsettings", nil, &res); err != nil {
		return nil, err
	}

	prefs := make(map[string]any, len(res.Settings))
	for _, s := range res.Settings {
		if len(s) < 3 {
			continue
		}
		name, ok := s[0].(string)
		if !ok || name == "" {
			continue
		}
		prefs[name] = []any{s[1], s[2]}
	}
	return prefs, nil
}

// SetPreferences accepts values as [type, value] pairs, the shape GetPreferences
// returns, or as bare scalars whose type is inferred.
func (c *Client) SetPreferences(ctx context.Context, prefs map[string]any) error {
	names := make([]string, 0, len(prefs))
	for name := range prefs {
		if hasAnyPrefix(name, skippedPrefixes) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	for _, chunk := range backend.Chunk(names, settingsChunkSize) {
		params := url.Values{}
		for _, name := range chunk {
			settingType, value, err := settingValue(prefs[name])
			if err != nil {
				return &domain.ConfigError{Field: name, Reason: err.Error()}
			}
			params.Add("s", name)
			params.Add("v", encodeSetting(settingType, value))
		}
		if err := c.request(ctx, "setsetting", params, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) GetTorrents(ctx context.Context) (any, error) {
	var res struct {
		Torrents [][]any `json:"torrents"`
	}
	if err := c.request(ctx, "", url.Values{"list": {"1"}}, &res); err != nil {
		return nil, err
	}

	torrents := make([]Torrent, 0, len(res.Torrents))
	for _, row := range res.Torrents {
		torrents = append(torrents, torrentFromRow(row))
	}

	if err := c.mergeProps(ctx, torrents); err != nil {
		return nil, err
	}
	return torrents, nil
}

// mergeProps fetches getprops in chunks and copies the rate limits into torrents.
func (c *Client) mergeProps(ctx context.Context, torrents []Torrent) error {
	byHash := make(map[string]*Torrent, len(torrents))
	hashes := make([]string, 0, len(torrents))
	for i := range torrents {
		byHash[strings.ToUpper(torrents[i].Hash)] = &torrents[i]
		hashes = append(hashes, torrents[i].Hash)
	}

	chunks := backend.Chunk(hashes, propsChunkSize)
	results := make([][]Props, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(propsConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			var res struct {
				Props []Props `json:"props"`
			}
			if err := c.request(gctx, "getprops", url.Values{"hash": chunk}, &res); err != nil {
				return err
			}
			results[i] = res.Props
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, props := range results {
		for _, p := range props {
			t, ok := byHash[strings.ToUpper(p.Hash)]
			if !ok {
				log.Debug().Str("host", c.Host()).Str("hash", p.Hash).Msg("uTorrent returned props for unknown torrent")
				continue
			}
			t.ULRate = p.ULRate
			t.DLRate = p.DLRate
		}
	}
	return nil
}

func (c *Client) GetTorrentFiles(ctx context.Context, hash string) (any, error) {
	var res struct {
		Files []json.RawMessage `json:"files"`
	}
	if err := c.request(ctx, "getfiles", url.Values{"hash": {hash}}, &res); err != nil {
		return nil, err
	}
	if len(res.Files) < 2 {
		return []File{}, nil
	}

	var rows [][]any
	if err := json.Unmarshal(res.Files[1], &rows); err != nil {
		return nil, errors.Wrap(err, "could not decode getfiles rows")
	}

	files := make([]File, 0, len(rows))
	for _, row := range rows {
		files = append(files, fileFromRow(row))
	}
	return files, nil
}

func (c *Client) StartTorrents(ctx context.Context, hashes []string) error {
	return c.hashAction(ctx, "start", hashes)
}

func (c *Client) StopTorrents(ctx context.Context, hashes []string) error {
	return c.hashAction(ctx, "stop", hashes)
}

// hashAction applies action to hashes, or to every torrent when hashes is empty.
func (c *Client) hashAction(ctx context.Context, action string, hashes []string) error {
	if len(hashes) == 0 {
		raw, err := c.GetTorrents(ctx)
		if err != nil {
			return err
		}
		for _, t := range raw.([]Torrent) {
			hashes = append(hashes, t.Hash)
		}
	}

	for _, chunk := range backend.Chunk(hashes, actionChunkSize) {
		if err := c.request(ctx, action, url.Values{"hash": chunk}, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetTorrentUploadSpeed sets ulrate in bytes per second; 0 removes the limit.
func (c *Client) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error {
	limit := strconv.FormatInt(max(limitKBps, 0)*1024, 10)

	for _, chunk := range backend.Chunk(hashes, setpropsChunkSize) {
		params := url.Values{}
		for _, h := range chunk {
			params.Add("hash", h)
			params.Add("s", "ulrate")
			params.Add("v", limit)
		}
		if err := c.request(ctx, "setprops", params, nil); err != nil {
			return err
		}
	}
	return nil
}

// RenameFile is not available in the WebUI API.
func (c *Client) RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error) {
	log.Debug().Str("host", c.Host()).Str("hash", hash).Msg("uTorrent does not support renaming files")
	return false, nil
}

func (c *Client) Close() error {
	c.versions.Close()
	c.http.CloseIdleConnections()
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func settingValue(v any) (int, any, error) {
	switch val := v.(type) {
	case []any:
		if len(val) != 2 {
			return 0, nil, fmt.Errorf("expected [type, value], got %d elements", len(val))
		}
		t, ok := asInt(val[0])
		if !ok || t < settingInt || t > settingString {
			return 0, nil, fmt.Errorf("invalid setting type %v", val[0])
		}
		return t, val[1], nil
	case bool:
		return settingBool, val, nil
	case string:
		return settingString, val, nil
	case float64, int, int64, json.Number:
		return settingInt, val, nil
	default:
		return 0, nil, fmt.Errorf("unsupported setting value %T", v)
	}
}

func encodeSetting(settingType int, value any) string {
	switch settingType {
	case settingBool:
		switch v := value.(type) {
		case bool:
			if v {
				return "1"
			}
		case string:
			if v == "true" || v == "1" {
				return "1"
			}
		case float64:
			if v != 0 {
				return "1"
			}
		}
		return "0"
	case settingInt:
		s := fmt.Sprint(value)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return ""
		}
		return s
	default:
		return fmt.Sprint(value)
	}
}

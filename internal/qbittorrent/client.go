// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent adapts the qBittorrent WebUI API to the backend contract.
package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

var (
	startStopMinVersion    = semver.MustParse("2.11.0")
	renameFileMinVersion   = semver.MustParse("2.4.0")
	renameFolderMinVersion = semver.MustParse("2.7.0")
)

// the library keeps the SID cookie itself, the session only tracks its lifetime
const sessionMarker = "SID"

var _ backend.Backend = (*Client)(nil)

type Client struct {
	api      *qbt.Client
	opts     backend.Options
	session  *backend.Session
	versions *backend.VersionCache

	mu                   sync.RWMutex
	webAPIVersion        string
	supportsStartStop    bool
	supportsRenameFile   bool
	supportsRenameFolder bool
}

func New(opts backend.Options) (*Client, error) {
	opts.ClientType = domain.ClientQBittorrent
	opts.RequireUsername = true
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cfg := qbt.Config{
		Host:          opts.URL,
		Username:      opts.Username,
		Password:      opts.Password,
		Timeout:       int(opts.Timeout.Seconds()),
		TLSSkipVerify: opts.TLSSkipVerify,
	}
	if opts.BasicUser != "" {
		cfg.BasicUser = opts.BasicUser
		cfg.BasicPass = opts.BasicPass
	}

	c := &Client{
		api:                  qbt.NewClient(cfg),
		opts:                 opts,
		versions:             backend.NewVersionCache(opts.Host()),
		supportsRenameFile:   true,
		supportsRenameFolder: true,
	}
	c.session = backend.NewSession(opts.Host(), c.login)

	return c, nil
}

func (c *Client) ClientType() domain.ClientType { return domain.ClientQBittorrent }

func (c *Client) Host() string { return c.opts.Host() }

func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

func (c *Client) login(ctx context.Context) (string, time.Time, error) {
	if err := c.api.LoginCtx(ctx); err != nil {
		return "", time.Time{}, classify(err)
	}
	return sessionMarker, time.Time{}, nil
}

func (c *Client) GetAppVersion(ctx context.Context) (string, error) {
	return c.versions.App(ctx, func(ctx context.Context) (string, error) {
		var version string
		err := c.session.Do(ctx, "app/version", func(ctx context.Context) error {
			v, err := c.api.GetAppVersionCtx(ctx)
			version = v
			return classify(err)
		})
		return strings.TrimSpace(version), err
	})
}

func (c *Client) GetAPIVersion(ctx context.Context) (string, error) {
	return c.versions.API(ctx, func(ctx context.Context) (string, error) {
		var version string
		err := c.session.Do(ctx, "app/webapiVersion", func(ctx context.Context) error {
			v, err := c.api.GetWebAPIVersionCtx(ctx)
			version = v
			return classify(err)
		})
		if err != nil {
			return "", err
		}

		version = strings.TrimSpace(version)
		c.applyCapabilities(version)
		return version, nil
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

func (c *Client) applyCapabilities(version string) {
	v, err := semver.NewVersion(version)
	if err != nil {
		log.Warn().
			Str("host", c.Host()).
			Str("webAPIVersion", version).
			Err(err).
			Msg("Failed to parse qBittorrent WebAPI version; leaving capability flags unchanged")
		return
	}

	c.mu.Lock()
	c.webAPIVersion = version
	c.supportsStartStop = !v.LessThan(startStopMinVersion)
	c.supportsRenameFile = !v.LessThan(renameFileMinVersion)
	c.supportsRenameFolder = !v.LessThan(renameFolderMinVersion)
	c.mu.Unlock()

	log.Debug().
		Str("host", c.Host()).
		Str("webAPIVersion", version).
		Bool("supportsStartStop", c.SupportsStartStop()).
		Bool("supportsRenameFolder", c.SupportsRenameFolder()).
		Msg("Refreshed qBittorrent capabilities")
}

func (c *Client) SupportsStartStop() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsStartStop
}

func (c *Client) SupportsRenameFile() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsRenameFile
}

func (c *Client) SupportsRenameFolder() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsRenameFolder
}

func (c *Client) GetPreferences(ctx context.Context) (map[string]any, error) {
	var prefs qbt.AppPreferences
	err := c.session.Do(ctx, "app/preferences", func(ctx context.Context) error {
		p, err := c.api.GetAppPreferencesCtx(ctx)
		prefs = p
		return classify(err)
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode preferences")
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "could not decode preferences")
	}
	return out, nil
}

func (c *Client) SetPreferences(ctx context.Context, prefs map[string]any) error {
	if len(prefs) == 0 {
		return nil
	}
	return c.session.Do(ctx, "app/setPreferences", func(ctx context.Context) error {
		return classify(c.api.SetPreferencesCtx(ctx, prefs))
	})
}

func (c *Client) GetTorrents(ctx context.Context) (any, error) {
	var torrents []qbt.Torrent
	err := c.session.Do(ctx, "torrents/info", func(ctx context.Context) error {
		t, err := c.api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{})
		torrents = t
		return classify(err)
	})
	if err != nil {
		return nil, err
	}
	return torrents, nil
}

func (c *Client) GetTorrentFiles(ctx context.Context, hash string) (any, error) {
	var files qbt.TorrentFiles
	err := c.session.Do(ctx, "torrents/files", func(ctx context.Context) error {
		f, err := c.api.GetFilesInformationCtx(ctx, hash)
		if f != nil {
			files = *f
		}
		return classify(err)
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// StartTorrents resumes torrents. The library selects torrents/start or
// torrents/resume depending on the WebAPI version.
func (c *Client) StartTorrents(ctx context.Context, hashes []string) error {
	c.logEndpointFamily(ctx, "start")
	return c.session.Do(ctx, "torrents/start", func(ctx context.Context) error {
		return classify(c.api.ResumeCtx(ctx, hashes))
	})
}

func (c *Client) StopTorrents(ctx context.Context, hashes []string) error {
	c.logEndpointFamily(ctx, "stop")
	return c.session.Do(ctx, "torrents/stop", func(ctx context.Context) error {
		return classify(c.api.PauseCtx(ctx, hashes))
	})
}

func (c *Client) logEndpointFamily(ctx context.Context, action string) {
	if _, err := c.GetAPIVersion(ctx); err != nil {
		return
	}
	log.Trace().
		Str("host", c.Host()).
		Str("action", action).
		Bool("startStopEndpoints", c.SupportsStartStop()).
		Msg("qBittorrent torrent state change")
}

func (c *Client) SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error {
	limitBytes := max(limitKBps, 0) * 1024
	return c.session.Do(ctx, "torrents/setUploadLimit", func(ctx context.Context) error {
		return classify(c.api.SetTorrentUploadLimitCtx(ctx, hashes, limitBytes))
	})
}

func (c *Client) RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error) {
	if _, err := c.GetAPIVersion(ctx); err != nil {
		log.Debug().Err(err).Str("host", c.Host()).Msg("Could not refresh capabilities before rename")
	}

	if isFile {
		if !c.SupportsRenameFile() {
			return false, nil
		}
		err := c.session.Do(ctx, "torrents/renameFile", func(ctx context.Context) error {
			return classify(c.api.RenameFileCtx(ctx, hash, oldPath, newPath))
		})
		return err == nil, err
	}

	if !c.SupportsRenameFolder() {
		return false, nil
	}
	err := c.session.Do(ctx, "torrents/renameFolder", func(ctx context.Context) error {
		return classify(c.api.RenameFolderCtx(ctx, hash, oldPath, newPath))
	})
	return err == nil, err
}

func (c *Client) Close() error {
	c.versions.Close()
	return nil
}

// classify marks responses that indicate a rejected session.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "403") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "bad credentials") {
		return fmt.Errorf("%w: %w", backend.ErrUnauthorized, err)
	}
	return err
}

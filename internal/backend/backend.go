// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package backend defines the contract every torrent daemon adapter implements
// and the shared session, version and transport helpers they build on.
package backend

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/autobrr/unitorrent/internal/domain"
)

const (
	DefaultTimeout = 5 * time.Second
	MinTimeout     = time.Second
)

// Backend is the uniform operation set of a torrent daemon adapter.
// GetTorrents and GetTorrentFiles return the daemon's raw records; the
// Normalize methods turn them into canonical values.
type Backend interface {
	ClientType() domain.ClientType
	Host() string

	Login(ctx context.Context) error
	GetAppVersion(ctx context.Context) (string, error)
	GetAPIVersion(ctx context.Context) (string, error)
	IsVersionOrUp(ctx context.Context, version string) (bool, error)
	IsAPIVersionOrUp(ctx context.Context, version string) (bool, error)

	GetPreferences(ctx context.Context) (map[string]any, error)
	SetPreferences(ctx context.Context, prefs map[string]any) error

	GetTorrents(ctx context.Context) (any, error)
	GetTorrentFiles(ctx context.Context, hash string) (any, error)
	StartTorrents(ctx context.Context, hashes []string) error
	StopTorrents(ctx context.Context, hashes []string) error
	SetTorrentUploadSpeed(ctx context.Context, hashes []string, limitKBps int64) error
	RenameFile(ctx context.Context, hash, oldPath, newPath string, isFile bool) (bool, error)

	NormalizeTorrents(raw any) ([]domain.Torrent, error)
	NormalizeTorrentFiles(raw any) ([]domain.TorrentFile, error)

	Close() error
}

// Options configures a single backend instance.
type Options struct {
	ClientType    domain.ClientType
	URL           string
	APIPath       string
	Username      string
	Password      string
	BasicUser     string
	BasicPass     string
	Timeout       time.Duration
	TLSSkipVerify bool

	// RequireUsername rejects an empty username during validation.
	RequireUsername bool
	// RequirePassword rejects an empty password during validation.
	RequirePassword bool
}

// Validate applies defaults and rejects unusable options with a ConfigError.
func (o *Options) Validate() error {
	if !o.ClientType.Valid() {
		return &domain.ConfigError{Field: "clientType", Reason: "unknown client type"}
	}

	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timeout < MinTimeout {
		return &domain.ConfigError{Field: "timeout", Reason: "must be at least 1s"}
	}

	normalized, err := NormalizeURL(o.URL)
	if err != nil {
		return err
	}
	o.URL = normalized

	if o.RequireUsername && o.Username == "" {
		return &domain.ConfigError{Field: "username", Reason: "required"}
	}
	if o.RequirePassword && o.Password == "" {
		return &domain.ConfigError{Field: "password", Reason: "required"}
	}

	return nil
}

// Host returns host[:port] of the configured URL.
func (o *Options) Host() string {
	u, err := url.Parse(o.URL)
	if err != nil {
		return o.URL
	}
	return u.Host
}

// Endpoint joins the base URL with the api path and the given elements.
func (o *Options) Endpoint(elem ...string) string {
	parts := append([]string{o.APIPath}, elem...)
	joined, err := url.JoinPath(o.URL, parts...)
	if err != nil {
		return strings.TrimRight(o.URL, "/") + "/" + strings.Join(parts, "/")
	}
	return joined
}

// NormalizeURL adds a missing http scheme and validates the result.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &domain.ConfigError{Field: "url", Reason: "empty"}
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &domain.ConfigError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &domain.ConfigError{Field: "url", Reason: "unsupported scheme " + u.Scheme}
	}
	if u.Host == "" {
		return "", &domain.ConfigError{Field: "url", Reason: "missing host"}
	}

	return strings.TrimRight(u.String(), "/"), nil
}

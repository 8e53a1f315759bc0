// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrHashRequired   = errors.New("torrent hash is required")
	ErrNotImplemented = errors.New("operation not supported by backend")
)

// ConfigError reports an invalid argument. Err optionally carries a sentinel
// such as ErrHashRequired.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError is returned once a backend rejected credentials more often than the session allows.
type AuthError struct {
	Host     string
	Attempts int
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication against %s failed after %d attempts: %v", e.Host, e.Attempts, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

// TransportError wraps a network, status or decoding failure of a backend call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CacheError describes a failed disk cache operation. It is logged, never returned to callers.
type CacheError struct {
	Path string
	Op   string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is a fatal authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsConfigError reports whether err originates from argument validation.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

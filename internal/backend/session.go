// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/domain"
)

// MaxAuthFailures is the number of consecutive authentication failures a
// session tolerates before giving up.
const MaxAuthFailures = 2

// DefaultSessionLifetime applies when the daemon does not announce an expiry.
const DefaultSessionLifetime = time.Hour

// ErrUnauthorized is wrapped by adapters when the daemon rejects the current
// credentials or session token.
var ErrUnauthorized = errors.New("unauthorized")

// LoginFunc performs a login round trip and returns the new session token and
// its expiry. A zero expiry means DefaultSessionLifetime.
type LoginFunc func(ctx context.Context) (token string, expires time.Time, err error)

// Session holds the credential token of one adapter instance and bounds
// re-authentication attempts.
type Session struct {
	host  string
	login LoginFunc
	now   func() time.Time

	mu       sync.Mutex
	token    string
	expires  time.Time
	failures int
}

func NewSession(host string, login LoginFunc) *Session {
	return &Session{
		host:  host,
		login: login,
		now:   time.Now,
	}
}

// Token returns the current token, empty when the session is not established.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken replaces the token without a login round trip, used when a daemon
// rotates its session id in a response header.
func (s *Session) SetToken(token string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expires = s.expiry(expires)
}

func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.now().Before(s.expires)
}

// Invalidate drops the token so the next call logs in again.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expires = time.Time{}
}

// Failures returns the current consecutive authentication failure count.
func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Login forces a new login round trip.
func (s *Session) Login(ctx context.Context) error {
	token, expires, err := s.login(ctx)
	if err != nil {
		return err
	}
	s.SetToken(token, expires)

	log.Debug().Str("host", s.host).Time("expires", s.expiresAt()).Msg("Session established")
	return nil
}

// Do runs fn with a valid session. Authentication failures invalidate the
// token and retry; once more than MaxAuthFailures consecutive failures have
// accumulated on this session the call fails with an AuthError. Any other
// error resets the counter and is returned as a TransportError.
func (s *Session) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(
		func() error {
			err := s.attempt(ctx, fn)
			switch {
			case err == nil:
				s.resetFailures()
				return nil
			case errors.Is(err, ErrUnauthorized):
				s.Invalidate()
				n := s.addFailure()
				if n > MaxAuthFailures {
					return &domain.AuthError{Host: s.host, Attempts: n, Err: err}
				}
				log.Debug().Str("host", s.host).Str("op", op).Int("failures", n).Msg("Session rejected, logging in again")
				return err
			default:
				s.resetFailures()
				var authErr *domain.AuthError
				var cfgErr *domain.ConfigError
				if errors.As(err, &authErr) || errors.As(err, &cfgErr) {
					return err
				}
				return &domain.TransportError{Op: op, Err: err}
			}
		},
		retry.Context(ctx),
		retry.Attempts(MaxAuthFailures+1),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrUnauthorized) && !domain.IsAuthError(err)
		}),
	)
	if err != nil && errors.Is(err, ErrUnauthorized) && !domain.IsAuthError(err) {
		// attempts exhausted while the counter was still within bounds
		return &domain.AuthError{Host: s.host, Attempts: s.Failures(), Err: err}
	}
	return err
}

func (s *Session) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.Valid() {
		if err := s.Login(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}

func (s *Session) addFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures
}

func (s *Session) resetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
}

func (s *Session) expiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires
}

func (s *Session) expiry(expires time.Time) time.Time {
	if expires.IsZero() {
		return s.now().Add(DefaultSessionLifetime)
	}
	return expires
}

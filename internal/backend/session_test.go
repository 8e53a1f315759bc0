// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/domain"
)

func countingLogin(logins *int) LoginFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		*logins++
		return fmt.Sprintf("token-%d", *logins), time.Time{}, nil
	}
}

func TestSessionLogsInLazily(t *testing.T) {
	logins := 0
	s := NewSession("localhost", countingLogin(&logins))
	assert.False(t, s.Valid())

	calls := 0
	err := s.Do(context.Background(), "list", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "token-1", s.Token())

	require.NoError(t, s.Do(context.Background(), "list", func(ctx context.Context) error { return nil }))
	assert.Equal(t, 1, logins, "valid token must be reused")
}

func TestSessionRetriesOnceAfterAuthFailure(t *testing.T) {
	logins := 0
	s := NewSession("localhost", countingLogin(&logins))

	calls := 0
	err := s.Do(context.Background(), "list", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: 403", ErrUnauthorized)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, logins)
	assert.Equal(t, 0, s.Failures())
}

func TestSessionGivesUpAfterMaxAuthFailures(t *testing.T) {
	logins := 0
	s := NewSession("localhost", countingLogin(&logins))

	calls := 0
	err := s.Do(context.Background(), "list", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: 403", ErrUnauthorized)
	})
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.Equal(t, MaxAuthFailures+1, calls, "third failure must be fatal")

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, MaxAuthFailures+1, authErr.Attempts)
}

func TestSessionCounterSpansCalls(t *testing.T) {
	logins := 0
	s := NewSession("localhost", countingLogin(&logins))
	unauthorized := func(ctx context.Context) error { return ErrUnauthorized }

	require.Error(t, s.Do(context.Background(), "first", unauthorized))

	calls := 0
	err := s.Do(context.Background(), "second", func(ctx context.Context) error {
		calls++
		return ErrUnauthorized
	})
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.Equal(t, 1, calls, "exhausted counter must fail without further retries")
}

func TestSessionLoginFailureCounts(t *testing.T) {
	logins := 0
	s := NewSession("localhost", func(ctx context.Context) (string, time.Time, error) {
		logins++
		return "", time.Time{}, fmt.Errorf("%w: bad credentials", ErrUnauthorized)
	})

	err := s.Do(context.Background(), "list", func(ctx context.Context) error {
		t.Fatal("operation must not run without a session")
		return nil
	})
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.Equal(t, MaxAuthFailures+1, logins)
}

func TestSessionTransportErrorResetsCounter(t *testing.T) {
	logins := 0
	s := NewSession("localhost", countingLogin(&logins))

	calls := 0
	err := s.Do(context.Background(), "list", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return ErrUnauthorized
		}
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.False(t, domain.IsAuthError(err))

	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "list", transportErr.Op)
	assert.Equal(t, 0, s.Failures())
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	logins := 0
	s := NewSession("localhost", countingLogin(&logins))
	s.now = func() time.Time { return now }

	require.NoError(t, s.Login(context.Background()))
	assert.True(t, s.Valid())

	now = now.Add(DefaultSessionLifetime + time.Second)
	assert.False(t, s.Valid())

	s.SetToken("rotated", now.Add(time.Minute))
	assert.True(t, s.Valid())
	assert.Equal(t, "rotated", s.Token())

	s.Invalidate()
	assert.False(t, s.Valid())
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backend

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/autobrr/autobrr/pkg/ttlcache"
	goversion "github.com/hashicorp/go-version"
	"github.com/rs/zerolog/log"
)

const versionCacheTTL = 30 * time.Minute

var (
	versionTrimRe   = regexp.MustCompile(`^[vV]`)
	versionSplitRe  = regexp.MustCompile(`[.\-_+]`)
	versionNumberRe = regexp.MustCompile(`^\d+`)
)

// CompareVersions orders two version strings numerically per segment, so
// "2.10.0" sorts above "2.9.9". It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	a, b = cleanVersion(a), cleanVersion(b)
	if a == b {
		return 0
	}

	if va, err := semver.NewVersion(a); err == nil {
		if vb, err := semver.NewVersion(b); err == nil {
			return va.Compare(vb)
		}
	}

	if va, err := goversion.NewVersion(a); err == nil {
		if vb, err := goversion.NewVersion(b); err == nil {
			return va.Compare(vb)
		}
	}

	return naturalCompare(a, b)
}

// VersionOrUp reports whether have is at least want.
func VersionOrUp(have, want string) bool {
	if strings.TrimSpace(have) == "" {
		return false
	}
	return CompareVersions(have, want) >= 0
}

// cleanVersion drops a leading v and anything after the first space, as in
// "4.0.5 (38c1649fad)".
func cleanVersion(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}
	return versionTrimRe.ReplaceAllString(v, "")
}

// naturalCompare handles strings neither semver nor go-version accept. An
// "a-" prefix marks a pre-release that sorts below the release.
func naturalCompare(a, b string) int {
	aPre := strings.HasPrefix(a, "a-")
	bPre := strings.HasPrefix(b, "a-")
	a = strings.TrimPrefix(a, "a-")
	b = strings.TrimPrefix(b, "a-")

	as := versionSplitRe.Split(a, -1)
	bs := versionSplitRe.Split(b, -1)
	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}

	switch {
	case aPre && !bPre:
		return -1
	case bPre && !aPre:
		return 1
	}
	return 0
}

func compareSegment(x, y string) int {
	xn, xok := leadingNumber(x)
	yn, yok := leadingNumber(y)
	if xok && yok && xn != yn {
		if xn < yn {
			return -1
		}
		return 1
	}
	if xok != yok {
		if xok {
			return 1
		}
		return -1
	}
	return strings.Compare(x, y)
}

func leadingNumber(s string) (int64, bool) {
	m := versionNumberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// VersionCache lazily fetches and memoizes app and api version strings.
type VersionCache struct {
	host  string
	cache *ttlcache.Cache[string, string]
}

const (
	versionKeyApp = "app"
	versionKeyAPI = "api"
)

func NewVersionCache(host string) *VersionCache {
	return &VersionCache{
		host:  host,
		cache: ttlcache.New(ttlcache.Options[string, string]{}.SetDefaultTTL(versionCacheTTL)),
	}
}

func (v *VersionCache) App(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	return v.get(ctx, versionKeyApp, fetch)
}

func (v *VersionCache) API(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	return v.get(ctx, versionKeyAPI, fetch)
}

func (v *VersionCache) get(ctx context.Context, key string, fetch func(ctx context.Context) (string, error)) (string, error) {
	if cached, ok := v.cache.Get(key); ok {
		return cached, nil
	}

	version, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if ok := v.cache.Set(key, version, ttlcache.DefaultTTL); !ok {
		log.Warn().Str("host", v.host).Str("key", key).Msg("Failed to cache version")
	}
	log.Trace().Str("host", v.host).Str("key", key).Str("version", version).Msg("Fetched version")
	return version, nil
}

func (v *VersionCache) Close() {
	v.cache.Close()
}

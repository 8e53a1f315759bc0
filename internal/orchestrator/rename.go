// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

// RenameFile renames a single path segment of a torrent's content. Both
// paths must have the same depth and differ in exactly one segment; anything
// else, or a path that matches no file, reports false without a daemon call.
// An exact file match is a file rename, a prefix match a folder rename. A
// missing hash reports false as well.
func (o *Orchestrator) RenameFile(ctx context.Context, hash, oldPath, newPath string) (bool, error) {
	if hash == "" {
		log.Debug().Str("instance", o.name).Msg("Rename rejected, no torrent hash")
		return false, nil
	}

	oldParts := backend.SplitPath(oldPath)
	newParts := backend.SplitPath(newPath)
	if !singleSegmentChange(oldParts, newParts) {
		log.Debug().Str("instance", o.name).Str("old", oldPath).Str("new", newPath).Msg("Rename rejected, paths differ in depth or in more than one segment")
		return false, nil
	}
	oldPath = strings.Join(oldParts, "/")
	newPath = strings.Join(newParts, "/")

	entry, err := o.fileList(ctx, hash, true)
	if err != nil {
		return false, err
	}

	isFile, found := matchPath(entry.Files, oldPath)
	if !found {
		log.Debug().Str("instance", o.name).Str("hash", hash).Str("path", oldPath).Msg("Rename rejected, path not in torrent")
		return false, nil
	}

	ok, err := o.backend.RenameFile(ctx, hash, oldPath, newPath, isFile)
	o.observeCall("rename", err)
	if err != nil {
		return false, err
	}

	if err := sleepCtx(ctx, o.renameSettle); err != nil {
		return ok, nil
	}
	if _, err := o.fileList(ctx, hash, true); err != nil {
		log.Debug().Err(err).Str("instance", o.name).Str("hash", hash).Msg("Could not refresh files after rename")
	}
	return ok, nil
}

func singleSegmentChange(oldParts, newParts []string) bool {
	if len(oldParts) == 0 || len(oldParts) != len(newParts) {
		return false
	}
	diff := 0
	for i := range oldParts {
		if oldParts[i] != newParts[i] {
			diff++
		}
	}
	return diff == 1
}

// matchPath reports whether p names a file exactly or a folder holding files.
func matchPath(files []domain.TorrentFile, p string) (isFile, found bool) {
	prefix := p + "/"
	for _, f := range files {
		fp := strings.Trim(domain.SlashPath(f.Path), "/")
		if fp == p {
			return true, true
		}
		if strings.HasPrefix(fp, prefix) {
			found = true
		}
	}
	return false, found
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

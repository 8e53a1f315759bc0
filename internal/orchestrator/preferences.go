// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const matchConcurrency = 4

// MatchPreferences copies preferences from master to every target of the same
// client type. With no keys every master preference is copied; keys the
// master does not have are ignored. Targets of another client type are
// skipped.
func MatchPreferences(ctx context.Context, master *Orchestrator, targets []*Orchestrator, keys []string) error {
	prefs, err := master.GetPreferences(ctx)
	if err != nil {
		return errors.Wrapf(err, "read preferences of %s", master.Name())
	}

	selected := prefs
	if len(keys) > 0 {
		selected = make(map[string]any, len(keys))
		for _, k := range keys {
			if v, ok := prefs[k]; ok {
				selected[k] = v
			}
		}
	}
	if len(selected) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(matchConcurrency)

	for _, target := range targets {
		if target == master {
			continue
		}
		if target.ClientType() != master.ClientType() {
			log.Warn().Str("master", master.Name()).Str("target", target.Name()).Msg("Skipping preference match across client types")
			continue
		}

		g.Go(func() error {
			if err := target.SetPreferences(gctx, selected); err != nil {
				return errors.Wrapf(err, "write preferences of %s", target.Name())
			}
			log.Debug().Str("master", master.Name()).Str("target", target.Name()).Int("keys", len(selected)).Msg("Preferences matched")
			return nil
		})
	}

	return g.Wait()
}

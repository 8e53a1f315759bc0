// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/unitorrent/internal/backend"
	"github.com/autobrr/unitorrent/internal/domain"
)

// OptionsFromConfig merges one configured instance with the global cache settings.
func OptionsFromConfig(cfg *domain.Config, inst domain.InstanceConfig) (Options, error) {
	clientType, ok := domain.ParseClientType(inst.ClientType)
	if !ok {
		return Options{}, &domain.ConfigError{Field: "clientType", Reason: fmt.Sprintf("unknown client type %q for instance %q", inst.ClientType, inst.Name)}
	}
	if inst.Name == "" {
		return Options{}, &domain.ConfigError{Field: "name", Reason: "instance name is required"}
	}

	return Options{
		Name: inst.Name,
		Backend: backend.Options{
			ClientType:    clientType,
			URL:           inst.URL,
			APIPath:       inst.APIPath,
			Username:      inst.Username,
			Password:      inst.Password,
			BasicUser:     inst.BasicUser,
			BasicPass:     inst.BasicPass,
			Timeout:       time.Duration(inst.Timeout) * time.Second,
			TLSSkipVerify: inst.TLSSkipVerify,
		},
		CacheDir:        cfg.CacheDir,
		MemCacheTimeout: time.Duration(cfg.MemCacheTimeout) * time.Second,
		FileCacheMax:    cfg.FileCacheMax,
		FileCacheKeep:   cfg.FileCacheKeep,
		RenameSettle:    time.Duration(cfg.RenameSettleMs) * time.Millisecond,
	}, nil
}

// NewPoolFromConfig builds an orchestrator per configured instance. A broken
// instance fails the whole pool so configuration mistakes surface at startup.
func NewPoolFromConfig(cfg *domain.Config) (*Pool, error) {
	pool := NewPool()

	for _, inst := range cfg.Instances {
		opts, err := OptionsFromConfig(cfg, inst)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}

		o, err := New(opts)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("instance %q: %w", inst.Name, err)
		}

		if err := pool.Add(o); err != nil {
			_ = o.Close()
			_ = pool.Close()
			return nil, err
		}
	}

	if len(cfg.Instances) == 0 {
		log.Warn().Msg("No instances configured")
	}
	return pool, nil
}

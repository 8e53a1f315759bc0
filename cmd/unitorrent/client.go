// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/autobrr/unitorrent/internal/buildinfo"
	"github.com/autobrr/unitorrent/internal/config"
	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/orchestrator"
	"github.com/autobrr/unitorrent/internal/query"
)

// instanceFlags are shared by the commands that talk to one daemon.
type instanceFlags struct {
	configDir string
	instance  string
	json      bool
}

func (f *instanceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	cmd.Flags().StringVar(&f.instance, "instance", "", "instance name (may be omitted when only one is configured)")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON")
}

// open loads the configuration and resolves the requested instance. The
// returned pool must be closed by the caller.
func (f *instanceFlags) open() (*orchestrator.Pool, *orchestrator.Orchestrator, error) {
	cfg, err := config.New(f.configDir, buildinfo.Version)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize configuration")
	}
	cfg.ApplyLogConfig()

	pool, err := orchestrator.NewPoolFromConfig(cfg.Config)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize instances")
	}

	name := f.instance
	if name == "" {
		names := pool.Names()
		if len(names) != 1 {
			pool.Close()
			return nil, nil, errors.Errorf("--instance is required with %d configured instances", len(names))
		}
		name = names[0]
	}

	o, err := pool.Get(name)
	if err != nil {
		pool.Close()
		return nil, nil, errors.Wrapf(err, "instance %q", name)
	}
	return pool, o, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func RunTorrentsCommand() *cobra.Command {
	var (
		flags instanceFlags
		opts  query.Options

		filter string
	)

	command := &cobra.Command{
		Use:   "torrents",
		Short: "List the torrents of an instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, o, err := flags.open()
			if err != nil {
				return err
			}
			defer pool.Close()

			opts.Filter = domain.ParseFilter(filter)
			if filter != "" && opts.Filter == domain.FilterNone {
				return errors.Errorf("unknown filter %q", filter)
			}

			res, err := o.GetTorrents(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if flags.json {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTorrents(res.Torrents))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", pageSummary(res.Result))
			return nil
		},
	}

	flags.register(command)
	command.Flags().StringVar(&filter, "filter", "", "state filter: stopped, running, downloading, seeding, completed, error, checking, incomplete")
	command.Flags().StringVar(&opts.Sort, "sort", query.DefaultSort, "sort key (any canonical torrent field)")
	command.Flags().BoolVar(&opts.Reverse, "reverse", false, "reverse the sort order")
	command.Flags().StringVar(&opts.SearchTerm, "search", "", "whitespace separated terms matched against name and hash")
	command.Flags().BoolVar(&opts.Fuzzy, "fuzzy", false, "match search terms fuzzily against the name")
	command.Flags().StringVar(&opts.Expr, "expr", "", "boolean expression over torrent fields, e.g. 'ratio > 2 && isPrivate'")
	command.Flags().IntVar(&opts.CurrentPage, "page", 1, "page number")
	command.Flags().IntVar(&opts.PerPage, "per-page", 0, "torrents per page (0 lists all)")
	command.Flags().BoolVar(&opts.Fresh, "fresh", false, "bypass the cache")

	return command
}

func RunFilesCommand() *cobra.Command {
	var (
		flags instanceFlags
		hash  string
		opts  orchestrator.FileOptions
	)

	command := &cobra.Command{
		Use:   "files",
		Short: "List the files of a torrent",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, o, err := flags.open()
			if err != nil {
				return err
			}
			defer pool.Close()

			res, err := o.GetTorrentFiles(cmd.Context(), hash, opts)
			if err != nil {
				return err
			}

			if flags.json {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			if opts.AsTree {
				fmt.Fprintln(cmd.OutOrStdout(), renderFileTree(hash, res.Tree))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFiles(res.Files))
			return nil
		},
	}

	flags.register(command)
	command.Flags().StringVar(&hash, "hash", "", "torrent info hash")
	command.Flags().BoolVar(&opts.AsTree, "tree", false, "print the files as a directory tree")
	command.Flags().BoolVar(&opts.Fresh, "fresh", false, "bypass the cache")
	_ = command.MarkFlagRequired("hash")

	return command
}

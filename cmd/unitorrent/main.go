// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/unitorrent/internal/api"
	"github.com/autobrr/unitorrent/internal/buildinfo"
	"github.com/autobrr/unitorrent/internal/config"
	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/orchestrator"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "unitorrent",
		Short: "One API over Deluge, rTorrent, qBittorrent, uTorrent and Transmission",
		Long: `unitorrent - normalized torrent listings, file trees and actions
across several BitTorrent daemons, with a memory and disk cache in front.`,
		SilenceUsage: true,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunTorrentsCommand())
	rootCmd.AddCommand(RunFilesCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/unitorrent/ or %APPDATA%\\unitorrent\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(configDir, logPath)
	}

	return command
}

func runServer(configDir, logPath string) error {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return errors.Wrap(err, "failed to initialize configuration")
	}

	if logPath != "" {
		cfg.Config.LogPath = logPath
	}
	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Str("configDir", cfg.GetConfigDir()).Msg("Starting unitorrent")

	pool, err := orchestrator.NewPoolFromConfig(cfg.Config)
	if err != nil {
		return errors.Wrap(err, "failed to initialize instances")
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error().Err(err).Msg("got error while closing instances")
		}
	}()

	if cfg.Config.HealthInterval > 0 {
		pool.StartHealthChecks(time.Duration(cfg.Config.HealthInterval) * time.Second)
	}

	cfg.RegisterReloadListener(func(c *domain.Config) {
		log.Info().Str("logLevel", c.LogLevel).Msg("Configuration reloaded; instance changes apply after restart")
	})

	httpServer := api.NewServer(&api.Dependencies{
		Config:  cfg,
		Version: buildinfo.Version,
		Pool:    pool,
	})

	errorChannel := make(chan error, 1)
	go func() {
		errorChannel <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "got error during graceful http shutdown")
	}

	return nil
}

func RunVersionCommand() *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of unitorrent",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(buildinfo.String())
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/unitorrent/config.toml
- Windows: %APPDATA%\unitorrent\config.toml

You can specify either a directory path or a direct file path:
- Directory: unitorrent generate-config --config-dir /path/to/config/
- File: unitorrent generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := configFilePath(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func configFilePath(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

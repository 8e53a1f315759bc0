// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshalled application configuration.
type Config struct {
	Version         string
	Host            string           `toml:"host" mapstructure:"host"`
	Port            int              `toml:"port" mapstructure:"port"`
	BaseURL         string           `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel        string           `toml:"logLevel" mapstructure:"logLevel"`
	LogPath         string           `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize      int              `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups   int              `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir         string           `toml:"dataDir" mapstructure:"dataDir"`
	DiskCache       bool             `toml:"diskCache" mapstructure:"diskCache"`
	CacheDir        string           `toml:"cacheDir" mapstructure:"cacheDir"`
	MemCacheTimeout int              `toml:"memCacheTimeout" mapstructure:"memCacheTimeout"`
	FileCacheMax    int              `toml:"fileCacheMax" mapstructure:"fileCacheMax"`
	FileCacheKeep   int              `toml:"fileCacheKeep" mapstructure:"fileCacheKeep"`
	RenameSettleMs  int              `toml:"renameSettleMs" mapstructure:"renameSettleMs"`
	MetricsEnabled  bool             `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	HealthInterval  int              `toml:"healthCheckInterval" mapstructure:"healthCheckInterval"`
	Instances       []InstanceConfig `toml:"instances" mapstructure:"instances"`
}

// InstanceConfig describes one daemon endpoint.
type InstanceConfig struct {
	Name          string `toml:"name" mapstructure:"name"`
	ClientType    string `toml:"clientType" mapstructure:"clientType"`
	URL           string `toml:"url" mapstructure:"url"`
	APIPath       string `toml:"apiPath" mapstructure:"apiPath"`
	Username      string `toml:"username" mapstructure:"username"`
	Password      string `toml:"password" mapstructure:"password"`
	BasicUser     string `toml:"basicUser" mapstructure:"basicUser"`
	BasicPass     string `toml:"basicPass" mapstructure:"basicPass"`
	Timeout       int    `toml:"timeout" mapstructure:"timeout"`
	TLSSkipVerify bool   `toml:"tlsSkipVerify" mapstructure:"tlsSkipVerify"`
}

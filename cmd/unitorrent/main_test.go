// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/filetree"
	"github.com/autobrr/unitorrent/internal/query"
)

func TestConfigFilePath(t *testing.T) {
	tmpDir := t.TempDir()
	existing := filepath.Join(tmpDir, "settings")
	require.NoError(t, os.WriteFile(existing, []byte(""), 0o644))

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "toml_file", input: "/etc/unitorrent/custom.toml", want: "/etc/unitorrent/custom.toml"},
		{name: "directory", input: tmpDir, want: filepath.Join(tmpDir, "config.toml")},
		{name: "existing_file", input: existing, want: existing},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, configFilePath(tt.input))
		})
	}

	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	assert.Equal(t, filepath.Join(tmpDir, "unitorrent", "config.toml"), configFilePath(""))
}

func TestGenerateConfigCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")

	cmd := RunGenerateConfigCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config-dir", dir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "created successfully")

	_, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	out.Reset()
	cmd = RunGenerateConfigCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config-dir", dir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "already exists")
}

func TestTorrentsCommandNeedsInstance(t *testing.T) {
	dir := t.TempDir()
	content := `
[[instances]]
name = "a"
clientType = "transmission"
url = "http://127.0.0.1:1"

[[instances]]
name = "b"
clientType = "transmission"
url = "http://127.0.0.1:2"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	cmd := RunTorrentsCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config-dir", dir})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--instance is required")
}

func TestRenderTorrents(t *testing.T) {
	out := renderTorrents([]domain.Torrent{
		{Position: 1, Hash: "abc123", Name: "Some.Linux.ISO", Status: domain.StatusSeeding, PercentDone: 100, Size: 1 << 30, UploadRate: 2048, Ratio: 1.5, Peers: 3},
	})

	assert.Contains(t, out, "HASH")
	assert.Contains(t, out, "Some.Linux.ISO")
	assert.Contains(t, out, "seeding")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "1.0 GiB")
	assert.Contains(t, out, "2.0 KiB/s")
	assert.Contains(t, out, "1.500")
}

func TestPageSummary(t *testing.T) {
	assert.Equal(t, "7 torrents", pageSummary(query.Result{Total: 7}))
	assert.Equal(t, "7 torrents, page 2 of 3", pageSummary(query.Result{Total: 7, PerPage: 3, CurrentPage: 2}))
	assert.Equal(t, "0 torrents, page 1 of 1", pageSummary(query.Result{PerPage: 3, CurrentPage: 1}))
}

func TestRenderFileTree(t *testing.T) {
	nodes := filetree.Build([]domain.TorrentFile{
		{Path: "Show/S01/e01.mkv", Size: 1024, Progress: 50},
		{Path: "Show/info.nfo", Size: 10, Progress: 100},
	})

	out := renderFileTree("abc123", nodes)
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "Show/")
	assert.Contains(t, out, "S01/")
	assert.Contains(t, out, "e01.mkv (1.0 KiB, 50%)")
	assert.Contains(t, out, "info.nfo (10 B, 100%)")

	files := renderFiles([]domain.TorrentFile{{Path: "Show/info.nfo", Size: 10, Progress: 100}})
	assert.Contains(t, files, "Show/info.nfo")
}

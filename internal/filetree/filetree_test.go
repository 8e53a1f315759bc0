// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/unitorrent/internal/domain"
)

func TestBuild(t *testing.T) {
	files := []domain.TorrentFile{
		{Path: "Show/S01/e01.mkv", Size: 10, Progress: 100},
		{Path: "Show/S01/e02.mkv", Size: 20, Progress: 50},
		{Path: `Show\extras\sample.mkv`, Size: 5},
		{Path: "Show/info.nfo", Size: 1, Progress: 100},
	}

	tree := Build(files)
	require.Len(t, tree, 1)

	show := tree[0]
	assert.Equal(t, "Show", show.Name)
	assert.Equal(t, "Show", show.Path)
	assert.Nil(t, show.File)
	require.Len(t, show.Children, 3)

	s01 := show.Children[0]
	assert.Equal(t, "Show/S01", s01.Path)
	require.Len(t, s01.Children, 2)
	assert.Equal(t, "Show/S01/e02.mkv", s01.Children[1].Path)
	require.NotNil(t, s01.Children[1].File)
	assert.Equal(t, int64(50), s01.Children[1].File.Progress)

	assert.Equal(t, "Show/extras", show.Children[1].Path)
	assert.Equal(t, "Show/extras/sample.mkv", show.Children[1].Children[0].Path)

	info := show.Children[2]
	assert.Equal(t, "info.nfo", info.Name)
	assert.Empty(t, info.Children)
	require.NotNil(t, info.File)
	assert.Equal(t, int64(1), info.File.Size)
}

func TestBuildSingleFileAndEmpty(t *testing.T) {
	tree := Build([]domain.TorrentFile{{Path: "movie.mkv", Size: 7}})
	require.Len(t, tree, 1)
	assert.Equal(t, "movie.mkv", tree[0].Path)
	require.NotNil(t, tree[0].File)

	assert.Empty(t, Build(nil))
	assert.Empty(t, Build([]domain.TorrentFile{{Path: "/"}}))
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	files := []domain.TorrentFile{{Path: "a/b.mkv", Size: 5, Progress: 10}}
	tree := Build(files)
	leaf := tree[0].Children[0]
	require.NotNil(t, leaf.File)

	files[0].Progress = 99
	assert.Equal(t, int64(10), leaf.File.Progress)

	leaf.File.Size = 1
	assert.Equal(t, int64(5), files[0].Size)
}

func TestWalk(t *testing.T) {
	tree := Build([]domain.TorrentFile{
		{Path: "a/b/c.txt"},
		{Path: "a/d.txt"},
	})

	var paths []string
	Walk(tree, func(n *Node) { paths = append(paths, n.Path) })
	assert.Equal(t, []string{"a", "a/b", "a/b/c.txt", "a/d.txt"}, paths)
}

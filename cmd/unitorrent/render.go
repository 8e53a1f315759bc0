// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/dustin/go-humanize"

	"github.com/autobrr/unitorrent/internal/domain"
	"github.com/autobrr/unitorrent/internal/filetree"
	"github.com/autobrr/unitorrent/internal/query"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

func percent(v int64) string {
	return strconv.FormatInt(v, 10) + "%"
}

func humanSize(v int64) string {
	if v < 0 {
		v = 0
	}
	return humanize.IBytes(uint64(v))
}

func rate(v int64) string {
	if v <= 0 {
		return "-"
	}
	return humanSize(v) + "/s"
}

func renderTorrents(torrents []domain.Torrent) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers("#", "HASH", "NAME", "STATUS", "DONE", "SIZE", "DOWN", "UP", "RATIO", "PEERS")

	for _, torrent := range torrents {
		t.Row(
			strconv.FormatInt(torrent.Position, 10),
			torrent.Hash,
			torrent.Name,
			torrent.Status.String(),
			percent(torrent.PercentDone),
			humanSize(torrent.Size),
			rate(torrent.DownloadRate),
			rate(torrent.UploadRate),
			strconv.FormatFloat(torrent.Ratio, 'f', 3, 64),
			strconv.FormatInt(torrent.Peers, 10),
		)
	}

	return t.String()
}

func pageSummary(res query.Result) string {
	if res.PerPage < 1 {
		return fmt.Sprintf("%d torrents", res.Total)
	}
	pages := (res.Total + res.PerPage - 1) / res.PerPage
	return fmt.Sprintf("%d torrents, page %d of %d", res.Total, res.CurrentPage, max(pages, 1))
}

func renderFiles(files []domain.TorrentFile) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PATH", "SIZE", "DONE")

	for _, f := range files {
		t.Row(f.Path, humanSize(f.Size), percent(f.Progress))
	}
	return t.String()
}

func renderFileTree(root string, nodes []*filetree.Node) string {
	t := tree.Root(root)
	for _, n := range nodes {
		t.Child(treeNode(n))
	}
	return t.String()
}

func treeNode(n *filetree.Node) any {
	if n.File != nil {
		return fmt.Sprintf("%s (%s, %s)", n.Name, humanSize(n.File.Size), percent(n.File.Progress))
	}

	sub := tree.Root(n.Name + "/")
	for _, c := range n.Children {
		sub.Child(treeNode(c))
	}
	return sub
}

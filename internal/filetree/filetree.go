// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package filetree arranges flat torrent file listings into folders.
package filetree

import (
	"strings"

	"github.com/autobrr/unitorrent/internal/domain"
)

// Node is a folder or file. File is set when Path is exactly a file path of
// the listing; a folder never carries one.
type Node struct {
	Name     string              `json:"name"`
	Path     string              `json:"path"`
	Children []*Node             `json:"children,omitempty"`
	File     *domain.TorrentFile `json:"file,omitempty"`
}

// Build returns the top-level nodes in order of first appearance.
func Build(files []domain.TorrentFile) []*Node {
	root := &Node{}
	index := make(map[string]*Node)

	for i := range files {
		p := strings.Trim(domain.SlashPath(files[i].Path), "/")
		if p == "" {
			continue
		}

		parent := root
		segments := strings.Split(p, "/")
		for depth, seg := range segments {
			current := strings.Join(segments[:depth+1], "/")

			node, ok := index[current]
			if !ok {
				node = &Node{Name: seg, Path: current}
				index[current] = node
				parent.Children = append(parent.Children, node)
			}
			if depth == len(segments)-1 {
				f := files[i]
				node.File = &f
			}
			parent = node
		}
	}

	return root.Children
}

// Walk visits nodes depth-first, parents before children.
func Walk(nodes []*Node, fn func(n *Node)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Children, fn)
	}
}

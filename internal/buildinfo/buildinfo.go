// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X github.com/autobrr/unitorrent/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	UserAgent = fmt.Sprintf("unitorrent/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
)

// String renders the version line printed by the version command.
func String() string {
	s := "unitorrent " + Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	if Date != "" {
		s += " built " + Date
	}
	return s
}

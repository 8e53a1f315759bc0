// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// Filter selects a subset of torrents by state.
type Filter int

const (
	FilterNone        Filter = 0
	FilterStopped     Filter = 1
	FilterRunning     Filter = 2
	FilterDownloading Filter = 3
	FilterSeeding     Filter = 4
	FilterCompleted   Filter = 5
	FilterError       Filter = 6
	FilterChecking    Filter = 7
	FilterIncomplete  Filter = 8
)

var filterNames = map[Filter]string{
	FilterStopped:     "stopped",
	FilterRunning:     "running",
	FilterDownloading: "downloading",
	FilterSeeding:     "seeding",
	FilterCompleted:   "completed",
	FilterError:       "error",
	FilterChecking:    "checking",
	FilterIncomplete:  "incomplete",
}

func (f Filter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return ""
}

// ParseFilter accepts a filter name or its numeric id. Unknown input yields FilterNone.
func ParseFilter(s string) Filter {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range filterNames {
		if s == name || s == string(rune('0'+int(f))) {
			return f
		}
	}
	return FilterNone
}

// Match reports whether t belongs to the filter. FilterNone matches everything.
func (f Filter) Match(t *Torrent) bool {
	switch f {
	case FilterStopped:
		return t.Status == StatusStopped
	case FilterRunning:
		return t.Status == StatusDownloading || t.Status == StatusSeeding
	case FilterDownloading:
		return t.Status == StatusDownloading
	case FilterSeeding:
		return t.Status == StatusSeeding
	case FilterCompleted:
		return t.IsFinished
	case FilterError:
		return t.Status == StatusError
	case FilterChecking:
		return t.Status == StatusChecking
	case FilterIncomplete:
		return !t.IsFinished
	default:
		return true
	}
}

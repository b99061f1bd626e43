// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package selection computes which files in grouped findings to mark for
// disposition. Pure functions, no I/O.
package selection

import (
	"errors"
	"sort"

	"github.com/sweepd/sweepd/internal/models"
)

// Strategy names which group member survives.
type Strategy string

const (
	// KeepNewest keeps the most recently modified file in each group.
	KeepNewest Strategy = "keep-newest"
	// KeepOldest keeps the least recently modified file in each group.
	KeepOldest Strategy = "keep-oldest"
	// KeepLargest keeps the largest file in each group.
	KeepLargest Strategy = "keep-largest"
	// KeepSmallest keeps the smallest file in each group.
	KeepSmallest Strategy = "keep-smallest"
	// ExceptOne keeps the first file in each group's existing order without
	// re-sorting. Meant for groupings where size and time carry no signal.
	ExceptOne Strategy = "except-one"
)

// ErrUnknownStrategy is returned for a strategy name outside the fixed set.
var ErrUnknownStrategy = errors.New("unknown selection strategy")

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case KeepNewest, KeepOldest, KeepLargest, KeepSmallest, ExceptOne:
		return true
	}
	return false
}

// Select returns the paths to act on: for every group with at least two
// members, all members except the one the strategy keeps. Groups with fewer
// than two members have nothing to deduplicate and are skipped. Sort-key
// ties break on path, so identical input always yields identical output.
// The input groups are not modified.
func Select(groups []models.FindingGroup, strategy Strategy) ([]string, error) {
	if !strategy.Valid() {
		return nil, ErrUnknownStrategy
	}

	var selected []string
	for _, group := range groups {
		if len(group.Files) < 2 {
			continue
		}

		files := make([]models.FileEntry, len(group.Files))
		copy(files, group.Files)

		switch strategy {
		case KeepNewest:
			sortFiles(files, func(a, b models.FileEntry) bool {
				return a.ModifiedAt.After(b.ModifiedAt)
			})
		case KeepOldest:
			sortFiles(files, func(a, b models.FileEntry) bool {
				return a.ModifiedAt.Before(b.ModifiedAt)
			})
		case KeepLargest:
			sortFiles(files, func(a, b models.FileEntry) bool {
				return a.Size > b.Size
			})
		case KeepSmallest:
			sortFiles(files, func(a, b models.FileEntry) bool {
				return a.Size < b.Size
			})
		case ExceptOne:
			// Keep the group's given order.
		}

		for _, f := range files[1:] {
			selected = append(selected, f.Path)
		}
	}

	return selected, nil
}

// sortFiles stable-sorts by the primary criterion with path as tiebreak.
func sortFiles(files []models.FileEntry, less func(a, b models.FileEntry) bool) {
	sort.SliceStable(files, func(i, j int) bool {
		if less(files[i], files[j]) {
			return true
		}
		if less(files[j], files[i]) {
			return false
		}
		return files[i].Path < files[j].Path
	})
}

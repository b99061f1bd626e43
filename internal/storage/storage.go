// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package storage reports disk usage for the storage root and lists its
// top-level directories for use as scan targets.
package storage

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Stat describes one top-level directory: its own accumulated size plus the
// totals of the filesystem it lives on.
type Stat struct {
	Mount       string  `json:"mount"`
	Total       int64   `json:"total"`
	Used        int64   `json:"used"`
	Free        int64   `json:"free"`
	PercentUsed float64 `json:"percentUsed"`
}

// Directory is a selectable scan target under the storage root.
type Directory struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

const sizeParallelism = 4

// Service answers storage queries against a fixed root.
type Service struct {
	root string
}

func NewService(root string) *Service {
	return &Service{root: root}
}

// Stats returns per-directory usage for every top-level directory under
// the root, sorted by path. A missing root yields an empty list, not an
// error.
func (s *Service) Stats(ctx context.Context) ([]Stat, error) {
	children, err := s.childDirs()
	if err != nil {
		if os.IsNotExist(err) {
			return []Stat{}, nil
		}
		return nil, err
	}

	var fsStat unix.Statfs_t
	if err := unix.Statfs(s.root, &fsStat); err != nil {
		return nil, err
	}
	blockSize := int64(fsStat.Bsize)
	total := int64(fsStat.Blocks) * blockSize
	free := int64(fsStat.Bavail) * blockSize

	sizes := make([]int64, len(children))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sizeParallelism)
	for i, child := range children {
		g.Go(func() error {
			size, err := treeSize(gctx, filepath.Join(s.root, child))
			if err != nil {
				return err
			}
			sizes[i] = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := make([]Stat, 0, len(children))
	for i, child := range children {
		var percent float64
		if total > 0 {
			percent = math.Round(float64(sizes[i])/float64(total)*1000) / 10
		}
		stats = append(stats, Stat{
			Mount:       filepath.Join(s.root, child),
			Total:       total,
			Used:        sizes[i],
			Free:        free,
			PercentUsed: percent,
		})
	}
	return stats, nil
}

// Directories lists the top-level directories under the root with a
// humanized display name.
func (s *Service) Directories(ctx context.Context) ([]Directory, error) {
	children, err := s.childDirs()
	if err != nil {
		if os.IsNotExist(err) {
			return []Directory{}, nil
		}
		return nil, err
	}

	dirs := make([]Directory, 0, len(children))
	for _, child := range children {
		dirs = append(dirs, Directory{
			Path: filepath.Join(s.root, child),
			Name: displayName(child),
		})
	}
	return dirs, nil
}

func (s *Service) childDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var children []string
	for _, entry := range entries {
		if entry.IsDir() {
			children = append(children, entry.Name())
		}
	}
	sort.Strings(children)
	return children, nil
}

// treeSize walks a directory accumulating file sizes. Unreadable entries
// are skipped rather than failing the whole walk.
func treeSize(ctx context.Context, root string) (int64, error) {
	var size int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Trace().Err(err).Str("path", path).Msg("Skipping unreadable entry in size walk")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}

// displayName turns a directory basename into a title-cased label,
// treating underscores and hyphens as word separators.
func displayName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fileops applies disposition actions (delete, trash, restore) to
// files surfaced by scans. Every target path must live inside the
// configured storage root; each path is processed independently so one
// failure never aborts the rest of a batch.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// opParallelism bounds concurrent filesystem operations in a batch.
const opParallelism = 4

// ErrOutsideStorageRoot is returned for paths that resolve outside the
// storage root.
var ErrOutsideStorageRoot = errors.New("path is outside the storage root")

// Failure records one path that could not be processed.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result is the per-batch ledger: which paths succeeded and which failed,
// as disjoint lists in input order.
type Result struct {
	Success []string  `json:"success"`
	Failed  []Failure `json:"failed"`
}

// Service executes disposition operations.
type Service struct {
	storageRoot string
	trashDir    string
}

func NewService(storageRoot, trashDir string) *Service {
	return &Service{storageRoot: storageRoot, trashDir: trashDir}
}

// Delete permanently removes the given files. Directories are removed
// recursively. Irreversible; confirmation is the caller's responsibility.
func (s *Service) Delete(ctx context.Context, paths []string) Result {
	return s.apply(ctx, paths, func(path string) (string, error) {
		resolved, err := s.validatePath(path)
		if err != nil {
			return "", err
		}

		info, err := os.Lstat(resolved)
		if err != nil {
			if os.IsNotExist(err) {
				return "", errors.New("not found")
			}
			return "", err
		}

		if info.IsDir() {
			err = os.RemoveAll(resolved)
		} else {
			err = os.Remove(resolved)
		}
		if err != nil {
			return "", err
		}
		return path, nil
	})
}

// apply runs op over every path with bounded parallelism and assembles the
// ledger in input order. op returns the value to report on success.
func (s *Service) apply(ctx context.Context, paths []string, op func(path string) (string, error)) Result {
	type outcome struct {
		value string
		err   error
	}
	outcomes := make([]outcome, len(paths))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(opParallelism)
	for i, path := range paths {
		g.Go(func() error {
			value, err := op(path)
			outcomes[i] = outcome{value: value, err: err}
			return nil
		})
	}
	// Workers never return errors; the group only bounds parallelism.
	_ = g.Wait()

	var result Result
	for i, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, Failure{Path: paths[i], Error: o.err.Error()})
			continue
		}
		result.Success = append(result.Success, o.value)
	}

	log.Debug().
		Int("succeeded", len(result.Success)).
		Int("failed", len(result.Failed)).
		Msg("Disposition batch finished")

	return result
}

// validatePath resolves the path and verifies it sits inside the storage
// root. Symlinks are resolved before the containment check so a link
// pointing outside the root cannot smuggle a target past it.
func (s *Service) validatePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", errors.New("path must be absolute")
	}

	root, err := filepath.EvalSymlinks(s.storageRoot)
	if err != nil {
		return "", fmt.Errorf("resolve storage root: %w", err)
	}

	// Resolve the parent rather than the path itself so a dangling target
	// still yields a useful "not found" from the caller's stat.
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New("not found")
		}
		return "", err
	}
	resolved := filepath.Join(parent, filepath.Base(path))

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideStorageRoot
	}
	return resolved, nil
}

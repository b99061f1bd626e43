// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fileops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TrashItem describes one trashed file, reconstructed from its metadata
// sidecar.
type TrashItem struct {
	TrashID      string    `json:"trashId"`
	OriginalPath string    `json:"originalPath"`
	TrashedAt    time.Time `json:"trashedAt"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
}

const metaSuffix = ".meta.json"

// Trash moves the given files into the trash directory. Each entry gets a
// unique id of the form "<unix-ms>_<basename>" plus a metadata sidecar
// recording the original path, so it can be restored later. A cross-device
// rename failure is reported per path, not worked around with a copy.
func (s *Service) Trash(ctx context.Context, paths []string) Result {
	if err := os.MkdirAll(s.trashDir, 0o755); err != nil {
		result := Result{}
		for _, p := range paths {
			result.Failed = append(result.Failed, Failure{Path: p, Error: err.Error()})
		}
		return result
	}

	return s.apply(ctx, paths, func(path string) (string, error) {
		resolved, err := s.validatePath(path)
		if err != nil {
			return "", err
		}
		if _, err := os.Lstat(resolved); err != nil {
			if os.IsNotExist(err) {
				return "", errors.New("not found")
			}
			return "", err
		}

		trashID, dest, err := s.reserveTrashSlot(filepath.Base(resolved))
		if err != nil {
			return "", err
		}

		if err := os.Rename(resolved, dest); err != nil {
			os.Remove(filepath.Join(s.trashDir, trashID+metaSuffix))
			return "", err
		}

		var size int64
		if info, err := os.Lstat(dest); err == nil && !info.IsDir() {
			size = info.Size()
		}

		meta := TrashItem{
			TrashID:      trashID,
			OriginalPath: resolved,
			TrashedAt:    time.Now().UTC(),
			Filename:     filepath.Base(resolved),
			Size:         size,
		}
		raw, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(s.trashDir, trashID+metaSuffix), raw, 0o644); err != nil {
			return "", fmt.Errorf("write trash metadata: %w", err)
		}

		log.Debug().Str("path", resolved).Str("trashId", trashID).Msg("Moved file to trash")
		return path, nil
	})
}

// reserveTrashSlot picks a trash id that is not yet taken. Concurrent
// batch workers can land on the same millisecond and basename; the
// sidecar file is created exclusively to claim the id.
func (s *Service) reserveTrashSlot(name string) (string, string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		trashID := fmt.Sprintf("%d_%s", time.Now().UnixMilli()+int64(attempt), name)
		dest := filepath.Join(s.trashDir, trashID)
		f, err := os.OpenFile(dest+metaSuffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", "", err
		}
		f.Close()
		return trashID, dest, nil
	}
	return "", "", errors.New("could not allocate trash id")
}

// ListTrash returns all trashed files newest-first. Sidecars that cannot
// be decoded are skipped.
func (s *Service) ListTrash(ctx context.Context) ([]TrashItem, error) {
	entries, err := os.ReadDir(s.trashDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TrashItem{}, nil
		}
		return nil, err
	}

	items := []TrashItem{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.trashDir, entry.Name()))
		if err != nil {
			continue
		}
		var item TrashItem
		if err := json.Unmarshal(raw, &item); err != nil || item.TrashID == "" {
			log.Debug().Str("sidecar", entry.Name()).Msg("Skipping undecodable trash metadata")
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].TrashedAt.Equal(items[j].TrashedAt) {
			return items[i].TrashID > items[j].TrashID
		}
		return items[i].TrashedAt.After(items[j].TrashedAt)
	})
	return items, nil
}

// Restore moves a trashed file back to its original path. If something
// already occupies that path the restored file gets a "_restored_N" suffix
// before the extension. The metadata sidecar is removed on success. The
// returned result's success list holds the path the file landed at.
func (s *Service) Restore(ctx context.Context, trashID string) Result {
	var result Result
	fail := func(msg string) Result {
		result.Failed = append(result.Failed, Failure{Path: trashID, Error: msg})
		return result
	}

	if trashID == "" || strings.ContainsRune(trashID, filepath.Separator) || trashID == ".." {
		return fail("invalid trash id")
	}

	trashFile := filepath.Join(s.trashDir, trashID)
	metaFile := trashFile + metaSuffix

	if _, err := os.Lstat(trashFile); err != nil {
		return fail("trashed file not found")
	}

	raw, err := os.ReadFile(metaFile)
	if err != nil {
		return fail("trash metadata not found")
	}
	var meta TrashItem
	if err := json.Unmarshal(raw, &meta); err != nil || meta.OriginalPath == "" {
		return fail("trash metadata is invalid")
	}

	dest := meta.OriginalPath
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail(err.Error())
	}
	if _, err := os.Lstat(dest); err == nil {
		ext := filepath.Ext(dest)
		stem := strings.TrimSuffix(dest, ext)
		for counter := 1; ; counter++ {
			candidate := fmt.Sprintf("%s_restored_%d%s", stem, counter, ext)
			if _, err := os.Lstat(candidate); os.IsNotExist(err) {
				dest = candidate
				break
			}
		}
	}

	if err := os.Rename(trashFile, dest); err != nil {
		return fail(err.Error())
	}
	if err := os.Remove(metaFile); err != nil {
		log.Warn().Err(err).Str("trashId", trashID).Msg("Failed to remove trash metadata after restore")
	}

	log.Debug().Str("trashId", trashID).Str("dest", dest).Msg("Restored file from trash")
	result.Success = append(result.Success, dest)
	return result
}

// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweepd/sweepd/internal/models"
)

// ErrEmptyResult means the engine exited successfully but produced no result
// document at all. A valid empty document (zero findings) is not an error.
var ErrEmptyResult = errors.New("engine produced no result document")

// resultFile is one file entry as the engine writes it. The result schema
// differs slightly per subcommand; fields absent for a category decode to
// their zero values.
type resultFile struct {
	Path         string      `json:"path"`
	Size         int64       `json:"size"`
	ModifiedDate json.Number `json:"modified_date"`
	Similarity   int         `json:"similarity"`
	Hash         string      `json:"hash"`
}

func (f resultFile) toEntry() models.FileEntry {
	e := models.FileEntry{
		Path:        f.Path,
		Size:        f.Size,
		Fingerprint: f.Hash,
		Similarity:  f.Similarity,
	}
	if secs, err := f.ModifiedDate.Int64(); err == nil && secs > 0 {
		e.ModifiedAt = time.Unix(secs, 0).UTC()
	}
	return e
}

// ParseResult decodes the engine's JSON result document into findings.
// Three top-level shapes occur in practice: an object keyed by group label
// (duplicates), an array of arrays (similarity scans), and a flat array of
// entries (single-file categories). Grouped categories keep group structure;
// flat categories collapse everything into a single file list. The returned
// findings are normalized so ordering is deterministic regardless of the
// order the engine emitted.
func ParseResult(raw []byte, category models.ScanCategory) (*models.Findings, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyResult
	}

	var groups []models.FindingGroup

	switch raw[0] {
	case '{':
		keyed := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, fmt.Errorf("decode result object: %w", err)
		}
		for _, v := range keyed {
			files, err := decodeFileList(v)
			if err != nil {
				return nil, err
			}
			if len(files) > 0 {
				groups = append(groups, models.FindingGroup{Files: files})
			}
		}

	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("decode result array: %w", err)
		}
		for _, elem := range elems {
			g, err := decodeElement(elem)
			if err != nil {
				return nil, err
			}
			if len(g) > 0 {
				groups = append(groups, models.FindingGroup{Files: g})
			}
		}

	default:
		return nil, fmt.Errorf("unrecognized result document (starts with %q)", raw[0])
	}

	findings := &models.Findings{}
	if category.Grouped() {
		findings.Groups = groups
	} else {
		for _, g := range groups {
			findings.Files = append(findings.Files, g.Files...)
		}
	}
	findings.Normalize()
	return findings, nil
}

// decodeElement handles one element of a top-level result array: a nested
// array of entries, an object (either {"files": [...]} or a bare entry), or
// a plain path string.
func decodeElement(elem json.RawMessage) ([]models.FileEntry, error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		return decodeFileList(trimmed)

	case '{':
		var wrapped struct {
			Files []resultFile `json:"files"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err == nil && len(wrapped.Files) > 0 {
			entries := make([]models.FileEntry, 0, len(wrapped.Files))
			for _, f := range wrapped.Files {
				entries = append(entries, f.toEntry())
			}
			return entries, nil
		}
		var single resultFile
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("decode result entry: %w", err)
		}
		if single.Path == "" {
			return nil, nil
		}
		return []models.FileEntry{single.toEntry()}, nil

	case '"':
		var path string
		if err := json.Unmarshal(trimmed, &path); err != nil {
			return nil, fmt.Errorf("decode result path: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		return []models.FileEntry{{Path: path}}, nil
	}

	return nil, fmt.Errorf("unrecognized result element (starts with %q)", trimmed[0])
}

func decodeFileList(raw json.RawMessage) ([]models.FileEntry, error) {
	var files []resultFile
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("decode result file list: %w", err)
	}
	entries := make([]models.FileEntry, 0, len(files))
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		entries = append(entries, f.toEntry())
	}
	return entries, nil
}

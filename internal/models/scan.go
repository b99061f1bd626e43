// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package models defines the scan job data model and its persistence.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ScanCategory selects the detection the engine runs. Values are the
// czkawka_cli subcommand names and are part of the persisted contract.
type ScanCategory string

const (
	CategoryDuplicates    ScanCategory = "dup"
	CategorySimilarImages ScanCategory = "image"
	CategorySimilarVideos ScanCategory = "video"
	CategorySimilarMusic  ScanCategory = "music"
	CategoryEmptyDirs     ScanCategory = "empty-folders"
	CategoryEmptyFiles    ScanCategory = "empty-files"
	CategoryTemporary     ScanCategory = "temp"
	CategorySymlinks      ScanCategory = "symlinks"
	CategoryBadExtensions ScanCategory = "ext"
	CategoryBroken        ScanCategory = "broken"
)

var allCategories = map[ScanCategory]struct{}{
	CategoryDuplicates:    {},
	CategorySimilarImages: {},
	CategorySimilarVideos: {},
	CategorySimilarMusic:  {},
	CategoryEmptyDirs:     {},
	CategoryEmptyFiles:    {},
	CategoryTemporary:     {},
	CategorySymlinks:      {},
	CategoryBadExtensions: {},
	CategoryBroken:        {},
}

// Grouped reports whether this category produces related groups of files
// rather than a flat defect list.
func (c ScanCategory) Grouped() bool {
	switch c {
	case CategoryDuplicates, CategorySimilarImages, CategorySimilarVideos, CategorySimilarMusic:
		return true
	}
	return false
}

func (c ScanCategory) Valid() bool {
	_, ok := allCategories[c]
	return ok
}

// ScanStatus is the lifecycle state of a scan job.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		return true
	}
	return false
}

// ScanOptions carries category-specific engine options. Unset fields are
// omitted from the engine invocation.
type ScanOptions struct {
	SearchMethod     string   `json:"searchMethod,omitempty"`     // dup: hash / size / name
	MinSize          *int64   `json:"minSize,omitempty"`          // minimum file size in bytes
	SimilarityPreset string   `json:"similarityPreset,omitempty"` // image
	Tolerance        *int     `json:"tolerance,omitempty"`        // video
	MusicSimilarity  string   `json:"musicSimilarity,omitempty"`  // music
	CheckedTypes     []string `json:"checkedTypes,omitempty"`     // broken
}

// ScanRequest is the immutable submission payload.
type ScanRequest struct {
	Category    ScanCategory `json:"category"`
	Directories []string     `json:"directories"`
	Exclusions  []string     `json:"excludedPatterns"`
	Options     ScanOptions  `json:"options"`
}

var (
	ErrUnknownCategory = errors.New("unknown scan category")
	ErrNoDirectories   = errors.New("at least one directory is required")
)

var duplicateSearchMethods = map[string]struct{}{"hash": {}, "size": {}, "name": {}}

// Validate rejects malformed requests before a job record is created.
// Directories must be absolute, existing and distinct.
func (r *ScanRequest) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, r.Category)
	}
	if len(r.Directories) == 0 {
		return ErrNoDirectories
	}

	seen := make(map[string]struct{}, len(r.Directories))
	for _, dir := range r.Directories {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("directory must be absolute: %s", dir)
		}
		clean := filepath.Clean(dir)
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("duplicate directory: %s", dir)
		}
		seen[clean] = struct{}{}

		info, err := os.Stat(clean)
		if err != nil {
			return fmt.Errorf("directory not found: %s", dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("not a directory: %s", dir)
		}
	}

	for _, pattern := range r.Exclusions {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclusion pattern %q", pattern)
		}
	}

	return r.validateOptions()
}

func (r *ScanRequest) validateOptions() error {
	opts := r.Options
	if opts.MinSize != nil && *opts.MinSize < 0 {
		return fmt.Errorf("minSize must not be negative")
	}
	if opts.SearchMethod != "" {
		if r.Category != CategoryDuplicates {
			return fmt.Errorf("searchMethod is only valid for %q scans", CategoryDuplicates)
		}
		if _, ok := duplicateSearchMethods[opts.SearchMethod]; !ok {
			return fmt.Errorf("unknown searchMethod %q", opts.SearchMethod)
		}
	}
	if opts.SimilarityPreset != "" && r.Category != CategorySimilarImages {
		return fmt.Errorf("similarityPreset is only valid for %q scans", CategorySimilarImages)
	}
	if opts.Tolerance != nil {
		if r.Category != CategorySimilarVideos {
			return fmt.Errorf("tolerance is only valid for %q scans", CategorySimilarVideos)
		}
		if *opts.Tolerance < 0 || *opts.Tolerance > 20 {
			return fmt.Errorf("tolerance must be between 0 and 20")
		}
	}
	if opts.MusicSimilarity != "" && r.Category != CategorySimilarMusic {
		return fmt.Errorf("musicSimilarity is only valid for %q scans", CategorySimilarMusic)
	}
	if len(opts.CheckedTypes) > 0 && r.Category != CategoryBroken {
		return fmt.Errorf("checkedTypes is only valid for %q scans", CategoryBroken)
	}
	return nil
}

// FileEntry is one detected file.
type FileEntry struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Similarity  int       `json:"similarity,omitempty"`
}

// FindingGroup is an ordered cluster of related files. The first entry is
// the canonical keep target for the except-one selection strategy.
type FindingGroup struct {
	Files     []FileEntry `json:"files"`
	TotalSize int64       `json:"totalSize"`
}

// Findings is the result payload. Exactly one of Groups or Files is
// populated depending on the category shape.
type Findings struct {
	Groups []FindingGroup `json:"groups,omitempty"`
	Files  []FileEntry    `json:"files,omitempty"`
}

// Count returns the number of findings: groups for grouped results, files
// for flat ones.
func (f *Findings) Count() int {
	if f == nil {
		return 0
	}
	if len(f.Groups) > 0 {
		return len(f.Groups)
	}
	return len(f.Files)
}

// TotalSize sums the size of every file in the payload.
func (f *Findings) TotalSize() int64 {
	if f == nil {
		return 0
	}
	var total int64
	for _, g := range f.Groups {
		for _, file := range g.Files {
			total += file.Size
		}
	}
	for _, file := range f.Files {
		total += file.Size
	}
	return total
}

// Normalize imposes a deterministic member order on every group (size
// descending, ties by path) and recomputes group totals. The engine's own
// ordering is not trusted to be stable across invocations.
func (f *Findings) Normalize() {
	if f == nil {
		return
	}
	for i := range f.Groups {
		g := &f.Groups[i]
		sort.SliceStable(g.Files, func(a, b int) bool {
			if g.Files[a].Size != g.Files[b].Size {
				return g.Files[a].Size > g.Files[b].Size
			}
			return g.Files[a].Path < g.Files[b].Path
		})
		var total int64
		for _, file := range g.Files {
			total += file.Size
		}
		g.TotalSize = total
	}

	// Group order must be deterministic too; engines that emit keyed maps
	// give no ordering guarantee.
	sort.SliceStable(f.Groups, func(a, b int) bool {
		if f.Groups[a].TotalSize != f.Groups[b].TotalSize {
			return f.Groups[a].TotalSize > f.Groups[b].TotalSize
		}
		return firstPath(f.Groups[a]) < firstPath(f.Groups[b])
	})
}

func firstPath(g FindingGroup) string {
	if len(g.Files) == 0 {
		return ""
	}
	return g.Files[0].Path
}

// Progress is the latest progress snapshot, overwritten in place on every
// engine progress event. Live delivery is the broadcaster's job; the record
// only keeps the most recent state.
type Progress struct {
	Stage          string        `json:"stage"`
	CurrentItem    string        `json:"currentItem"`
	ItemsProcessed int           `json:"itemsProcessed"`
	Elapsed        time.Duration `json:"-"`
	ElapsedMS      int64         `json:"elapsedMs"`
}

// Scan is the job record: one scan request and its lifecycle outcome.
// While active it is owned exclusively by the executor; handlers and the
// broadcaster only ever see copies.
type Scan struct {
	ID          string       `json:"id"`
	Category    ScanCategory `json:"category"`
	Status      ScanStatus   `json:"status"`
	Directories []string     `json:"directories"`
	Exclusions  []string     `json:"excludedPatterns"`
	Options     ScanOptions  `json:"options"`

	Progress Progress `json:"progress"`

	Findings      *Findings `json:"findings,omitempty"`
	FindingsCount int       `json:"findingsCount"`
	TotalSize     int64     `json:"totalSize"`
	ErrorMessage  string    `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy safe to hand outside the executor.
func (s *Scan) Clone() *Scan {
	if s == nil {
		return nil
	}
	out := *s
	out.Directories = append([]string(nil), s.Directories...)
	out.Exclusions = append([]string(nil), s.Exclusions...)
	if s.Options.MinSize != nil {
		v := *s.Options.MinSize
		out.Options.MinSize = &v
	}
	if s.Options.Tolerance != nil {
		v := *s.Options.Tolerance
		out.Options.Tolerance = &v
	}
	out.Options.CheckedTypes = append([]string(nil), s.Options.CheckedTypes...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Findings != nil {
		f := Findings{
			Groups: make([]FindingGroup, len(s.Findings.Groups)),
			Files:  append([]FileEntry(nil), s.Findings.Files...),
		}
		for i, g := range s.Findings.Groups {
			f.Groups[i] = FindingGroup{
				Files:     append([]FileEntry(nil), g.Files...),
				TotalSize: g.TotalSize,
			}
		}
		out.Findings = &f
	}
	return &out
}

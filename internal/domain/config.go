// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	// EnginePath is the czkawka_cli binary invoked for every scan.
	EnginePath string `toml:"enginePath" mapstructure:"enginePath"`

	// StorageRoot bounds every path sweepd is allowed to touch. Scan
	// directories, delete targets and trash restores must resolve under it.
	StorageRoot string `toml:"storageRoot" mapstructure:"storageRoot"`

	// TrashDir is the holding area for trashed files. It must live on the
	// same filesystem as StorageRoot: trashing is a rename, and a
	// cross-device move is reported as a per-path failure.
	TrashDir string `toml:"trashDir" mapstructure:"trashDir"`

	DefaultDirectories []string `toml:"defaultDirectories" mapstructure:"defaultDirectories"`
	DefaultExclusions  []string `toml:"defaultExclusions" mapstructure:"defaultExclusions"`
}

// DefaultExclusionPatterns are merged into every scan request on top of the
// configured and per-request exclusions.
var DefaultExclusionPatterns = []string{
	"@eaDir",
	".Trash-*",
	"#recycle",
	".DS_Store",
	"Thumbs.db",
	"node_modules",
}

var ErrInvalidStorageRoot = errors.New("storageRoot must be an absolute path")

// Validate checks the parts of the config that would otherwise fail deep
// inside a scan or disposition call.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StorageRoot) == "" || !filepath.IsAbs(c.StorageRoot) {
		return ErrInvalidStorageRoot
	}
	if strings.TrimSpace(c.EnginePath) == "" {
		return errors.New("enginePath is required")
	}
	for _, pattern := range c.DefaultExclusions {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid defaultExclusions pattern %q", pattern)
		}
	}
	return nil
}

// MergedExclusions returns the built-in, configured and per-request
// exclusion patterns with duplicates removed, preserving first-seen order.
func (c *Config) MergedExclusions(extra []string) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0, len(DefaultExclusionPatterns)+len(c.DefaultExclusions)+len(extra))
	for _, group := range [][]string{DefaultExclusionPatterns, c.DefaultExclusions, extra} {
		for _, pattern := range group {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			if _, ok := seen[pattern]; ok {
				continue
			}
			seen[pattern] = struct{}{}
			merged = append(merged, pattern)
		}
	}
	return merged
}

// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"strconv"
	"strings"

	"github.com/sweepd/sweepd/internal/models"
)

// BuildArgs assembles the czkawka_cli argument list for a scan. The first
// element is the subcommand (the category name on the wire matches the CLI
// subcommand). resultPath, when non-empty, asks the engine to write its JSON
// result document there instead of stdout.
func BuildArgs(scan *models.Scan, resultPath string) []string {
	args := []string{string(scan.Category)}

	if len(scan.Directories) > 0 {
		args = append(args, "--directories", strings.Join(scan.Directories, ","))
	}
	if len(scan.Exclusions) > 0 {
		args = append(args, "--excluded-items", strings.Join(scan.Exclusions, ","))
	}

	opts := scan.Options
	switch scan.Category {
	case models.CategoryDuplicates:
		if opts.SearchMethod != "" {
			args = append(args, "--search-method", opts.SearchMethod)
		}
	case models.CategorySimilarImages:
		if opts.SimilarityPreset != "" {
			args = append(args, "--similarity-preset", opts.SimilarityPreset)
		}
	case models.CategorySimilarVideos:
		if opts.Tolerance != nil {
			args = append(args, "--tolerance", strconv.Itoa(*opts.Tolerance))
		}
	case models.CategorySimilarMusic:
		if opts.MusicSimilarity != "" {
			args = append(args, "--music-similarity", opts.MusicSimilarity)
		}
	case models.CategoryBroken:
		if len(opts.CheckedTypes) > 0 {
			args = append(args, "--checked-types", strings.Join(opts.CheckedTypes, ","))
		}
	}

	if opts.MinSize != nil {
		args = append(args, "--min-size", strconv.FormatInt(*opts.MinSize, 10))
	}

	if resultPath != "" {
		args = append(args, "--compact-file-to-save", resultPath)
	}

	return args
}

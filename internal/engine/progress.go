// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// czkawka_cli writes human-readable progress to stderr, one line per update.
// There is no stable machine format, so parsing is best-effort: every
// non-empty line becomes the current stage label, and a trailing file
// counter is extracted when one is present.
var filesCountRe = regexp.MustCompile(`(?i)(\d+)\s*files?`)

// ProgressLine is one parsed stderr line.
type ProgressLine struct {
	Stage string
	// Files is the extracted file counter. Valid only when HasFiles is set;
	// lines without a recognizable counter keep the previous count.
	Files    int
	HasFiles bool
}

// ParseProgressLine parses a single stderr line. Returns false for blank
// lines, which carry no information.
func ParseProgressLine(line string) (ProgressLine, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ProgressLine{}, false
	}

	p := ProgressLine{Stage: line}
	if m := filesCountRe.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			p.Files = n
			p.HasFiles = true
		}
	}
	return p, true
}

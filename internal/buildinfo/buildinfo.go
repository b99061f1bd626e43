// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo holds version information injected at build time.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	// UserAgent identifies sweepd in outbound requests and logs.
	UserAgent string
)

func init() {
	UserAgent = fmt.Sprintf("sweepd/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a human-readable version summary.
func String() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s\n", Version, Commit, Date)
}

// JSON returns the version summary as JSON.
func JSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	})
}

// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepd/sweepd/internal/models"
)

type fakeLister struct {
	scans []*models.Scan
	err   error
}

func (l *fakeLister) List(_ context.Context) ([]*models.Scan, error) {
	return l.scans, l.err
}

func TestScanCollector(t *testing.T) {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)

	lister := &fakeLister{scans: []*models.Scan{
		{
			ID:            "a",
			Category:      models.CategoryDuplicates,
			Status:        models.ScanStatusCompleted,
			FindingsCount: 2,
			TotalSize:     250,
			StartedAt:     &started,
			CompletedAt:   &completed,
		},
		{
			ID:       "b",
			Category: models.CategoryDuplicates,
			Status:   models.ScanStatusRunning,
		},
		{
			ID:       "c",
			Category: models.CategoryEmptyFiles,
			Status:   models.ScanStatusFailed,
		},
	}}

	collector := NewScanCollector(lister)

	expected := `
		# HELP sweepd_scan_duration_seconds Wall-clock duration of the most recent completed scan by category
		# TYPE sweepd_scan_duration_seconds gauge
		sweepd_scan_duration_seconds{category="dup"} 90
		# HELP sweepd_scan_findings Findings reported by completed scans by category
		# TYPE sweepd_scan_findings gauge
		sweepd_scan_findings{category="dup"} 2
		# HELP sweepd_scan_findings_size_bytes Total size of findings reported by completed scans by category
		# TYPE sweepd_scan_findings_size_bytes gauge
		sweepd_scan_findings_size_bytes{category="dup"} 250
		# HELP sweepd_scans Number of scans by status and category
		# TYPE sweepd_scans gauge
		sweepd_scans{category="dup",status="completed"} 1
		sweepd_scans{category="dup",status="running"} 1
		sweepd_scans{category="empty-files",status="failed"} 1
		# HELP sweepd_scans_running Number of scans currently running
		# TYPE sweepd_scans_running gauge
		sweepd_scans_running 1
	`

	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"sweepd_scans",
		"sweepd_scans_running",
		"sweepd_scan_findings",
		"sweepd_scan_findings_size_bytes",
		"sweepd_scan_duration_seconds",
	))
}

func TestScanCollectorEmptyState(t *testing.T) {
	collector := NewScanCollector(&fakeLister{})

	expected := `
		# HELP sweepd_scans_running Number of scans currently running
		# TYPE sweepd_scans_running gauge
		sweepd_scans_running 0
	`

	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected)))
}

func TestScanCollectorListerError(t *testing.T) {
	collector := NewScanCollector(&fakeLister{err: errors.New("db closed")})

	assert.Equal(t, 0, testutil.CollectAndCount(collector))
}

func TestScanCollectorNilLister(t *testing.T) {
	collector := NewScanCollector(nil)

	assert.Equal(t, 0, testutil.CollectAndCount(collector))
}

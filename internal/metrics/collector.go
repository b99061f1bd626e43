// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes scan state as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/models"
)

// ScanLister supplies the scan records metrics are derived from.
// Satisfied by *scans.Service.
type ScanLister interface {
	List(ctx context.Context) ([]*models.Scan, error)
}

type ScanCollector struct {
	lister ScanLister

	scansDesc        *prometheus.Desc
	runningDesc      *prometheus.Desc
	findingsDesc     *prometheus.Desc
	findingsSizeDesc *prometheus.Desc
	durationDesc     *prometheus.Desc
}

func NewScanCollector(lister ScanLister) *ScanCollector {
	return &ScanCollector{
		lister: lister,

		scansDesc: prometheus.NewDesc(
			"sweepd_scans",
			"Number of scans by status and category",
			[]string{"status", "category"},
			nil,
		),
		runningDesc: prometheus.NewDesc(
			"sweepd_scans_running",
			"Number of scans currently running",
			nil,
			nil,
		),
		findingsDesc: prometheus.NewDesc(
			"sweepd_scan_findings",
			"Findings reported by completed scans by category",
			[]string{"category"},
			nil,
		),
		findingsSizeDesc: prometheus.NewDesc(
			"sweepd_scan_findings_size_bytes",
			"Total size of findings reported by completed scans by category",
			[]string{"category"},
			nil,
		),
		durationDesc: prometheus.NewDesc(
			"sweepd_scan_duration_seconds",
			"Wall-clock duration of the most recent completed scan by category",
			[]string{"category"},
			nil,
		),
	}
}

func (c *ScanCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.scansDesc
	ch <- c.runningDesc
	ch <- c.findingsDesc
	ch <- c.findingsSizeDesc
	ch <- c.durationDesc
}

func (c *ScanCollector) Collect(ch chan<- prometheus.Metric) {
	if c.lister == nil {
		log.Debug().Msg("Scan lister is nil, skipping metrics collection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scans, err := c.lister.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list scans for metrics")
		return
	}

	type key struct {
		status   models.ScanStatus
		category models.ScanCategory
	}
	counts := make(map[key]int)
	running := 0
	findings := make(map[models.ScanCategory]int)
	findingsSize := make(map[models.ScanCategory]int64)
	lastDuration := make(map[models.ScanCategory]float64)
	lastCompleted := make(map[models.ScanCategory]time.Time)

	for _, scan := range scans {
		counts[key{scan.Status, scan.Category}]++

		if scan.Status == models.ScanStatusRunning {
			running++
		}

		if scan.Status != models.ScanStatusCompleted {
			continue
		}
		findings[scan.Category] += scan.FindingsCount
		findingsSize[scan.Category] += scan.TotalSize

		if scan.StartedAt != nil && scan.CompletedAt != nil {
			if prev, ok := lastCompleted[scan.Category]; !ok || scan.CompletedAt.After(prev) {
				lastCompleted[scan.Category] = *scan.CompletedAt
				lastDuration[scan.Category] = scan.CompletedAt.Sub(*scan.StartedAt).Seconds()
			}
		}
	}

	for k, n := range counts {
		ch <- prometheus.MustNewConstMetric(
			c.scansDesc,
			prometheus.GaugeValue,
			float64(n),
			string(k.status),
			string(k.category),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.runningDesc,
		prometheus.GaugeValue,
		float64(running),
	)

	for category, n := range findings {
		ch <- prometheus.MustNewConstMetric(
			c.findingsDesc,
			prometheus.GaugeValue,
			float64(n),
			string(category),
		)
		ch <- prometheus.MustNewConstMetric(
			c.findingsSizeDesc,
			prometheus.GaugeValue,
			float64(findingsSize[category]),
			string(category),
		)
	}

	for category, seconds := range lastDuration {
		ch <- prometheus.MustNewConstMetric(
			c.durationDesc,
			prometheus.GaugeValue,
			seconds,
			string(category),
		)
	}
}

// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry      *prometheus.Registry
	scanCollector *ScanCollector
}

func NewManager(lister ScanLister) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	scanCollector := NewScanCollector(lister)
	registry.MustRegister(scanCollector)

	log.Info().Msg("Metrics manager initialized with scan collector")

	return &Manager{
		registry:      registry,
		scanCollector: scanCollector,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

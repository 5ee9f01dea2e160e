// scanner metrics
//
// Copyright 2026 Franco Venturi.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScanMetrics holds the Prometheus collectors updated by the scan loop
type ScanMetrics struct {
	sweepSteps      prometheus.Counter     // sweep steps taken
	revisitCycles   prometheus.Counter     // completed revisit cycles
	detections      prometheus.Counter     // signals found
	transportErrors *prometheus.CounterVec // failed session calls, by operation
	memoryRecords   prometheus.Gauge       // records in the frequency memory
	lastFrequency   prometheus.Gauge       // last frequency where a signal was found
	lastLevel       prometheus.Gauge       // level of the last signal found
}

func NewScanMetrics(registerer prometheus.Registerer) *ScanMetrics {
	factory := promauto.With(registerer)
	return &ScanMetrics{
		sweepSteps: factory.NewCounter(prometheus.CounterOpts{
			Name: "gqrx_scanner_sweep_steps_total",
			Help: "Number of sweep steps taken",
		}),
		revisitCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "gqrx_scanner_revisit_cycles_total",
			Help: "Number of completed cycles over remembered frequencies",
		}),
		detections: factory.NewCounter(prometheus.CounterOpts{
			Name: "gqrx_scanner_detections_total",
			Help: "Number of signals found above squelch",
		}),
		transportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gqrx_scanner_transport_errors_total",
			Help: "Number of receiver session calls that failed after retries",
		}, []string{"op"}),
		memoryRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gqrx_scanner_memory_records",
			Help: "Number of records in the frequency memory",
		}),
		lastFrequency: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gqrx_scanner_last_detection_hz",
			Help: "Frequency of the last signal found",
		}),
		lastLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gqrx_scanner_last_detection_level_db",
			Help: "Level of the last signal found",
		}),
	}
}

func (m *ScanMetrics) detection(d Detection) {
	m.detections.Inc()
	m.lastFrequency.Set(float64(d.Frequency))
	m.lastLevel.Set(d.Level)
}

// serveMetrics exposes the default registry on listen in the background.
func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: listening on %s", listen)
		if err := http.ListenAndServe(listen, mux); err != nil {
			log.Println("metrics server error:", err)
		}
	}()
}

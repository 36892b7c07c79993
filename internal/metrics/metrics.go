// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics exposes capture-configuration health over an optional
// prometheus endpoint.
package metrics

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promMetricPrefix = "gatord_"

var (
	coresIdentifiedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: promMetricPrefix + "cores_identified",
		Help: "Number of cores whose identity was resolved",
	})
	coresTotalGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: promMetricPrefix + "cores_total",
		Help: "Number of logical CPUs on the target",
	})
	eventsConfiguredGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: promMetricPrefix + "events_configured",
		Help: "Number of perf events configured, by group",
	}, []string{"group"})
	groupsConfiguredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: promMetricPrefix + "groups_configured",
		Help: "Number of perf event groups configured",
	})
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(coresIdentifiedGauge, coresTotalGauge, eventsConfiguredGauge, groupsConfiguredGauge)
	})
}

// SetCoreCounts records the identification result.
func SetCoreCounts(identified int, total int) {
	register()
	coresIdentifiedGauge.Set(float64(identified))
	coresTotalGauge.Set(float64(total))
}

// SetGroupEvents records the number of events configured in one group.
func SetGroupEvents(group string, events int) {
	register()
	eventsConfiguredGauge.WithLabelValues(group).Set(float64(events))
}

// SetGroupCount records the number of groups configured.
func SetGroupCount(groups int) {
	register()
	groupsConfiguredGauge.Set(float64(groups))
}

// StartServer serves the prometheus endpoint in the background.
func StartServer(listenAddr string) {
	register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("Starting Prometheus metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
		}
	}()
}

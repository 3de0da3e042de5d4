// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes relay counters to Prometheus.
//
// Each [Metrics] owns a private registry, so several relays (or
// tests) in one process never collide on registration. [Metrics.Serve]
// publishes the registry at /metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seedrelay"

// States lists the controller state label values.
var States = []string{"running", "reconnecting", "draining", "stopped"}

// Metrics is the set of relay collectors.
type Metrics struct {
	registry *prometheus.Registry

	packetsReceived  *prometheus.CounterVec
	recordsForwarded prometheus.Counter
	recordsDropped   prometheus.Counter
	recordsAbandoned prometheus.Counter
	sinkReconnects   prometheus.Counter
	checkpointSaves  *prometheus.CounterVec
	controllerState  *prometheus.GaugeVec
	deliverLatency   prometheus.Histogram
}

// New creates and registers the relay collectors, plus the standard
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "SeedLink packets received, by packet type.",
		}, []string{"type"}),
		recordsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_forwarded_total",
			Help:      "Records accepted by the DataLink server.",
		}),
		recordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records discarded because their header could not be parsed.",
		}),
		recordsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_abandoned_total",
			Help:      "Records left undelivered because shutdown interrupted a retry.",
		}),
		sinkReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_reconnects_total",
			Help:      "Successful DataLink reconnections after a delivery failure.",
		}),
		checkpointSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint save attempts, by result.",
		}, []string{"result"}),
		controllerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_state",
			Help:      "1 for the delivery controller's current state, 0 otherwise.",
		}, []string{"state"}),
		deliverLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deliver_seconds",
			Help:      "Time to hand one record to the DataLink server, including the acknowledgement when requested.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	m.registry.MustRegister(
		m.packetsReceived,
		m.recordsForwarded,
		m.recordsDropped,
		m.recordsAbandoned,
		m.sinkReconnects,
		m.checkpointSaves,
		m.controllerState,
		m.deliverLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, state := range States {
		m.controllerState.WithLabelValues(state)
	}
	for _, result := range []string{"ok", "error"} {
		m.checkpointSaves.WithLabelValues(result)
	}
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PacketReceived counts one packet of the named type.
func (m *Metrics) PacketReceived(packetType string) {
	m.packetsReceived.WithLabelValues(packetType).Inc()
}

func (m *Metrics) RecordForwarded(latency time.Duration) {
	m.recordsForwarded.Inc()
	m.deliverLatency.Observe(latency.Seconds())
}

func (m *Metrics) RecordDropped() {
	m.recordsDropped.Inc()
}

func (m *Metrics) RecordAbandoned() {
	m.recordsAbandoned.Inc()
}

func (m *Metrics) SinkReconnected() {
	m.sinkReconnects.Inc()
}

// CheckpointSaved counts a save attempt.
func (m *Metrics) CheckpointSaved(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.checkpointSaves.WithLabelValues(result).Inc()
}

// SetState marks state as current. Unknown names are ignored.
func (m *Metrics) SetState(state string) {
	known := false
	for _, name := range States {
		if name == state {
			known = true
		}
	}
	if !known {
		return
	}
	for _, name := range States {
		value := 0.0
		if name == state {
			value = 1
		}
		m.controllerState.WithLabelValues(name).Set(value)
	}
}

// Serve publishes /metrics and /health on listener until ctx is
// done, then shuts the server down.
func (m *Metrics) Serve(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(listener)
	}()
	logger.Info("metrics endpoint listening", "address", listener.Addr().String())

	select {
	case err := <-errs:
		return fmt.Errorf("metrics: serving %s: %w", listener.Addr(), err)
	case <-ctx.Done():
	}
	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownContext); err != nil {
		return fmt.Errorf("metrics: shutting down: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serving %s: %w", listener.Addr(), err)
	}
	return nil
}

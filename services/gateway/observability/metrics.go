// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and trace wiring for the gateway.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the dispatch
// engine and the API surface. Metrics include:
//   - Request counters and latency histograms (by endpoint)
//   - Response cache hit/miss/store counters
//   - Dispatch queue depth and active worker gauges
//   - Stream lifecycle counters
//
// # Integration
//
// Metrics are exposed via the /admin/metrics endpoint. All helper methods
// tolerate a nil receiver so library code can run without metrics wired,
// which the engine tests rely on.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for gateway metrics
const gatewaySubsystem = "gateway"

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint labels one API surface for metrics purposes.
type Endpoint string

const (
	EndpointChat       Endpoint = "chat"
	EndpointChatStream Endpoint = "chat_stream"
	EndpointWebSocket  Endpoint = "chat_ws"
	EndpointEmbeddings Endpoint = "embeddings"
	EndpointImages     Endpoint = "images"
	EndpointAdmin      Endpoint = "admin"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// GatewayMetrics holds all Prometheus metrics for the dispatch engine and
// the API surface.
//
// # Fields
//
//   - RequestsTotal: Counter of dispatched requests by endpoint.
//   - RequestLatencyMS: Histogram of request latency in milliseconds.
//   - CacheHitsTotal / CacheMissesTotal / CacheStoresTotal: Response cache
//     activity.
//   - QueueDepth: Gauge of envelopes currently buffered in the dispatch queue.
//   - ActiveWorkers: Gauge of in-flight backend invocations (permits held).
//   - StreamsStartedTotal / StreamsCompletedTotal: SSE/WebSocket stream
//     lifecycle.
type GatewayMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestLatencyMS *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheStoresTotal prometheus.Counter

	QueueDepth    prometheus.Gauge
	ActiveWorkers prometheus.Gauge

	StreamsStartedTotal   prometheus.Counter
	StreamsCompletedTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance used by the running service.
// Initialized by InitMetrics(); nil in tests that don't need metrics.
var DefaultMetrics *GatewayMetrics

// InitMetrics initializes the default metrics instance against the global
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration.
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates and registers the gateway metrics against reg. Tests
// pass a private registry to stay isolated from the global one.
func NewMetrics(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)

	return &GatewayMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total dispatched requests by endpoint",
			},
			[]string{"endpoint"},
		),

		RequestLatencyMS: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "request_latency_ms",
				Help:      "Request latency in milliseconds by endpoint",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"endpoint"},
		),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "cache_hits_total",
			Help:      "Response cache hits",
		}),

		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "cache_misses_total",
			Help:      "Response cache misses",
		}),

		CacheStoresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "cache_stores_total",
			Help:      "Response cache inserts",
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "queue_depth",
			Help:      "Envelopes buffered in the dispatch queue",
		}),

		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "active_workers",
			Help:      "Backend invocations currently holding a worker permit",
		}),

		StreamsStartedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "streams_started_total",
			Help:      "Streaming responses started",
		}),

		StreamsCompletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "streams_completed_total",
			Help:      "Streaming responses that reached the terminal sentinel",
		}),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest counts one dispatched request.
func (m *GatewayMetrics) RecordRequest(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint)).Inc()
}

// ObserveLatency records a request latency sample in milliseconds.
func (m *GatewayMetrics) ObserveLatency(endpoint Endpoint, ms float64) {
	if m == nil {
		return
	}
	m.RequestLatencyMS.WithLabelValues(string(endpoint)).Observe(ms)
}

// CacheHit counts a response cache hit.
func (m *GatewayMetrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// CacheMiss counts a response cache miss.
func (m *GatewayMetrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// CacheStore counts a response cache insert.
func (m *GatewayMetrics) CacheStore() {
	if m == nil {
		return
	}
	m.CacheStoresTotal.Inc()
}

// EnvelopeQueued tracks an envelope entering the dispatch queue.
func (m *GatewayMetrics) EnvelopeQueued() {
	if m == nil {
		return
	}
	m.QueueDepth.Inc()
}

// EnvelopeDequeued tracks an envelope leaving the dispatch queue.
func (m *GatewayMetrics) EnvelopeDequeued() {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
}

// WorkerStarted tracks a permit acquisition.
func (m *GatewayMetrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Inc()
}

// WorkerFinished tracks a permit release.
func (m *GatewayMetrics) WorkerFinished() {
	if m == nil {
		return
	}
	m.ActiveWorkers.Dec()
}

// StreamStarted counts a stream opening.
func (m *GatewayMetrics) StreamStarted() {
	if m == nil {
		return
	}
	m.StreamsStartedTotal.Inc()
}

// StreamCompleted counts a stream reaching its sentinel.
func (m *GatewayMetrics) StreamCompleted() {
	if m == nil {
		return
	}
	m.StreamsCompletedTotal.Inc()
}

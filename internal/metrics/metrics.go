// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30, 300}, // SSE streams land in the top buckets
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Presence Metrics
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_heartbeats_total",
			Help: "Heartbeat signals handled by the coordinator",
		},
		[]string{"activity", "result"}, // result: "ok", "invalid", "failed"
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "presence_store_operation_duration_seconds",
			Help:    "Latency of presence store operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_store_errors_total",
			Help: "Presence store failures absorbed by the resilient wrapper",
		},
		[]string{"backend", "operation"},
	)

	StoreDegraded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_store_degraded",
			Help: "1 when presence runs in degraded mode (in-process fallback or failing backend)",
		},
		[]string{"backend"},
	)

	ActiveUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_active_users",
			Help: "Last computed active visitor count per shop",
		},
		[]string{"shop"},
	)

	SweepRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_sweep_removed_total",
			Help: "Presence entries physically removed by the sweeper",
		},
	)

	StreamConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_stream_connections",
			Help: "Open live presence subscribers",
		},
		[]string{"transport"}, // "sse", "websocket"
	)

	// Broadcast Metrics
	BroadcastPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_broadcast_published_total",
			Help: "Presence snapshots published to the pub/sub transport",
		},
		[]string{"transport"},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_broadcast_dropped_total",
			Help: "Presence snapshots not delivered",
		},
		[]string{"reason"}, // "throttled", "publish_error", "slow_client", "decode_error"
	)

	// Warehouse Metrics
	WarehouseRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_rows_written_total",
			Help: "Rows written to the DuckDB warehouse",
		},
		[]string{"table"},
	)

	WarehouseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warehouse_operation_duration_seconds",
			Help:    "Duration of warehouse operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	WarehouseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_errors_total",
			Help: "Failed warehouse operations",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordHeartbeat counts a coordinator outcome.
func RecordHeartbeat(activity, result string) {
	HeartbeatsTotal.WithLabelValues(activity, result).Inc()
}

// RecordStoreOperation observes one store call. A non-nil err also counts as
// a store error.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(backend, operation).Inc()
	}
}

// SetStoreDegraded flips the degraded gauge for backend.
func SetStoreDegraded(backend string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1
	}
	StoreDegraded.WithLabelValues(backend).Set(v)
}

// SetActiveUsers records the last count computed for shop.
func SetActiveUsers(shop string, count int) {
	ActiveUsers.WithLabelValues(shop).Set(float64(count))
}

// RecordSweep adds removed entries to the sweep counter.
func RecordSweep(removed int) {
	if removed > 0 {
		SweepRemoved.Add(float64(removed))
	}
}

// TrackStreamConnection tracks open SSE and WebSocket subscribers.
func TrackStreamConnection(transport string, inc bool) {
	if inc {
		StreamConnections.WithLabelValues(transport).Inc()
	} else {
		StreamConnections.WithLabelValues(transport).Dec()
	}
}

// RecordBroadcastPublish counts a published snapshot.
func RecordBroadcastPublish(transport string) {
	BroadcastPublished.WithLabelValues(transport).Inc()
}

// RecordBroadcastDrop counts a snapshot that did not reach its destination.
func RecordBroadcastDrop(reason string) {
	BroadcastDropped.WithLabelValues(reason).Inc()
}

// RecordWarehouseOperation observes a warehouse write or query.
func RecordWarehouseOperation(operation string, duration time.Duration, err error) {
	WarehouseDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		WarehouseErrors.WithLabelValues(operation).Inc()
	}
}

// RecordWarehouseRows counts rows written to table.
func RecordWarehouseRows(table string, rows int) {
	if rows > 0 {
		WarehouseRowsWritten.WithLabelValues(table).Add(float64(rows))
	}
}

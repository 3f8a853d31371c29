// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

/*
Package metrics defines the Prometheus collectors exported on /metrics.

All collectors are registered with the default registry through promauto at
package init, so callers only use the Record* helpers or the exported vectors.

# Metric Families

API:
  - api_requests_total{method,endpoint,status_code}
  - api_request_duration_seconds{method,endpoint}
  - api_active_requests

Presence:
  - presence_heartbeats_total{activity,result}
  - presence_store_operation_duration_seconds{backend,operation}
  - presence_store_errors_total{backend,operation}
  - presence_store_degraded{backend}
  - presence_active_users{shop}
  - presence_sweep_removed_total
  - presence_stream_connections{transport}

Broadcast:
  - presence_broadcast_published_total{transport}
  - presence_broadcast_dropped_total{reason}

Warehouse:
  - warehouse_rows_written_total{table}
  - warehouse_operation_duration_seconds{operation}
  - warehouse_errors_total{operation}

Circuit breaker:
  - circuit_breaker_state{name}
  - circuit_breaker_requests_total{name,result}
  - circuit_breaker_consecutive_failures{name}
  - circuit_breaker_state_transitions_total{name,from_state,to_state}

Shop labels are bounded by the number of installed storefronts; visitor and
session identifiers are never used as labels.
*/
package metrics

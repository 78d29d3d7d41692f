// Package telemetry provides application-level observability for the portal backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on
// the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<ATP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not served by the Gin router, so it never sits behind the public
// ingress or the API rate limiter.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Audit events recorded, by action and category; audit shipping failures
//   - Tabular exports by format, destination and outcome; row and byte histograms
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics. The path label holds the Gin route template, never the raw URL.
//
// Example PromQL:
//   - Error rate (%): sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit trail metrics.
//
// AuditEventsRecordedTotal counts records persisted, by action (closed set, so the
// label cardinality is bounded) and category.
//
// AuditShipErrorsTotal counts failed deliveries to external shippers. An alert on
// increase(audit_ship_errors_total[15m]) > 0 catches a dead SIEM endpoint.
var (
	AuditEventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_recorded_total",
			Help: "Total number of audit records persisted, by action and category.",
		},
		[]string{"action", "category"},
	)

	AuditShipErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_errors_total",
			Help: "Total number of failed audit shipments, by shipper type.",
		},
		[]string{"shipper"},
	)
)

// Export metrics.
//
// ExportsTotal labels: format (csv, print), destination (download, storage, writer),
// outcome (success, error).
var (
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_total",
			Help: "Total number of tabular exports, by format, destination, and outcome.",
		},
		[]string{"format", "destination", "outcome"},
	)

	ExportRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "export_rows",
			Help:    "Number of data rows per successful export.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	ExportBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "export_bytes",
			Help:    "Size in bytes of each successfully built export artifact.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled every 30 s.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds until ctx is
// cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}

// Package telemetry provides application-level observability for orgdesk.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<ORGDESK_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server every 15–60 seconds.
// It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authentication outcome counters (login, signup, password reset)
//   - Organization mutation counters
//   - Dashboard cache hit/invalidation counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/organizations/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as organization IDs or slugs.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}. The path
// label holds the Gin route template (e.g. /api/v1/organizations/:id), NOT the
// raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and buckets
// from 5 ms to 30 s. Use histogram_quantile to compute latency percentiles.
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

// Authentication metrics — recorded by the auth service.
//
// LoginAttemptsTotal has a single {result} label with values "success",
// "invalid_credentials", or "error". An alert on a sustained spike of
// invalid_credentials is a useful brute-force signal alongside the rate limiter.
//
// Example PromQL queries:
//   - Failed login rate:  rate(login_attempts_total{result="invalid_credentials"}[5m])
var (
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login attempts, by result.",
		},
		[]string{"result"},
	)

	SignupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signups_total",
			Help: "Total number of successfully created user accounts.",
		},
	)

	PasswordResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "password_resets_total",
			Help: "Total number of password reset operations, by stage (requested, completed).",
		},
		[]string{"stage"},
	)
)

// Organization metrics — recorded by the organization service on successful mutations.
//
// OrganizationMutationsTotal has an {action} label with values "create", "update",
// or "delete".
var OrganizationMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "organization_mutations_total",
		Help: "Total number of successful organization mutations, by action.",
	},
	[]string{"action"},
)

// InvitationsTotal has an {event} label with values "created", "accepted", or
// "expired" (an acceptance attempt that found the invitation past its expiry).
var InvitationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invitations_total",
		Help: "Total number of invitation lifecycle events, by event.",
	},
	[]string{"event"},
)

// Dashboard cache metrics — recorded by the cache package.
//
// DashboardCacheRequestsTotal has a {result} label with values "hit" or "miss".
// DashboardCacheInvalidationsTotal counts fire-and-forget invalidation signals;
// a high invalidation-to-hit ratio suggests the cache TTL is doing the work
// and the signal could be dropped.
var (
	DashboardCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_requests_total",
			Help: "Total number of dashboard cache lookups, by result (hit, miss).",
		},
		[]string{"result"},
	)

	DashboardCacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_cache_invalidations_total",
			Help: "Total number of dashboard cache invalidation signals fired.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}

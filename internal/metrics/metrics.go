// Package metrics provides Prometheus metrics for ikuyo.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh cycle outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeIdle       = "idle"
	OutcomeSuperseded = "superseded"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Agency provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	DeparturesDropped       *prometheus.CounterVec

	// Refresh controller metrics
	RefreshCyclesTotal  *prometheus.CounterVec
	RefreshLastSuccess  prometheus.Gauge
	DeparturesPublished prometheus.Gauge

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ikuyo_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ikuyo_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ikuyo_provider_requests_total",
			Help: "Requests sent to transit agency APIs",
		}, []string{"provider", "operation", "outcome"}),
		ProviderRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ikuyo_provider_request_duration_seconds",
			Help:    "Transit agency API latency distribution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "operation"}),
		DeparturesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ikuyo_departures_dropped_total",
			Help: "Departures discarded because their times could not be parsed",
		}, []string{"provider"}),
		RefreshCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ikuyo_refresh_cycles_total",
			Help: "Completed refresh cycles by outcome",
		}, []string{"outcome"}),
		RefreshLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ikuyo_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}),
		DeparturesPublished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ikuyo_departures_published",
			Help: "Number of departures in the live view",
		}),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ikuyo_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ikuyo_db_connections_in_use",
			Help: "Number of database connections currently in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ikuyo_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBWaitSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ikuyo_db_wait_seconds_total",
			Help: "Total time blocked waiting for a database connection",
		}),
		logger: logger,
	}

	m.Registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.DeparturesDropped,
		m.RefreshCyclesTotal,
		m.RefreshLastSuccess,
		m.DeparturesPublished,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitSecondsTotal,
	)
	return m
}

// ObserveProviderRequest records one agency call. Safe on a nil receiver.
func (m *Metrics) ObserveProviderRequest(provider, operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// AddDroppedDepartures counts departures skipped during mapping.
func (m *Metrics) AddDroppedDepartures(provider string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DeparturesDropped.WithLabelValues(provider).Add(float64(n))
}

// ObserveRefresh records a finished refresh cycle.
func (m *Metrics) ObserveRefresh(outcome string, at time.Time, published int) {
	if m == nil {
		return
	}
	m.RefreshCyclesTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeSuccess:
		m.RefreshLastSuccess.Set(float64(at.Unix()))
		m.DeparturesPublished.Set(float64(published))
	case OutcomeIdle:
		m.DeparturesPublished.Set(0)
	}
}

// StartDBStatsCollector periodically copies db.Stats() into the pool
// gauges. Only the first call starts a collector; Shutdown stops it.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var lastWaitDuration time.Duration

	// Add before exposing cancel so Shutdown cannot miss the goroutine.
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil && m.logger != nil {
				m.logger.Error("panic in DB stats collector", "error", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))

				if delta := stats.WaitDuration - lastWaitDuration; delta > 0 {
					m.DBWaitSecondsTotal.Add(delta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector and waits for it to exit. It is
// safe to call more than once.
func (m *Metrics) Shutdown() {
	if m == nil {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

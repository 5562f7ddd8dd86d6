package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested   *prometheus.CounterVec
	reportsGenerated *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	cleanupDeleted   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sesdash_events_ingested_total",
				Help: "Total number of webhook events processed",
			},
			[]string{"event_type", "result"},
		),
		reportsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sesdash_reports_generated_total",
				Help: "Total number of dashboard, report and export views served",
			},
			[]string{"report", "result"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sesdash_query_duration_seconds",
				Help:    "Duration of aggregation queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		cleanupDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sesdash_cleanup_deleted_rows_total",
				Help: "Total number of rows removed by retention cleanup",
			},
			[]string{"table"},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsIngested,
		m.reportsGenerated,
		m.queryDuration,
		m.cleanupDeleted,
	)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventIngested(eventType, result string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsIngested.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) ReportGenerated(report string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reportsGenerated.WithLabelValues(report, result).Inc()
}

// ObserveQuery records the time since start under query.
func (m *Metrics) ObserveQuery(query string, start time.Time) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CleanupDeleted(byTable map[string]int64) {
	if m == nil {
		return
	}
	for table, n := range byTable {
		m.cleanupDeleted.WithLabelValues(table).Add(float64(n))
	}
}

// Package telemetry owns the Prometheus registry and the OpenTelemetry tracer
// provider shared by the engine components.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mnemo"

// Metrics groups every engine collector. A nil *Metrics is valid and records
// nothing, so components can be built without telemetry in tests.
type Metrics struct {
	registry *prometheus.Registry

	classifications   *prometheus.CounterVec
	retrievals        *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	retrievalResults  prometheus.Histogram
	channelFailures   *prometheus.CounterVec
	partialResults    prometheus.Counter
	cacheLookups      *prometheus.CounterVec
	assemblies        *prometheus.CounterVec
	assembledTokens   prometheus.Histogram
	recordsWritten    *prometheus.CounterVec
	storeRecords      *prometheus.GaugeVec
	httpRequests      *prometheus.CounterVec
	maintenanceRuns   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "classifications_total",
			Help: "Queries classified, by chosen strategy.",
		}, []string{"strategy"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "retrievals_total",
			Help: "Retrieval calls, by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "retrieval_duration_seconds",
			Help:    "Retrieval latency by strategy.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"strategy"}),
		retrievalResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "retrieval_results",
			Help:    "Memories returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 2, 11),
		}),
		channelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "channel_failures_total",
			Help: "Channel searches dropped from fusion, by channel and reason.",
		}, []string{"channel", "reason"}),
		partialResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "partial_results_total",
			Help: "Retrievals cut short by the aggregate timeout.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "hydration_cache_lookups_total",
			Help: "Record hydration cache lookups, by result.",
		}, []string{"result"}),
		assemblies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "assemblies_total",
			Help: "Context assemblies, by outcome.",
		}, []string{"outcome"}),
		assembledTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "assembled_tokens",
			Help:    "Estimated tokens of assembled contexts.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_written_total",
			Help: "Memory records written, by kind.",
		}, []string{"kind"}),
		storeRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "store_records",
			Help: "Records per scope, refreshed by the stats job.",
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP API requests, by route and status class.",
		}, []string{"route", "status"}),
		maintenanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "maintenance_runs_total",
			Help: "Maintenance job runs, by job and outcome (ok, error, skipped).",
		}, []string{"job", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classifications, m.retrievals, m.retrievalDuration, m.retrievalResults,
		m.channelFailures, m.partialResults, m.cacheLookups,
		m.assemblies, m.assembledTokens, m.recordsWritten, m.storeRecords,
		m.httpRequests, m.maintenanceRuns,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Classified counts one classification.
func (m *Metrics) Classified(strategy string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(strategy).Inc()
}

// Retrieved records one retrieval call.
func (m *Metrics) Retrieved(strategy, outcome string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(strategy, outcome).Inc()
	m.retrievalDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.retrievalResults.Observe(float64(results))
}

// ChannelFailed counts a channel dropped from fusion.
func (m *Metrics) ChannelFailed(channel, reason string) {
	if m == nil {
		return
	}
	m.channelFailures.WithLabelValues(channel, reason).Inc()
}

// PartialResult counts a retrieval cut short by its aggregate timeout.
func (m *Metrics) PartialResult() {
	if m == nil {
		return
	}
	m.partialResults.Inc()
}

// CacheLookup counts a hydration cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Assembled records one context assembly.
func (m *Metrics) Assembled(outcome string, tokens int) {
	if m == nil {
		return
	}
	m.assemblies.WithLabelValues(outcome).Inc()
	m.assembledTokens.Observe(float64(tokens))
}

// RecordWritten counts a stored record.
func (m *Metrics) RecordWritten(kind string) {
	if m == nil {
		return
	}
	m.recordsWritten.WithLabelValues(kind).Inc()
}

// SetStoreRecords publishes the record count of a scope.
func (m *Metrics) SetStoreRecords(scope string, n int) {
	if m == nil {
		return
	}
	m.storeRecords.WithLabelValues(scope).Set(float64(n))
}

// HTTPRequest counts one API request.
func (m *Metrics) HTTPRequest(route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
}

// MaintenanceRun counts one maintenance job tick.
func (m *Metrics) MaintenanceRun(job, outcome string) {
	if m == nil {
		return
	}
	m.maintenanceRuns.WithLabelValues(job, outcome).Inc()
}

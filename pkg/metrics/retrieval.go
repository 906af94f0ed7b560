package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// initRetrievalMetrics registers the retrieval, tuner, cache and event-bus
// metric families.
func (m *Manager) initRetrievalMetrics(cfg Config) {
	m.queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_queries_total",
			Help: "Retrieval queries by health status and query label",
		},
		[]string{"status", "label"},
	)
	m.queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fusemem_query_duration_seconds",
			Help:    "End-to-end retrieval latency",
			Buckets: cfg.QueryDurationBuckets,
		},
		[]string{"status"},
	)
	m.fusedTopScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fusemem_fused_top_score",
			Help:    "Top fused score per retrieval",
			Buckets: cfg.ScoreBuckets,
		},
	)
	m.sourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_source_failures_total",
			Help: "Source fetch failures and timeouts by engine",
		},
		[]string{"engine"},
	)
	m.sourceSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_source_skips_total",
			Help: "Deferred sources skipped by the early-exit guard",
		},
		[]string{"engine"},
	)
	m.misses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_retrieval_misses_total",
			Help: "Retrievals below the relevance floor by query label",
		},
		[]string{"label"},
	)

	m.retunes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fusemem_retunes_total",
			Help: "Completed tuner weight updates",
		},
	)
	m.tunedWeights = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fusemem_tuned_weight",
			Help: "Current tuned fusion weight per engine",
		},
		[]string{"engine"},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"result"},
	)
	m.cacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_cache_errors_total",
			Help: "Result cache failures by operation",
		},
		[]string{"op"},
	)

	m.busPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusemem_bus_publishes_total",
			Help: "Event bus publish attempts by final status",
		},
		[]string{"status"},
	)
	m.busRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fusemem_bus_retries_total",
			Help: "Event bus publish retries",
		},
	)
	m.busDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusemem_bus_degraded",
			Help: "1 while the event bus publisher is in degraded mode",
		},
	)

	m.registry.MustRegister(
		m.queries, m.queryDuration, m.fusedTopScore,
		m.sourceFailures, m.sourceSkips, m.misses,
		m.retunes, m.tunedWeights,
		m.cacheLookups, m.cacheErrors,
		m.busPublishes, m.busRetries, m.busDegraded,
	)
}

// QueryCompleted implements retrieval.Observer.
func (m *Manager) QueryCompleted(status retrieval.Status, label retrieval.Label, _ string, duration time.Duration, _ int) {
	if !m.enabled {
		return
	}
	m.queries.WithLabelValues(string(status), string(label)).Inc()
	m.queryDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// SourceFailed implements retrieval.Observer.
func (m *Manager) SourceFailed(engine string) {
	if !m.enabled {
		return
	}
	m.sourceFailures.WithLabelValues(engine).Inc()
}

// SourceSkipped implements retrieval.Observer.
func (m *Manager) SourceSkipped(engine string) {
	if !m.enabled {
		return
	}
	m.sourceSkips.WithLabelValues(engine).Inc()
}

// MissDetected implements retrieval.Observer.
func (m *Manager) MissDetected(label retrieval.Label) {
	if !m.enabled {
		return
	}
	m.misses.WithLabelValues(string(label)).Inc()
}

// TopScore implements retrieval.Observer.
func (m *Manager) TopScore(score float64) {
	if !m.enabled {
		return
	}
	m.fusedTopScore.Observe(score)
}

// CacheLookup implements retrieval.Observer.
func (m *Manager) CacheLookup(hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RetuneCompleted implements retrieval.TunerObserver.
func (m *Manager) RetuneCompleted(weights map[string]float64) {
	if !m.enabled {
		return
	}
	m.retunes.Inc()
	for engine, w := range weights {
		m.tunedWeights.WithLabelValues(engine).Set(w)
	}
}

// CacheError implements the cache telemetry interface.
func (m *Manager) CacheError(op string) {
	if !m.enabled {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

// RecordPublish implements the event-bus telemetry interface.
func (m *Manager) RecordPublish(status string) {
	if !m.enabled {
		return
	}
	m.busPublishes.WithLabelValues(status).Inc()
}

// RecordRetry implements the event-bus telemetry interface.
func (m *Manager) RecordRetry() {
	if !m.enabled {
		return
	}
	m.busRetries.Inc()
}

// SetDegradedMode implements the event-bus telemetry interface.
func (m *Manager) SetDegradedMode(active bool) {
	if !m.enabled {
		return
	}
	if active {
		m.busDegraded.Set(1)
		return
	}
	m.busDegraded.Set(0)
}

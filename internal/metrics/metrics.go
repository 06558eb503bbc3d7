package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's collectors. All methods are safe on a nil
// receiver so components can run without instrumentation.
type Metrics struct {
	remoteRequests  *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	analytics       *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	mirrorFallbacks *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	syncRecords     *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	remoteRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpulse_remote_requests_total",
			Help: "CRM API page requests by endpoint and result.",
		},
		[]string{"endpoint", "result"}, // ok | error
	)
	remoteDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailpulse_remote_request_duration_seconds",
			Help:    "CRM API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	analytics := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpulse_analytics_queries_total",
			Help: "Answered analytics queries by data source.",
		},
		[]string{"source"}, // cache | api
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpulse_result_cache_lookups_total",
			Help: "Result cache lookups.",
		},
		[]string{"result"}, // hit | miss | error
	)
	mirrorFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpulse_mirror_fallbacks_total",
			Help: "Queries that fell back from the mirror to the CRM API.",
		},
		[]string{"reason"}, // miss | error | disabled
	)
	syncRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpulse_sync_runs_total",
			Help: "Incremental sync runs by entity and result.",
		},
		[]string{"entity", "result"}, // success | failed | rejected
	)
	syncRecords := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpulse_sync_records_total",
			Help: "Records upserted into the mirror.",
		},
		[]string{"entity"},
	)
	syncDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailpulse_sync_duration_seconds",
			Help:    "Duration of successful sync runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800},
		},
		[]string{"entity"},
	)

	registerer.MustRegister(
		remoteRequests,
		remoteDuration,
		analytics,
		cacheLookups,
		mirrorFallbacks,
		syncRuns,
		syncRecords,
		syncDuration,
	)

	return &Metrics{
		remoteRequests:  remoteRequests,
		remoteDuration:  remoteDuration,
		analytics:       analytics,
		cacheLookups:    cacheLookups,
		mirrorFallbacks: mirrorFallbacks,
		syncRuns:        syncRuns,
		syncRecords:     syncRecords,
		syncDuration:    syncDuration,
	}
}

func (m *Metrics) ObserveRemoteRequest(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.remoteRequests.WithLabelValues(endpoint, result).Inc()
	m.remoteDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) IncAnalytics(source string) {
	if m == nil {
		return
	}
	m.analytics.WithLabelValues(source).Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncMirrorFallback(reason string) {
	if m == nil {
		return
	}
	m.mirrorFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSync(entity, result string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(entity, result).Inc()
	if result != "success" {
		return
	}
	m.syncRecords.WithLabelValues(entity).Add(float64(records))
	m.syncDuration.WithLabelValues(entity).Observe(d.Seconds())
}

package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	pendingDepth   *prometheus.GaugeVec

	foldTotal    *prometheus.CounterVec
	foldDuration prometheus.Histogram

	extractionTotal    *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec

	analysisCallTotal    *prometheus.CounterVec
	analysisCallDuration *prometheus.HistogramVec

	queryTotal    *prometheus.CounterVec
	queryDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "live_sessions_active",
					Help: "Current live session count.",
				},
			),
			sessionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "live_sessions_total",
					Help: "Total live sessions created.",
				},
			),
			pendingDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "pending_descriptions",
					Help: "Scene descriptions awaiting aggregation by session.",
				},
				[]string{"session"},
			),
			foldTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "narrative_folds_total",
					Help: "Total narrative fold operations by status.",
				},
				[]string{"status"},
			),
			foldDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "narrative_fold_duration_seconds",
					Help:    "Narrative fold duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			extractionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "scene_extractions_total",
					Help: "Total scene extractions by media kind and status.",
				},
				[]string{"kind", "status"},
			),
			extractionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "scene_extraction_duration_seconds",
					Help:    "Scene extraction duration in seconds by media kind.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
			analysisCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "analysis_calls_total",
					Help: "Total analysis model calls by operation and status.",
				},
				[]string{"operation", "status"},
			),
			analysisCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "analysis_call_duration_seconds",
					Help:    "Analysis model call duration in seconds by operation.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
				[]string{"operation"},
			),
			queryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "session_queries_total",
					Help: "Total session queries by status.",
				},
				[]string{"status"},
			),
			queryDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_query_duration_seconds",
					Help:    "Session query duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsTotal,
			m.pendingDepth,
			m.foldTotal,
			m.foldDuration,
			m.extractionTotal,
			m.extractionDuration,
			m.analysisCallTotal,
			m.analysisCallDuration,
			m.queryTotal,
			m.queryDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSessionCreated(activeCount int) {
	m := getMetrics()
	m.sessionsTotal.Inc()
	m.activeSessions.Set(float64(activeCount))
}

// SetPendingDepth tracks a session's aggregation backlog. A drained queue
// removes the session's series so the gauge does not accumulate a label
// value per session ever created.
func SetPendingDepth(sessionID string, depth int) {
	m := getMetrics()
	if depth <= 0 {
		m.pendingDepth.DeleteLabelValues(sessionID)
		return
	}
	m.pendingDepth.WithLabelValues(sessionID).Set(float64(depth))
}

func RecordFold(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.foldTotal.WithLabelValues(status).Inc()
	m.foldDuration.Observe(duration.Seconds())
}

func RecordExtraction(kind string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.extractionTotal.WithLabelValues(kind, status).Inc()
	m.extractionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordAnalysisCall(operation string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.analysisCallTotal.WithLabelValues(operation, status).Inc()
	m.analysisCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordQuery(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.queryTotal.WithLabelValues(status).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

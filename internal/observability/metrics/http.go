package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ragOutcomesTotal   *prometheus.CounterVec
	ragRetrievedChunks *prometheus.HistogramVec
	ragConfidence      *prometheus.HistogramVec
	ragDuration        *prometheus.HistogramVec

	reindexRunsTotal *prometheus.CounterVec
	reindexChunks    prometheus.Gauge
	reindexDuration  *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edurag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edurag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edurag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ragOutcomesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edurag",
			Subsystem: "rag",
			Name:      "outcomes_total",
			Help:      "Total answered questions by terminal outcome.",
		},
		[]string{"service", "endpoint", "outcome"},
	)
	ragRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edurag",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retained chunks per question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	ragConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edurag",
			Subsystem: "rag",
			Name:      "confidence",
			Help:      "Distribution of reported answer confidence.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"service", "endpoint"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edurag",
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "End-to-end question answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	reindexRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edurag",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total keyword index rebuilds by trigger and status.",
		},
		[]string{"service", "trigger", "status"},
	)
	reindexChunks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edurag",
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Number of chunks in the current keyword index snapshot.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	reindexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edurag",
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Keyword index rebuild duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "trigger"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragOutcomesTotal,
		ragRetrievedChunks,
		ragConfidence,
		ragDuration,
		reindexRunsTotal,
		reindexChunks,
		reindexDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		ragOutcomesTotal:   ragOutcomesTotal,
		ragRetrievedChunks: ragRetrievedChunks,
		ragConfidence:      ragConfidence,
		ragDuration:        ragDuration,
		reindexRunsTotal:   reindexRunsTotal,
		reindexChunks:      reindexChunks,
		reindexDuration:    reindexDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordAskOutcome records one answered question: its terminal outcome, how
// many chunks backed it, the reported confidence and the total latency.
func (m *HTTPServerMetrics) RecordAskOutcome(service, endpoint, outcome string, chunks int, confidence float64, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.ragOutcomesTotal.WithLabelValues(service, endpoint, outcome).Inc()
	m.ragRetrievedChunks.WithLabelValues(service, endpoint).Observe(float64(chunks))
	m.ragConfidence.WithLabelValues(service, endpoint).Observe(confidence)
	m.ragDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordReindex(service, trigger, status string, chunks int, duration time.Duration) {
	if trigger == "" {
		trigger = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.reindexRunsTotal.WithLabelValues(service, trigger, status).Inc()
	m.reindexDuration.WithLabelValues(service, trigger).Observe(duration.Seconds())
	if status == "ok" {
		m.reindexChunks.Set(float64(chunks))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

const namespace = "pdfconv"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	toolExecTotal      *prometheus.CounterVec
	toolExecDuration   *prometheus.HistogramVec
	sweepDeletedTotal  prometheus.Counter
	sweepFailedTotal   prometheus.Counter
	cleanupFailures    prometheus.Counter
	breakerState       *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	conversionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "conversion",
			Name:        "total",
			Help:        "Finished conversions by operation and status.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)
	conversionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "conversion",
			Name:        "duration_seconds",
			Help:        "Conversion duration in seconds by operation.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	toolExecTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "tool",
			Name:        "executions_total",
			Help:        "External tool executions by tool and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"tool", "outcome"},
	)
	toolExecDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "tool",
			Name:        "execution_duration_seconds",
			Help:        "External tool wall time in seconds.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			ConstLabels: constLabels,
		},
		[]string{"tool"},
	)
	sweepDeletedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "scratch",
			Name:        "sweep_deleted_total",
			Help:        "Expired scratch files removed by the periodic sweep.",
			ConstLabels: constLabels,
		},
	)
	sweepFailedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "scratch",
			Name:        "sweep_failed_total",
			Help:        "Expired scratch files the sweep could not remove.",
			ConstLabels: constLabels,
		},
	)
	cleanupFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "scratch",
			Name:        "cleanup_failures_total",
			Help:        "Scratch file deletions that failed for a reason other than absence.",
			ConstLabels: constLabels,
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "tool",
			Name:        "circuit_state",
			Help:        "Circuit breaker state per guarded operation (0 closed, 1 half-open, 2 open).",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		conversionsTotal,
		conversionDuration,
		toolExecTotal,
		toolExecDuration,
		sweepDeletedTotal,
		sweepFailedTotal,
		cleanupFailures,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		service:            service,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		conversionsTotal:   conversionsTotal,
		conversionDuration: conversionDuration,
		toolExecTotal:      toolExecTotal,
		toolExecDuration:   toolExecDuration,
		sweepDeletedTotal:  sweepDeletedTotal,
		sweepFailedTotal:   sweepFailedTotal,
		cleanupFailures:    cleanupFailures,
		breakerState:       breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		// The mux fills in Pattern, so next must be the mux itself.
		path := "unmatched"
		if r.Pattern != "" {
			path = patternPath(r.Pattern)
		}
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// patternPath strips the method from a ServeMux pattern such as "POST /api/pdf/merge".
func patternPath(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

func (m *HTTPServerMetrics) ObserveConversion(operation, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.conversionsTotal.WithLabelValues(operation, status).Inc()
	m.conversionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveToolExecution(tool, outcome string, duration time.Duration) {
	if tool == "" {
		tool = "unknown"
	}
	m.toolExecTotal.WithLabelValues(tool, outcome).Inc()
	m.toolExecDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveSweep(deleted, failed int) {
	if deleted > 0 {
		m.sweepDeletedTotal.Add(float64(deleted))
	}
	if failed > 0 {
		m.sweepFailedTotal.Add(float64(failed))
	}
}

func (m *HTTPServerMetrics) ObserveCleanupFailure() {
	m.cleanupFailures.Inc()
}

// ObserveBreakerState matches resilience.StateListener.
func (m *HTTPServerMetrics) ObserveBreakerState(operation string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(operation).Set(v)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
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

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

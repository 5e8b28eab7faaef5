package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the journal worker that persists conversion jobs.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	consumeTotal    *prometheus.CounterVec
	consumeDuration *prometheus.HistogramVec
	consumeInFlight prometheus.Gauge
	journalLag      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	consumeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_recorded_total",
			Help:      "Conversion jobs consumed from the bus by result.",
		},
		[]string{"service", "status"},
	)
	consumeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_record_duration_seconds",
			Help:      "Time spent persisting one conversion job.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	consumeInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Conversion jobs being persisted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	journalLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "journal_lag_seconds",
			Help:      "Delay between a conversion finishing and its job being persisted.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(consumeTotal, consumeDuration, consumeInFlight, journalLag)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		consumeTotal:    consumeTotal,
		consumeDuration: consumeDuration,
		consumeInFlight: consumeInFlight,
		journalLag:      journalLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.consumeInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(duration time.Duration, err error) {
	m.consumeInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.consumeTotal.WithLabelValues(m.service, status).Inc()
	m.consumeDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveJournalLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.journalLag.Observe(lag.Seconds())
}

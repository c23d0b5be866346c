// Package metrics exposes slidecast counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slidecast"

// Metrics owns a private registry so tests and multiple daemons in one
// process never collide. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	ingestions      *prometheus.CounterVec
	ingestSlides    prometheus.Histogram
	jobsSubmitted   prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobRetries      prometheus.Counter
	renderDuration  *prometheus.HistogramVec
	queueDepth      *prometheus.GaugeVec
	workersBusy     prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	watchdogActions *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Deck ingestions by result.",
		}, []string{"result"}),
		ingestSlides: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_slides",
			Help:      "Slides per successfully ingested deck.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_jobs_submitted_total",
			Help:      "Render jobs accepted by the controller.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_jobs_finished_total",
			Help:      "Render jobs reaching a terminal status.",
		}, []string{"status"}),
		jobRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_job_retries_total",
			Help:      "Render attempts returned to the queue.",
		}),
		renderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Wall time of render attempts.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"outcome"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages",
			Help:      "Broker messages by state.",
		}, []string{"state"}),
		workersBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_workers_busy",
			Help:      "Render workers currently holding a lease.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		watchdogActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_actions_total",
			Help:      "Repairs made by the render watchdog.",
		}, []string{"action"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Ingested records one ingestion attempt.
func (m *Metrics) Ingested(success bool, slides int) {
	if m == nil {
		return
	}
	if !success {
		m.ingestions.WithLabelValues("failure").Inc()
		return
	}
	m.ingestions.WithLabelValues("success").Inc()
	m.ingestSlides.Observe(float64(slides))
}

// JobSubmitted counts an accepted render job.
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

// JobFinished counts a job reaching status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
}

// JobRetried counts an attempt sent back to the queue.
func (m *Metrics) JobRetried() {
	if m == nil {
		return
	}
	m.jobRetries.Inc()
}

// RenderObserved records the duration of one render attempt.
func (m *Metrics) RenderObserved(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// QueueDepth sets the broker gauges.
func (m *Metrics) QueueDepth(ready, delayed, leased, dead int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("ready").Set(float64(ready))
	m.queueDepth.WithLabelValues("delayed").Set(float64(delayed))
	m.queueDepth.WithLabelValues("leased").Set(float64(leased))
	m.queueDepth.WithLabelValues("dead").Set(float64(dead))
}

// WorkerBusy adjusts the busy worker gauge by delta.
func (m *Metrics) WorkerBusy(delta int) {
	if m == nil {
		return
	}
	m.workersBusy.Add(float64(delta))
}

// HTTPObserved records a served request.
func (m *Metrics) HTTPObserved(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// WatchdogAction counts a watchdog repair.
func (m *Metrics) WatchdogAction(action string) {
	if m == nil {
		return
	}
	m.watchdogActions.WithLabelValues(action).Inc()
}

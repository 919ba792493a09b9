// Package observability exposes Prometheus metrics for allocation and
// balancing work.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Metrics holds the service's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DivisionsTotal     *prometheus.CounterVec
	AdjustedLinesTotal prometheus.Counter
	InvoicesTotal      *prometheus.CounterVec
	JobsTotal          *prometheus.CounterVec
	JobDuration        prometheus.Histogram
	RealtimeEvents     *prometheus.CounterVec
}

// NewMetrics creates and registers every collector, along with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DivisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balancer_divisions_total",
			Help: "Cumulative number of rounded divisions, by outcome.",
		}, []string{"outcome"}),
		AdjustedLinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balancer_adjusted_lines_total",
			Help: "Cumulative number of lines whose amount was rewritten by a division.",
		}),
		InvoicesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balancer_invoices_total",
			Help: "Cumulative number of invoices handled, by status.",
		}, []string{"status"}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balancer_jobs_total",
			Help: "Cumulative number of balance jobs finished, by status.",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "balancer_job_duration_seconds",
			Help:    "Wall time of balance jobs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balancer_realtime_events_total",
			Help: "Cumulative number of realtime events published, by event name.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		m.DivisionsTotal,
		m.AdjustedLinesTotal,
		m.InvoicesTotal,
		m.JobsTotal,
		m.JobDuration,
		m.RealtimeEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDivision counts one division and the lines it rewrote.
func (m *Metrics) ObserveDivision(err error, adjusted int) {
	if m == nil {
		return
	}
	if err != nil {
		m.DivisionsTotal.WithLabelValues(Fail).Inc()
		return
	}
	m.DivisionsTotal.WithLabelValues(Ok).Inc()
	if adjusted > 0 {
		m.AdjustedLinesTotal.Add(float64(adjusted))
	}
}

// ObserveInvoice counts one handled invoice.
func (m *Metrics) ObserveInvoice(status string) {
	if m == nil {
		return
	}
	m.InvoicesTotal.WithLabelValues(status).Inc()
}

// ObserveJob counts a finished job and records how long it ran.
func (m *Metrics) ObserveJob(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

// ObserveEvent counts a published realtime event.
func (m *Metrics) ObserveEvent(name string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(name).Inc()
}

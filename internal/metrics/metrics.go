// Package metrics exports scheduling and report-engine metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is safe to use as a nil pointer; every method is then a no-op.
type Collector struct {
	registry *prometheus.Registry

	conflicts         *prometheus.CounterVec
	timeBlocksWritten *prometheus.CounterVec
	recurrenceSkipped prometheus.Counter

	reportExecutions *prometheus.CounterVec
	reportRecipients *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec
	duePolls         prometheus.Counter
}

func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Rejected schedule writes by operation and competing entity.",
		}, []string{"operation", "kind"}),
		timeBlocksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "time_blocks_written_total",
			Help:      "Time block mutations by operation.",
		}, []string{"operation"}),
		recurrenceSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "scheduling",
			Name:      "recurrence_skipped_dates_total",
			Help:      "Dates dropped from recurring series because of conflicts.",
		}),
		reportExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "reports",
			Name:      "executions_total",
			Help:      "Scheduled report executions by final status.",
		}, []string{"status"}),
		reportRecipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "reports",
			Name:      "recipients_total",
			Help:      "Report email deliveries by outcome.",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "reports",
			Name:      "execution_duration_seconds",
			Help:      "Wall time of scheduled report executions.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"format"}),
		duePolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "reports",
			Name:      "due_polls_total",
			Help:      "Due-report poll cycles.",
		}),
	}

	registry.MustRegister(
		c.conflicts,
		c.timeBlocksWritten,
		c.recurrenceSkipped,
		c.reportExecutions,
		c.reportRecipients,
		c.reportDuration,
		c.duePolls,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Conflict(operation, kind string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(operation, kind).Inc()
}

func (c *Collector) TimeBlocksWritten(operation string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.timeBlocksWritten.WithLabelValues(operation).Add(float64(n))
}

func (c *Collector) RecurrenceSkipped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.recurrenceSkipped.Add(float64(n))
}

func (c *Collector) ReportExecuted(status, format string, sent, failed int, took time.Duration) {
	if c == nil {
		return
	}
	c.reportExecutions.WithLabelValues(status).Inc()
	if sent > 0 {
		c.reportRecipients.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		c.reportRecipients.WithLabelValues("failed").Add(float64(failed))
	}
	c.reportDuration.WithLabelValues(format).Observe(took.Seconds())
}

func (c *Collector) DuePoll() {
	if c == nil {
		return
	}
	c.duePolls.Inc()
}

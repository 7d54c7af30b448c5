// Package metrics exposes runtime activity as Prometheus collectors, fed by
// the lifecycle hooks of the engine and the audit.
package metrics

import (
	"context"
	"net/http"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autotron"

// Metrics owns a private registry so several runtimes (and tests) can coexist.
type Metrics struct {
	registry *prometheus.Registry

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	nodeErrors   *prometheus.CounterVec
	commands     *prometheus.CounterVec
	audits       prometheus.Counter
	auditResults *prometheus.GaugeVec
}

// New creates the collectors. Go runtime and process collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total completed graph ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of the synchronous tick pass",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Node compute failures by node type",
		}, []string{"node_type"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands by outcome (sent, retry, suppressed)",
		}, []string{"outcome"}),
		audits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Completed device audit passes",
		}),
		auditResults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_entities",
			Help:      "Entities in the last audit by result (ok, mismatch, unknown)",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.nodeErrors,
		m.commands,
		m.audits,
		m.auditResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTick: func(ctx context.Context, e *domain.TickEvent) {
			m.ticks.Inc()
			m.tickDuration.Observe(e.Duration.Seconds())
		},
		OnNodeError: func(ctx context.Context, e *domain.NodeErrorEvent) {
			m.nodeErrors.WithLabelValues(e.NodeType).Inc()
		},
		OnCommand: func(ctx context.Context, e *domain.CommandEvent) {
			switch {
			case e.Suppressed:
				m.commands.WithLabelValues("suppressed").Inc()
			case e.Retry:
				m.commands.WithLabelValues("retry").Inc()
			default:
				m.commands.WithLabelValues("sent").Inc()
			}
		},
		OnAudit: func(ctx context.Context, e *domain.AuditEvent) {
			m.audits.Inc()
			r := e.Report
			m.auditResults.WithLabelValues("ok").Set(float64(r.Checked - r.Mismatched - r.Unknown))
			m.auditResults.WithLabelValues("mismatch").Set(float64(r.Mismatched))
			m.auditResults.WithLabelValues("unknown").Set(float64(r.Unknown))
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus registry + instrument set served at /metrics.
// The App builds it and hands it to the check-in service, which records
// governance decisions; the dispatch pipeline is not given it, so tool
// calls are not recorded. A dedicated type (rather than package-level globals) keeps multiple
// Apps in the same test process from clobbering each other's counters.
type Metrics struct {
	Registry *prometheus.Registry

	ToolCalls     *prometheus.CounterVec
	ToolErrors    *prometheus.CounterVec
	ToolDuration  *prometheus.HistogramVec
	ActiveAgents  prometheus.Gauge
	GovernanceDec *prometheus.CounterVec
}

// NewMetrics builds a Metrics set registered against a fresh registry.
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		Registry: reg,
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "unitares_tool_calls_total",
			Help:        "Total dispatch tool invocations, by tool name.",
			ConstLabels: constLabels,
		}, []string{"tool"}),
		ToolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "unitares_tool_errors_total",
			Help:        "Total dispatch tool invocations that returned an error envelope, by tool name and error code.",
			ConstLabels: constLabels,
		}, []string{"tool", "error_code"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "unitares_tool_duration_seconds",
			Help:        "Dispatch tool handler latency, by tool name.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"tool"}),
		ActiveAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "unitares_active_agents",
			Help:        "Distinct agent identities seen in the current process lifetime.",
			ConstLabels: constLabels,
		}),
		GovernanceDec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "unitares_governance_decisions_total",
			Help:        "Governance decisions issued by process_agent_update, by decision.",
			ConstLabels: constLabels,
		}, []string{"decision"}),
	}

	reg.MustRegister(m.ToolCalls, m.ToolErrors, m.ToolDuration, m.ActiveAgents, m.GovernanceDec)
	return m
}

// RecordCall observes one tool invocation's outcome and latency.
func (m *Metrics) RecordCall(tool string, duration time.Duration, errorCode string) {
	m.ToolCalls.WithLabelValues(tool).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if errorCode != "" {
		m.ToolErrors.WithLabelValues(tool, errorCode).Inc()
	}
}

// RecordDecision tallies a governance decision by name.
func (m *Metrics) RecordDecision(decision string) {
	m.GovernanceDec.WithLabelValues(decision).Inc()
}

// SetActiveAgents reports the current distinct-agent count; the caller
// (the orchestration layer, which already holds the agent's identity row)
// owns counting distinct agents rather than this package re-deriving it.
func (m *Metrics) SetActiveAgents(count int) {
	m.ActiveAgents.Set(float64(count))
}

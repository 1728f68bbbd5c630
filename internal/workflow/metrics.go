package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "architect_stage_runs_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage", "status"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "architect_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	agentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "architect_agent_executions_total",
			Help: "Total number of agent invocations",
		},
		[]string{"agent", "status"}, // status: success, error, skipped
	)

	agentDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "architect_agent_duration_seconds",
			Help:    "Agent invocation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	gateResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "architect_gate_resolutions_total",
			Help: "Total number of gate approval records written",
		},
		[]string{"gate", "approved"},
	)
)

// AgentUsage is the in-memory aggregate for one agent identifier.
type AgentUsage struct {
	Calls      int   `json:"calls"`
	Failures   int   `json:"failures"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// MetricsCollector aggregates per-agent usage, persists entries through the
// run store, and feeds the Prometheus collectors.
type MetricsCollector struct {
	mu      sync.Mutex
	store   RunStore
	bus     *EventBus
	byAgent map[string]AgentUsage
}

// NewMetricsCollector creates a collector. Both store and bus may be nil.
func NewMetricsCollector(store RunStore, bus *EventBus) *MetricsCollector {
	return &MetricsCollector{
		store:   store,
		bus:     bus,
		byAgent: make(map[string]AgentUsage),
	}
}

// RecordAgent logs a single agent invocation.
func (mc *MetricsCollector) RecordAgent(entry MetricsEntry) {
	mc.mu.Lock()
	usage := mc.byAgent[entry.Agent]
	usage.Calls++
	usage.DurationMS += entry.DurationMS
	switch entry.Status {
	case StatusError:
		usage.Failures++
	case StatusSkipped:
		usage.Skipped++
	}
	mc.byAgent[entry.Agent] = usage
	mc.mu.Unlock()

	agentExecutionsTotal.WithLabelValues(entry.Agent, string(entry.Status)).Inc()
	agentDurationSeconds.WithLabelValues(entry.Agent).Observe(float64(entry.DurationMS) / 1000)

	if mc.store != nil {
		mc.store.RecordMetric(entry)
	}
}

// RecordStage logs the duration and terminal status of a stage execution.
func (mc *MetricsCollector) RecordStage(stageName string, status string, elapsed time.Duration) {
	stageRunsTotal.WithLabelValues(stageName, status).Inc()
	stageDurationSeconds.WithLabelValues(stageName).Observe(elapsed.Seconds())
}

// RecordGate logs a gate resolution.
func (mc *MetricsCollector) RecordGate(gateID string, approved bool) {
	label := "false"
	if approved {
		label = "true"
	}
	gateResolutionsTotal.WithLabelValues(gateID, label).Inc()
}

// ByAgent returns a copy of the per-agent aggregates.
func (mc *MetricsCollector) ByAgent() map[string]AgentUsage {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make(map[string]AgentUsage, len(mc.byAgent))
	for k, v := range mc.byAgent {
		out[k] = v
	}
	return out
}

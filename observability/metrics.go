package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// overflowLabel is the bucket cardinality-capped label values collapse
// into once a metric's distinct-label budget is exhausted (spec §4.11).
const overflowLabel = "__other__"

// cappedLabel caps the number of distinct values a single label may take
// per metric, aggregating overflow into overflowLabel and counting drops.
// The teacher's own Prometheus wiring (pkg/observability) does not cap
// cardinality; this logic is new in this module (see DESIGN.md) because
// the spec explicitly calls out a default cap of 100 with an overflow
// bucket and a per-label drop counter.
type cappedLabel struct {
	mu    sync.Mutex
	cap   int
	seen  map[string]struct{}
	drops *prometheus.CounterVec
}

func newCappedLabel(cap int, drops *prometheus.CounterVec) *cappedLabel {
	if cap <= 0 {
		cap = 100
	}
	return &cappedLabel{cap: cap, seen: make(map[string]struct{}), drops: drops}
}

func (c *cappedLabel) resolve(metricName, value string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[value]; ok {
		return value
	}
	if len(c.seen) < c.cap {
		c.seen[value] = struct{}{}
		return value
	}
	if c.drops != nil {
		c.drops.WithLabelValues(metricName).Inc()
	}
	return overflowLabel
}

// Metrics bundles the Prometheus counters/histograms/gauges spec §4.11
// names, each registered against its own registry so multiple Metrics
// instances (e.g. in tests) never collide on the default global registry.
type Metrics struct {
	Registry *prometheus.Registry

	AgentExecutions   *prometheus.CounterVec
	AgentErrors       *prometheus.CounterVec
	AgentDuration     *prometheus.HistogramVec
	MessageQueueDepth *prometheus.GaugeVec
	ToolInvocations   *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	CompressorOps     *prometheus.CounterVec
	ScriptOperations  *prometheus.CounterVec
	CardinalityDrops  *prometheus.CounterVec

	agentLabels *cappedLabel
	toolLabels  *cappedLabel
}

// MetricsConfig configures cardinality caps for label values.
type MetricsConfig struct {
	// MaxLabelCardinality bounds distinct values per capped label
	// (agent name, tool name). Default 100 per spec §4.11.
	MaxLabelCardinality int
}

// NewMetrics constructs and registers a fresh set of metrics.
func NewMetrics(cfg MetricsConfig) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		AgentExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_agent_executions_total",
			Help: "Total agent Execute invocations.",
		}, []string{"agent"}),
		AgentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_agent_errors_total",
			Help: "Total agent Execute failures.",
		}, []string{"agent", "kind"}),
		AgentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "synapse_agent_execute_duration_seconds",
			Help: "Agent Execute duration.",
		}, []string{"agent"}),
		MessageQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synapse_mailbox_depth",
			Help: "Current mailbox depth per agent.",
		}, []string{"agent"}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_tool_invocations_total",
			Help: "Total tool invocations.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "synapse_tool_invoke_duration_seconds",
			Help: "Tool invocation duration.",
		}, []string{"tool"}),
		CompressorOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_compressor_operations_total",
			Help: "Total compression operations by strategy.",
		}, []string{"strategy"}),
		ScriptOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_script_operations_total",
			Help: "Total script-engine opcode-budget consumption events.",
		}, []string{"plugin"}),
		CardinalityDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_label_cardinality_drops_total",
			Help: "Label values collapsed into __other__ after exceeding the cardinality cap.",
		}, []string{"metric"}),
	}

	m.agentLabels = newCappedLabel(cfg.MaxLabelCardinality, m.CardinalityDrops)
	m.toolLabels = newCappedLabel(cfg.MaxLabelCardinality, m.CardinalityDrops)

	reg.MustRegister(
		m.AgentExecutions, m.AgentErrors, m.AgentDuration, m.MessageQueueDepth,
		m.ToolInvocations, m.ToolDuration, m.CompressorOps, m.ScriptOperations,
		m.CardinalityDrops,
	)
	return m
}

// AgentLabel resolves an agent name through the cardinality cap shared by
// every agent-labeled metric.
func (m *Metrics) AgentLabel(name string) string {
	return m.agentLabels.resolve("agent", name)
}

// ToolLabel resolves a tool name through the cardinality cap shared by
// every tool-labeled metric.
func (m *Metrics) ToolLabel(name string) string {
	return m.toolLabels.resolve("tool", name)
}

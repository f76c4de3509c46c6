// Package kernel wires every component into one runtime instance, the way
// the teacher's component package wires LLM/database/embedder/tool
// registries behind a single ComponentManager. Kernel plays the same role
// here: one place that owns the bus, the agent and tool registries, the
// plugin manager, the reasoning client, and the observability stack, and
// hands runners/coordination patterns whatever slice of that they need.
package kernel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/bus"
	"github.com/synapse-run/synapse/compression"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/coordinate"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/plugin"
	"github.com/synapse-run/synapse/reasoning"
	"github.com/synapse-run/synapse/registry"
	"github.com/synapse-run/synapse/runner"
	"github.com/synapse-run/synapse/session"
	"github.com/synapse-run/synapse/synapseerr"
	"github.com/synapse-run/synapse/tool"
)

const component = "kernel"

// Config configures Kernel construction. Every field is optional; zero
// values fall back to the same defaults each component applies on its
// own (NopEmitter, 64-message mailboxes, no rate limiting).
type Config struct {
	Bus             bus.Config
	Tool            tool.Config
	Metrics         observability.MetricsConfig
	Emitter         observability.Emitter
	Logger          *slog.Logger
	Reasoning       reasoning.Client
	RunnerTimeout   runner.Config
	SessionStore    session.Store
	CompressionMode compression.Config
}

func (c *Config) setDefaults() {
	if c.Emitter == nil {
		c.Emitter = observability.NopEmitter{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Reasoning == nil {
		c.Reasoning = reasoning.NewStub()
	}
}

// Kernel is the microkernel runtime: the fixed set of components every
// agent, tool, plugin, and coordination pattern is built from. It holds
// no agent-specific state of its own — that lives in the runners it
// creates and the sessions callers open.
type Kernel struct {
	cfg Config

	bus        *bus.Bus
	agents     *agent.Registry
	tools      *tool.Registry
	plugins    *plugin.Manager
	reasoning  reasoning.Client
	compressor *compression.Compressor
	metrics    *observability.Metrics

	// runners is guarded the same way agent.Registry and tool.Registry are
	// (single-writer, many-reader, via registry.Registry's RWMutex):
	// Spawn/Runner/Shutdown/Dispatch can race from different goroutines
	// under the spec's multi-threaded concurrency model.
	runners *registry.Registry[*runner.Runner]
}

// New constructs a Kernel with all components initialized and wired
// together, mirroring the teacher's NewComponentManager sequencing:
// build the leaf registries first, then anything that composes them.
func New(cfg Config) *Kernel {
	cfg.setDefaults()

	metrics := observability.NewMetrics(cfg.Metrics)
	cfg.Tool.Emitter = cfg.Emitter
	cfg.Tool.Metrics = metrics
	cfg.CompressionMode.Reasoning = cfg.Reasoning
	cfg.CompressionMode.Emitter = cfg.Emitter
	cfg.CompressionMode.Metrics = metrics

	k := &Kernel{
		cfg:        cfg,
		bus:        bus.New(cfg.Bus),
		agents:     agent.NewRegistry(),
		tools:      tool.NewRegistry(cfg.Tool),
		plugins:    plugin.NewManager(cfg.Emitter),
		reasoning:  cfg.Reasoning,
		compressor: compression.New(cfg.CompressionMode),
		metrics:    metrics,
		runners:    registry.New[*runner.Runner](),
	}
	return k
}

// Bus returns the message bus shared by every runner.
func (k *Kernel) Bus() *bus.Bus { return k.bus }

// Agents returns the agent registry.
func (k *Kernel) Agents() *agent.Registry { return k.agents }

// Tools returns the tool registry and dispatcher.
func (k *Kernel) Tools() *tool.Registry { return k.tools }

// Plugins returns the plugin manager.
func (k *Kernel) Plugins() *plugin.Manager { return k.plugins }

// Reasoning returns the configured reasoning-service client.
func (k *Kernel) Reasoning() reasoning.Client { return k.reasoning }

// Compressor returns the context compression engine.
func (k *Kernel) Compressor() *compression.Compressor { return k.compressor }

// Metrics returns the Prometheus metric set every component records
// against.
func (k *Kernel) Metrics() *observability.Metrics { return k.metrics }

// NewSession opens a Session under the kernel's configured Store (if
// any). The Session holds no compressor of its own: View callers pass one
// explicitly (for example k.Compressor()).
func (k *Kernel) NewSession(id string) *session.Session {
	if k.cfg.SessionStore == nil {
		return session.New(id)
	}
	return session.NewWithStore(id, k.cfg.SessionStore)
}

// Spawn registers ag, wraps it in a Runner, initializes it, and installs
// its mailbox on the bus — the sequence a caller needs before the agent
// can receive Execute/HandleMessage calls.
func (k *Kernel) Spawn(ctx context.Context, ag agent.Agent) (*runner.Runner, error) {
	if err := k.agents.Register(ag); err != nil {
		return nil, fmt.Errorf("kernel: register agent: %w", err)
	}

	rc := k.cfg.RunnerTimeout
	rc.Emitter = k.cfg.Emitter
	rc.Metrics = k.metrics
	rc.Logger = k.cfg.Logger
	r := runner.New(ag, rc)
	if err := r.Initialize(ctx); err != nil {
		_ = k.agents.Unregister(ag.ID())
		return nil, fmt.Errorf("kernel: initialize agent %q: %w", ag.ID(), err)
	}

	inbox := k.bus.Register(bus.AgentID(ag.ID()))
	r.Start(ctx, inbox)

	if err := k.runners.Register(string(ag.ID()), r); err != nil {
		return nil, fmt.Errorf("kernel: register runner: %w", err)
	}
	return r, nil
}

// Runner returns the runner owning id, if one has been Spawned.
func (k *Kernel) Runner(id agent.ID) (*runner.Runner, bool) {
	return k.runners.Get(string(id))
}

// Shutdown shuts down every spawned runner and unregisters its mailbox.
func (k *Kernel) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, id := range k.runners.Names() {
		r, ok := k.runners.Get(id)
		if !ok {
			continue
		}
		if err := r.Shutdown(ctx, false); err != nil && firstErr == nil {
			firstErr = err
		}
		k.bus.Unregister(bus.AgentID(id))
	}
	return firstErr
}

// Dispatch implements coordinate.Dispatcher by routing to the runner
// owning id, so every coordination pattern in the coordinate package can
// run directly against a Kernel.
func (k *Kernel) Dispatch(ctx context.Context, id agent.ID, in content.AgentInput) (content.AgentOutput, error) {
	r, ok := k.runners.Get(string(id))
	if !ok {
		return content.AgentOutput{}, synapseerr.New(component, synapseerr.KindNotFound, "no runner spawned for agent \""+string(id)+"\"")
	}
	return r.Execute(ctx, in)
}

var _ coordinate.Dispatcher = (*Kernel)(nil)

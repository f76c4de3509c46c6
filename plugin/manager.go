package plugin

import (
	"context"
	"sync"

	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/registry"
)

const component = "plugin"

// Manager owns every registered Plugin's lifecycle and the ordered hook
// chains agents run through (spec §4.6). One Manager serves the whole
// runtime; chains are keyed by an arbitrary chain name (typically an
// agent name) so different agents can compose different plugin sets from
// the same loaded Plugin instances.
type Manager struct {
	base    *registry.Registry[Plugin]
	emitter observability.Emitter

	mu     sync.RWMutex
	chains map[string][]string // chain name -> ordered plugin names
}

// NewManager constructs an empty Manager.
func NewManager(emitter observability.Emitter) *Manager {
	if emitter == nil {
		emitter = observability.NopEmitter{}
	}
	return &Manager{base: registry.New[Plugin](), emitter: emitter, chains: make(map[string][]string)}
}

// Load installs p, running its Load and Initialize lifecycle steps.
// Start is deferred to a separate call so managers can load a batch of
// plugins before activating any of them.
func (m *Manager) Load(ctx context.Context, p Plugin, config map[string]any) error {
	if err := p.Load(ctx); err != nil {
		return newError(p.Name(), "load", "load failed", err)
	}
	if err := p.Initialize(ctx, config); err != nil {
		return newError(p.Name(), "initialize", "initialize failed", err)
	}
	if err := m.base.Register(p.Name(), p); err != nil {
		return newError(p.Name(), "load", "duplicate plugin name", err)
	}
	m.emit(ctx, "plugin_loaded", p.Name())
	return nil
}

// Start activates a loaded plugin.
func (m *Manager) Start(ctx context.Context, name string) error {
	p, ok := m.base.Get(name)
	if !ok {
		return newError(name, "start", "not loaded", nil)
	}
	if err := p.Start(ctx); err != nil {
		return newError(name, "start", "start failed", err)
	}
	m.emit(ctx, "plugin_started", name)
	return nil
}

// Stop deactivates a running plugin without unloading it.
func (m *Manager) Stop(ctx context.Context, name string) error {
	p, ok := m.base.Get(name)
	if !ok {
		return newError(name, "stop", "not loaded", nil)
	}
	if err := p.Stop(ctx); err != nil {
		return newError(name, "stop", "stop failed", err)
	}
	m.emit(ctx, "plugin_stopped", name)
	return nil
}

// Unload stops (if active) and removes p from the manager, and from every
// chain referencing it.
func (m *Manager) Unload(ctx context.Context, name string) error {
	p, ok := m.base.Get(name)
	if !ok {
		return newError(name, "unload", "not loaded", nil)
	}
	if p.Status() == StatusActive {
		if err := p.Stop(ctx); err != nil {
			return newError(name, "unload", "stop failed", err)
		}
	}
	if err := p.Unload(ctx); err != nil {
		return newError(name, "unload", "unload failed", err)
	}
	if err := m.base.Remove(name); err != nil {
		return newError(name, "unload", "remove failed", err)
	}

	m.mu.Lock()
	for chain, names := range m.chains {
		m.chains[chain] = removeName(names, name)
	}
	m.mu.Unlock()

	m.emit(ctx, "plugin_unloaded", name)
	return nil
}

func removeName(names []string, target string) []string {
	out := names[:0]
	for _, n := range names {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}

// Compose installs chainName as an ordered list of already-loaded plugin
// names. Calling Compose again replaces the chain.
func (m *Manager) Compose(chainName string, pluginNames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(pluginNames))
	copy(cp, pluginNames)
	m.chains[chainName] = cp
}

// Chain returns the live, ordered Plugin chain for chainName. Plugins
// unloaded since Compose was called are silently skipped.
func (m *Manager) Chain(chainName string) []Plugin {
	m.mu.RLock()
	names := append([]string(nil), m.chains[chainName]...)
	m.mu.RUnlock()

	out := make([]Plugin, 0, len(names))
	for _, n := range names {
		if p, ok := m.base.Get(n); ok {
			out = append(out, p)
		}
	}
	return out
}

// RunBefore applies chainName's BeforeExecute hooks in registration order.
// If any hook errors, the error is routed through RunError and returned.
func (m *Manager) RunBefore(ctx context.Context, chainName string, in content.AgentInput) (content.AgentInput, error) {
	chain := m.Chain(chainName)
	for _, p := range chain {
		var err error
		in, err = p.BeforeExecute(ctx, in)
		if err != nil {
			return in, m.RunError(ctx, chainName, err)
		}
	}
	return in, nil
}

// RunAfter applies chainName's AfterExecute hooks in reverse registration
// order, per spec §4.6.
func (m *Manager) RunAfter(ctx context.Context, chainName string, out content.AgentOutput) (content.AgentOutput, error) {
	chain := m.Chain(chainName)
	for i := len(chain) - 1; i >= 0; i-- {
		var err error
		out, err = chain[i].AfterExecute(ctx, out)
		if err != nil {
			return out, m.RunError(ctx, chainName, err)
		}
	}
	return out, nil
}

// RunError threads err through chainName's OnError hooks in reverse
// registration order; each hook may convert or swallow (return nil) it.
func (m *Manager) RunError(ctx context.Context, chainName string, err error) error {
	chain := m.Chain(chainName)
	for i := len(chain) - 1; i >= 0; i-- {
		if err == nil {
			return nil
		}
		err = chain[i].OnError(ctx, err)
	}
	return err
}

func (m *Manager) emit(ctx context.Context, name, plugin string) {
	m.emitter.Emit(ctx, observability.New(observability.CategoryPlugin, name, map[string]any{"plugin": plugin}))
}

package agent

import (
	"sync"

	"github.com/synapse-run/synapse/registry"
	"github.com/synapse-run/synapse/synapseerr"
)

const component = "agent_registry"

// Registry is C3: register/lookup agents by id, tag, or capability, safe
// under concurrent registration and lookup with snapshot enumeration.
type Registry struct {
	base *registry.Registry[Agent]

	mu       sync.RWMutex
	byTag    map[string]map[ID]bool
	byInput  map[string]map[ID]bool
	byOutput map[string]map[ID]bool
}

// NewRegistry constructs an empty agent Registry.
func NewRegistry() *Registry {
	return &Registry{
		base:     registry.New[Agent](),
		byTag:    make(map[string]map[ID]bool),
		byInput:  make(map[string]map[ID]bool),
		byOutput: make(map[string]map[ID]bool),
	}
}

// Register installs a into the registry, indexing it by its declared tags
// and input/output kind for FindByTag/FindByCapability queries.
func (r *Registry) Register(a Agent) error {
	if err := r.base.Register(string(a.ID()), a); err != nil {
		return err
	}

	caps := a.Capabilities()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range caps.Tags {
		if r.byTag[tag] == nil {
			r.byTag[tag] = make(map[ID]bool)
		}
		r.byTag[tag][a.ID()] = true
	}
	if caps.InputKind != "" {
		if r.byInput[caps.InputKind] == nil {
			r.byInput[caps.InputKind] = make(map[ID]bool)
		}
		r.byInput[caps.InputKind][a.ID()] = true
	}
	if caps.OutputKind != "" {
		if r.byOutput[caps.OutputKind] == nil {
			r.byOutput[caps.OutputKind] = make(map[ID]bool)
		}
		r.byOutput[caps.OutputKind][a.ID()] = true
	}
	return nil
}

// Unregister removes id from every index.
func (r *Registry) Unregister(id ID) error {
	if err := r.base.Remove(string(id)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ids := range r.byTag {
		delete(ids, id)
	}
	for _, ids := range r.byInput {
		delete(ids, id)
	}
	for _, ids := range r.byOutput {
		delete(ids, id)
	}
	return nil
}

// Lookup returns the agent registered under id.
func (r *Registry) Lookup(id ID) (Agent, bool) {
	return r.base.Get(string(id))
}

// MustLookup returns the agent registered under id, or a NotFound error.
func (r *Registry) MustLookup(id ID) (Agent, error) {
	a, ok := r.Lookup(id)
	if !ok {
		return nil, synapseerr.New(component, synapseerr.KindNotFound, "agent \""+string(id)+"\" not found")
	}
	return a, nil
}

// FindByTag returns every registered agent advertising tag, as a snapshot.
func (r *Registry) FindByTag(tag string) []Agent {
	r.mu.RLock()
	ids := r.byTag[tag]
	snapshot := make([]ID, 0, len(ids))
	for id := range ids {
		snapshot = append(snapshot, id)
	}
	r.mu.RUnlock()

	out := make([]Agent, 0, len(snapshot))
	for _, id := range snapshot {
		if a, ok := r.Lookup(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// FindByCapability returns every registered agent whose InputKind/OutputKind
// match the given non-empty filters; an empty filter matches any value.
func (r *Registry) FindByCapability(inputKind, outputKind string) []Agent {
	r.mu.RLock()
	var candidates map[ID]bool
	switch {
	case inputKind != "" && outputKind != "":
		candidates = intersect(r.byInput[inputKind], r.byOutput[outputKind])
	case inputKind != "":
		candidates = r.byInput[inputKind]
	case outputKind != "":
		candidates = r.byOutput[outputKind]
	}
	snapshot := make([]ID, 0, len(candidates))
	for id := range candidates {
		snapshot = append(snapshot, id)
	}
	r.mu.RUnlock()

	if inputKind == "" && outputKind == "" {
		out := make([]Agent, 0)
		for _, a := range r.base.List() {
			out = append(out, a)
		}
		return out
	}

	out := make([]Agent, 0, len(snapshot))
	for _, id := range snapshot {
		if a, ok := r.Lookup(id); ok {
			out = append(out, a)
		}
	}
	return out
}

func intersect(a, b map[ID]bool) map[ID]bool {
	out := make(map[ID]bool)
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

// List returns a snapshot of every registered agent.
func (r *Registry) List() []Agent {
	return r.base.List()
}

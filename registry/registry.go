// Package registry provides the generic single-writer/many-reader
// registry used by C3 (agent registry) and C5 (tool registry), grounded on
// the same generic-map-plus-RWMutex shape throughout the runtime so every
// "register/lookup/remove" component behaves identically under
// concurrency.
package registry

import (
	"sync"

	"github.com/synapse-run/synapse/synapseerr"
)

const component = "registry"

// Registry is a name-keyed collection safe for concurrent
// registration/lookup; List returns a point-in-time snapshot.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// New constructs an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register installs item under name. Re-registering an existing name
// fails — callers that want replace-semantics should Remove first.
func (r *Registry[T]) Register(name string, item T) error {
	if name == "" {
		return synapseerr.New(component, synapseerr.KindValidation, "name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return synapseerr.New(component, synapseerr.KindValidation, "item \""+name+"\" already registered")
	}
	r.items[name] = item
	return nil
}

// Get returns the item registered under name, if any.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[name]
	return item, ok
}

// Remove deletes the item registered under name.
func (r *Registry[T]) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[name]; !exists {
		return synapseerr.New(component, synapseerr.KindNotFound, "item \""+name+"\" not found")
	}
	delete(r.items, name)
	return nil
}

// List returns a snapshot of every registered item, in no particular
// order.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]T, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items
}

// Names returns a snapshot of every registered name.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered items.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

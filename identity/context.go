// Package identity implements C1: execution identity and the per-invocation
// scoped key/value store carried through a call tree (spec §4.1).
package identity

import (
	"sync"

	"github.com/google/uuid"
)

// ExecutionContext is the per-invocation record passed to agent, tool,
// plugin, and coordination calls. Its key/value store is safe for
// concurrent access from the agent and from plugins running within the
// same execution; writes are last-writer-wins and readers observe a
// consistent snapshot of the single key they request.
type ExecutionContext struct {
	executionID string
	sessionID   string
	tenantID    string
	userID      string

	mu    sync.RWMutex
	store map[string]any
}

// New creates a root ExecutionContext with a freshly minted execution id.
func New() *ExecutionContext {
	return &ExecutionContext{
		executionID: uuid.NewString(),
		store:       make(map[string]any),
	}
}

// NewWithSession creates a root ExecutionContext scoped to an existing
// session id.
func NewWithSession(sessionID string) *ExecutionContext {
	ec := New()
	ec.sessionID = sessionID
	return ec
}

func (ec *ExecutionContext) ExecutionID() string { return ec.executionID }
func (ec *ExecutionContext) SessionID() string    { return ec.sessionID }
func (ec *ExecutionContext) TenantID() string     { return ec.tenantID }
func (ec *ExecutionContext) UserID() string       { return ec.userID }

// WithTenant returns ec with the tenant tag set. Mutates and returns ec for
// convenient chaining at construction time.
func (ec *ExecutionContext) WithTenant(tenantID string) *ExecutionContext {
	ec.tenantID = tenantID
	return ec
}

// WithUser returns ec with the user tag set.
func (ec *ExecutionContext) WithUser(userID string) *ExecutionContext {
	ec.userID = userID
	return ec
}

// Get returns the value stored under key and whether it was present.
func (ec *ExecutionContext) Get(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.store[key]
	return v, ok
}

// Set stores value under key. Concurrent writers race last-writer-wins, as
// specified.
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.store[key] = value
}

// Child derives a new ExecutionContext sharing the same session/tenant/user
// tags but with its own execution id and an independent copy of the
// current key/value snapshot, so that nested operations cannot corrupt the
// parent's store.
func (ec *ExecutionContext) Child() *ExecutionContext {
	ec.mu.RLock()
	snapshot := make(map[string]any, len(ec.store))
	for k, v := range ec.store {
		snapshot[k] = v
	}
	ec.mu.RUnlock()

	return &ExecutionContext{
		executionID: uuid.NewString(),
		sessionID:   ec.sessionID,
		tenantID:    ec.tenantID,
		userID:      ec.userID,
		store:       snapshot,
	}
}

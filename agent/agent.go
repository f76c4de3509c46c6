// Package agent defines C4's contract: the Agent interface, its state
// machine (spec §4.2), and the capability descriptor that governs how a
// runner dispatches to it.
//
// Following spec §9's re-architecture note, there is no inheritance
// hierarchy here: Agent is a small core interface, and the optional
// Pausable/MessageHandler/EventHandler/Recoverable interfaces are
// capability interfaces an implementation may additionally satisfy. A
// runner type-asserts for them rather than requiring a base class.
package agent

import (
	"context"

	"github.com/synapse-run/synapse/bus"
	"github.com/synapse-run/synapse/content"
)

// ID identifies an agent, stable and unique within a runtime instance.
type ID = bus.AgentID

// State is the tagged variant from spec §4.2.
type State string

const (
	StateCreated   State = "created"
	StateReady     State = "ready"
	StateExecuting State = "executing"
	StatePaused    State = "paused"
	StateError     State = "error"
	StateShutdown  State = "shutdown"
)

// Capabilities is the immutable static descriptor of what an agent accepts
// and advertises (spec §3).
type Capabilities struct {
	Tags               []string
	InputKind          string
	OutputKind         string
	MaxConcurrency     int // 0 or 1 means strictly serial.
	StreamingSupported bool
	// QueueMessages records the agent's preferred dispatch mode for
	// inbound bus messages. runner.Runner does not read it: whatever its
	// value, the runner queues inbound messages and processes them in
	// receive order, one at a time, between executes; it has no
	// synchronous dispatch mode.
	QueueMessages bool
}

// Serial reports whether the agent must never have more than one
// concurrent Execute/HandleMessage call in flight.
func (c Capabilities) Serial() bool {
	return c.MaxConcurrency <= 1
}

// HasTag reports whether tag is among c.Tags.
func (c Capabilities) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Agent is the core trait every agent implementation satisfies.
type Agent interface {
	ID() ID
	Name() string
	Capabilities() Capabilities
	State() State

	// Initialize is called at most once, before the first Execute. On
	// success it transitions Created -> Ready.
	Initialize(ctx context.Context) error

	// Execute is the main operation. Transitions Ready -> Executing ->
	// Ready (or -> Error on failure).
	Execute(ctx context.Context, input content.AgentInput) (content.AgentOutput, error)

	// Shutdown is idempotent and terminal: any state -> Shutdown.
	Shutdown(ctx context.Context) error
}

// Pausable is an optional capability interface for agents that support
// Ready <-> Paused transitions.
type Pausable interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// MessageHandler is an optional capability interface for agents that
// accept push-delivered bus messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg bus.Message) error
}

// Event is a runtime-originated notification an agent may opt into
// receiving via EventHandler (e.g. coordination round boundaries).
type Event struct {
	Name string
	Data map[string]any
}

// EventHandler is an optional capability interface for agents that react
// to runtime events distinct from bus messages.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// Recoverable is an optional capability interface for agents with custom
// recovery logic; when absent, the runner's default recovery simply
// transitions Error -> Ready without invoking agent code.
type Recoverable interface {
	Recover(ctx context.Context, reason error) error
}

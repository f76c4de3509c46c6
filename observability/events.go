// Package observability implements C11: structured event emission and
// per-operation metrics (spec §4.11). Events are emitted synchronously:
// each Emitter here handles the event inline in Emit (logging, recording
// or discarding it), with no buffering and no dropping.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Category groups events by the component table in spec §4.11.
type Category string

const (
	CategoryAgentLifecycle Category = "agent_lifecycle"
	CategoryAgentExecution Category = "agent_execution"
	CategoryMessage        Category = "message"
	CategoryTool           Category = "tool"
	CategoryPlugin         Category = "plugin"
	CategoryCoordination   Category = "coordination"
	CategoryCompression    Category = "compression"
)

// Event is one structured observability record.
type Event struct {
	Category  Category
	Name      string
	Attrs     map[string]any
	Timestamp time.Time
}

// Emitter accepts Events. Implementations must not block the caller.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// New builds an Event stamped with the current time.
func New(category Category, name string, attrs map[string]any) Event {
	return Event{Category: category, Name: name, Attrs: attrs, Timestamp: time.Now()}
}

// SlogEmitter adapts a *slog.Logger into an Emitter, following the
// teacher's convention of structured slog attributes rather than printf
// logging (pkg/logger). Every event is logged at Debug level except
// internal/error-kind events, which this emitter has no opinion on — call
// sites choose the level by emitting through a dedicated error path
// instead (see runner.Runner's panic recovery).
type SlogEmitter struct {
	Logger *slog.Logger
}

func (s *SlogEmitter) Emit(_ context.Context, evt Event) {
	args := make([]any, 0, len(evt.Attrs)*2+2)
	args = append(args, "category", string(evt.Category))
	for k, v := range evt.Attrs {
		args = append(args, k, v)
	}
	s.Logger.Debug(evt.Name, args...)
}

// NopEmitter discards every event; the zero-value default for components
// that are not wired to an Emitter.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

// Recorder is an in-memory Emitter used by tests to assert on exactly
// which events a run produced.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a snapshot of every recorded event, in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// CountByName returns how many recorded events have the given name.
func (r *Recorder) CountByName(name string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

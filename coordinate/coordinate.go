// Package coordinate implements C10: the seven named multi-agent
// coordination algorithms built on C2–C5 (spec §4.10). Every pattern
// depends only on a Dispatcher — the messaging/registry/runner plumbing
// underneath is supplied by the caller (typically kernel.Kernel).
package coordinate

import (
	"context"
	"strconv"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/synapseerr"
)

const component = "coordinate"

// Dispatcher executes input against one participant and returns its
// output. Runner.Execute (possibly fronted by C2 send/receive) is the
// natural implementation; tests use an in-memory fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, id agent.ID, in content.AgentInput) (content.AgentOutput, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, id agent.ID, in content.AgentInput) (content.AgentOutput, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, id agent.ID, in content.AgentInput) (content.AgentOutput, error) {
	return f(ctx, id, in)
}

// emitting wraps the observability.Emitter a pattern's config carries;
// patterns use it directly since only Emit is needed.
type emitting struct {
	emitter observability.Emitter
}

func newEmitting(e observability.Emitter) emitting {
	if e == nil {
		e = observability.NopEmitter{}
	}
	return emitting{emitter: e}
}

func (e emitting) emit(ctx context.Context, name string, attrs map[string]any) {
	e.emitter.Emit(ctx, observability.New(observability.CategoryCoordination, name, attrs))
}

// participantError pairs a participant with the error it returned, for
// patterns that report partial progress (spec §4.10's "common
// properties").
type participantError struct {
	Participant agent.ID
	Err         error
}

func errNoConsensus(rounds int) error {
	return synapseerr.New(component, synapseerr.KindExecutionFailed,
		"no consensus reached after "+strconv.Itoa(rounds)+" rounds")
}

func errAnyFailed(first participantError) error {
	return synapseerr.Wrap(component, synapseerr.KindExecutionFailed, first.Err,
		"participant \""+string(first.Participant)+"\" failed under AnyFails policy")
}

func errNoSuccessfulParticipant() error {
	return synapseerr.New(component, synapseerr.KindExecutionFailed, "no participant succeeded")
}

func errSupervisionExhausted() error {
	return synapseerr.New(component, synapseerr.KindExecutionFailed, "max_retries exhausted with no fallback configured")
}

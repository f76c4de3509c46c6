// Package plugin implements C6's compile-time plugin kind: Go objects with
// a load→initialize→start→stop→unload lifecycle, composed per agent as an
// ordered hook chain (spec §4.6). The sandboxed script plugin kind lives in
// plugin/script.
package plugin

import (
	"context"
	"fmt"

	"github.com/synapse-run/synapse/content"
)

// Status mirrors the teacher's PluginStatus progression through the
// lifecycle, exposed for observability and health checks.
type Status string

const (
	StatusUnloaded Status = "unloaded"
	StatusLoading  Status = "loading"
	StatusActive   Status = "active"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Plugin is the compile-time plugin contract (spec §4.6). Hooks are
// optional: a plugin that implements none of Before/After/OnError still
// satisfies the interface via embedding NoopHooks.
type Plugin interface {
	Name() string
	Version() string

	Load(ctx context.Context) error
	Initialize(ctx context.Context, config map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Unload(ctx context.Context) error

	Status() Status

	// BeforeExecute may transform the input before the agent sees it.
	BeforeExecute(ctx context.Context, in content.AgentInput) (content.AgentInput, error)
	// AfterExecute may transform the output after the agent produced it.
	AfterExecute(ctx context.Context, out content.AgentOutput) (content.AgentOutput, error)
	// OnError may convert or swallow an error from execution or from an
	// earlier hook in the chain. Returning nil swallows the error.
	OnError(ctx context.Context, err error) error
}

// NoopHooks gives a Plugin implementation pass-through hook behavior by
// embedding, matching the teacher's convention of optional interface
// methods defaulting to no-ops rather than requiring every plugin to
// implement every hook.
type NoopHooks struct{}

func (NoopHooks) BeforeExecute(_ context.Context, in content.AgentInput) (content.AgentInput, error) {
	return in, nil
}

func (NoopHooks) AfterExecute(_ context.Context, out content.AgentOutput) (content.AgentOutput, error) {
	return out, nil
}

func (NoopHooks) OnError(_ context.Context, err error) error {
	return err
}

// Error wraps a plugin-lifecycle failure with the plugin name and the
// operation that failed, mirroring the teacher's PluginError.
type Error struct {
	PluginName string
	Operation  string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[plugin:%s] %s failed: %s: %v", e.PluginName, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[plugin:%s] %s failed: %s", e.PluginName, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(name, op, msg string, cause error) *Error {
	return &Error{PluginName: name, Operation: op, Message: msg, Cause: cause}
}

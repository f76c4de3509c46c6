package script

import (
	"context"

	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/plugin"
)

// Adapter makes a hot-reloadable Watcher satisfy plugin.Plugin, so script
// plugins compose into the same ordered hook chains as compile-time
// plugins (spec §4.6: "two coexisting plugin kinds").
//
// A script opts into a hook by defining the corresponding global function
// (before_execute/after_execute/on_error); an absent function makes that
// hook a no-op, mirroring plugin.NoopHooks for compile-time plugins.
type Adapter struct {
	name, version string
	watcher       *Watcher
	status        plugin.Status
}

// NewAdapter wraps an already-constructed Watcher as a named Plugin.
func NewAdapter(name, version string, w *Watcher) *Adapter {
	return &Adapter{name: name, version: version, watcher: w, status: plugin.StatusUnloaded}
}

func (a *Adapter) Name() string    { return a.name }
func (a *Adapter) Version() string { return a.version }

func (a *Adapter) Load(ctx context.Context) error {
	a.status = plugin.StatusLoading
	return nil
}

func (a *Adapter) Initialize(ctx context.Context, config map[string]any) error {
	return nil
}

func (a *Adapter) Start(ctx context.Context) error {
	if err := a.watcher.Start(ctx); err != nil {
		a.status = plugin.StatusError
		return err
	}
	a.status = plugin.StatusActive
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	err := a.watcher.Stop()
	a.status = plugin.StatusStopped
	return err
}

func (a *Adapter) Unload(ctx context.Context) error {
	return nil
}

func (a *Adapter) Status() plugin.Status { return a.status }

func (a *Adapter) BeforeExecute(ctx context.Context, in content.AgentInput) (content.AgentInput, error) {
	out, err := a.invokeHookOrPassthrough(ctx, "before_execute", in)
	if err != nil {
		return in, err
	}
	if out == nil {
		return in, nil
	}
	return content.AgentInput{Content: content.NewText(out.(string)), Metadata: in.Metadata}, nil
}

func (a *Adapter) AfterExecute(ctx context.Context, out content.AgentOutput) (content.AgentOutput, error) {
	res, err := a.invokeHookOrPassthrough(ctx, "after_execute", out)
	if err != nil {
		return out, err
	}
	if res == nil {
		return out, nil
	}
	return content.AgentOutput{Content: content.NewText(res.(string)), Metadata: out.Metadata}, nil
}

func (a *Adapter) OnError(ctx context.Context, cause error) error {
	engine := a.watcher.Current()
	if _, ok := engine.hasGlobal("on_error"); !ok {
		return cause
	}
	_, err := engine.Invoke(ctx, "on_error", map[string]any{"error": cause.Error()})
	if err != nil {
		return cause
	}
	return nil
}

// invokeHookOrPassthrough calls funcName on the current engine if defined,
// passing the envelope's text content; an undefined hook is a no-op.
func (a *Adapter) invokeHookOrPassthrough(ctx context.Context, funcName string, env content.Envelope) (any, error) {
	engine := a.watcher.Current()
	if _, ok := engine.hasGlobal(funcName); !ok {
		return nil, nil
	}
	return engine.Invoke(ctx, funcName, map[string]any{"text": env.String()})
}

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/identity"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/registry"
	"github.com/synapse-run/synapse/synapseerr"
	"golang.org/x/time/rate"
)

const component = "tool"

type entry struct {
	tool    Tool
	schema  *jsonschema.Schema
	limiter *rate.Limiter
}

// Config configures Registry construction.
type Config struct {
	Emitter observability.Emitter
	Metrics *observability.Metrics
	// DefaultRateLimit, if non-zero, caps invocations per second for any
	// tool registered without its own RateLimit via RegisterWithLimit.
	DefaultRateLimit rate.Limit
	DefaultBurst     int
}

// Registry is C5: the named tool registry and dispatcher.
type Registry struct {
	base *registry.Registry[*entry]
	cfg  Config
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Emitter == nil {
		cfg.Emitter = observability.NopEmitter{}
	}
	return &Registry{base: registry.New[*entry](), cfg: cfg}
}

// Register installs t, compiling its JSON schema (if any) once up front so
// Invoke never pays compilation cost per call.
func (r *Registry) Register(t Tool) error {
	return r.RegisterWithLimit(t, 0, 0)
}

// RegisterWithLimit installs t with a per-tool rate limit overriding the
// registry default. A zero limit means unlimited.
func (r *Registry) RegisterWithLimit(t Tool, limit rate.Limit, burst int) error {
	e := &entry{tool: t}

	if t.Schema != nil {
		schema, err := compileSchema(t.Schema)
		if err != nil {
			return synapseerr.Wrap(component, synapseerr.KindValidation, err, "invalid schema for tool \""+t.Name+"\"")
		}
		e.schema = schema
	}

	if limit > 0 {
		e.limiter = rate.NewLimiter(limit, burst)
	} else if r.cfg.DefaultRateLimit > 0 {
		e.limiter = rate.NewLimiter(r.cfg.DefaultRateLimit, r.cfg.DefaultBurst)
	}

	return r.base.Register(t.Name, e)
}

// Unregister removes the tool registered under name.
func (r *Registry) Unregister(name string) error {
	return r.base.Remove(name)
}

// Get returns the descriptor for a registered tool.
func (r *Registry) Get(name string) (Descriptor, bool) {
	e, ok := r.base.Get(name)
	if !ok {
		return Descriptor{}, false
	}
	return e.tool.Describe(), true
}

// List returns every registered tool's descriptor.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, r.base.Count())
	for _, e := range r.base.List() {
		out = append(out, e.tool.Describe())
	}
	return out
}

func compileSchema(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

// Invoke validates args against the named tool's schema (if any), then
// calls it with a deadline of timeout. Errors are one of the typed kinds
// in spec §4.5: KindValidation, KindNotFound, KindTimeout, KindTool
// (ExecutionFailed-equivalent detail), or KindRateLimited.
func (r *Registry) Invoke(ctx context.Context, ec *identity.ExecutionContext, name string, args content.Document, timeout time.Duration) (content.Document, error) {
	e, ok := r.base.Get(name)
	if !ok {
		return nil, synapseerr.New(component, synapseerr.KindNotFound, "tool \""+name+"\" not found")
	}

	if e.limiter != nil && !e.limiter.Allow() {
		reservation := e.limiter.Reserve()
		retryAfter := reservation.Delay()
		reservation.Cancel()
		return nil, synapseerr.RateLimited(component, retryAfter)
	}

	if e.schema != nil {
		if err := r.validate(e.schema, args); err != nil {
			return nil, synapseerr.Wrap(component, synapseerr.KindValidation, err, "arguments failed schema validation for tool \""+name+"\"")
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.call(callCtx, e.tool, ec, args)
	duration := time.Since(start)

	outcome := "ok"
	var outErr error
	switch {
	case err == nil:
	case callCtx.Err() == context.DeadlineExceeded:
		outcome = "timeout"
		outErr = synapseerr.New(component, synapseerr.KindTimeout, "tool \""+name+"\" timed out")
	case callCtx.Err() == context.Canceled:
		outcome = "cancelled"
		outErr = synapseerr.New(component, synapseerr.KindCancelled, "tool \""+name+"\" cancelled")
	default:
		outcome = "failed"
		outErr = synapseerr.Wrap(component, synapseerr.KindTool, err, "tool \""+name+"\" execution failed")
	}

	r.emit(ctx, name, duration, outcome)
	if outErr != nil {
		return nil, outErr
	}
	return result, nil
}

func (r *Registry) call(ctx context.Context, t Tool, ec *identity.ExecutionContext, args content.Document) (result content.Document, err error) {
	type res struct {
		out content.Document
		err error
	}
	done := make(chan res, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- res{err: fmt.Errorf("tool panic: %v", p)}
			}
		}()
		out, e := t.Invoke(ctx, ec, args)
		done <- res{out: out, err: e}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) validate(schema *jsonschema.Schema, args content.Document) error {
	// Round-trip through encoding/json so map/slice instances built by Go
	// callers normalize to the exact types jsonschema.Validate expects
	// (float64 for numbers, etc), matching how a wire-received payload
	// would already look.
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return err
	}
	return schema.Validate(instance)
}

func (r *Registry) emit(ctx context.Context, name string, d time.Duration, outcome string) {
	r.cfg.Emitter.Emit(ctx, observability.New(observability.CategoryTool, "tool_invoked", map[string]any{
		"tool": name, "duration_ms": d.Milliseconds(), "outcome": outcome,
	}))
	if r.cfg.Metrics == nil {
		return
	}
	label := r.cfg.Metrics.ToolLabel(name)
	r.cfg.Metrics.ToolInvocations.WithLabelValues(label, outcome).Inc()
	r.cfg.Metrics.ToolDuration.WithLabelValues(label).Observe(d.Seconds())
}

// Package runner implements the execution half of C4: a Runner owns
// exactly one Agent for its lifetime, serializes Execute/HandleMessage
// calls against it, enforces per-call timeouts, and turns agent panics
// into the Error state instead of crashing the process (spec §4.2).
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/bus"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/synapseerr"
)

const component = "runner"

// Config configures a Runner.
type Config struct {
	// DefaultTimeout bounds every Execute/HandleMessage call that does not
	// specify its own timeout via context. Zero means unlimited, per spec
	// §4.2's "configurable, default unlimited".
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// Emitter/Metrics/Logger are runtime collaborators a host wires in
	// code, not YAML-serializable settings, so they carry no yaml tag.
	Emitter observability.Emitter
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Emitter == nil {
		c.Emitter = observability.NopEmitter{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats reports per-agent execution counters for C11.
type Stats struct {
	Executions      int
	Failures        int
	TotalDuration   time.Duration
}

// Runner owns one Agent, enforcing spec §4.2's state machine and failure
// semantics around it.
type Runner struct {
	ag     agent.Agent
	cfg    Config
	mu     sync.Mutex // guards state, initialized, errReason, stats
	busy   chan struct{} // capacity-1 token serializing Execute/HandleMessage

	state       agent.State
	initialized bool
	errReason   error
	stats       Stats

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
	drain      chan struct{} // closed to tell the loop to stop waiting for new messages and finish draining inbox
}

// New constructs a Runner that owns ag in the Created state.
func New(ag agent.Agent, cfg Config) *Runner {
	cfg.setDefaults()
	r := &Runner{
		ag:   ag,
		cfg:  cfg,
		busy: make(chan struct{}, 1),
		state: agent.StateCreated,
	}
	r.busy <- struct{}{}
	return r
}

// State returns the runner's authoritative view of the agent's lifecycle
// state.
func (r *Runner) State() agent.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns a snapshot of this runner's execution counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Runner) emit(ctx context.Context, category observability.Category, name string, attrs map[string]any) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["agent_id"] = string(r.ag.ID())
	r.cfg.Emitter.Emit(ctx, observability.New(category, name, attrs))
}

func (r *Runner) setState(s agent.State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Initialize runs the agent's one-shot Initialize hook, transitioning
// Created -> Ready on success. A second call fails with InvalidState.
func (r *Runner) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return synapseerr.New(component, synapseerr.KindInvalidState, "initialize called more than once")
	}
	r.initialized = true
	r.mu.Unlock()

	if err := r.ag.Initialize(ctx); err != nil {
		r.setState(agent.StateError)
		r.mu.Lock()
		r.errReason = err
		r.mu.Unlock()
		return err
	}

	r.setState(agent.StateReady)
	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateReady})
	return nil
}

// acquire takes the busy token, serializing Execute/HandleMessage. It never
// holds r.mu while waiting, so concurrent callers can still query State().
func (r *Runner) acquire(ctx context.Context) error {
	select {
	case <-r.busy:
		return nil
	case <-ctx.Done():
		return synapseerr.New(component, synapseerr.KindCancelled, "cancelled waiting for agent serialization token")
	}
}

func (r *Runner) release() {
	r.busy <- struct{}{}
}

// Execute runs the agent's Execute operation, transitioning
// Ready -> Executing -> Ready (or -> Error on failure). If cfg.
// DefaultTimeout is set and ctx carries no earlier deadline, it is applied
// here.
func (r *Runner) Execute(ctx context.Context, input content.AgentInput) (content.AgentOutput, error) {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	if state != agent.StateReady {
		return content.AgentOutput{}, synapseerr.New(component, synapseerr.KindInvalidState,
			fmt.Sprintf("execute requires Ready state, got %s", state))
	}

	if err := r.acquire(ctx); err != nil {
		return content.AgentOutput{}, err
	}
	defer r.release()

	// Re-check state now that we hold the token: another caller may have
	// raced us into Executing/Error between the check above and here.
	r.mu.Lock()
	if r.state != agent.StateReady {
		state := r.state
		r.mu.Unlock()
		return content.AgentOutput{}, synapseerr.New(component, synapseerr.KindInvalidState,
			fmt.Sprintf("execute requires Ready state, got %s", state))
	}
	r.state = agent.StateExecuting
	r.mu.Unlock()

	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateExecuting})

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := r.runAgentCall(callCtx, func() (content.AgentOutput, error) {
		return r.ag.Execute(callCtx, input)
	})
	duration := time.Since(start)

	r.emit(ctx, observability.CategoryAgentExecution, "execute_end", map[string]any{
		"duration_ms": duration.Milliseconds(),
		"ok":          err == nil,
	})
	r.recordMetrics(duration, err)

	if err != nil {
		r.mu.Lock()
		r.state = agent.StateError
		r.errReason = err
		r.stats.Failures++
		r.mu.Unlock()
		r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateError})
		return content.AgentOutput{}, err
	}

	r.mu.Lock()
	r.state = agent.StateReady
	r.stats.Executions++
	r.stats.TotalDuration += duration
	r.mu.Unlock()
	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateReady})
	return out, nil
}

func (r *Runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.DefaultTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.DefaultTimeout)
}

// runAgentCall invokes fn on its own goroutine, recovering from panics and
// translating ctx expiry into a Timeout/Cancelled error. The goroutine
// itself is not forcibly killed — cancellation is cooperative, per spec
// §5 — but the caller is unblocked as soon as ctx is done.
func (r *Runner) runAgentCall(ctx context.Context, fn func() (content.AgentOutput, error)) (out content.AgentOutput, err error) {
	type result struct {
		out content.AgentOutput
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.cfg.Logger.Error("agent panic recovered", "agent_id", r.ag.ID(), "panic", p)
				done <- result{err: synapseerr.New(component, synapseerr.KindInternal, fmt.Sprintf("agent panic: %v", p))}
				return
			}
		}()
		o, e := fn()
		done <- result{out: o, err: e}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return content.AgentOutput{}, synapseerr.New(component, synapseerr.KindTimeout, "execute timed out")
		}
		return content.AgentOutput{}, synapseerr.New(component, synapseerr.KindCancelled, "execute cancelled")
	}
}

func (r *Runner) recordMetrics(d time.Duration, err error) {
	if r.cfg.Metrics == nil {
		return
	}
	label := r.cfg.Metrics.AgentLabel(r.ag.Name())
	r.cfg.Metrics.AgentExecutions.WithLabelValues(label).Inc()
	r.cfg.Metrics.AgentDuration.WithLabelValues(label).Observe(d.Seconds())
	if err != nil {
		r.cfg.Metrics.AgentErrors.WithLabelValues(label, string(synapseerr.KindOf(err))).Inc()
	}
}

// Recover transitions an agent out of Error back to Ready. If the agent
// implements agent.Recoverable, its Recover hook runs first and may veto
// the transition by returning an error.
func (r *Runner) Recover(ctx context.Context) error {
	r.mu.Lock()
	if r.state != agent.StateError {
		s := r.state
		r.mu.Unlock()
		return synapseerr.New(component, synapseerr.KindInvalidState, fmt.Sprintf("recover requires Error state, got %s", s))
	}
	reason := r.errReason
	r.mu.Unlock()

	if rec, ok := r.ag.(agent.Recoverable); ok {
		if err := rec.Recover(ctx, reason); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.state = agent.StateReady
	r.errReason = nil
	r.mu.Unlock()
	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateReady, "recovered_from": reason})
	return nil
}

// Pause transitions Ready -> Paused if the agent supports agent.Pausable.
func (r *Runner) Pause(ctx context.Context) error {
	p, ok := r.ag.(agent.Pausable)
	if !ok {
		return synapseerr.New(component, synapseerr.KindInvalidState, "agent does not support pause")
	}
	r.mu.Lock()
	if r.state != agent.StateReady {
		s := r.state
		r.mu.Unlock()
		return synapseerr.New(component, synapseerr.KindInvalidState, fmt.Sprintf("pause requires Ready state, got %s", s))
	}
	r.mu.Unlock()

	if err := p.Pause(ctx); err != nil {
		return err
	}
	r.setState(agent.StatePaused)
	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StatePaused})
	return nil
}

// Resume transitions Paused -> Ready.
func (r *Runner) Resume(ctx context.Context) error {
	p, ok := r.ag.(agent.Pausable)
	if !ok {
		return synapseerr.New(component, synapseerr.KindInvalidState, "agent does not support pause")
	}
	r.mu.Lock()
	if r.state != agent.StatePaused {
		s := r.state
		r.mu.Unlock()
		return synapseerr.New(component, synapseerr.KindInvalidState, fmt.Sprintf("resume requires Paused state, got %s", s))
	}
	r.mu.Unlock()

	if err := p.Resume(ctx); err != nil {
		return err
	}
	r.setState(agent.StateReady)
	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateReady})
	return nil
}

// HandleMessage dispatches msg to the agent's optional MessageHandler,
// serialized against Execute via the same busy token. If the agent does
// not implement agent.MessageHandler, the message is silently dropped
// (there is nothing registered to receive it).
func (r *Runner) HandleMessage(ctx context.Context, msg bus.Message) error {
	h, ok := r.ag.(agent.MessageHandler)
	if !ok {
		return nil
	}

	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.runAgentCall(callCtx, func() (content.AgentOutput, error) {
		return content.AgentOutput{}, h.HandleMessage(callCtx, msg)
	})
	r.emit(ctx, observability.CategoryMessage, "message_received", map[string]any{
		"sender": string(msg.Sender), "ok": err == nil,
	})
	return err
}

// Start launches the default "queue and process in receive order, at most
// one at a time" message dispatch loop (spec §4.2) over inbox, stopping
// when ctx is cancelled or Shutdown is called.
func (r *Runner) Start(ctx context.Context, inbox <-chan bus.Message) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancelLoop = cancel
	r.loopDone = make(chan struct{})
	r.drain = make(chan struct{})

	handle := func(msg bus.Message) {
		if err := r.HandleMessage(loopCtx, msg); err != nil {
			r.cfg.Logger.Warn("message handling failed", "agent_id", r.ag.ID(), "error", err)
		}
	}

	go func() {
		defer close(r.loopDone)
		for {
			select {
			case msg, ok := <-inbox:
				if !ok {
					return
				}
				handle(msg)
			case <-r.drain:
				// Stop waiting for new sends; deliver whatever is already
				// queued in inbox, then exit.
				for {
					select {
					case msg, ok := <-inbox:
						if !ok {
							return
						}
						handle(msg)
					default:
						return
					}
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the message loop, calls the agent's Shutdown hook, and
// transitions to the terminal Shutdown state. Unless strict is true, it
// first drains whatever messages are already queued in inbox — delivering
// them to the agent — before cancelling the loop; strict skips draining
// and cancels immediately. Idempotent.
func (r *Runner) Shutdown(ctx context.Context, strict bool) error {
	r.mu.Lock()
	if r.state == agent.StateShutdown {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if r.cancelLoop != nil {
		if !strict {
			close(r.drain)
			<-r.loopDone
		}
		r.cancelLoop()
		<-r.loopDone
	}

	err := r.ag.Shutdown(ctx)
	r.setState(agent.StateShutdown)
	r.emit(ctx, observability.CategoryAgentLifecycle, "state_transition", map[string]any{"to": agent.StateShutdown})
	return err
}

package coordinate

import (
	"context"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
)

// Evaluator judges a worker's output, returning ok=true when satisfied or
// feedback to re-dispatch with otherwise.
type Evaluator func(out content.AgentOutput) (ok bool, feedback string)

// SupervisionConfig configures Supervision.
type SupervisionConfig struct {
	Worker     agent.ID `yaml:"worker"`
	MaxRetries int      `yaml:"max_retries"`
	// Fallback, if set (non-empty), is dispatched once MaxRetries is
	// exhausted without a satisfying output.
	Fallback agent.ID `yaml:"fallback"`

	// Evaluate/Emitter are runtime collaborators wired in code, not
	// YAML-serializable settings.
	Evaluate Evaluator
	Emitter  observability.Emitter
}

// Supervision dispatches to Worker, evaluating its output; on
// dissatisfaction it re-dispatches with feedback appended up to
// MaxRetries, falling back to Fallback on exhaustion if configured.
func Supervision(ctx context.Context, d Dispatcher, cfg SupervisionConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	e.emit(ctx, "supervision_start", map[string]any{"worker": string(cfg.Worker), "max_retries": cfg.MaxRetries})

	current := input
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		out, err := d.Dispatch(ctx, cfg.Worker, current)
		if err != nil {
			lastErr = err
			e.emit(ctx, "supervision_attempt", map[string]any{"attempt": attempt, "error": err.Error()})
			continue
		}

		ok, feedback := cfg.Evaluate(out)
		e.emit(ctx, "supervision_attempt", map[string]any{"attempt": attempt, "ok": ok})
		if ok {
			e.emit(ctx, "supervision_done", map[string]any{"ok": true, "attempts": attempt + 1})
			return out, nil
		}
		current = content.AgentInput{
			Content:  content.NewText(out.String() + "\n\nFeedback: " + feedback),
			Metadata: input.Metadata,
		}
	}

	if cfg.Fallback != "" {
		out, err := d.Dispatch(ctx, cfg.Fallback, current)
		e.emit(ctx, "supervision_done", map[string]any{"ok": err == nil, "fallback": true})
		return out, err
	}

	e.emit(ctx, "supervision_done", map[string]any{"ok": false})
	if lastErr != nil {
		return content.AgentOutput{}, lastErr
	}
	return content.AgentOutput{}, errSupervisionExhausted()
}

package coordinate

import (
	"context"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
)

// SequentialConfig configures Sequential.
type SequentialConfig struct {
	Participants []agent.ID `yaml:"participants"`
	// FailFast aborts on the first participant error when true; when
	// false, a failing step's input is forwarded unchanged to the next
	// step (spec §4.10).
	FailFast bool `yaml:"fail_fast"`

	// Emitter is a runtime collaborator wired in code, not a
	// YAML-serializable setting.
	Emitter observability.Emitter
}

// Sequential pipes input through Participants in declared order, each
// step's output becoming the next step's input.
func Sequential(ctx context.Context, d Dispatcher, cfg SequentialConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	e.emit(ctx, "sequential_start", map[string]any{"participants": len(cfg.Participants)})

	current := input
	var last content.AgentOutput
	for _, p := range cfg.Participants {
		out, err := d.Dispatch(ctx, p, current)
		e.emit(ctx, "sequential_step", map[string]any{"participant": string(p), "error": errString(err)})
		if err != nil {
			if cfg.FailFast {
				e.emit(ctx, "sequential_done", map[string]any{"ok": false})
				return content.AgentOutput{}, err
			}
			continue // forward current input unchanged to the next step
		}
		last = out
		current = out
	}

	e.emit(ctx, "sequential_done", map[string]any{"ok": true})
	return last, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package coordinate

import (
	"context"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
)

// TerminationPredicate decides whether debate should stop given the
// arbitrator's latest output.
type TerminationPredicate func(arbitratorOutput content.AgentOutput) bool

// DebateConfig configures Debate.
type DebateConfig struct {
	Debaters   []agent.ID `yaml:"debaters"`
	Arbitrator agent.ID   `yaml:"arbitrator"`
	MaxRounds  int        `yaml:"max_rounds"`

	// Terminate overrides the default termination check (arbitrator
	// output metadata key "final" == true) when set. It is a runtime
	// collaborator wired in code, not a YAML-serializable setting, as is
	// Emitter.
	Terminate TerminationPredicate
	Emitter   observability.Emitter
}

func defaultTerminate(out content.AgentOutput) bool {
	final, _ := out.Metadata["final"].(bool)
	return final
}

// Debate alternates turns among Debaters for up to MaxRounds, consulting
// Arbitrator each round; it stops early when the arbitrator signals
// "final" (or Terminate returns true) and returns the arbitrator's
// summary output.
func Debate(ctx context.Context, d Dispatcher, cfg DebateConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	terminate := cfg.Terminate
	if terminate == nil {
		terminate = defaultTerminate
	}
	e.emit(ctx, "debate_start", map[string]any{"debaters": len(cfg.Debaters), "max_rounds": cfg.MaxRounds})

	transcript := input
	var arbitratorOut content.AgentOutput

	for round := 1; round <= cfg.MaxRounds; round++ {
		turns := make([]any, 0, len(cfg.Debaters))
		for _, debater := range cfg.Debaters {
			out, err := d.Dispatch(ctx, debater, transcript)
			if err != nil {
				continue
			}
			turns = append(turns, out.Content.Document)
			transcript = content.AgentInput{Content: content.NewDocument(turns)}
		}

		var err error
		arbitratorOut, err = d.Dispatch(ctx, cfg.Arbitrator, transcript)
		e.emit(ctx, "debate_round", map[string]any{"round": round, "error": errString(err)})
		if err != nil {
			return content.AgentOutput{}, err
		}

		if terminate(arbitratorOut) {
			e.emit(ctx, "debate_done", map[string]any{"ok": true, "round": round})
			return arbitratorOut, nil
		}
		transcript = arbitratorOut
	}

	e.emit(ctx, "debate_done", map[string]any{"ok": true, "round": cfg.MaxRounds, "exhausted": true})
	return arbitratorOut, nil
}

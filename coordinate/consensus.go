package coordinate

import (
	"context"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
)

// EquivalenceFunc decides whether two participant outputs agree.
type EquivalenceFunc func(a, b content.AgentOutput) bool

// ConsensusConfig configures Consensus.
type ConsensusConfig struct {
	Participants []agent.ID `yaml:"participants"`
	MaxRounds    int        `yaml:"max_rounds"`
	Threshold    float64    `yaml:"threshold"` // agreement_ratio in [0,1]

	// Equivalent/Emitter are runtime collaborators wired in code, not
	// YAML-serializable settings.
	Equivalent EquivalenceFunc
	Emitter    observability.Emitter
}

// Consensus runs up to MaxRounds, each round collecting an opinion from
// every participant, terminating once agreement_ratio ≥ Threshold. The
// first round sends the original input; every later round sends only the
// previous round's outputs (as a list of their Content documents), without
// the original input.
func Consensus(ctx context.Context, d Dispatcher, cfg ConsensusConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	e.emit(ctx, "consensus_start", map[string]any{"participants": len(cfg.Participants), "max_rounds": cfg.MaxRounds})

	transcript := input
	for round := 1; round <= cfg.MaxRounds; round++ {
		outputs := make([]content.AgentOutput, 0, len(cfg.Participants))
		for _, p := range cfg.Participants {
			out, err := d.Dispatch(ctx, p, transcript)
			if err != nil {
				continue
			}
			outputs = append(outputs, out)
		}
		e.emit(ctx, "consensus_round", map[string]any{"round": round, "responses": len(outputs)})

		if len(outputs) == 0 {
			continue
		}

		winner, ratio := majority(outputs, cfg.Equivalent)
		if ratio >= cfg.Threshold {
			e.emit(ctx, "consensus_done", map[string]any{"ok": true, "round": round})
			return winner, nil
		}

		transcript = content.AgentInput{Content: content.NewDocument(outputsToDocs(outputs))}
	}

	e.emit(ctx, "consensus_done", map[string]any{"ok": false})
	return content.AgentOutput{}, errNoConsensus(cfg.MaxRounds)
}

func majority(outputs []content.AgentOutput, equivalent EquivalenceFunc) (content.AgentOutput, float64) {
	type bucket struct {
		rep   content.AgentOutput
		count int
	}
	var buckets []bucket

	for _, out := range outputs {
		matched := false
		for i := range buckets {
			if equivalent(buckets[i].rep, out) {
				buckets[i].count++
				matched = true
				break
			}
		}
		if !matched {
			buckets = append(buckets, bucket{rep: out, count: 1})
		}
	}

	best := buckets[0]
	for _, b := range buckets[1:] {
		if b.count > best.count {
			best = b
		}
	}
	return best.rep, float64(best.count) / float64(len(outputs))
}

func outputsToDocs(outputs []content.AgentOutput) []any {
	docs := make([]any, len(outputs))
	for i, o := range outputs {
		docs[i] = o.Content.Document
	}
	return docs
}

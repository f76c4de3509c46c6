package coordinate

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
)

// FailurePolicy governs how Parallel reacts to a failing participant.
type FailurePolicy string

const (
	AnyFails       FailurePolicy = "any_fails"
	AllMustSucceed FailurePolicy = "all_must_succeed"
	IgnoreFailures FailurePolicy = "ignore_failures"
)

// Aggregation selects how Parallel combines participant outputs.
type Aggregation string

const (
	AggregationTakeBest Aggregation = "take_best"
	AggregationMergeAll Aggregation = "merge_all"
	AggregationFirst    Aggregation = "first"
)

// Scorer ranks a participant's output for AggregationTakeBest; higher is
// better.
type Scorer func(out content.AgentOutput) float64

// ParallelConfig configures Parallel.
type ParallelConfig struct {
	Participants []agent.ID    `yaml:"participants"`
	Policy       FailurePolicy `yaml:"policy"`
	Aggregation  Aggregation   `yaml:"aggregation"`
	Timeout      time.Duration `yaml:"timeout"`

	// Scorer/Emitter are runtime collaborators wired in code, not
	// YAML-serializable settings.
	Scorer  Scorer // required when Aggregation == AggregationTakeBest
	Emitter observability.Emitter
}

type parallelOutcome struct {
	participant agent.ID
	index       int
	out         content.AgentOutput
	err         error
}

// Parallel invokes every participant concurrently on input and combines
// the results per cfg.Aggregation, honoring cfg.Policy for failures.
// MergeAll preserves participant declaration order, not completion order
// (spec §9's resolved open question).
func Parallel(ctx context.Context, d Dispatcher, cfg ParallelConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	e.emit(ctx, "parallel_start", map[string]any{"participants": len(cfg.Participants)})

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	g, gCtx := errgroup.WithContext(runCtx)
	results := make([]parallelOutcome, len(cfg.Participants))
	first := make(chan parallelOutcome, len(cfg.Participants))

	for i, p := range cfg.Participants {
		i, p := i, p
		g.Go(func() error {
			out, err := d.Dispatch(gCtx, p, input)
			res := parallelOutcome{participant: p, index: i, out: out, err: err}
			results[i] = res
			first <- res
			e.emit(ctx, "parallel_participant_done", map[string]any{"participant": string(p), "error": errString(err)})

			if err != nil && cfg.Policy != IgnoreFailures {
				return err
			}
			return nil
		})
	}

	groupErr := g.Wait()
	close(first)

	if groupErr != nil && cfg.Policy == AnyFails {
		e.emit(ctx, "parallel_done", map[string]any{"ok": false})
		for _, r := range results {
			if r.err != nil {
				return content.AgentOutput{}, errAnyFailed(participantError{Participant: r.participant, Err: r.err})
			}
		}
	}
	if groupErr != nil && cfg.Policy == AllMustSucceed {
		e.emit(ctx, "parallel_done", map[string]any{"ok": false})
		return content.AgentOutput{}, groupErr
	}

	out, err := aggregate(cfg, results, first)
	e.emit(ctx, "parallel_done", map[string]any{"ok": err == nil})
	return out, err
}

func aggregate(cfg ParallelConfig, results []parallelOutcome, first <-chan parallelOutcome) (content.AgentOutput, error) {
	switch cfg.Aggregation {
	case AggregationFirst:
		for r := range first {
			if r.err == nil {
				return r.out, nil
			}
		}
		return content.AgentOutput{}, errNoSuccessfulParticipant()

	case AggregationTakeBest:
		var best *parallelOutcome
		var bestScore float64
		for i := range results {
			r := &results[i]
			if r.err != nil {
				continue
			}
			score := cfg.Scorer(r.out)
			if best == nil || score > bestScore {
				best = r
				bestScore = score
			}
		}
		if best == nil {
			return content.AgentOutput{}, errNoSuccessfulParticipant()
		}
		return best.out, nil

	default: // AggregationMergeAll
		merged := make([]any, 0, len(results))
		for _, r := range results {
			if r.err != nil {
				continue
			}
			merged = append(merged, r.out.Content.Document)
		}
		return content.AgentOutput{Content: content.NewDocument(merged)}, nil
	}
}

package coordinate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
)

func fakeDispatcher(fns map[agent.ID]func(content.AgentInput) (content.AgentOutput, error)) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, id agent.ID, in content.AgentInput) (content.AgentOutput, error) {
		fn, ok := fns[id]
		if !ok {
			return content.AgentOutput{}, errors.New("no fake for " + string(id))
		}
		return fn(in)
	})
}

// TestSequentialScenario implements spec scenario S2.
func TestSequentialScenario(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"upcase": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.NewTextOutput(strings.ToUpper(in.String())), nil
		},
		"reverse": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.NewTextOutput(reverse(in.String())), nil
		},
	})

	out, err := Sequential(context.Background(), d, SequentialConfig{
		Participants: []agent.ID{"upcase", "reverse"},
	}, content.NewTextInput("abc"))
	require.NoError(t, err)
	assert.Equal(t, "CBA", out.String())
}

func TestSequentialNonFailFastForwardsInput(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"upcase": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.NewTextOutput(strings.ToUpper(in.String())), nil
		},
		"reverse": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.AgentOutput{}, errors.New("boom")
		},
	})

	out, err := Sequential(context.Background(), d, SequentialConfig{
		Participants: []agent.ID{"upcase", "reverse"},
		FailFast:     false,
	}, content.NewTextInput("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ABC", out.String())
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// TestParallelMergeAllScenario implements spec scenario S3.
func TestParallelMergeAllScenario(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"x1": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{Content: content.NewDocument(42)}, nil },
		"x2": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{Content: content.NewDocument(13)}, nil },
		"x3": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{Content: content.NewDocument(7)}, nil },
	})

	out, err := Parallel(context.Background(), d, ParallelConfig{
		Participants: []agent.ID{"x1", "x2", "x3"},
		Policy:       AllMustSucceed,
		Aggregation:  AggregationMergeAll,
	}, content.NewTextInput(""))
	require.NoError(t, err)
	assert.Equal(t, []any{42, 13, 7}, out.Content.Document)
}

func TestParallelTakeBestScenario(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"x1": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{Content: content.NewDocument(42)}, nil },
		"x2": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{Content: content.NewDocument(13)}, nil },
		"x3": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{Content: content.NewDocument(7)}, nil },
	})

	out, err := Parallel(context.Background(), d, ParallelConfig{
		Participants: []agent.ID{"x1", "x2", "x3"},
		Policy:       AllMustSucceed,
		Aggregation:  AggregationTakeBest,
		Scorer:       func(out content.AgentOutput) float64 { return float64(out.Content.Document.(int)) },
	}, content.NewTextInput(""))
	require.NoError(t, err)
	assert.Equal(t, 42, out.Content.Document)
}

func TestParallelAnyFailsReturnsError(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"ok":  func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("ok"), nil },
		"bad": func(content.AgentInput) (content.AgentOutput, error) { return content.AgentOutput{}, errors.New("boom") },
	})

	_, err := Parallel(context.Background(), d, ParallelConfig{
		Participants: []agent.ID{"ok", "bad"},
		Policy:       AnyFails,
		Aggregation:  AggregationMergeAll,
	}, content.NewTextInput(""))
	require.Error(t, err)
}

func TestConsensusReachesAgreement(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"a": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("yes"), nil },
		"b": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("yes"), nil },
		"c": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("no"), nil },
	})

	out, err := Consensus(context.Background(), d, ConsensusConfig{
		Participants: []agent.ID{"a", "b", "c"},
		MaxRounds:    1,
		Threshold:    0.6,
		Equivalent:   func(x, y content.AgentOutput) bool { return x.String() == y.String() },
	}, content.NewTextInput(""))
	require.NoError(t, err)
	assert.Equal(t, "yes", out.String())
}

func TestConsensusFailsWithoutAgreement(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"a": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("1"), nil },
		"b": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("2"), nil },
		"c": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("3"), nil },
	})

	_, err := Consensus(context.Background(), d, ConsensusConfig{
		Participants: []agent.ID{"a", "b", "c"},
		MaxRounds:    1,
		Threshold:    0.9,
		Equivalent:   func(x, y content.AgentOutput) bool { return x.String() == y.String() },
	}, content.NewTextInput(""))
	require.Error(t, err)
}

func TestDebateTerminatesOnArbitratorSignal(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"d1": func(in content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("point1"), nil },
		"d2": func(in content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("point2"), nil },
		"arb": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.AgentOutput{
				Content:  content.NewText("final summary"),
				Metadata: map[string]any{"final": true},
			}, nil
		},
	})

	out, err := Debate(context.Background(), d, DebateConfig{
		Debaters:   []agent.ID{"d1", "d2"},
		Arbitrator: "arb",
		MaxRounds:  5,
	}, content.NewTextInput("topic"))
	require.NoError(t, err)
	assert.Equal(t, "final summary", out.String())
}

func TestSupervisionRetriesUntilSatisfied(t *testing.T) {
	attempts := 0
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"worker": func(in content.AgentInput) (content.AgentOutput, error) {
			attempts++
			return content.NewTextOutput("attempt"), nil
		},
	})

	out, err := Supervision(context.Background(), d, SupervisionConfig{
		Worker:     "worker",
		MaxRetries: 3,
		Evaluate: func(out content.AgentOutput) (bool, string) {
			return attempts >= 2, "needs more detail"
		},
	}, content.NewTextInput("task"))
	require.NoError(t, err)
	assert.Equal(t, "attempt", out.String())
	assert.Equal(t, 2, attempts)
}

func TestSupervisionFallsBackOnExhaustion(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"worker":   func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("bad"), nil },
		"fallback": func(content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("fallback result"), nil },
	})

	out, err := Supervision(context.Background(), d, SupervisionConfig{
		Worker:     "worker",
		MaxRetries: 1,
		Fallback:   "fallback",
		Evaluate:   func(content.AgentOutput) (bool, string) { return false, "never good enough" },
	}, content.NewTextInput("task"))
	require.NoError(t, err)
	assert.Equal(t, "fallback result", out.String())
}

func TestMapReduceAggregatesAcrossMappers(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"m1": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.AgentOutput{Content: content.NewDocument(len(in.String()))}, nil
		},
		"m2": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.AgentOutput{Content: content.NewDocument(len(in.String()))}, nil
		},
		"reducer": func(in content.AgentInput) (content.AgentOutput, error) {
			sum := 0
			for _, v := range in.Content.Document.([]any) {
				sum += v.(int)
			}
			return content.AgentOutput{Content: content.NewDocument(sum)}, nil
		},
	})

	out, err := MapReduce(context.Background(), d, MapReduceConfig{
		Mappers: []agent.ID{"m1", "m2"},
		Reducer: "reducer",
		Partition: func(in content.AgentInput, n int) []content.AgentInput {
			parts := make([]content.AgentInput, n)
			half := len(in.String()) / n
			for i := 0; i < n; i++ {
				parts[i] = content.NewTextInput(in.String()[i*half : (i+1)*half])
			}
			return parts
		},
	}, content.NewTextInput("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 8, out.Content.Document)
}

func TestRoutingDispatchesToSelectedTarget(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"billing": func(in content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("billing handled"), nil },
		"support": func(in content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("support handled"), nil },
		"router": func(in content.AgentInput) (content.AgentOutput, error) {
			routes, _ := in.Metadata["routes"].([]any)
			require.Len(t, routes, 2)
			return content.AgentOutput{Metadata: map[string]any{"target": "support"}}, nil
		},
	})

	out, err := Routing(context.Background(), d, RoutingConfig{
		Routes: []Route{{ID: "billing", Description: "billing questions"}, {ID: "support", Description: "support questions"}},
		Router: "router",
	}, content.NewTextInput("help"))
	require.NoError(t, err)
	assert.Equal(t, "support handled", out.String())
}

func TestRoutingRejectsUnknownTarget(t *testing.T) {
	d := fakeDispatcher(map[agent.ID]func(content.AgentInput) (content.AgentOutput, error){
		"billing": func(in content.AgentInput) (content.AgentOutput, error) { return content.NewTextOutput("billing handled"), nil },
		"router": func(in content.AgentInput) (content.AgentOutput, error) {
			return content.AgentOutput{Metadata: map[string]any{"target": "nonexistent"}}, nil
		},
	})

	_, err := Routing(context.Background(), d, RoutingConfig{
		Routes: []Route{{ID: "billing", Description: "billing questions"}},
		Router: "router",
	}, content.NewTextInput("help"))
	require.Error(t, err)
}

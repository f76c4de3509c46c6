package coordinate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
)

// PartitionFunc splits input into N slices dispatched to Mappers.
type PartitionFunc func(in content.AgentInput, n int) []content.AgentInput

// MapReduceConfig configures MapReduce.
type MapReduceConfig struct {
	Mappers []agent.ID `yaml:"mappers"`
	Reducer agent.ID   `yaml:"reducer"`

	// Partition/Emitter are runtime collaborators wired in code, not
	// YAML-serializable settings.
	Partition PartitionFunc
	Emitter   observability.Emitter
}

// MapReduce partitions input into len(Mappers) slices, dispatches each
// concurrently to its mapper, then passes every mapper output to Reducer
// for aggregation, in mapper-declaration order.
func MapReduce(ctx context.Context, d Dispatcher, cfg MapReduceConfig, input content.AgentInput) (content.AgentOutput, error) {
	e := newEmitting(cfg.Emitter)
	e.emit(ctx, "mapreduce_start", map[string]any{"mappers": len(cfg.Mappers)})

	parts := cfg.Partition(input, len(cfg.Mappers))
	mapOutputs := make([]content.AgentOutput, len(cfg.Mappers))

	g, gCtx := errgroup.WithContext(ctx)
	for i, m := range cfg.Mappers {
		i, m := i, m
		g.Go(func() error {
			out, err := d.Dispatch(gCtx, m, parts[i])
			if err != nil {
				return err
			}
			mapOutputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.emit(ctx, "mapreduce_done", map[string]any{"ok": false})
		return content.AgentOutput{}, err
	}

	docs := make([]any, len(mapOutputs))
	for i, o := range mapOutputs {
		docs[i] = o.Content.Document
	}
	reduceInput := content.AgentInput{Content: content.NewDocument(docs)}

	out, err := d.Dispatch(ctx, cfg.Reducer, reduceInput)
	e.emit(ctx, "mapreduce_done", map[string]any{"ok": err == nil})
	return out, err
}

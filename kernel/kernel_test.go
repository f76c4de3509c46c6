package kernel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/coordinate"
)

type fnAgent struct {
	id    agent.ID
	name  string
	state agent.State
	fn    func(string) string
}

func (f *fnAgent) ID() agent.ID                 { return f.id }
func (f *fnAgent) Name() string                 { return f.name }
func (f *fnAgent) Capabilities() agent.Capabilities {
	return agent.Capabilities{InputKind: "text", OutputKind: "text"}
}
func (f *fnAgent) State() agent.State { return f.state }
func (f *fnAgent) Initialize(context.Context) error {
	f.state = agent.StateReady
	return nil
}
func (f *fnAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	return content.NewTextOutput(f.fn(in.String())), nil
}
func (f *fnAgent) Shutdown(context.Context) error {
	f.state = agent.StateShutdown
	return nil
}

func TestKernelSpawnAndDispatch(t *testing.T) {
	k := New(Config{})
	ctx := context.Background()

	_, err := k.Spawn(ctx, &fnAgent{id: "upcase", name: "upcase", fn: strings.ToUpper})
	require.NoError(t, err)

	out, err := k.Dispatch(ctx, "upcase", content.NewTextInput("hello"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out.String())
}

func TestKernelDispatchUnknownAgent(t *testing.T) {
	k := New(Config{})
	_, err := k.Dispatch(context.Background(), "missing", content.NewTextInput(""))
	assert.Error(t, err)
}

func TestKernelDrivesSequentialCoordination(t *testing.T) {
	k := New(Config{})
	ctx := context.Background()

	_, err := k.Spawn(ctx, &fnAgent{id: "upcase", name: "upcase", fn: strings.ToUpper})
	require.NoError(t, err)
	_, err = k.Spawn(ctx, &fnAgent{id: "reverse", name: "reverse", fn: reverseString})
	require.NoError(t, err)

	out, err := coordinate.Sequential(ctx, k, coordinate.SequentialConfig{
		Participants: []agent.ID{"upcase", "reverse"},
	}, content.NewTextInput("abc"))
	require.NoError(t, err)
	assert.Equal(t, "CBA", out.String())

	require.NoError(t, k.Shutdown(ctx))
}

// TestKernelConcurrentSpawnAndDispatch exercises Spawn/Dispatch/Shutdown
// from many goroutines at once, the concurrency the spec's multi-threaded
// model explicitly permits. Run with -race to catch any data race on the
// runners registry.
func TestKernelConcurrentSpawnAndDispatch(t *testing.T) {
	k := New(Config{})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := agent.ID(fmt.Sprintf("agent-%d", i))
			_, err := k.Spawn(ctx, &fnAgent{id: id, name: string(id), fn: strings.ToUpper})
			assert.NoError(t, err)
			_, err = k.Dispatch(ctx, id, content.NewTextInput("hi"))
			assert.NoError(t, err)
			_, _ = k.Runner(id)
		}(i)
	}
	wg.Wait()

	require.NoError(t, k.Shutdown(ctx))
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

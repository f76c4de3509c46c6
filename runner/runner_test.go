package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-run/synapse/agent"
	"github.com/synapse-run/synapse/bus"
	"github.com/synapse-run/synapse/content"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/synapseerr"
)

type echoAgent struct {
	id        agent.ID
	state     agent.State
	initCalls int
}

func (e *echoAgent) ID() agent.ID                 { return e.id }
func (e *echoAgent) Name() string                 { return "echo" }
func (e *echoAgent) Capabilities() agent.Capabilities {
	return agent.Capabilities{InputKind: "text", OutputKind: "text"}
}
func (e *echoAgent) State() agent.State { return e.state }
func (e *echoAgent) Initialize(context.Context) error {
	e.initCalls++
	e.state = agent.StateReady
	return nil
}
func (e *echoAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	return content.NewTextOutput("ECHO: " + in.String()), nil
}
func (e *echoAgent) Shutdown(context.Context) error { e.state = agent.StateShutdown; return nil }

// TestEchoPipeline implements spec scenario S1.
func TestEchoPipeline(t *testing.T) {
	rec := observability.NewRecorder()
	r := New(&echoAgent{id: "echo-1"}, Config{Emitter: rec})

	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, agent.StateReady, r.State())

	out, err := r.Execute(context.Background(), content.NewTextInput("hi"))
	require.NoError(t, err)
	assert.Equal(t, "ECHO: hi", out.String())
	assert.Equal(t, agent.StateReady, r.State())

	assert.Equal(t, 1, rec.CountByName("execute_end"))
}

func TestInitializeTwiceFails(t *testing.T) {
	r := New(&echoAgent{id: "e"}, Config{})
	require.NoError(t, r.Initialize(context.Background()))
	err := r.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, synapseerr.KindInvalidState, synapseerr.KindOf(err))
}

func TestExecuteBeforeReadyFails(t *testing.T) {
	r := New(&echoAgent{id: "e"}, Config{})
	_, err := r.Execute(context.Background(), content.NewTextInput("x"))
	require.Error(t, err)
	assert.Equal(t, synapseerr.KindInvalidState, synapseerr.KindOf(err))
}

type failingAgent struct{ echoAgent }

func (f *failingAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	return content.AgentOutput{}, synapseerr.New("agent", synapseerr.KindExecutionFailed, "domain failure")
}

func TestExecuteFailureTransitionsToErrorAndRecovers(t *testing.T) {
	r := New(&failingAgent{echoAgent{id: "f"}}, Config{})
	require.NoError(t, r.Initialize(context.Background()))

	_, err := r.Execute(context.Background(), content.NewTextInput("x"))
	require.Error(t, err)
	assert.Equal(t, agent.StateError, r.State())

	_, err = r.Execute(context.Background(), content.NewTextInput("x"))
	require.Error(t, err)
	assert.Equal(t, synapseerr.KindInvalidState, synapseerr.KindOf(err))

	require.NoError(t, r.Recover(context.Background()))
	assert.Equal(t, agent.StateReady, r.State())
}

type slowAgent struct{ echoAgent }

func (s *slowAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	select {
	case <-time.After(2 * time.Second):
		return content.NewTextOutput("done"), nil
	case <-ctx.Done():
		return content.AgentOutput{}, ctx.Err()
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := New(&slowAgent{echoAgent{id: "s"}}, Config{DefaultTimeout: 50 * time.Millisecond})
	require.NoError(t, r.Initialize(context.Background()))

	start := time.Now()
	_, err := r.Execute(context.Background(), content.NewTextInput("x"))
	require.Error(t, err)
	assert.Equal(t, synapseerr.KindTimeout, synapseerr.KindOf(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, agent.StateError, r.State())
}

type panicAgent struct{ echoAgent }

func (p *panicAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	panic("boom")
}

func TestExecutePanicBecomesInternalError(t *testing.T) {
	r := New(&panicAgent{echoAgent{id: "p"}}, Config{})
	require.NoError(t, r.Initialize(context.Background()))

	_, err := r.Execute(context.Background(), content.NewTextInput("x"))
	require.Error(t, err)
	assert.Equal(t, synapseerr.KindInternal, synapseerr.KindOf(err))
	assert.Equal(t, agent.StateError, r.State())
}

type queueAgent struct {
	echoAgent
	received chan bus.Message
}

func (q *queueAgent) HandleMessage(ctx context.Context, msg bus.Message) error {
	q.received <- msg
	return nil
}

func TestStartDrainsMailboxSerially(t *testing.T) {
	b := bus.New(bus.Config{MailboxCapacity: 4})
	inbox := b.Register("q")

	qa := &queueAgent{echoAgent: echoAgent{id: "q"}, received: make(chan bus.Message, 4)}
	r := New(qa, Config{})
	require.NoError(t, r.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, inbox)

	require.NoError(t, b.SendTo(context.Background(), "q", bus.NewMessage("s", "q", content.NewTextInput("m1"))))
	select {
	case msg := <-qa.received:
		assert.Equal(t, "m1", msg.Payload.String())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestShutdownNonStrictDrainsQueuedMessages(t *testing.T) {
	b := bus.New(bus.Config{MailboxCapacity: 4})
	inbox := b.Register("q")

	qa := &queueAgent{echoAgent: echoAgent{id: "q"}, received: make(chan bus.Message, 4)}
	r := New(qa, Config{})
	require.NoError(t, r.Initialize(context.Background()))

	// Queue messages without a running loop to consume them yet, so they
	// sit buffered in inbox when Shutdown is called.
	require.NoError(t, b.SendTo(context.Background(), "q", bus.NewMessage("s", "q", content.NewTextInput("m1"))))
	require.NoError(t, b.SendTo(context.Background(), "q", bus.NewMessage("s", "q", content.NewTextInput("m2"))))
	require.NoError(t, b.SendTo(context.Background(), "q", bus.NewMessage("s", "q", content.NewTextInput("m3"))))

	r.Start(context.Background(), inbox)
	require.NoError(t, r.Shutdown(context.Background(), false))
	assert.Equal(t, agent.StateShutdown, r.State())

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-qa.received:
			got[msg.Payload.String()] = true
		default:
			t.Fatalf("expected 3 drained messages, got %d", i)
		}
	}
	assert.True(t, got["m1"] && got["m2"] && got["m3"])
}

func TestShutdownIsIdempotent(t *testing.T) {
	r := New(&echoAgent{id: "e"}, Config{})
	require.NoError(t, r.Initialize(context.Background()))
	require.NoError(t, r.Shutdown(context.Background(), false))
	assert.Equal(t, agent.StateShutdown, r.State())
	require.NoError(t, r.Shutdown(context.Background(), false))

	_, err := r.Execute(context.Background(), content.NewTextInput("x"))
	require.Error(t, err)
	assert.Equal(t, synapseerr.KindInvalidState, synapseerr.KindOf(err))
}

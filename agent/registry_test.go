package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-run/synapse/content"
)

type stubAgent struct {
	id    ID
	name  string
	caps  Capabilities
	state State
}

func (s *stubAgent) ID() ID                      { return s.id }
func (s *stubAgent) Name() string                { return s.name }
func (s *stubAgent) Capabilities() Capabilities  { return s.caps }
func (s *stubAgent) State() State                { return s.state }
func (s *stubAgent) Initialize(context.Context) error { s.state = StateReady; return nil }
func (s *stubAgent) Execute(ctx context.Context, in content.AgentInput) (content.AgentOutput, error) {
	return content.NewTextOutput("ok"), nil
}
func (s *stubAgent) Shutdown(context.Context) error { s.state = StateShutdown; return nil }

func TestRegistryLookupAndUnregister(t *testing.T) {
	r := NewRegistry()
	a := &stubAgent{id: "a1", name: "A", caps: Capabilities{Tags: []string{"echo"}, InputKind: "text", OutputKind: "text"}}
	require.NoError(t, r.Register(a))

	got, ok := r.Lookup("a1")
	require.True(t, ok)
	assert.Equal(t, a, got)

	require.NoError(t, r.Unregister("a1"))
	_, ok = r.Lookup("a1")
	assert.False(t, ok)
}

func TestFindByTagAndCapability(t *testing.T) {
	r := NewRegistry()
	a1 := &stubAgent{id: "a1", caps: Capabilities{Tags: []string{"echo", "demo"}, InputKind: "text", OutputKind: "text"}}
	a2 := &stubAgent{id: "a2", caps: Capabilities{Tags: []string{"demo"}, InputKind: "text", OutputKind: "document"}}
	require.NoError(t, r.Register(a1))
	require.NoError(t, r.Register(a2))

	echo := r.FindByTag("echo")
	require.Len(t, echo, 1)
	assert.Equal(t, ID("a1"), echo[0].ID())

	demo := r.FindByTag("demo")
	assert.Len(t, demo, 2)

	textToText := r.FindByCapability("text", "text")
	require.Len(t, textToText, 1)
	assert.Equal(t, ID("a1"), textToText[0].ID())

	anyText := r.FindByCapability("text", "")
	assert.Len(t, anyText, 2)
}

func TestMustLookupNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.MustLookup("ghost")
	require.Error(t, err)
}

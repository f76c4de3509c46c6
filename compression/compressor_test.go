package compression

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse-run/synapse/chat"
	"github.com/synapse-run/synapse/reasoning"
)

func seq(roles ...chat.Role) []chat.Message {
	out := make([]chat.Message, len(roles))
	for i, r := range roles {
		out[i] = chat.New(r, string(r))
	}
	return out
}

// TestSlidingWindowScenario implements spec scenario S5.
func TestSlidingWindowScenario(t *testing.T) {
	c := New(Config{})
	messages := []chat.Message{
		chat.New(chat.RoleSystem, "sys"),
		chat.New(chat.RoleUser, "u1"),
		chat.New(chat.RoleAssistant, "a1"),
		chat.New(chat.RoleUser, "u2"),
		chat.New(chat.RoleAssistant, "a2"),
		chat.New(chat.RoleUser, "u3"),
		chat.New(chat.RoleAssistant, "a3"),
	}

	res, err := c.Compress(context.Background(), messages, 0, NewSlidingWindow(2))
	require.NoError(t, err)

	require.Len(t, res.Messages, 3)
	assert.Equal(t, "sys", res.Messages[0].Content)
	assert.Equal(t, "u3", res.Messages[1].Content)
	assert.Equal(t, "a3", res.Messages[2].Content)
	assert.True(t, res.Metrics.WasCompressed)
}

func TestCompressReturnsUnchangedWhenWithinBudget(t *testing.T) {
	c := New(Config{})
	messages := seq(chat.RoleSystem, chat.RoleUser, chat.RoleAssistant)

	res, err := c.Compress(context.Background(), messages, 1_000_000, NewSlidingWindow(1))
	require.NoError(t, err)
	assert.False(t, res.Metrics.WasCompressed)
	assert.Equal(t, messages, res.Messages)
}

// TestSummarizeScenario implements spec scenario S6.
func TestSummarizeScenario(t *testing.T) {
	stub := &reasoning.Stub{Responder: func(system, user string) string {
		return "concise summary"
	}}
	c := New(Config{Reasoning: stub})

	longBlock := strings.Repeat("x", 20000) // ~5000 tokens at chars/4
	messages := []chat.Message{
		chat.New(chat.RoleSystem, "sys"),
		chat.New(chat.RoleUser, longBlock),
		chat.New(chat.RoleUser, "r1"),
		chat.New(chat.RoleAssistant, "r2"),
		chat.New(chat.RoleUser, "r3"),
	}

	res, err := c.Compress(context.Background(), messages, 1000, NewSummarize(3))
	require.NoError(t, err)
	require.LessOrEqual(t, res.Metrics.TokensAfter, 1000)

	assert.Equal(t, "sys", res.Messages[0].Content)
	assert.Equal(t, chat.RoleAssistant, res.Messages[1].Role)
	assert.Equal(t, "concise summary", res.Messages[1].Content)
	assert.Equal(t, "r1", res.Messages[2].Content)
	assert.Equal(t, "r2", res.Messages[3].Content)
	assert.Equal(t, "r3", res.Messages[4].Content)

	// cache hit on identical re-invocation: the Responder now calls
	// t.Fatal, failing the test if the cache were bypassed.
	stub.Responder = func(system, user string) string {
		t.Fatal("reasoning client invoked on what should be a cache hit")
		return ""
	}
	res2, err := c.Compress(context.Background(), messages, 1000, NewSummarize(3))
	require.NoError(t, err)
	assert.Equal(t, "concise summary", res2.Messages[1].Content)
}

func TestSystemMessagesNeverDropped(t *testing.T) {
	c := New(Config{})
	messages := []chat.Message{
		chat.New(chat.RoleSystem, "sys1"),
		chat.New(chat.RoleUser, "u1"),
		chat.New(chat.RoleSystem, "sys2"),
		chat.New(chat.RoleAssistant, "a1"),
	}

	res, err := c.Compress(context.Background(), messages, 0, NewSlidingWindow(0))
	require.NoError(t, err)

	var systems []string
	for _, m := range res.Messages {
		if m.IsSystem() {
			systems = append(systems, m.Content)
		}
	}
	assert.Equal(t, []string{"sys1", "sys2"}, systems)
}

func TestHierarchicalFitsBudget(t *testing.T) {
	stub := &reasoning.Stub{Responder: func(_, _ string) string { return "summary" }}
	c := New(Config{Reasoning: stub})

	messages := []chat.Message{chat.New(chat.RoleSystem, "sys")}
	for i := 0; i < 20; i++ {
		messages = append(messages, chat.New(chat.RoleUser, strings.Repeat("word ", 50)))
	}

	res, err := c.Compress(context.Background(), messages, 200, NewHierarchical(2))
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Metrics.TokensAfter, 200+50) // summary message may push slightly over; best-effort
}

func TestHybridStopsAtFirstFittingStrategy(t *testing.T) {
	c := New(Config{})
	messages := []chat.Message{
		chat.New(chat.RoleSystem, "sys"),
		chat.New(chat.RoleUser, "u1"),
		chat.New(chat.RoleAssistant, "a1"),
		chat.New(chat.RoleUser, "u2"),
	}

	// 4 tokens > budget 2; SlidingWindow(1) leaves sys+u2 = 2 tokens, which
	// fits, so SlidingWindow(0) (which would leave only sys) never runs.
	res, err := c.Compress(context.Background(), messages, 2, NewHybrid(NewSlidingWindow(1), NewSlidingWindow(0)))
	require.NoError(t, err)
	assert.Equal(t, "hybrid", res.Metrics.StrategyName)
	assert.Len(t, res.Messages, 2)
}

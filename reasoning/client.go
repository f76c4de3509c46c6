// Package reasoning defines C7: the reasoning-service client abstraction
// every agent talks to, independent of any concrete LLM provider (spec
// §4.7). Providers are out of scope; this package also exposes Stub, a
// deterministic in-memory Client used by tests and examples.
package reasoning

import (
	"context"
	"time"
)

const component = "reasoning"

// Options configures a single Complete/StreamComplete call. Zero values
// mean "use the provider's default".
type Options struct {
	Temperature float64
	MaxTokens   int
	Tools       []ToolDefinition
	Timeout     time.Duration
}

// ToolDefinition is the provider-facing projection of a callable tool,
// mirroring the teacher's llms.ToolDefinition shape (name, description,
// JSON-schema parameters) so a reasoning.Client can describe available
// tools without importing the tool package.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a tool invocation the reasoning service asked the caller to
// perform, surfaced on a Completion or StreamChunk.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Completion is the result of a non-streaming Complete call.
type Completion struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// ChunkType discriminates StreamChunk's payload.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkDone     ChunkType = "done"
)

// StreamChunk is one element of the lazy, finite, non-restartable sequence
// StreamComplete returns (spec §4.7).
type StreamChunk struct {
	Type       ChunkType
	Text       string
	ToolCall   *ToolCall
	TokensUsed int
}

// Client is the reasoning-service contract. Implementations wrap a
// concrete provider; none ship in this module.
type Client interface {
	// Complete performs a single non-streaming completion.
	Complete(ctx context.Context, system, user string, opts Options) (Completion, error)
	// StreamComplete returns a channel of chunks, closed when the stream
	// ends (successfully or on error, surfaced as a final ChunkType
	// other than ChunkDone is never sent — callers check the returned
	// error channel instead). The returned channel is finite and cannot
	// be restarted; a second read of the stream requires a new call.
	StreamComplete(ctx context.Context, system, user string, opts Options) (<-chan StreamChunk, <-chan error)
	// Embed returns one fixed-dimension vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

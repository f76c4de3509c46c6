package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// Stub is a deterministic, in-memory Client with no network dependency,
// used by tests and by examples wiring a runnable agent without a
// concrete provider. Non-goal per spec §4.7: it is not a provider.
type Stub struct {
	// Responder, if set, computes the completion text for a given
	// (system, user) pair. The default echoes user prefixed by "stub: ".
	Responder func(system, user string) string
	// FailWith, if set, is returned by every Complete/StreamComplete call
	// instead of a response, for exercising error paths deterministically.
	FailWith error
	// EmbedDim is the fixed vector dimension Embed produces (default 8).
	EmbedDim int
}

// NewStub constructs a Stub with default echo behavior.
func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) respond(system, user string) string {
	if s.Responder != nil {
		return s.Responder(system, user)
	}
	return "stub: " + user
}

func (s *Stub) Complete(ctx context.Context, system, user string, opts Options) (Completion, error) {
	if s.FailWith != nil {
		return Completion{}, s.FailWith
	}
	if err := ctx.Err(); err != nil {
		return Completion{}, errTimeout()
	}

	text := s.respond(system, user)
	return Completion{Text: text, TokensUsed: approxTokens(text)}, nil
}

func (s *Stub) StreamComplete(ctx context.Context, system, user string, opts Options) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if s.FailWith != nil {
			errs <- errStream("stub configured to fail", s.FailWith)
			return
		}

		text := s.respond(system, user)
		words := strings.Fields(text)
		for _, w := range words {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunks <- StreamChunk{Type: ChunkText, Text: w + " ", TokensUsed: 1}:
			}
		}
		chunks <- StreamChunk{Type: ChunkDone, TokensUsed: approxTokens(text)}
	}()

	return chunks, errs
}

func (s *Stub) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	dim := s.EmbedDim
	if dim <= 0 {
		dim = 8
	}

	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, dim)
	}
	return out, nil
}

// deterministicVector hashes t into a fixed-dimension vector so identical
// inputs always embed identically, without any learned model behind it.
func deterministicVector(t string, dim int) []float64 {
	sum := sha256.Sum256([]byte(t))
	vec := make([]float64, dim)
	for i := 0; i < dim; i++ {
		off := (i * 4) % (len(sum) - 4)
		bits := binary.BigEndian.Uint32(sum[off : off+4])
		vec[i] = float64(bits) / float64(^uint32(0))
	}
	return vec
}

func approxTokens(text string) int {
	return len(strings.Fields(text))
}

// Package compression implements C8: the context compression engine that
// reduces a conversation to fit a token budget while never dropping,
// reordering, or mutating system messages (spec §4.8).
package compression

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/synapse-run/synapse/chat"
	"github.com/synapse-run/synapse/observability"
	"github.com/synapse-run/synapse/reasoning"
)

const component = "compression"

// TokenCounter estimates the token cost of a message slice. The default,
// HeuristicTokenCounter, uses ceil(chars/4) per spec §4.8.
type TokenCounter func(messages []chat.Message) int

// HeuristicTokenCounter implements the ceil(chars/4) heuristic.
func HeuristicTokenCounter(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
	}
	return total
}

// Metrics is the per-invocation record spec §4.8 requires on every
// CompressionResult.
type Metrics struct {
	TokensBefore   int
	TokensAfter    int
	MessagesBefore int
	MessagesAfter  int
	StrategyName   string
	WasCompressed  bool
}

// Result is what Compress returns.
type Result struct {
	Messages []chat.Message
	Metrics  Metrics
}

// Config configures a Compressor's caches, reasoning client, and token
// counting.
type Config struct {
	SummaryCacheSize int `yaml:"summary_cache_size"`
	EmbedCacheSize   int `yaml:"embed_cache_size"`

	// Reasoning/TokenCounter/Emitter/Metrics are runtime collaborators a
	// host wires in code, not YAML-serializable settings.
	Reasoning    reasoning.Client
	TokenCounter TokenCounter
	Emitter      observability.Emitter
	Metrics      *observability.Metrics
}

// Compressor runs CompressionStrategy variants over a message sequence,
// backed by SHA-256-keyed LRU caches for embeddings and summaries shared
// across invocations (spec §4.8's cache requirement).
type Compressor struct {
	cfg          Config
	tokenCounter TokenCounter
	summaryCache *lru.Cache[string, string]
	embedCache   *lru.Cache[string, []float64]
}

// New constructs a Compressor. Cache sizes default to 256 entries.
func New(cfg Config) *Compressor {
	if cfg.TokenCounter == nil {
		cfg.TokenCounter = HeuristicTokenCounter
	}
	if cfg.Emitter == nil {
		cfg.Emitter = observability.NopEmitter{}
	}
	if cfg.SummaryCacheSize <= 0 {
		cfg.SummaryCacheSize = 256
	}
	if cfg.EmbedCacheSize <= 0 {
		cfg.EmbedCacheSize = 256
	}

	summaryCache, _ := lru.New[string, string](cfg.SummaryCacheSize)
	embedCache, _ := lru.New[string, []float64](cfg.EmbedCacheSize)

	return &Compressor{
		cfg:          cfg,
		tokenCounter: cfg.TokenCounter,
		summaryCache: summaryCache,
		embedCache:   embedCache,
	}
}

func contentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func splitSystem(messages []chat.Message) (system, rest []chat.Message) {
	for _, m := range messages {
		if m.IsSystem() {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	return system, rest
}

// lastN returns the last n elements of rest, or all of rest if n >= len.
func lastN(rest []chat.Message, n int) (older, recent []chat.Message) {
	if n < 0 {
		n = 0
	}
	if n >= len(rest) {
		return nil, rest
	}
	return rest[:len(rest)-n], rest[len(rest)-n:]
}

// Compress applies strategy to messages, returning a Result whose
// Messages satisfy tokens_after ≤ maxTokens when achievable. Per spec
// §4.8, an input already within budget is returned unchanged with
// WasCompressed=false, regardless of which strategy was requested.
func (c *Compressor) Compress(ctx context.Context, messages []chat.Message, maxTokens int, strategy Strategy) (Result, error) {
	tokensBefore := c.tokenCounter(messages)
	if tokensBefore <= maxTokens {
		return Result{
			Messages: messages,
			Metrics: Metrics{
				TokensBefore:   tokensBefore,
				TokensAfter:    tokensBefore,
				MessagesBefore: len(messages),
				MessagesAfter:  len(messages),
				StrategyName:   strategy.Name(),
				WasCompressed:  false,
			},
		}, nil
	}

	out, err := strategy.apply(ctx, c, messages, maxTokens)
	if err != nil {
		return Result{}, err
	}

	tokensAfter := c.tokenCounter(out)
	result := Result{
		Messages: out,
		Metrics: Metrics{
			TokensBefore:   tokensBefore,
			TokensAfter:    tokensAfter,
			MessagesBefore: len(messages),
			MessagesAfter:  len(out),
			StrategyName:   strategy.Name(),
			WasCompressed:  true,
		},
	}
	c.emit(ctx, result.Metrics)
	return result, nil
}

func (c *Compressor) emit(ctx context.Context, m Metrics) {
	c.cfg.Emitter.Emit(ctx, observability.New(observability.CategoryCompression, "compression_applied", map[string]any{
		"strategy":        m.StrategyName,
		"tokens_before":   m.TokensBefore,
		"tokens_after":    m.TokensAfter,
		"messages_before": m.MessagesBefore,
		"messages_after":  m.MessagesAfter,
	}))
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CompressorOps.WithLabelValues(m.StrategyName).Inc()
	}
}

// summarize returns a cached summary for the given message block,
// computing and caching it via the reasoning client on a miss.
func (c *Compressor) summarize(ctx context.Context, block []chat.Message) (string, error) {
	if len(block) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, m := range block {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	key := contentHash(sb.String())

	if cached, ok := c.summaryCache.Get(key); ok {
		return cached, nil
	}
	if c.cfg.Reasoning == nil {
		return "", errNoReasoningClient()
	}

	const instruction = "Summarize the following conversation excerpt concisely, preserving key facts and decisions."
	completion, err := c.cfg.Reasoning.Complete(ctx, instruction, sb.String(), reasoning.Options{})
	if err != nil {
		return "", err
	}
	c.summaryCache.Add(key, completion.Text)
	return completion.Text, nil
}

// embed returns a cached embedding for text, computing and caching it via
// the reasoning client on a miss.
func (c *Compressor) embed(ctx context.Context, text string) ([]float64, error) {
	key := contentHash(text)
	if cached, ok := c.embedCache.Get(key); ok {
		return cached, nil
	}
	if c.cfg.Reasoning == nil {
		return nil, errNoReasoningClient()
	}
	vecs, err := c.cfg.Reasoning.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	c.embedCache.Add(key, vecs[0])
	return vecs[0], nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

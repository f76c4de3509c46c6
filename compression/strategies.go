package compression

import (
	"context"
	"sort"
	"strings"

	"github.com/synapse-run/synapse/chat"
)

// Strategy is a CompressionStrategy variant (spec §3). The zero value of
// each constructor type is never valid on its own; use the New* helpers.
type Strategy interface {
	Name() string
	apply(ctx context.Context, c *Compressor, messages []chat.Message, maxTokens int) ([]chat.Message, error)
}

// SlidingWindow keeps every system message plus the last N non-system
// messages.
type SlidingWindow struct{ N int }

func NewSlidingWindow(n int) SlidingWindow { return SlidingWindow{N: n} }

func (s SlidingWindow) Name() string { return "sliding_window" }

func (s SlidingWindow) apply(_ context.Context, _ *Compressor, messages []chat.Message, _ int) ([]chat.Message, error) {
	system, rest := splitSystem(messages)
	_, recent := lastN(rest, s.N)
	return append(append([]chat.Message{}, system...), recent...), nil
}

// Summarize keeps system + the last KeepRecent messages, replacing
// everything older with one synthetic assistant-role summary message.
type Summarize struct{ KeepRecent int }

func NewSummarize(keepRecent int) Summarize { return Summarize{KeepRecent: keepRecent} }

func (s Summarize) Name() string { return "summarize" }

func (s Summarize) apply(ctx context.Context, c *Compressor, messages []chat.Message, _ int) ([]chat.Message, error) {
	system, rest := splitSystem(messages)
	older, recent := lastN(rest, s.KeepRecent)

	out := append([]chat.Message{}, system...)
	if len(older) > 0 {
		summary, err := c.summarize(ctx, older)
		if err != nil {
			return nil, err
		}
		out = append(out, chat.New(chat.RoleAssistant, summary))
	}
	return append(out, recent...), nil
}

// Semantic keeps system + the last KeepRecent messages; among the
// remaining older messages it clusters by cosine similarity ≥ Threshold
// and keeps one representative (the longest) per cluster, in original
// order.
type Semantic struct {
	Threshold  float64
	KeepRecent int
}

func NewSemantic(threshold float64, keepRecent int) Semantic {
	return Semantic{Threshold: threshold, KeepRecent: keepRecent}
}

func (s Semantic) Name() string { return "semantic" }

func (s Semantic) apply(ctx context.Context, c *Compressor, messages []chat.Message, _ int) ([]chat.Message, error) {
	system, rest := splitSystem(messages)
	older, recent := lastN(rest, s.KeepRecent)

	type cluster struct {
		repIdx int
		vec    []float64
	}
	var clusters []cluster
	keep := make(map[int]bool)

	for i, m := range older {
		vec, err := c.embed(ctx, m.Content)
		if err != nil {
			return nil, err
		}

		matched := -1
		for ci, cl := range clusters {
			if cosineSimilarity(vec, cl.vec) >= s.Threshold {
				matched = ci
				break
			}
		}
		if matched == -1 {
			clusters = append(clusters, cluster{repIdx: i, vec: vec})
			keep[i] = true
			continue
		}
		if len(older[i].Content) > len(older[clusters[matched].repIdx].Content) {
			keep[clusters[matched].repIdx] = false
			clusters[matched].repIdx = i
			keep[i] = true
		}
	}

	out := append([]chat.Message{}, system...)
	for i, m := range older {
		if keep[i] {
			out = append(out, m)
		}
	}
	return append(out, recent...), nil
}

// Hierarchical scores each older message and greedily retains the
// highest-scored ones that fit the remaining budget, summarizing whatever
// is left over via the reasoning service.
type Hierarchical struct{ KeepRecent int }

func NewHierarchical(keepRecent int) Hierarchical { return Hierarchical{KeepRecent: keepRecent} }

func (h Hierarchical) Name() string { return "hierarchical" }

const (
	recencyWeight       = 0.5
	roleWeight          = 0.3
	lengthDensityWeight = 0.2
)

func score(idx, total int, m chat.Message) float64 {
	recency := float64(idx+1) / float64(total)
	role := 0.5
	if m.Role == chat.RoleUser || m.Role == chat.RoleTool {
		role = 1.0
	}
	density := nonWhitespaceRatio(m.Content)
	return recencyWeight*recency + roleWeight*role + lengthDensityWeight*density
}

func nonWhitespaceRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	nonWS := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r", r) {
			nonWS++
		}
	}
	return float64(nonWS) / float64(len(s))
}

func (h Hierarchical) apply(ctx context.Context, c *Compressor, messages []chat.Message, maxTokens int) ([]chat.Message, error) {
	system, rest := splitSystem(messages)
	older, recent := lastN(rest, h.KeepRecent)

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(older))
	for i, m := range older {
		ranked[i] = scored{idx: i, score: score(i, len(older), m)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	budget := maxTokens - c.tokenCounter(append(append([]chat.Message{}, system...), recent...))
	keep := make(map[int]bool)
	used := 0
	for _, r := range ranked {
		cost := c.tokenCounter([]chat.Message{older[r.idx]})
		if used+cost > budget {
			continue
		}
		keep[r.idx] = true
		used += cost
	}

	var leftover []chat.Message
	out := append([]chat.Message{}, system...)
	for i, m := range older {
		if keep[i] {
			out = append(out, m)
		} else {
			leftover = append(leftover, m)
		}
	}

	if len(leftover) > 0 {
		summary, err := c.summarize(ctx, leftover)
		if err != nil {
			return nil, err
		}
		out = append(out, chat.New(chat.RoleAssistant, summary))
	}

	// Restore chronological order: leftover summary was appended after
	// kept older messages above, but kept messages themselves were
	// collected in original relative order already.
	return append(out, recent...), nil
}

// Hybrid applies each strategy in order, stopping as soon as the result
// fits maxTokens.
type Hybrid struct{ Strategies []Strategy }

func NewHybrid(strategies ...Strategy) Hybrid { return Hybrid{Strategies: strategies} }

func (h Hybrid) Name() string { return "hybrid" }

func (h Hybrid) apply(ctx context.Context, c *Compressor, messages []chat.Message, maxTokens int) ([]chat.Message, error) {
	current := messages
	for _, s := range h.Strategies {
		out, err := s.apply(ctx, c, current, maxTokens)
		if err != nil {
			return nil, err
		}
		current = out
		if c.tokenCounter(current) <= maxTokens {
			return current, nil
		}
	}
	return current, nil
}

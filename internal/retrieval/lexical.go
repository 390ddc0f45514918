package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"antbot/internal/domain"
)

const DefaultTopK = 3

// LexicalRanker scores chunks by the number of distinct lowercase whitespace tokens
// they share with the query. Punctuation is kept, so "end." and "end" differ.
type LexicalRanker struct{}

func NewLexicalRanker() *LexicalRanker { return &LexicalRanker{} }

func (r *LexicalRanker) Name() string { return "lexical" }

// Rank returns at most topK chunks with a positive score, best first.
// Chunks with equal scores keep their document order.
func (r *LexicalRanker) Rank(query string, chunks []domain.Chunk, topK int) []domain.ScoredChunk {
	qset := toTokenSet(query)
	scored := make([]domain.ScoredChunk, len(chunks))
	for i, ch := range chunks {
		scored[i] = domain.ScoredChunk{Chunk: ch, Score: float64(overlap(qset, ch.Text))}
	}
	return selectTop(scored, topK)
}

// New returns the ranker registered under name. An empty name selects the lexical ranker.
func New(name string) (domain.Ranker, error) {
	switch name {
	case "lexical", "":
		return NewLexicalRanker(), nil
	case "tfidf":
		return NewTFIDFRanker(), nil
	default:
		return nil, fmt.Errorf("unknown ranker: %s", name)
	}
}

func selectTop(scored []domain.ScoredChunk, topK int) []domain.ScoredChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	out := make([]domain.ScoredChunk, 0, topK)
	for _, s := range scored {
		if len(out) == topK || s.Score <= 0 {
			break
		}
		out = append(out, s)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := strings.Fields(strings.ToLower(s))
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(qset map[string]struct{}, text string) int {
	if len(qset) == 0 {
		return 0
	}
	inter := 0
	seen := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(text)) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return inter
}

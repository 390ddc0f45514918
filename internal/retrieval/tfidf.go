package retrieval

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"antbot/internal/domain"
)

// TFIDFRanker ranks chunks by cosine similarity of TF-IDF vectors.
// Prepare must be called with the chunk set before Rank; vectors are cached per chunk ID.
type TFIDFRanker struct {
	mu           sync.RWMutex
	vocabulary   map[string]int
	idf          []float64
	vectors      map[string][]float64
	prepared     bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewTFIDFRanker() *TFIDFRanker {
	return &TFIDFRanker{
		vocabulary:   make(map[string]int),
		vectors:      make(map[string][]float64),
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (r *TFIDFRanker) Name() string { return "tfidf" }

// Prepare builds the vocabulary and IDF values from the chunk set and embeds every chunk.
func (r *TFIDFRanker) Prepare(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for _, ch := range chunks {
		seen := make(map[string]struct{})
		for _, tok := range r.tokenize(ch.Text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.vocabulary = make(map[string]int, len(terms))
	r.idf = make([]float64, len(terms))
	n := float64(len(chunks))
	for i, term := range terms {
		r.vocabulary[term] = i
		// smoothed IDF
		r.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	r.vectors = make(map[string][]float64, len(chunks))
	for _, ch := range chunks {
		r.vectors[ch.ChunkID] = r.embed(ch.Text)
	}
	r.prepared = true
	return nil
}

// Rank falls back to lexical overlap when the ranker has not been prepared.
func (r *TFIDFRanker) Rank(query string, chunks []domain.Chunk, topK int) []domain.ScoredChunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.prepared {
		return NewLexicalRanker().Rank(query, chunks, topK)
	}
	q := r.embed(query)
	scored := make([]domain.ScoredChunk, len(chunks))
	for i, ch := range chunks {
		v, ok := r.vectors[ch.ChunkID]
		if !ok {
			v = r.embed(ch.Text)
		}
		scored[i] = domain.ScoredChunk{Chunk: ch, Score: dot(q, v)}
	}
	return selectTop(scored, topK)
}

// embed returns an L2-normalized sparse-as-dense TF-IDF vector.
func (r *TFIDFRanker) embed(text string) []float64 {
	vec := make([]float64, len(r.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range r.tokenize(text) {
		if idx, ok := r.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * r.idf[idx]
	}
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (r *TFIDFRanker) tokenize(text string) []string {
	raw := r.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := r.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"how", "do", "what", "i",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

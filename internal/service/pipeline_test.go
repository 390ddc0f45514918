package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"antbot/internal/chunker"
	"antbot/internal/domain"
	"antbot/internal/prompt"
	"antbot/internal/retrieval"
	"antbot/internal/summarizer"
)

type fakeStore struct {
	text    string
	err     error
	delay   time.Duration
	fetches atomic.Int32
}

func (f *fakeStore) Fetch(ctx context.Context, container, object string) ([]byte, error) {
	f.fetches.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.text), nil
}

type textExtractor struct{}

func (textExtractor) Extract(ctx context.Context, data []byte) (string, int, error) {
	return string(data), 1, nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	reply  string
	prompt domain.Prompt
}

func (g *fakeGenerator) Generate(ctx context.Context, p domain.Prompt) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompt = p
	return g.reply
}

func newTestPipeline(t *testing.T, store *fakeStore, gen domain.Generator, ranker domain.Ranker) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Options{Container: "antbot-docs", Object: "manual.pdf", ChunkSize: 1000, TopK: 3}, Components{
		Store:      store,
		Extractor:  textExtractor{},
		Chunker:    chunker.NewSentenceChunker(1000, 200),
		Ranker:     ranker,
		Assembler:  prompt.NewAssembler("en"),
		Generator:  gen,
		Summarizer: summarizer.NewFrequencySummarizer(),
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestAsk_EndToEnd(t *testing.T) {
	const text = "Install the widget. Turn the key. Press start."
	store := &fakeStore{text: text}
	gen := &fakeGenerator{reply: "Unpack it and install."}
	p := newTestPipeline(t, store, gen, retrieval.NewLexicalRanker())

	ans, err := p.Ask(context.Background(), "How do I install the widget?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if ans.Text != "Unpack it and install." {
		t.Errorf("unexpected answer %q", ans.Text)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Chunk.Text != text || ans.Sources[0].Score <= 0 {
		t.Fatalf("expected the single full chunk as source, got %+v", ans.Sources)
	}
	if !strings.Contains(gen.prompt.User, text) {
		t.Errorf("prompt should carry the chunk as context: %q", gen.prompt.User)
	}
	if !strings.Contains(gen.prompt.User, "How do I install the widget?") {
		t.Errorf("prompt should carry the query: %q", gen.prompt.User)
	}
}

func TestAsk_NoRelevantContext(t *testing.T) {
	gen := &fakeGenerator{reply: "I don't know."}
	p := newTestPipeline(t, &fakeStore{text: "Install the widget."}, gen, retrieval.NewLexicalRanker())

	ans, err := p.Ask(context.Background(), "zebra")
	if err != nil {
		t.Fatalf("no context is not an error: %v", err)
	}
	if len(ans.Sources) != 0 || ans.Sources == nil {
		t.Errorf("expected empty non-nil sources, got %#v", ans.Sources)
	}
	if !strings.Contains(gen.prompt.User, "no relevant document found") {
		t.Errorf("expected placeholder in prompt: %q", gen.prompt.User)
	}
}

func TestWarm_ConcurrentCallersFetchOnce(t *testing.T) {
	store := &fakeStore{text: "Turn the key.", delay: 30 * time.Millisecond}
	p := newTestPipeline(t, store, &fakeGenerator{}, retrieval.NewLexicalRanker())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Warm(context.Background()); err != nil {
				t.Errorf("warm failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := store.fetches.Load(); n != 1 {
		t.Errorf("expected a single fetch, got %d", n)
	}
}

func TestWarm_FailureIsMemoized(t *testing.T) {
	store := &fakeStore{err: domain.ErrNotFound}
	p := newTestPipeline(t, store, &fakeGenerator{}, retrieval.NewLexicalRanker())

	for i := 0; i < 2; i++ {
		_, err := p.Ask(context.Background(), "anything")
		if !errors.Is(err, domain.ErrInitialization) {
			t.Fatalf("expected ErrInitialization, got %v", err)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("cause should stay visible, got %v", err)
		}
	}
	if n := store.fetches.Load(); n != 1 {
		t.Errorf("failed load should not be retried, got %d fetches", n)
	}
}

func TestWarm_EmptyDocumentFails(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{text: "   "}, &fakeGenerator{}, retrieval.NewLexicalRanker())
	if err := p.Warm(context.Background()); !errors.Is(err, domain.ErrInitialization) {
		t.Errorf("expected ErrInitialization for empty document, got %v", err)
	}
}

func TestWarm_CanceledCallerDoesNotPoisonCache(t *testing.T) {
	store := &fakeStore{text: "Turn the key."}
	p := newTestPipeline(t, store, &fakeGenerator{}, retrieval.NewLexicalRanker())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Warm(ctx); err != nil {
		t.Fatalf("load should not observe caller cancellation: %v", err)
	}
}

func TestWarm_PreparesRanker(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, &fakeStore{text: "Reset the router. Clean the filter. Reset again."}, gen, retrieval.NewTFIDFRanker())
	ans, err := p.Ask(context.Background(), "router")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if len(ans.Sources) != 1 {
		t.Errorf("expected one source, got %+v", ans.Sources)
	}
}

func TestStats(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{text: "Install the widget. Turn the key."}, &fakeGenerator{}, retrieval.NewLexicalRanker())
	if st := p.Stats(); st.Loaded || st.Ready {
		t.Errorf("stats should not trigger a load: %+v", st)
	}
	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	st := p.Stats()
	if !st.Ready || st.Chunks != 1 || st.Pages != 1 || st.Source != "antbot-docs/manual.pdf" || st.Ranker != "lexical" {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestOverview(t *testing.T) {
	p := newTestPipeline(t, &fakeStore{text: "Install the widget. Turn the key."}, &fakeGenerator{}, retrieval.NewLexicalRanker())
	got, err := p.Overview(context.Background(), 1)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if strings.Count(got, ".") != 1 {
		t.Errorf("expected one sentence, got %q", got)
	}
}

func TestSharedCacheKeyedByChunkSize(t *testing.T) {
	store := &fakeStore{text: "Install the widget. Turn the key."}
	cache := NewChunkCache()
	mk := func(size int) *Pipeline {
		p, err := NewPipeline(Options{Container: "c", Object: "o", ChunkSize: size}, Components{
			Store: store, Extractor: textExtractor{}, Chunker: chunker.NewSentenceChunker(size, 0),
			Ranker: retrieval.NewLexicalRanker(), Assembler: prompt.NewAssembler("en"), Generator: &fakeGenerator{}, Cache: cache,
		})
		if err != nil {
			t.Fatalf("new pipeline: %v", err)
		}
		return p
	}
	for _, p := range []*Pipeline{mk(1000), mk(1000), mk(10)} {
		if err := p.Warm(context.Background()); err != nil {
			t.Fatalf("warm: %v", err)
		}
	}
	if cache.Len() != 2 || store.fetches.Load() != 2 {
		t.Errorf("expected 2 cache entries and fetches, got %d and %d", cache.Len(), store.fetches.Load())
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	if _, err := NewPipeline(Options{Container: "c", Object: "o"}, Components{}); err == nil {
		t.Error("missing components should fail")
	}
	_, err := NewPipeline(Options{}, Components{
		Store: &fakeStore{}, Extractor: textExtractor{}, Chunker: chunker.NewSentenceChunker(0, 0),
		Ranker: retrieval.NewLexicalRanker(), Assembler: prompt.NewAssembler(""), Generator: &fakeGenerator{},
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestSharedCache_EachPipelinePreparesItsRanker(t *testing.T) {
	store := &fakeStore{text: "Reset the router now. Clean the filter daily. Reset again."}
	cache := NewChunkCache()
	mk := func() *Pipeline {
		p, err := NewPipeline(Options{Container: "c", Object: "o", ChunkSize: 30, TopK: 3}, Components{
			Store: store, Extractor: textExtractor{}, Chunker: chunker.NewSentenceChunker(30, 0),
			Ranker: retrieval.NewTFIDFRanker(), Assembler: prompt.NewAssembler("en"), Generator: &fakeGenerator{}, Cache: cache,
		})
		if err != nil {
			t.Fatalf("new pipeline: %v", err)
		}
		return p
	}
	first, second := mk(), mk()
	if err := first.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	ans, err := second.Ask(context.Background(), "router")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if store.fetches.Load() != 1 {
		t.Errorf("shared cache should fetch once, got %d", store.fetches.Load())
	}
	if len(ans.Sources) == 0 {
		t.Fatal("expected a source for router")
	}
	// lexical fallback would score whole token counts
	if s := ans.Sources[0].Score; s <= 0 || s >= 1 {
		t.Errorf("expected a cosine score from the prepared ranker, got %v", s)
	}
}

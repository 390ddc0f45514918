package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"antbot/internal/domain"
)

// Assembler builds the prompt for a query and its retrieved chunks.
type Assembler interface {
	Assemble(query string, chunks []domain.Chunk) domain.Prompt
}

// Summarizer condenses the document text into a few sentences.
type Summarizer interface {
	Summarize(text string, maxSentences int) string
}

// Options identifies the document and the retrieval parameters.
type Options struct {
	Container string
	Object    string
	ChunkSize int
	TopK      int
}

// Components are the collaborators of a Pipeline. Cache may be shared between pipelines;
// Summarizer and Logger are optional.
type Components struct {
	Store      domain.DocumentStore
	Extractor  domain.TextExtractor
	Chunker    domain.Chunker
	Ranker     domain.Ranker
	Assembler  Assembler
	Generator  domain.Generator
	Summarizer Summarizer
	Cache      *ChunkCache
	Logger     *slog.Logger
}

// Stats describes the readiness of the pipeline.
type Stats struct {
	Source     string `json:"source"`
	Ready      bool   `json:"ready"`
	Loaded     bool   `json:"loaded"`
	DocumentID string `json:"document_id,omitempty"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Ranker     string `json:"ranker"`
	Error      string `json:"error,omitempty"`
}

// Pipeline answers questions about one manual: it loads and chunks the document once,
// then ranks, assembles and generates per query.
type Pipeline struct {
	opts Options
	c    Components

	prepareOnce sync.Once
	prepareErr  error
}

func NewPipeline(opts Options, c Components) (*Pipeline, error) {
	if c.Store == nil || c.Extractor == nil || c.Chunker == nil || c.Ranker == nil || c.Assembler == nil || c.Generator == nil {
		return nil, errors.New("pipeline: missing component")
	}
	if opts.Container == "" || opts.Object == "" {
		return nil, fmt.Errorf("pipeline: document location is empty: %w", domain.ErrConfiguration)
	}
	if c.Cache == nil {
		c.Cache = NewChunkCache()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Pipeline{opts: opts, c: c}, nil
}

// Source returns the container/object the pipeline answers from.
func (p *Pipeline) Source() string { return p.opts.Container + "/" + p.opts.Object }

func (p *Pipeline) key() string {
	return p.Source() + "#" + strconv.Itoa(p.opts.ChunkSize)
}

// Warm loads the document if it has not been loaded yet.
func (p *Pipeline) Warm(ctx context.Context) error {
	_, err := p.entry(ctx)
	return err
}

// Ask answers query from the manual. The only error is a failed initialization;
// model failures are reported inside the answer text.
func (p *Pipeline) Ask(ctx context.Context, query string) (domain.Answer, error) {
	entry, err := p.entry(ctx)
	if err != nil {
		return domain.Answer{}, err
	}
	ranked := p.c.Ranker.Rank(query, entry.Chunks, p.opts.TopK)
	if ranked == nil {
		ranked = []domain.ScoredChunk{}
	}
	chunks := make([]domain.Chunk, len(ranked))
	for i, sc := range ranked {
		chunks[i] = sc.Chunk
	}
	p.c.Logger.Debug("chunks selected", "query_len", len(query), "selected", len(chunks))

	prompt := p.c.Assembler.Assemble(query, chunks)
	return domain.Answer{Text: p.c.Generator.Generate(ctx, prompt), Sources: ranked}, nil
}

// Overview summarizes the loaded manual in at most n sentences.
func (p *Pipeline) Overview(ctx context.Context, n int) (string, error) {
	if p.c.Summarizer == nil {
		return "", nil
	}
	entry, err := p.entry(ctx)
	if err != nil {
		return "", err
	}
	return p.c.Summarizer.Summarize(entry.Document.Content, n), nil
}

// Stats reports the load state without triggering a load.
func (p *Pipeline) Stats() Stats {
	st := Stats{Source: p.Source(), Ranker: p.c.Ranker.Name()}
	entry, err, ok := p.c.Cache.Peek(p.key())
	if !ok {
		return st
	}
	st.Loaded = true
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Ready = true
	st.DocumentID = entry.Document.ID
	st.Pages = entry.Document.Pages
	st.Chunks = len(entry.Chunks)
	return st
}

func (p *Pipeline) entry(ctx context.Context) (*Entry, error) {
	// a caller giving up must not poison the memoized result
	loadCtx := context.WithoutCancel(ctx)
	entry, err := p.c.Cache.Get(p.key(), func() (*Entry, error) {
		return p.load(loadCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInitialization, err)
	}
	// the cache may be shared, so each pipeline prepares its own ranker
	if prep, ok := p.c.Ranker.(domain.Preparer); ok {
		p.prepareOnce.Do(func() {
			if err := prep.Prepare(entry.Chunks); err != nil {
				p.prepareErr = fmt.Errorf("prepare %s ranker: %w", p.c.Ranker.Name(), err)
				p.c.Logger.Error("ranker preparation failed", "source", p.Source(), "error", err)
			}
		})
		if p.prepareErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInitialization, p.prepareErr)
		}
	}
	return entry, nil
}

func (p *Pipeline) load(ctx context.Context) (*Entry, error) {
	start := time.Now()
	log := p.c.Logger.With("source", p.Source())

	data, err := p.c.Store.Fetch(ctx, p.opts.Container, p.opts.Object)
	if err != nil {
		log.Error("document download failed", "error", err)
		return nil, fmt.Errorf("fetch %s: %w", p.Source(), err)
	}
	log.Info("document downloaded", "size_mb", fmt.Sprintf("%.2f", float64(len(data))/(1024*1024)))

	text, pages, err := p.c.Extractor.Extract(ctx, data)
	if err != nil {
		log.Error("text extraction failed", "error", err)
		return nil, fmt.Errorf("extract %s: %w", p.Source(), err)
	}

	doc := domain.Document{ID: hashString(p.Source()), Source: p.Source(), Content: text, Pages: pages}
	chunks := p.c.Chunker.Chunk(doc)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s produced no chunks", p.Source())
	}
	log.Info("document ready", "pages", pages, "chunks", len(chunks), "elapsed", time.Since(start))
	return &Entry{Document: doc, Chunks: chunks}, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

package service

import (
	"fmt"
	"sync"
	"sync/atomic"

	"antbot/internal/domain"
)

// Entry is the loaded form of one document.
type Entry struct {
	Document domain.Document
	Chunks   []domain.Chunk
}

type cell struct {
	once  sync.Once
	done  atomic.Bool
	entry *Entry
	err   error
}

// ChunkCache memoizes one load per key. Concurrent first callers wait on the
// single in-flight load; its result, failure included, is kept for the process lifetime.
type ChunkCache struct {
	mu    sync.Mutex
	cells map[string]*cell
}

func NewChunkCache() *ChunkCache {
	return &ChunkCache{cells: map[string]*cell{}}
}

// Get returns the entry for key, running load at most once.
func (c *ChunkCache) Get(key string, load func() (*Entry, error)) (*Entry, error) {
	cl := c.cell(key)
	cl.once.Do(func() {
		defer cl.done.Store(true)
		defer func() {
			if r := recover(); r != nil {
				cl.entry, cl.err = nil, fmt.Errorf("load panicked: %v", r)
			}
		}()
		cl.entry, cl.err = load()
	})
	return cl.entry, cl.err
}

// Peek reports the result for key without loading. ok is false while nothing has completed.
func (c *ChunkCache) Peek(key string) (entry *Entry, err error, ok bool) {
	c.mu.Lock()
	cl, found := c.cells[key]
	c.mu.Unlock()
	if !found || !cl.done.Load() {
		return nil, nil, false
	}
	return cl.entry, cl.err, true
}

func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cells)
}

func (c *ChunkCache) cell(key string) *cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.cells[key]
	if !ok {
		cl = &cell{}
		c.cells[key] = cl
	}
	return cl
}

package domain

import "context"

// Document is the full extracted text of the manual.
type Document struct {
	ID      string
	Source  string
	Content string
	Pages   int
}

// Chunk is a contiguous run of sentences used as the retrieval unit.
type Chunk struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Text       string `json:"text"`
	Index      int    `json:"index"`
}

// ScoredChunk pairs a chunk with its relevance to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation or one message of a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the assembled instruction handed to the language model.
type Prompt struct {
	System string
	User   string
}

// CompletionRequest is the payload accepted by a chat completion service.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Answer is the result of one pipeline query.
type Answer struct {
	Text    string        `json:"answer"`
	Sources []ScoredChunk `json:"sources"`
}

// Chunker splits a document into chunks suitable for retrieval.
type Chunker interface {
	Chunk(document Document) []Chunk
}

// Ranker selects the chunks most relevant to a query, best first.
type Ranker interface {
	Name() string
	Rank(query string, chunks []Chunk, topK int) []ScoredChunk
}

// Preparer is implemented by rankers that need a pass over the chunk set before ranking.
type Preparer interface {
	Prepare(chunks []Chunk) error
}

// DocumentStore reads raw objects from object storage.
type DocumentStore interface {
	Fetch(ctx context.Context, container, object string) ([]byte, error)
}

// TextExtractor turns raw document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (text string, pages int, err error)
}

// ChatCompleter is a hosted chat completion endpoint.
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Generator produces an answer text for a prompt. It never fails; errors degrade into text.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) string
}

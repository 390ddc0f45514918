package chunker

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"antbot/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// SentenceChunker greedily packs whole sentences into chunks bounded by chunkSize characters.
// overlap is accepted for configuration compatibility; consecutive chunks never overlap.
type SentenceChunker struct {
	chunkSize int
	overlap   int
}

func NewSentenceChunker(chunkSize, overlap int) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &SentenceChunker{chunkSize: chunkSize, overlap: overlap}
}

// Size returns the configured maximum chunk length in characters.
func (c *SentenceChunker) Size() int { return c.chunkSize }

func (c *SentenceChunker) Chunk(document domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	emit := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Text:       text,
			Index:      idx,
		})
	}

	var buf strings.Builder
	bufLen := 0
	for _, sentence := range SplitSentences(document.Content) {
		if sentence == "" {
			continue
		}
		n := utf8.RuneCountInString(sentence)
		if bufLen+n >= c.chunkSize {
			emit(buf.String())
			buf.Reset()
			bufLen = 0
		}
		buf.WriteString(sentence)
		buf.WriteByte(' ')
		bufLen += n + 1
	}
	emit(buf.String())
	return chunks
}

// SplitSentences cuts text right after '.', '!' or '?' when whitespace follows,
// dropping that whitespace. Abbreviations and decimals are not special-cased.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i
		for i < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(ws) {
				break
			}
			i += wsSize
		}
		if i > end {
			out = append(out, text[start:end])
			start = i
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

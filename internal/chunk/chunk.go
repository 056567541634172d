// Package chunk splits regulatory text into overlapping fixed-size passages.
package chunk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ppiankov/inspecta/internal/model"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 1000

// DefaultOverlap is the default number of characters shared by adjacent chunks.
const DefaultOverlap = 200

// Chunk splits text into windows of size characters, each starting size-overlap
// characters after the previous one. The last window holds whatever remains, so
// no trailing content is dropped. Empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	spans, err := windows(text, size, overlap)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.start:s.end])
	}
	return out, nil
}

// Join reverses Chunk: it concatenates chunks with the overlap removed
func Join(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}

// span is a half-open rune range
type span struct {
	start, end int
}

func windows(text string, size, overlap int) ([]span, error) {
	if size <= 0 {
		return nil, model.Errorf(model.KindInvalidConfiguration, "chunk", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, model.Errorf(model.KindInvalidConfiguration, "chunk", "overlap %d must be in [0, %d)", overlap, size)
	}

	n := len([]rune(text))
	if n == 0 {
		return nil, nil
	}

	step := size - overlap
	spans := make([]span, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, span{start, end})
		if end == n {
			break
		}
	}
	return spans, nil
}

// Document is a regulatory source after text extraction
type Document struct {
	Name string // path relative to the corpus root, used as source_document
	Text string
}

// Splitter turns documents into RegulatoryChunks with article metadata
type Splitter struct {
	size    int
	overlap int
}

// Option configures a Splitter
type Option func(*Splitter)

// WithSize sets the chunk size in characters
func WithSize(size int) Option {
	return func(s *Splitter) {
		s.size = size
	}
}

// WithOverlap sets the overlap between chunks in characters
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// NewSplitter validates the options and returns a Splitter.
// Invalid sizes fail here rather than on first use.
func NewSplitter(opts ...Option) (*Splitter, error) {
	s := &Splitter{size: DefaultSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := windows("x", s.size, s.overlap); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the configured chunk size
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks a document and labels each chunk with the article in force
func (s *Splitter) Split(doc Document) ([]model.RegulatoryChunk, error) {
	spans, err := windows(doc.Text, s.size, s.overlap)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, nil
	}

	runes := []rune(doc.Text)
	headings := findHeadings(runes)
	normID := IdentifyNorm(doc.Name, doc.Text)
	key := DocumentKey(doc.Name)

	chunks := make([]model.RegulatoryChunk, 0, len(spans))
	for i, sp := range spans {
		c := model.RegulatoryChunk{
			ID:             fmt.Sprintf("%s_chunk_%d", key, i),
			Text:           string(runes[sp.start:sp.end]),
			SourceDocument: doc.Name,
			NormID:         normID,
			ChunkIndex:     i,
			TotalChunks:    len(spans),
		}
		if label := headings.labelFor(sp); label != "" {
			c.ArticleLabel = model.StrPtr(label)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DocumentKey derives the chunk id prefix from a document name: the path
// relative to the corpus root, without extension, with separators replaced.
// "2018/NOM-001-SEDE.txt" becomes "2018_NOM-001-SEDE".
func DocumentKey(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
	if name == "." {
		name = ""
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, stem)
	if stem == "" {
		return "document"
	}
	return stem
}

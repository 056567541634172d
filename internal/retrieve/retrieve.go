// Package retrieve finds the regulatory articles that apply to a finding.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/chunk"
	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/util"
	"github.com/ppiankov/inspecta/internal/vectorstore"
)

// NoReference is shown when no article applies to a finding
const NoReference = "Sin referencia"

const excerptLength = 300

// Store is the part of vectorstore.Collection the retriever reads
type Store interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error)
	HasArticle(ctx context.Context, label string) (bool, error)
	ChunksByArticle(ctx context.Context, label string) ([]model.RegulatoryChunk, error)
}

// Retriever turns finding descriptions into article citations
type Retriever struct {
	store     Store
	topK      int
	threshold float64
	timeout   time.Duration
	overlap   int
	log       logrus.FieldLogger
}

// Option configures a Retriever
type Option func(*Retriever)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Retriever) { r.log = logger.OrDiscard(log) }
}

// WithOverlap tells ArticleContent how much adjacent chunks share
func WithOverlap(n int) Option {
	return func(r *Retriever) {
		if n >= 0 {
			r.overlap = n
		}
	}
}

// New creates a Retriever from the retrieval settings
func New(store Store, cfg model.RetrievalConfig, opts ...Option) *Retriever {
	r := &Retriever{
		store:     store,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		timeout:   model.Seconds(cfg.Timeout, 5*time.Second),
		log:       logger.Discard(),
	}
	if r.topK <= 0 {
		r.topK = 5
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindApplicableArticles returns up to k citations for text, best first. Hits
// below the similarity threshold or without an article label are dropped, and
// each article appears once. An empty result is not an error.
func (r *Retriever) FindApplicableArticles(ctx context.Context, text string, k int) ([]model.Citation, error) {
	if k <= 0 {
		k = r.topK
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hits, err := r.store.Search(ctx, text, k)
	if err != nil {
		return nil, r.wrap("find articles", err)
	}

	seen := make(map[string]bool, len(hits))
	var out []model.Citation
	for _, h := range hits {
		label := h.Chunk.Article()
		if h.Similarity < r.threshold || label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, model.Citation{
			Article:        label,
			SourceDocument: h.Chunk.SourceDocument,
			NormID:         h.Chunk.NormID,
			Excerpt:        util.Truncate(h.Chunk.Text, excerptLength),
			Similarity:     h.Similarity,
		})
	}

	r.log.WithFields(logrus.Fields{"hits": len(hits), "citations": len(out)}).Debug("articles retrieved")
	return out, nil
}

// VerifyArticle reports whether label names an article present in the corpus
func (r *Retriever) VerifyArticle(ctx context.Context, label string) bool {
	label = chunk.NormalizeArticle(label)
	if label == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ok, err := r.store.HasArticle(ctx, label)
	if err != nil {
		r.log.WithError(err).WithField("article", label).Warn("article verification failed")
		return false
	}
	return ok
}

// ArticleContent returns the text stored under an article label. Consecutive
// chunks of the same document are stitched back together without their overlap.
func (r *Retriever) ArticleContent(ctx context.Context, label string) (string, error) {
	label = chunk.NormalizeArticle(label)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	chunks, err := r.store.ChunksByArticle(ctx, label)
	if err != nil {
		return "", r.wrap("article content", err)
	}
	if len(chunks) == 0 {
		return "", model.Errorf(model.KindCitationNotFound, "article content", "article %q not found", label)
	}

	var (
		parts []string
		run   []string
	)
	for i, c := range chunks {
		if i > 0 {
			prev := chunks[i-1]
			if prev.SourceDocument != c.SourceDocument || prev.ChunkIndex+1 != c.ChunkIndex {
				parts = append(parts, chunk.Join(run, r.overlap))
				run = nil
			}
		}
		run = append(run, c.Text)
	}
	parts = append(parts, chunk.Join(run, r.overlap))
	return strings.Join(parts, "\n\n"), nil
}

// wrap turns a deadline into UpstreamUnavailable and keeps other kinds intact
func (r *Retriever) wrap(op string, err error) error {
	var ae *model.AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewError(model.KindUpstreamUnavailable, op, fmt.Errorf("vector search: %w", err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

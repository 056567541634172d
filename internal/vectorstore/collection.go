package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/embed"
	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
)

// DefaultBatchSize is the number of chunks embedded per request during ingestion
const DefaultBatchSize = 100

// ErrIngestionInProgress is returned when an ingestion is started while another runs
var ErrIngestionInProgress = errors.New("an ingestion is already in progress")

// Hit is one search result
type Hit struct {
	Chunk      model.RegulatoryChunk
	Similarity float64
	Seq        int64
}

// AddStats reports the outcome of an Add
type AddStats struct {
	Added   int
	Skipped int // chunks whose embedding failed
	Removed int // stale chunks of a replaced document
}

// Collection is the vector store service. Queries run concurrently with each
// other. Ingestion is exclusive: only one may run at a time, and while it runs
// new queries wait until it finishes.
type Collection struct {
	backend   Backend
	embedder  embed.Embedder
	log       logrus.FieldLogger
	batchSize int

	mu        sync.RWMutex
	ingesting atomic.Bool
}

// CollectionOption configures a Collection
type CollectionOption func(*Collection)

// WithBatchSize sets the ingestion embedding batch size
func WithBatchSize(n int) CollectionOption {
	return func(c *Collection) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) CollectionOption {
	return func(c *Collection) {
		c.log = logger.OrDiscard(log)
	}
}

// NewCollection combines a backend with the embedder that produces its vectors
func NewCollection(backend Backend, embedder embed.Embedder, opts ...CollectionOption) *Collection {
	c := &Collection{
		backend:   backend,
		embedder:  embedder,
		log:       logger.Discard(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to k chunks ordered by descending cosine similarity to
// query. Equal similarities keep insertion order.
func (c *Collection) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	return c.SearchNorm(ctx, query, k, "")
}

// SearchNorm is Search restricted to chunks of one norm. An empty normID searches everything.
func (c *Collection) SearchNorm(ctx context.Context, query string, k int, normID string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	if err := c.rlock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()

	if err := c.checkReady(ctx); err != nil {
		return nil, err
	}

	qv, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if vs, ok := c.backend.(VectorSearcher); ok {
		hits, err := vs.SearchVector(ctx, qv, k, normID)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		return hits, nil
	}

	var hits []Hit
	err = c.backend.Scan(ctx, normID, func(r Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hits = append(hits, Hit{Chunk: r.Chunk, Similarity: embed.Cosine(qv, r.Vector), Seq: r.Seq})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Seq < hits[j].Seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of stored chunks
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.rlock(ctx); err != nil {
		return 0, err
	}
	defer c.mu.RUnlock()
	return c.backend.Count(ctx)
}

// IsEmpty reports whether nothing has been ingested
func (c *Collection) IsEmpty(ctx context.Context) (bool, error) {
	n, err := c.Count(ctx)
	return n == 0, err
}

// HasArticle reports whether any stored chunk carries the article label
func (c *Collection) HasArticle(ctx context.Context, label string) (bool, error) {
	chunks, err := c.ChunksByArticle(ctx, label)
	return len(chunks) > 0, err
}

// ChunksByArticle returns the chunks labelled with the article, in insertion order
func (c *Collection) ChunksByArticle(ctx context.Context, label string) ([]model.RegulatoryChunk, error) {
	if label == "" {
		return nil, nil
	}
	if err := c.rlock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()
	return c.backend.ByArticle(ctx, label)
}

// Sources lists the ingested documents
func (c *Collection) Sources(ctx context.Context) ([]SourceInfo, error) {
	if err := c.rlock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.RUnlock()
	return c.backend.Sources(ctx)
}

// Add ingests chunks in a single exclusive ingestion
func (c *Collection) Add(ctx context.Context, chunks []model.RegulatoryChunk) (AddStats, error) {
	ing, err := c.BeginIngest(ctx)
	if err != nil {
		return AddStats{}, err
	}
	defer ing.Close()
	return ing.Add(ctx, chunks)
}

// Clear removes every stored chunk
func (c *Collection) Clear(ctx context.Context) error {
	ing, err := c.BeginIngest(ctx)
	if err != nil {
		return err
	}
	defer ing.Close()
	return ing.Reset(ctx)
}

// Close releases the backend
func (c *Collection) Close() error {
	return c.backend.Close()
}

// BeginIngest starts an exclusive ingestion. It fails with
// ErrIngestionInProgress when another ingestion is running, and otherwise
// waits for in-flight queries before returning. Close must be called.
func (c *Collection) BeginIngest(ctx context.Context) (*Ingestion, error) {
	if !c.ingesting.CompareAndSwap(false, true) {
		return nil, ErrIngestionInProgress
	}

	locked := make(chan struct{})
	go func() {
		c.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		return &Ingestion{c: c}, nil
	case <-ctx.Done():
		go func() {
			<-locked
			c.mu.Unlock()
			c.ingesting.Store(false)
		}()
		return nil, ctx.Err()
	}
}

// Ingestion is an exclusive write session on a Collection
type Ingestion struct {
	c    *Collection
	once sync.Once
}

// Reset removes all stored chunks
func (i *Ingestion) Reset(ctx context.Context) error {
	if err := i.c.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}

// Add embeds and upserts chunks. Chunks are embedded in batches; when a batch
// fails, each of its chunks is retried alone and the ones that still fail are
// skipped. If no chunk of a batch can be embedded the backend is considered
// down and Add aborts with EmbeddingUnavailable.
func (i *Ingestion) Add(ctx context.Context, chunks []model.RegulatoryChunk) (AddStats, error) {
	stats, _, err := i.add(ctx, chunks)
	return stats, err
}

// Replace makes chunks the full content of sourceDocument: they are added as
// with Add, then every other stored chunk of that document is removed. Chunks
// skipped for a failed embedding are removed too, so no stale text survives.
// Nothing is removed when Add fails.
func (i *Ingestion) Replace(ctx context.Context, sourceDocument string, chunks []model.RegulatoryChunk) (AddStats, error) {
	stats, stored, err := i.add(ctx, chunks)
	if err != nil {
		return stats, err
	}
	removed, err := i.c.backend.DeleteSource(ctx, sourceDocument, stored)
	if err != nil {
		return stats, fmt.Errorf("remove stale chunks: %w", err)
	}
	stats.Removed = removed
	if removed > 0 {
		i.c.log.WithFields(logrus.Fields{"source": sourceDocument, "removed": removed}).Debug("stale chunks removed")
	}
	return stats, nil
}

func (i *Ingestion) add(ctx context.Context, chunks []model.RegulatoryChunk) (AddStats, []string, error) {
	c := i.c
	var stats AddStats
	if len(chunks) == 0 {
		return stats, nil, nil
	}

	if err := c.claimModel(ctx); err != nil {
		return stats, nil, err
	}

	stored := make([]string, 0, len(chunks))
	for start := 0; start < len(chunks); start += c.batchSize {
		end := start + c.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		recs, skipped, err := c.embedBatch(ctx, batch)
		if err != nil {
			return stats, stored, err
		}
		if err := c.backend.Upsert(ctx, recs); err != nil {
			return stats, stored, fmt.Errorf("upsert chunks: %w", err)
		}
		for _, r := range recs {
			stored = append(stored, r.Chunk.ID)
		}
		stats.Added += len(recs)
		stats.Skipped += skipped

		c.log.WithFields(logrus.Fields{"added": stats.Added, "total": len(chunks)}).Debug("ingestion progress")
	}
	return stats, stored, nil
}

// Close ends the ingestion and lets queries proceed
func (i *Ingestion) Close() {
	i.once.Do(func() {
		i.c.mu.Unlock()
		i.c.ingesting.Store(false)
	})
}

func (c *Collection) embedBatch(ctx context.Context, batch []model.RegulatoryChunk) ([]Record, int, error) {
	texts := make([]string, len(batch))
	for j, ch := range batch {
		texts[j] = ch.Text
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		recs := make([]Record, len(batch))
		for j, ch := range batch {
			recs[j] = Record{Chunk: ch, Vector: vecs[j]}
		}
		return recs, 0, nil
	}
	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}

	c.log.WithError(err).Warn("batch embedding failed, retrying chunks one by one")

	var (
		recs    []Record
		skipped int
		lastErr = err
	)
	for _, ch := range batch {
		v, err := c.embedder.Embed(ctx, ch.Text)
		if err != nil {
			skipped++
			lastErr = err
			c.log.WithError(err).WithField("chunk", ch.ID).Warn("skipping chunk that failed to embed")
			continue
		}
		recs = append(recs, Record{Chunk: ch, Vector: v})
	}
	if len(recs) == 0 {
		return nil, 0, model.NewError(model.KindEmbeddingUnavailable, "ingest", lastErr)
	}
	return recs, skipped, nil
}

// claimModel records the embedding model on first ingestion and rejects
// ingesting vectors from a different model into an existing collection.
func (c *Collection) claimModel(ctx context.Context) error {
	stored, err := c.backend.EmbeddingModel(ctx)
	if err != nil {
		return fmt.Errorf("read embedding model: %w", err)
	}
	n, err := c.backend.Count(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	name := c.embedder.ModelName()
	if n > 0 && stored != "" && stored != name {
		return model.Errorf(model.KindInvalidConfiguration, "ingest",
			"collection was built with embedding model %s, not %s; re-ingest with --reset", stored, name)
	}
	return c.backend.SetEmbeddingModel(ctx, name)
}

func (c *Collection) checkReady(ctx context.Context) error {
	n, err := c.backend.Count(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if n == 0 {
		return model.NewError(model.KindCollectionEmpty, "search", nil)
	}
	stored, err := c.backend.EmbeddingModel(ctx)
	if err != nil {
		return fmt.Errorf("read embedding model: %w", err)
	}
	if stored != "" && stored != c.embedder.ModelName() {
		return model.Errorf(model.KindInvalidConfiguration, "search",
			"collection was built with embedding model %s, not %s; re-ingest with --reset", stored, c.embedder.ModelName())
	}
	return nil
}

// rlock takes the read lock, giving up if ctx ends while an ingestion holds the write lock
func (c *Collection) rlock(ctx context.Context) error {
	if c.mu.TryRLock() {
		return nil
	}
	locked := make(chan struct{})
	go func() {
		c.mu.RLock()
		close(locked)
	}()
	select {
	case <-locked:
		return nil
	case <-ctx.Done():
		go func() {
			<-locked
			c.mu.RUnlock()
		}()
		return model.NewError(model.KindUpstreamUnavailable, "vector store", ctx.Err())
	}
}

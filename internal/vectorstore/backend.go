// Package vectorstore persists regulatory chunks with their embeddings and
// answers nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"sort"

	"github.com/ppiankov/inspecta/internal/model"
)

// Record is a stored chunk with its vector. Seq is the insertion sequence
// assigned by the backend; re-adding an existing id keeps its original Seq.
type Record struct {
	Chunk  model.RegulatoryChunk
	Vector []float32
	Seq    int64
}

// SourceInfo summarizes one ingested document
type SourceInfo struct {
	SourceDocument string `json:"source_document"`
	NormID         string `json:"norm_id"`
	Chunks         int    `json:"chunks"`
}

// Backend is the storage engine behind a Collection. Implementations hold a
// single named collection and need not be safe for concurrent writers; the
// Collection serializes ingestion.
type Backend interface {
	// Upsert inserts or replaces records by chunk id
	Upsert(ctx context.Context, recs []Record) error
	// Scan calls fn for every record, optionally restricted to one norm
	Scan(ctx context.Context, normID string, fn func(Record) error) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	// DeleteSource removes the chunks of one source document whose ids are
	// not in keep, and returns how many were removed
	DeleteSource(ctx context.Context, sourceDocument string, keep []string) (int, error)
	// ByArticle returns chunks labelled with the article, in insertion order
	ByArticle(ctx context.Context, label string) ([]model.RegulatoryChunk, error)
	Sources(ctx context.Context) ([]SourceInfo, error)
	// EmbeddingModel returns the model the stored vectors were built with
	EmbeddingModel(ctx context.Context) (string, error)
	SetEmbeddingModel(ctx context.Context, name string) error
	Close() error
}

// VectorSearcher is implemented by backends that rank by similarity
// themselves. Results must be ordered like Collection.Search orders them.
type VectorSearcher interface {
	SearchVector(ctx context.Context, query []float32, k int, normID string) ([]Hit, error)
}

func sortSources(out []SourceInfo) {
	sort.Slice(out, func(i, j int) bool { return out[i].SourceDocument < out[j].SourceDocument })
}

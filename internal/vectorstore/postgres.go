package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ppiankov/inspecta/internal/model"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS inspecta_chunks (
    collection      TEXT    NOT NULL,
    id              TEXT    NOT NULL,
    seq             BIGINT  NOT NULL,
    text            TEXT    NOT NULL,
    source_document TEXT    NOT NULL,
    article_label   TEXT,
    norm_id         TEXT    NOT NULL DEFAULT '',
    chunk_index     INTEGER NOT NULL DEFAULT 0,
    total_chunks    INTEGER NOT NULL DEFAULT 0,
    embedding       vector  NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_inspecta_chunks_article ON inspecta_chunks (collection, article_label);

CREATE TABLE IF NOT EXISTS inspecta_collections (
    name            TEXT PRIMARY KEY,
    embedding_model TEXT NOT NULL DEFAULT ''
);
`

// Postgres stores chunks in PostgreSQL with the pgvector extension and lets
// the database rank them by cosine distance.
type Postgres struct {
	db         *sql.DB
	collection string
}

// NewPostgres connects to dsn and ensures the schema exists
func NewPostgres(ctx context.Context, dsn, collection string) (*Postgres, error) {
	if collection == "" {
		collection = model.DefaultCollection
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Postgres{db: db, collection: collection}, nil
}

func (p *Postgres) Upsert(ctx context.Context, recs []Record) (err error) {
	if len(recs) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var seq int64
	if err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM inspecta_chunks WHERE collection = $1", p.collection).Scan(&seq); err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}

	for _, r := range recs {
		seq++
		c := r.Chunk
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO inspecta_chunks (collection, id, seq, text, source_document, article_label,
			                             norm_id, chunk_index, total_chunks, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (collection, id) DO UPDATE SET
				text = EXCLUDED.text,
				source_document = EXCLUDED.source_document,
				article_label = EXCLUDED.article_label,
				norm_id = EXCLUDED.norm_id,
				chunk_index = EXCLUDED.chunk_index,
				total_chunks = EXCLUDED.total_chunks,
				embedding = EXCLUDED.embedding,
				updated_at = now()`,
			p.collection, c.ID, seq, c.Text, c.SourceDocument, nullString(c.ArticleLabel),
			c.NormID, c.ChunkIndex, c.TotalChunks, pgvector.NewVector(r.Vector)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) Scan(ctx context.Context, normID string, fn func(Record) error) error {
	query := "SELECT " + chunkColumns + ", embedding FROM inspecta_chunks WHERE collection = $1"
	args := []interface{}{p.collection}
	if normID != "" {
		query += " AND norm_id = $2"
		args = append(args, normID)
	}
	query += " ORDER BY seq"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		r, err := scanPGRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SearchVector ranks chunks in the database by cosine distance, breaking ties by seq
func (p *Postgres) SearchVector(ctx context.Context, query []float32, k int, normID string) ([]Hit, error) {
	q := "SELECT " + chunkColumns + ", embedding, 1 - (embedding <=> $2) AS similarity " +
		"FROM inspecta_chunks WHERE collection = $1"
	args := []interface{}{p.collection, pgvector.NewVector(query), k}
	if normID != "" {
		q += " AND norm_id = $4"
		args = append(args, normID)
	}
	q += " ORDER BY embedding <=> $2, seq LIMIT $3"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var (
			r     Record
			label sql.NullString
			vec   pgvector.Vector
			sim   sql.NullFloat64
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Seq, &r.Chunk.Text, &r.Chunk.SourceDocument, &label,
			&r.Chunk.NormID, &r.Chunk.ChunkIndex, &r.Chunk.TotalChunks, &vec, &sim); err != nil {
			return nil, err
		}
		if label.Valid {
			r.Chunk.ArticleLabel = model.StrPtr(label.String)
		}
		hits = append(hits, Hit{Chunk: r.Chunk, Similarity: sim.Float64, Seq: r.Seq})
	}
	return hits, rows.Err()
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM inspecta_chunks WHERE collection = $1", p.collection).Scan(&n)
	return n, err
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM inspecta_chunks WHERE collection = $1", p.collection); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, "DELETE FROM inspecta_collections WHERE name = $1", p.collection)
	return err
}

func (p *Postgres) DeleteSource(ctx context.Context, sourceDocument string, keep []string) (int, error) {
	if keep == nil {
		keep = []string{}
	}
	res, err := p.db.ExecContext(ctx,
		"DELETE FROM inspecta_chunks WHERE collection = $1 AND source_document = $2 AND NOT (id = ANY($3))",
		p.collection, sourceDocument, pq.Array(keep))
	if err != nil {
		return 0, fmt.Errorf("delete chunks of %s: %w", sourceDocument, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) ByArticle(ctx context.Context, label string) ([]model.RegulatoryChunk, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM inspecta_chunks WHERE collection = $1 AND article_label = $2 ORDER BY seq",
		p.collection, label)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.RegulatoryChunk
	for rows.Next() {
		var r Record
		if err := scanChunk(rows, &r, nil); err != nil {
			return nil, err
		}
		out = append(out, r.Chunk)
	}
	return out, rows.Err()
}

func (p *Postgres) Sources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT source_document, MIN(norm_id), COUNT(*)
		FROM inspecta_chunks WHERE collection = $1
		GROUP BY source_document`, p.collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SourceInfo
	for rows.Next() {
		var si SourceInfo
		if err := rows.Scan(&si.SourceDocument, &si.NormID, &si.Chunks); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	sortSources(out)
	return out, rows.Err()
}

func (p *Postgres) EmbeddingModel(ctx context.Context) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx, "SELECT embedding_model FROM inspecta_collections WHERE name = $1", p.collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (p *Postgres) SetEmbeddingModel(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO inspecta_collections (name, embedding_model) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET embedding_model = EXCLUDED.embedding_model`,
		p.collection, name)
	return err
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

func scanPGRecord(rows *sql.Rows) (Record, error) {
	var (
		r     Record
		label sql.NullString
		vec   pgvector.Vector
	)
	if err := rows.Scan(&r.Chunk.ID, &r.Seq, &r.Chunk.Text, &r.Chunk.SourceDocument, &label,
		&r.Chunk.NormID, &r.Chunk.ChunkIndex, &r.Chunk.TotalChunks, &vec); err != nil {
		return r, err
	}
	if label.Valid {
		r.Chunk.ArticleLabel = model.StrPtr(label.String)
	}
	r.Vector = vec.Slice()
	return r, nil
}

package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/vectorstore/migrations"
)

// SQLite is the default persistent backend, one database file per data directory
type SQLite struct {
	db         *sql.DB
	path       string
	collection string
}

// NewSQLite opens (or creates) <dataDir>/vectors.db and selects a collection
func NewSQLite(dataDir, collection string) (*SQLite, error) {
	if dataDir == "" {
		dataDir = filepath.Join(model.HomeDir(), "data")
	}
	if collection == "" {
		collection = model.DefaultCollection
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vectors.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, path: dbPath, collection: collection}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, recs []Record) (err error) {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
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
		"SELECT COALESCE(MAX(seq), 0) FROM chunks WHERE collection = ?", s.collection).Scan(&seq); err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, seq, text, source_document, article_label,
		                    norm_id, chunk_index, total_chunks, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id) DO UPDATE SET
			text = excluded.text,
			source_document = excluded.source_document,
			article_label = excluded.article_label,
			norm_id = excluded.norm_id,
			chunk_index = excluded.chunk_index,
			total_chunks = excluded.total_chunks,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range recs {
		seq++
		c := r.Chunk
		if _, err = stmt.ExecContext(ctx, s.collection, c.ID, seq, c.Text, c.SourceDocument,
			nullString(c.ArticleLabel), c.NormID, c.ChunkIndex, c.TotalChunks, encodeVector(r.Vector)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const chunkColumns = "id, seq, text, source_document, article_label, norm_id, chunk_index, total_chunks"

func (s *SQLite) Scan(ctx context.Context, normID string, fn func(Record) error) error {
	query := "SELECT " + chunkColumns + ", embedding FROM chunks WHERE collection = ?"
	args := []interface{}{s.collection}
	if normID != "" {
		query += " AND norm_id = ?"
		args = append(args, normID)
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			r    Record
			blob []byte
		)
		if err := scanChunk(rows, &r, &blob); err != nil {
			return err
		}
		if r.Vector, err = decodeVector(blob); err != nil {
			return fmt.Errorf("decode vector %s: %w", r.Chunk.ID, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", s.collection).Scan(&n)
	return n, err
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", s.collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", s.collection)
	return err
}

func (s *SQLite) DeleteSource(ctx context.Context, sourceDocument string, keep []string) (removed int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM chunks WHERE collection = ? AND source_document = ?", s.collection, sourceDocument)
	if err != nil {
		return 0, fmt.Errorf("list chunks of %s: %w", sourceDocument, err)
	}
	stale, err := staleIDs(rows, keep)
	if err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err = tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ? AND id = ?", s.collection, id); err != nil {
			return 0, fmt.Errorf("delete chunk %s: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(stale), nil
}

// staleIDs drains rows of ids and returns those not in keep
func staleIDs(rows *sql.Rows, keep []string) ([]string, error) {
	defer func() { _ = rows.Close() }()

	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if !kept[id] {
			stale = append(stale, id)
		}
	}
	return stale, rows.Err()
}

func (s *SQLite) ByArticle(ctx context.Context, label string) ([]model.RegulatoryChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE collection = ? AND article_label = ? ORDER BY seq",
		s.collection, label)
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

func (s *SQLite) Sources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_document, MIN(norm_id), COUNT(*)
		FROM chunks WHERE collection = ?
		GROUP BY source_document`, s.collection)
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

func (s *SQLite) EmbeddingModel(ctx context.Context) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT embedding_model FROM collections WHERE name = ?", s.collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (s *SQLite) SetEmbeddingModel(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, embedding_model) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET embedding_model = excluded.embedding_model`,
		s.collection, name)
	return err
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk reads chunkColumns, plus the embedding when blob is non-nil
func scanChunk(row rowScanner, r *Record, blob *[]byte) error {
	var label sql.NullString
	dest := []interface{}{
		&r.Chunk.ID, &r.Seq, &r.Chunk.Text, &r.Chunk.SourceDocument, &label,
		&r.Chunk.NormID, &r.Chunk.ChunkIndex, &r.Chunk.TotalChunks,
	}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if label.Valid {
		r.Chunk.ArticleLabel = model.StrPtr(label.String)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

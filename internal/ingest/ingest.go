// Package ingest builds the regulatory index from a directory of documents.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/inspecta/internal/cache"
	"github.com/ppiankov/inspecta/internal/chunk"
	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/vectorstore"
)

const defaultWorkers = 4

// Stats summarises one ingestion run
type Stats struct {
	Files         int           // documents indexed
	SkippedFiles  int           // unreadable or empty documents
	Chunks        int           // chunks produced by the splitter
	Added         int           // chunks stored
	SkippedChunks int           // chunks whose embedding failed
	RemovedChunks int           // stale chunks of re-ingested documents
	CachedTexts   int           // extractions served from the cache
	Duration      time.Duration // wall time of the run
}

// Ingester extracts, chunks and stores corpus documents
type Ingester struct {
	collection *vectorstore.Collection
	splitter   *chunk.Splitter
	registry   *Registry
	cache      cache.Cache
	workers    int
	reset      bool
	log        logrus.FieldLogger
}

// Option configures an Ingester
type Option func(*Ingester)

// WithRegistry replaces the extractor registry
func WithRegistry(r *Registry) Option {
	return func(in *Ingester) { in.registry = r }
}

// WithCache caches extracted text across runs
func WithCache(c cache.Cache) Option {
	return func(in *Ingester) {
		if c != nil {
			in.cache = c
		}
	}
}

// WithWorkers bounds concurrent extractions
func WithWorkers(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.workers = n
		}
	}
}

// WithReset clears the collection before storing anything
func WithReset(reset bool) Option {
	return func(in *Ingester) { in.reset = reset }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(in *Ingester) { in.log = logger.OrDiscard(log) }
}

// New creates an Ingester writing into collection
func New(collection *vectorstore.Collection, splitter *chunk.Splitter, opts ...Option) *Ingester {
	in := &Ingester{
		collection: collection,
		splitter:   splitter,
		cache:      cache.Nop{},
		workers:    defaultWorkers,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.registry == nil {
		in.registry = NewRegistry(nil)
	}
	return in
}

// IngestDir indexes every supported document under dir, recursively.
// Documents are named by their path relative to dir.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (Stats, error) {
	paths, err := in.collect(dir)
	if err != nil {
		return Stats{}, err
	}
	if len(paths) == 0 {
		return Stats{}, model.Errorf(model.KindInvalidConfiguration, "ingest", "no supported documents in %s", dir)
	}
	sources := make([]source, len(paths))
	for i, p := range paths {
		name, err := filepath.Rel(dir, p)
		if err != nil || name == "." {
			name = filepath.Base(p)
		}
		sources[i] = source{path: p, name: filepath.ToSlash(name)}
	}
	return in.ingest(ctx, sources)
}

// IngestFiles indexes the given documents, named by their base name.
// Extraction runs concurrently; the store is then written in one exclusive
// ingestion, in path order. An unreadable file is skipped, an embedding
// outage aborts the run.
func (in *Ingester) IngestFiles(ctx context.Context, paths []string) (Stats, error) {
	sources := make([]source, len(paths))
	for i, p := range paths {
		sources[i] = source{path: p, name: filepath.Base(p)}
	}
	return in.ingest(ctx, sources)
}

// source is a file to ingest and the document name it is stored under
type source struct {
	path string
	name string
}

func (in *Ingester) ingest(ctx context.Context, sources []source) (Stats, error) {
	start := time.Now()
	var stats Stats

	docs, err := in.extractAll(ctx, sources, &stats)
	if err != nil {
		return stats, err
	}

	type split struct {
		name   string
		chunks []model.RegulatoryChunk
	}
	var splits []split
	keys := make(map[string]string)
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		key := chunk.DocumentKey(doc.Name)
		if other, dup := keys[key]; dup {
			return stats, model.Errorf(model.KindInvalidConfiguration, "ingest",
				"%s and %s would share chunk ids (%s); rename one of them", other, doc.Name, key)
		}
		keys[key] = doc.Name

		chunks, err := in.splitter.Split(*doc)
		if err != nil {
			return stats, fmt.Errorf("split %s: %w", doc.Name, err)
		}
		if len(chunks) == 0 {
			in.log.WithField("file", doc.Name).Warn("document has no text, skipping")
			stats.SkippedFiles++
			continue
		}
		splits = append(splits, split{name: doc.Name, chunks: chunks})
		stats.Chunks += len(chunks)
	}

	ing, err := in.collection.BeginIngest(ctx)
	if err != nil {
		return stats, err
	}
	defer ing.Close()

	if in.reset {
		if err := ing.Reset(ctx); err != nil {
			return stats, err
		}
		in.log.Info("collection cleared")
	}

	for _, s := range splits {
		added, err := ing.Replace(ctx, s.name, s.chunks)
		stats.Added += added.Added
		stats.SkippedChunks += added.Skipped
		stats.RemovedChunks += added.Removed
		if err != nil {
			return stats, fmt.Errorf("ingest %s: %w", s.name, err)
		}
		stats.Files++
		in.log.WithFields(logrus.Fields{"file": s.name, "chunks": added.Added}).Info("document indexed")
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// EnsureIngested indexes dir when the collection is empty. It reports
// whether an ingestion ran.
func (in *Ingester) EnsureIngested(ctx context.Context, dir string) (bool, error) {
	empty, err := in.collection.IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	if !empty {
		return false, nil
	}
	if dir == "" {
		return false, model.NewError(model.KindCollectionEmpty, "ingest",
			errors.New("regulatory collection is empty and corpus.dir is not set; run inspecta ingest"))
	}

	in.log.WithField("dir", dir).Info("collection is empty, ingesting corpus")
	stats, err := in.IngestDir(ctx, dir)
	if err != nil {
		return false, err
	}
	if stats.Added == 0 {
		return true, model.NewError(model.KindCollectionEmpty, "ingest", fmt.Errorf("no chunks ingested from %s", dir))
	}
	return true, nil
}

// extractAll reads every path concurrently. Entries for skipped files are nil.
func (in *Ingester) extractAll(ctx context.Context, sources []source, stats *Stats) ([]*chunk.Document, error) {
	docs := make([]*chunk.Document, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			text, cached, err := in.extract(gctx, src.path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				in.log.WithError(err).WithField("file", src.path).Warn("cannot read document, skipping")
				mu.Lock()
				stats.SkippedFiles++
				mu.Unlock()
				return nil
			}
			docs[i] = &chunk.Document{Name: src.name, Text: text}
			if cached {
				mu.Lock()
				stats.CachedTexts++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract documents: %w", err)
	}
	return docs, nil
}

// extract returns the text of one file, from the cache when the file is unchanged
func (in *Ingester) extract(ctx context.Context, path string) (string, bool, error) {
	e := in.registry.Find(path)
	if e == nil {
		return "", false, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", false, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := cache.Key(cache.NamespaceText, abs, strconv.FormatInt(info.Size(), 10),
		strconv.FormatInt(info.ModTime().UnixNano(), 10))

	if data, ok := in.cache.Get(key); ok {
		return string(data), true, nil
	}

	text, err := e.Extract(ctx, path)
	if err != nil {
		return "", false, err
	}
	if err := in.cache.Set(key, []byte(text), 0); err != nil {
		in.log.WithError(err).Debug("cannot cache extracted text")
	}
	return text, false, nil
}

// collect lists supported files under dir in lexical order
func (in *Ingester) collect(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, model.NewError(model.KindInvalidConfiguration, "ingest", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if in.registry.Find(path) != nil {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

package cli

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ppiankov/inspecta/internal/cache"
	"github.com/ppiankov/inspecta/internal/chunk"
	"github.com/ppiankov/inspecta/internal/embed"
	"github.com/ppiankov/inspecta/internal/ingest"
	"github.com/ppiankov/inspecta/internal/integrate"
	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
	"github.com/ppiankov/inspecta/internal/retrieve"
	"github.com/ppiankov/inspecta/internal/vectorstore"
	"github.com/ppiankov/inspecta/internal/vision"
)

// app holds the services shared by the commands of one invocation
type app struct {
	cfg        model.Config
	log        *logrus.Logger
	cache      cache.Cache
	embedder   embed.Embedder
	collection *vectorstore.Collection
}

// newApp loads the configuration and opens the vector store
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, model.NewError(model.KindInvalidConfiguration, "logger", err)
	}

	c := cache.New(cfg.Cache)
	embedder, err := embed.New(cfg.Embedding, cfg.HTTP, c, log)
	if err != nil {
		return nil, err
	}

	collection, err := vectorstore.Open(ctx, cfg.Store, embedder, log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, cache: c, embedder: embedder, collection: collection}, nil
}

func (a *app) Close() {
	if err := a.collection.Close(); err != nil {
		a.log.WithError(err).Warn("close vector store")
	}
}

func (a *app) splitter() (*chunk.Splitter, error) {
	s, err := chunk.NewSplitter(chunk.WithSize(a.cfg.Chunking.Size), chunk.WithOverlap(a.cfg.Chunking.Overlap))
	if err != nil {
		return nil, model.NewError(model.KindInvalidConfiguration, "chunking", err)
	}
	return s, nil
}

func (a *app) ingester(reset bool) (*ingest.Ingester, error) {
	s, err := a.splitter()
	if err != nil {
		return nil, err
	}
	return ingest.New(a.collection, s,
		ingest.WithCache(a.cache),
		ingest.WithReset(reset),
		ingest.WithLogger(a.log),
	), nil
}

func (a *app) retriever() *retrieve.Retriever {
	return retrieve.New(a.collection, a.cfg.Retrieval,
		retrieve.WithLogger(a.log),
		retrieve.WithOverlap(a.cfg.Chunking.Overlap),
	)
}

// ensureCorpus ingests corpus.dir when the store is empty
func (a *app) ensureCorpus(ctx context.Context) error {
	in, err := a.ingester(false)
	if err != nil {
		return err
	}
	ran, err := in.EnsureIngested(ctx, a.cfg.Corpus.Dir)
	if err != nil {
		return err
	}
	if ran {
		a.log.WithField("dir", a.cfg.Corpus.Dir).Info("corpus ingested")
	}
	return nil
}

// integrator builds the full analysis pipeline
func (a *app) integrator() (*integrate.Integrator, error) {
	v, err := vision.NewFromConfig(a.cfg.Vision, a.cfg.HTTP, a.log)
	if err != nil {
		return nil, err
	}
	return integrate.New(v, a.retriever(), a.cfg.Integrate, integrate.WithLogger(a.log)), nil
}

func parseType(s string) (model.InstallationType, error) {
	it := model.InstallationType(s)
	if !it.Valid() {
		return "", model.Errorf(model.KindInvalidConfiguration, "cli",
			"unknown installation type %q (expected residential, commercial or industrial)", s)
	}
	return it, nil
}

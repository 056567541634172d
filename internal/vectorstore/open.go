package vectorstore

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/inspecta/internal/embed"
	"github.com/ppiankov/inspecta/internal/logger"
	"github.com/ppiankov/inspecta/internal/model"
)

// OpenBackend creates the backend named by cfg.Backend
func OpenBackend(ctx context.Context, cfg model.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "sqlite":
		b, err := NewSQLite(cfg.DataDir, cfg.Collection)
		if err != nil {
			return nil, model.NewError(model.KindInvalidConfiguration, "open vector store", err)
		}
		return b, nil
	case "memory":
		return NewMemory(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, model.Errorf(model.KindInvalidConfiguration, "open vector store", "store.dsn is required for the postgres backend")
		}
		b, err := NewPostgres(ctx, cfg.DSN, cfg.Collection)
		if err != nil {
			return nil, model.NewError(model.KindUpstreamUnavailable, "open vector store", err)
		}
		return b, nil
	default:
		return nil, model.Errorf(model.KindInvalidConfiguration, "open vector store", "unknown store backend %q", cfg.Backend)
	}
}

// Open creates the configured backend and wraps it in a Collection
func Open(ctx context.Context, cfg model.StoreConfig, embedder embed.Embedder, log logrus.FieldLogger) (*Collection, error) {
	b, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	entry := logger.OrDiscard(log).WithFields(logrus.Fields{"backend": backendName(cfg.Backend), "collection": cfg.Collection})
	entry.Debug("vector store opened")
	return NewCollection(b, embedder, WithLogger(entry)), nil
}

func backendName(name string) string {
	if name == "" {
		return "sqlite"
	}
	return name
}

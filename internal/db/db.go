package db

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/config"
	"pulse/internal/docstore"
)

// Handle is the document store opened for the configured backend. Memory is
// set only for the in-memory backend, whose writes feed the dispatcher
// directly.
type Handle struct {
	Store  docstore.Store
	Memory *docstore.Memory
}

func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		store, err := docstore.OpenFirestore(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		slog.Info("firestore connection established", "project", cfg.ProjectID, "database", cfg.FirestoreDatabase)
		return &Handle{Store: store}, nil
	case config.BackendPostgres:
		store, err := docstore.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established")
		return &Handle{Store: store}, nil
	case config.BackendMemory:
		mem := docstore.NewMemory()
		slog.Warn("using the in-memory document store, data is lost on exit")
		return &Handle{Store: mem, Memory: mem}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func (h *Handle) Close() error {
	return h.Store.Close()
}

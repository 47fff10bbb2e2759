package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/config"
	"github.com/hyperjump/contentindex/internal/factory"
	"github.com/hyperjump/contentindex/internal/indexer"
	"github.com/hyperjump/contentindex/internal/mapper"
	"github.com/hyperjump/contentindex/internal/search"
	"github.com/hyperjump/contentindex/internal/storage"
)

// Components holds the wired indexing stack.
type Components struct {
	States  storage.Provider
	Indexes *factory.Factory
	Indexer *indexer.Indexer
	Engine  *search.Engine
}

// Close closes the indexes and the state store.
func (c *Components) Close() error {
	return errors.Join(c.Indexes.Close(), c.States.Close())
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	states, err := storage.Open(storage.Options{
		Backend:      cfg.Storage.StateBackend,
		DatabasePath: cfg.Storage.DatabasePath,
		Redis:        cfg.Storage.Redis,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	indexes, err := factory.New(cfg.Storage.IndexRoot, factory.WithLogger(logger))
	if err != nil {
		_ = states.Close()
		if errors.Is(err, factory.ErrLocked) {
			return nil, fmt.Errorf("%w (is the server running? use --server)", err)
		}
		return nil, fmt.Errorf("failed to initialize indexes: %w", err)
	}

	idx := indexer.NewIndexer(states, indexes,
		indexer.WithLogger(logger),
		indexer.WithMapper(mapper.New(mapper.WithMaxFieldsPerDocument(cfg.Indexing.MaxFieldsPerDocument))),
		indexer.WithWorkers(cfg.Indexing.Workers),
		indexer.WithReindexMode(cfg.Reindex.Mode),
		indexer.WithBatchSize(cfg.Reindex.BatchSize),
	)
	engine := search.NewEngine(indexes,
		search.WithLogger(logger),
		search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		search.WithCandidateLimit(cfg.Search.CandidateLimit),
		search.WithCacheSize(cfg.Search.CacheSize),
	)

	logger.Info("components initialized",
		zap.String("state_backend", cfg.Storage.StateBackend),
		zap.String("index_root", cfg.Storage.IndexRoot),
		zap.String("reindex_mode", idx.ReindexMode()))
	return &Components{States: states, Indexes: indexes, Indexer: idx, Engine: engine}, nil
}

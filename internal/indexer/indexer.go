// Package indexer keeps tenant search indexes in sync with content notifications.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/keylock"
	"github.com/hyperjump/contentindex/internal/mapper"
	"github.com/hyperjump/contentindex/internal/metrics"
	"github.com/hyperjump/contentindex/internal/models"
	"github.com/hyperjump/contentindex/internal/storage"
)

// Indexes is the physical index access the indexer needs; *factory.Factory implements it.
type Indexes interface {
	Write(ctx context.Context, tenant string, fn func(gateway.Gateway) error) error
	Read(ctx context.Context, tenant string, fn func(gateway.Gateway) error) error
	Swap(ctx context.Context, tenant string, build func(gateway.Gateway) error) error
	Clear(ctx context.Context, tenant string) error
	Drop(tenant string) error
}

// Indexer applies content notifications to the index and the index state store.
type Indexer struct {
	states  storage.Provider
	indexes Indexes
	mapper  *mapper.Mapper
	locks   *keylock.Map
	logger  *zap.Logger

	reindexMode string
	batchSize   int
	workers     int

	mu          sync.Mutex
	maintenance map[string]*sync.RWMutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMapper replaces the default mapper.
func WithMapper(m *mapper.Mapper) IndexerOption {
	return func(idx *Indexer) {
		if m != nil {
			idx.mapper = m
		}
	}
}

// NewIndexer creates an indexer over a state provider and a tenant index factory.
func NewIndexer(states storage.Provider, indexes Indexes, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		states:      states,
		indexes:     indexes,
		mapper:      mapper.New(),
		locks:       keylock.New(),
		logger:      zap.NewNop(),
		reindexMode: ReindexInPlace,
		batchSize:   DefaultBatchSize,
		workers:     DefaultWorkers,
		maintenance: make(map[string]*sync.RWMutex),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// maintenanceLock returns the tenant lock that notifications share and full reindexing holds exclusively.
func (idx *Indexer) maintenanceLock(tenant string) *sync.RWMutex {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	m, ok := idx.maintenance[tenant]
	if !ok {
		m = &sync.RWMutex{}
		idx.maintenance[tenant] = m
	}
	return m
}

// Notify applies one content notification. Notifications for the same content id are
// applied one at a time, in the order their Notify calls reached the key lock; other ids
// proceed in parallel.
//
// The state is written only after the index commit, so a failure leaves the prior state
// describing the prior committed index. A mapping failure changes nothing and returns an
// error matching models.ErrMapping.
func (idx *Indexer) Notify(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	if err := n.Validate(); err != nil {
		return err
	}

	err := idx.notify(ctx, n)
	kind := n.Kind.String()
	switch {
	case err == nil:
		metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeOK).Inc()
	case errors.Is(err, models.ErrMapping):
		metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeSkipped).Inc()
		metrics.MappingErrorsTotal.Inc()
		idx.logger.Warn("skipping content that cannot be mapped",
			zap.String("tenant", n.Tenant),
			zap.String("content_id", n.Content.ID.String()),
			zap.Error(err))
	default:
		metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeError).Inc()
		var engineErr *models.EngineError
		if errors.As(err, &engineErr) {
			metrics.EngineErrorsTotal.WithLabelValues(engineErr.Op).Inc()
			idx.logger.Error("index engine failure",
				zap.String("tenant", n.Tenant),
				zap.String("content_id", n.Content.ID.String()),
				zap.Error(err))
		}
	}
	return err
}

func (idx *Indexer) notify(ctx context.Context, n *models.Notification) error {
	m := idx.maintenanceLock(n.Tenant)
	m.RLock()
	defer m.RUnlock()

	id := n.Content.ID
	unlock, err := idx.locks.Lock(ctx, n.Tenant+"/"+id.String())
	if err != nil {
		return err
	}
	defer unlock()

	store, err := idx.states.ForTenant(n.Tenant)
	if err != nil {
		return err
	}
	prior, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load index state: %w", err)
	}

	var (
		next *models.TextContentState
		docs []*models.SearchDocument
	)
	if !n.Kind.Removes() {
		result, err := idx.mapper.Map(n.Content, n.Schema)
		if err != nil {
			return err
		}
		docs = result.Documents
		next = result.State(id)
	}

	plan := Diff(prior, next)
	if len(plan.Retire) > 0 || len(docs) > 0 {
		if err := idx.write(ctx, n.Tenant, plan.Retire, docs); err != nil {
			return err
		}
	}

	// The index is committed; the state must follow even if the caller gave up meanwhile.
	ctx = context.WithoutCancel(ctx)
	if next.IsEmpty() {
		if prior != nil {
			if err := store.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove index state: %w", err)
			}
		}
	} else if !next.Equal(prior) {
		if err := store.Set(ctx, next); err != nil {
			return fmt.Errorf("failed to store index state: %w", err)
		}
	}

	idx.logger.Debug("content indexed",
		zap.String("tenant", n.Tenant),
		zap.String("content_id", id.String()),
		zap.String("kind", n.Kind.String()),
		zap.Int("docs", len(docs)),
		zap.Int("retired", len(plan.Retire)))
	return nil
}

// write deletes retired ids and upserts docs in one write lease and one commit.
func (idx *Indexer) write(ctx context.Context, tenant string, retire []string, docs []*models.SearchDocument) error {
	start := time.Now()
	defer func() {
		metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}()

	return idx.indexes.Write(ctx, tenant, func(gw gateway.Gateway) error {
		if err := gw.Delete(ctx, retire); err != nil {
			return err
		}
		if err := gw.Upsert(ctx, docs); err != nil {
			return err
		}
		if err := gw.Commit(ctx); err != nil {
			return err
		}
		metrics.DocumentsWritten.WithLabelValues("delete").Add(float64(len(retire)))
		metrics.DocumentsWritten.WithLabelValues("upsert").Add(float64(len(docs)))
		return nil
	})
}

// Verify checks that the index holds exactly the documents the state records for a content id.
// It returns an error matching models.ErrStateInconsistency when recorded ids are missing
// from the index or the index holds documents of the content the state does not record.
func (idx *Indexer) Verify(ctx context.Context, tenant string, id models.ContentID) error {
	store, err := idx.states.ForTenant(tenant)
	if err != nil {
		return err
	}
	state, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load index state: %w", err)
	}
	recorded := state.AllDocIDs()

	return idx.indexes.Read(ctx, tenant, func(gw gateway.Gateway) error {
		found, err := gw.Contains(ctx, recorded)
		if err != nil {
			return err
		}
		var missing []string
		for _, docID := range recorded {
			if !found[docID] {
				missing = append(missing, docID)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: content %s: %d recorded documents missing from index: %v",
				models.ErrStateInconsistency, id, len(missing), missing)
		}

		hits, err := gw.Search(ctx, &gateway.Request{
			Filters: map[string]string{gateway.FilterContentID: id.String()},
			Size:    len(recorded) + 1,
		})
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(recorded))
		for _, docID := range recorded {
			known[docID] = true
		}
		var stray []string
		for _, hit := range hits.Hits {
			if !known[hit.DocID] {
				stray = append(stray, hit.DocID)
			}
		}
		if len(stray) > 0 || hits.Total > uint64(len(recorded)) {
			return fmt.Errorf("%w: content %s: index holds %d documents, state records %d: unrecorded %v",
				models.ErrStateInconsistency, id, hits.Total, len(recorded), stray)
		}
		return nil
	})
}

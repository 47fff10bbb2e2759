package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/metrics"
	"github.com/hyperjump/contentindex/internal/models"
)

// Reindex modes.
const (
	// ReindexInPlace clears the tenant and replays content into the live index.
	// Queries may observe a partially rebuilt tenant while it runs.
	ReindexInPlace = "in_place"
	// ReindexSwap builds a fresh index beside the live one and swaps it in when complete.
	// Queries observe either the old or the new index, never a partial one.
	ReindexSwap = "swap"

	DefaultBatchSize = 100
	DefaultWorkers   = 4
)

// ContentSource enumerates every live content item of a tenant. Enumeration restarts from
// scratch on every call. yield returning an error stops the enumeration with that error.
type ContentSource interface {
	Enumerate(ctx context.Context, tenant string, yield func(*models.Notification) error) error
}

// ReindexReport summarizes a full reindex.
type ReindexReport struct {
	Tenant    string        `json:"app"`
	Mode      string        `json:"mode"`
	Indexed   int           `json:"indexed"`
	Skipped   int           `json:"skipped"`
	Documents int           `json:"documents"`
	Duration  time.Duration `json:"duration_ns"`
}

// WithReindexMode selects ReindexInPlace or ReindexSwap. Unknown modes are ignored.
func WithReindexMode(mode string) IndexerOption {
	return func(idx *Indexer) {
		if mode == ReindexInPlace || mode == ReindexSwap {
			idx.reindexMode = mode
		}
	}
}

// WithBatchSize sets how many content items are committed together during reindex.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithWorkers sets the number of content items mapped in parallel during reindex.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// ReindexMode returns the configured reindex mode.
func (idx *Indexer) ReindexMode() string {
	return idx.reindexMode
}

// mapped is one content item ready to be written.
type mapped struct {
	id    models.ContentID
	docs  []*models.SearchDocument
	state *models.TextContentState
}

// ReindexAll rebuilds a tenant's index and state from source. Notifications for the tenant
// wait until it finishes. Items that cannot be mapped are skipped and counted.
func (idx *Indexer) ReindexAll(ctx context.Context, tenant string, source ContentSource) (*ReindexReport, error) {
	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	m := idx.maintenanceLock(tenant)
	m.Lock()
	defer m.Unlock()

	start := time.Now()
	report := &ReindexReport{Tenant: tenant, Mode: idx.reindexMode}
	var err error
	if idx.reindexMode == ReindexSwap {
		err = idx.reindexSwap(ctx, tenant, source, report)
	} else {
		err = idx.reindexInPlace(ctx, tenant, source, report)
	}
	report.Duration = time.Since(start)
	metrics.ReindexDuration.WithLabelValues(report.Mode).Observe(report.Duration.Seconds())
	if err != nil {
		idx.logger.Error("reindex failed", zap.String("tenant", tenant), zap.String("mode", report.Mode), zap.Error(err))
		return report, err
	}

	idx.logger.Info("reindex complete",
		zap.String("tenant", tenant),
		zap.String("mode", report.Mode),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Int("docs", report.Documents),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (idx *Indexer) reindexInPlace(ctx context.Context, tenant string, source ContentSource, report *ReindexReport) error {
	store, err := idx.states.ForTenant(tenant)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear index state: %w", err)
	}
	if err := idx.indexes.Clear(ctx, tenant); err != nil {
		return err
	}

	seen := make(map[models.ContentID]*models.TextContentState)
	return idx.replay(ctx, tenant, source, report, func(items []*mapped) error {
		err := idx.indexes.Write(ctx, tenant, func(gw gateway.Gateway) error {
			return idx.applyBatch(ctx, gw, items, seen)
		})
		if err != nil {
			return err
		}
		// Committed; record state for exactly what the index now holds.
		stateCtx := context.WithoutCancel(ctx)
		for _, item := range items {
			if item.state.IsEmpty() {
				if err := store.Remove(stateCtx, item.id); err != nil {
					return fmt.Errorf("failed to remove index state: %w", err)
				}
				continue
			}
			if err := store.Set(stateCtx, item.state); err != nil {
				return fmt.Errorf("failed to store index state: %w", err)
			}
		}
		return nil
	})
}

func (idx *Indexer) reindexSwap(ctx context.Context, tenant string, source ContentSource, report *ReindexReport) error {
	store, err := idx.states.ForTenant(tenant)
	if err != nil {
		return err
	}

	seen := make(map[models.ContentID]*models.TextContentState)
	err = idx.indexes.Swap(ctx, tenant, func(gw gateway.Gateway) error {
		return idx.replay(ctx, tenant, source, report, func(items []*mapped) error {
			return idx.applyBatch(ctx, gw, items, seen)
		})
	})
	if err != nil {
		return err
	}

	states := make([]*models.TextContentState, 0, len(seen))
	for _, state := range seen {
		if !state.IsEmpty() {
			states = append(states, state)
		}
	}
	if err := store.Replace(context.WithoutCancel(ctx), states); err != nil {
		return fmt.Errorf("%w: index swapped but state not replaced: %v", models.ErrStateInconsistency, err)
	}
	return nil
}

// applyBatch writes a batch and commits once. An item repeated by the source replaces its
// earlier documents.
func (idx *Indexer) applyBatch(ctx context.Context, gw gateway.Gateway, items []*mapped, seen map[models.ContentID]*models.TextContentState) error {
	for _, item := range items {
		if retire := Retire(seen[item.id], item.state); len(retire) > 0 {
			if err := gw.Delete(ctx, retire); err != nil {
				return err
			}
		}
		if err := gw.Upsert(ctx, item.docs); err != nil {
			return err
		}
		seen[item.id] = item.state
	}
	return gw.Commit(ctx)
}

// replay enumerates source in batches of idx.batchSize, maps each batch in parallel, and hands
// the mapped items to apply in source order.
func (idx *Indexer) replay(ctx context.Context, tenant string, source ContentSource, report *ReindexReport, apply func([]*mapped) error) error {
	batch := make([]*models.Notification, 0, idx.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		items, err := idx.mapBatch(ctx, tenant, batch, report)
		batch = batch[:0]
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := apply(items); err != nil {
			return err
		}
		for _, item := range items {
			report.Indexed++
			report.Documents += len(item.docs)
		}
		return nil
	}

	err := source.Enumerate(ctx, tenant, func(n *models.Notification) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch = append(batch, n)
		if len(batch) >= idx.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("content enumeration failed: %w", err)
	}
	return flush()
}

// mapBatch maps notifications on up to idx.workers goroutines. Unmappable or removed items
// are counted as skipped and left out.
func (idx *Indexer) mapBatch(ctx context.Context, tenant string, batch []*models.Notification, report *ReindexReport) ([]*mapped, error) {
	out := make([]*mapped, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, n := range batch {
		i, n := i, n
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if n == nil || n.Content == nil || n.Content.ID == uuid.Nil || n.Kind.Removes() {
				return nil
			}
			result, err := idx.mapper.Map(n.Content, n.Schema)
			if err != nil {
				if errors.Is(err, models.ErrMapping) {
					metrics.MappingErrorsTotal.Inc()
					idx.logger.Warn("skipping content that cannot be mapped",
						zap.String("tenant", tenant),
						zap.String("content_id", n.Content.ID.String()),
						zap.Error(err))
					return nil
				}
				return err
			}
			out[i] = &mapped{id: n.Content.ID, docs: result.Documents, state: result.State(n.Content.ID)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]*mapped, 0, len(out))
	for _, item := range out {
		if item == nil {
			report.Skipped++
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

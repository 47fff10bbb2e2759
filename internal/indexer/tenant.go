package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/models"
	"github.com/hyperjump/contentindex/internal/storage"
)

// TenantStatus summarizes one tenant's index and state.
type TenantStatus struct {
	Tenant         string `json:"app"`
	Documents      uint64 `json:"documents"`
	States         int64  `json:"states"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	ReindexMode    string `json:"reindex_mode"`
}

// pathed is implemented by index factories that keep tenants on disk.
type pathed interface {
	Path(tenant string) string
}

// Status reports document and state counts for tenant.
func (idx *Indexer) Status(ctx context.Context, tenant string) (*TenantStatus, error) {
	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	st := &TenantStatus{Tenant: tenant, ReindexMode: idx.reindexMode}

	err := idx.indexes.Read(ctx, tenant, func(gw gateway.Gateway) error {
		n, err := gw.DocCount()
		st.Documents = n
		return err
	})
	if err != nil {
		return nil, err
	}

	store, err := idx.states.ForTenant(tenant)
	if err != nil {
		return nil, err
	}
	if st.States, err = store.Count(ctx); err != nil {
		return nil, fmt.Errorf("failed to count index states: %w", err)
	}

	if p, ok := idx.indexes.(pathed); ok {
		if st.DiskUsageBytes, err = storage.DiskUsageBytes(p.Path(tenant)); err != nil {
			return nil, fmt.Errorf("failed to measure index size: %w", err)
		}
	}
	return st, nil
}

// DropTenant deletes the tenant's index and all of its recorded state.
// It waits for in-flight notifications of the tenant and blocks new ones until done.
func (idx *Indexer) DropTenant(ctx context.Context, tenant string) error {
	if err := models.ValidateTenant(tenant); err != nil {
		return err
	}
	m := idx.maintenanceLock(tenant)
	m.Lock()
	defer m.Unlock()

	if err := idx.indexes.Drop(tenant); err != nil {
		return err
	}
	if err := idx.states.DropTenant(context.WithoutCancel(ctx), tenant); err != nil {
		return fmt.Errorf("failed to drop index state: %w", err)
	}
	idx.logger.Info("tenant dropped", zap.String("tenant", tenant))
	return nil
}

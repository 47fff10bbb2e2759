// Package storage persists per-content index state (which documents a content item owns).
package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/contentindex/internal/models"
)

// StateStore holds the TextContentState of one tenant.
// Calls for different content ids may run concurrently; calls for the same id
// are serialized by the caller.
type StateStore interface {
	// Get returns the state for id, or nil when none is stored.
	Get(ctx context.Context, id models.ContentID) (*models.TextContentState, error)
	// Set stores state, replacing any prior state for its content id.
	Set(ctx context.Context, state *models.TextContentState) error
	// Remove deletes the state for id. Unknown ids are a no-op.
	Remove(ctx context.Context, id models.ContentID) error
	// Clear drops all state of the tenant.
	Clear(ctx context.Context) error
	// Replace atomically swaps the tenant's whole state for states.
	Replace(ctx context.Context, states []*models.TextContentState) error
	// Count returns the number of stored states.
	Count(ctx context.Context) (int64, error)
}

// Provider hands out tenant-scoped state stores.
type Provider interface {
	ForTenant(tenant string) (StateStore, error)
	// DropTenant removes every state of the tenant.
	DropTenant(ctx context.Context, tenant string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a state backend.
type Options struct {
	Backend      string
	DatabasePath string
	Redis        RedisConfig
}

// Open creates the provider for the configured backend.
func Open(opts Options) (Provider, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryProvider(), nil
	case BackendSQLite:
		return NewSQLiteProvider(opts.DatabasePath)
	case BackendRedis:
		return NewRedisProvider(opts.Redis)
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
	}
}

func validState(state *models.TextContentState) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	return nil
}

// Package factory owns the per-tenant physical indexes under one root directory.
package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/models"
)

const (
	lockFile   = ".lock"
	sideSuffix = ".next"
)

var (
	// ErrLocked is returned when another process owns the index root.
	ErrLocked = errors.New("index root is locked by another process")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("index factory closed")
)

// slot holds one tenant's index. swapMu guards the gateway pointer: read and write leases
// hold it shared, while Swap, Clear, and Drop hold it exclusively for the replacement.
// writeMu serializes write leases.
type slot struct {
	tenant  string
	writeMu sync.Mutex
	swapMu  sync.RWMutex
	gw      *gateway.BleveIndex
	dropped bool
}

// Factory opens tenant indexes at <root>/<tenant>, or in memory when root is empty.
type Factory struct {
	root   string
	lock   *flock.Flock
	logger *zap.Logger

	mu      sync.Mutex
	tenants map[string]*slot
	// lastGen remembers the last generation of dropped tenants so a recreated index continues after it.
	lastGen map[string]uint64
	// dropping holds tenants whose files are being removed; closed when removal ends.
	dropping map[string]chan struct{}
	closed   bool
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a factory. A non-empty root is created if needed and locked for this process.
func New(root string, opts ...Option) (*Factory, error) {
	f := &Factory{
		root:     root,
		logger:   zap.NewNop(),
		tenants:  make(map[string]*slot),
		lastGen:  make(map[string]uint64),
		dropping: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if root == "" {
		return f, nil
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index root: %w", err)
	}
	f.lock = flock.New(filepath.Join(root, lockFile))
	ok, err := f.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock index root: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, root)
	}
	return f, nil
}

// Path returns the storage location of tenant, empty for in-memory factories.
func (f *Factory) Path(tenant string) string {
	if f.root == "" {
		return ""
	}
	return filepath.Join(f.root, tenant)
}

func (f *Factory) sidePath(tenant string) string {
	if f.root == "" {
		return ""
	}
	return filepath.Join(f.root, tenant+sideSuffix)
}

// slot returns the open slot of tenant, opening the index on first use.
func (f *Factory) slot(tenant string) (*slot, error) {
	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed {
			return nil, ErrClosed
		}
		done, ok := f.dropping[tenant]
		if !ok {
			break
		}
		f.mu.Unlock()
		<-done
		f.mu.Lock()
	}
	if s, ok := f.tenants[tenant]; ok {
		return s, nil
	}

	opts := []gateway.Option{gateway.WithTenant(tenant)}
	if gen, ok := f.lastGen[tenant]; ok {
		opts = append(opts, gateway.WithGeneration(gen+1))
	}
	gw, err := gateway.NewBleveIndex(f.Path(tenant), opts...)
	if err != nil {
		return nil, err
	}
	s := &slot{tenant: tenant, gw: gw}
	f.tenants[tenant] = s
	f.logger.Debug("opened tenant index", zap.String("tenant", tenant), zap.String("path", f.Path(tenant)))
	return s, nil
}

// Open returns the tenant's index, opening it if needed. Repeated calls return the same index
// until it is replaced by Swap or Clear; prefer Read and Write leases for scoped access.
func (f *Factory) Open(tenant string) (gateway.Gateway, error) {
	s, err := f.slot(tenant)
	if err != nil {
		return nil, err
	}
	s.swapMu.RLock()
	defer s.swapMu.RUnlock()
	return s.gw, nil
}

// Write runs fn under the tenant's write lease. Writes fn leaves uncommitted after an error are discarded.
func (f *Factory) Write(ctx context.Context, tenant string, fn func(gateway.Gateway) error) error {
	s, err := f.slot(tenant)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.swapMu.RLock()
	defer s.swapMu.RUnlock()
	if s.dropped {
		return fmt.Errorf("tenant %s was dropped: %w", tenant, models.ErrEngineIO)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fn(s.gw); err != nil {
		s.gw.Discard()
		return err
	}
	return nil
}

// Read runs fn with the tenant's index. It never waits for write leases.
func (f *Factory) Read(ctx context.Context, tenant string, fn func(gateway.Gateway) error) error {
	s, err := f.slot(tenant)
	if err != nil {
		return err
	}
	s.swapMu.RLock()
	defer s.swapMu.RUnlock()
	if s.dropped {
		return fmt.Errorf("tenant %s was dropped: %w", tenant, models.ErrEngineIO)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.gw)
}

// Generation returns the tenant index generation. It changes on every commit, Swap, and Clear.
func (f *Factory) Generation(tenant string) (uint64, error) {
	s, err := f.slot(tenant)
	if err != nil {
		return 0, err
	}
	s.swapMu.RLock()
	defer s.swapMu.RUnlock()
	return s.gw.Generation(), nil
}

// Swap builds a replacement index in a side location and atomically installs it.
// Readers keep seeing the old index until build succeeds. On failure the old index stays.
func (f *Factory) Swap(ctx context.Context, tenant string, build func(gateway.Gateway) error) error {
	s, err := f.slot(tenant)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.swapMu.RLock()
	baseGen := s.gw.Generation()
	s.swapMu.RUnlock()

	side := f.sidePath(tenant)
	if side != "" {
		if err := os.RemoveAll(side); err != nil {
			return fmt.Errorf("failed to clear side index: %w", err)
		}
	}
	next, err := gateway.NewBleveIndex(side, gateway.WithTenant(tenant), gateway.WithGeneration(baseGen+1))
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		f.abandon(next, side)
		return err
	}
	if err := build(next); err != nil {
		f.abandon(next, side)
		return err
	}
	if err := next.Commit(ctx); err != nil {
		f.abandon(next, side)
		return err
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if s.dropped {
		f.abandon(next, side)
		return fmt.Errorf("tenant %s was dropped: %w", tenant, models.ErrEngineIO)
	}
	old := s.gw
	if side == "" {
		s.gw = next
		_ = old.Close()
		f.logger.Info("swapped tenant index", zap.String("tenant", tenant))
		return nil
	}

	// On disk the side index is closed and renamed over the live location, then reopened.
	gen := next.Generation()
	if err := next.Close(); err != nil {
		_ = os.RemoveAll(side)
		return err
	}
	if err := old.Close(); err != nil {
		f.logger.Warn("failed to close replaced index", zap.String("tenant", tenant), zap.Error(err))
	}
	path := f.Path(tenant)
	if err := os.RemoveAll(path); err != nil {
		return f.reopen(s, gen, fmt.Errorf("failed to remove old index: %w", err))
	}
	if err := os.Rename(side, path); err != nil {
		return f.reopen(s, gen, fmt.Errorf("failed to install side index: %w", err))
	}
	if err := f.reopen(s, gen, nil); err != nil {
		return err
	}
	f.logger.Info("swapped tenant index", zap.String("tenant", tenant), zap.String("path", path))
	return nil
}

// reopen reopens the live location of s after its index was closed, returning cause if set.
func (f *Factory) reopen(s *slot, gen uint64, cause error) error {
	gw, err := gateway.NewBleveIndex(f.Path(s.tenant), gateway.WithTenant(s.tenant), gateway.WithGeneration(gen+1))
	if err != nil {
		// Leave a closed index in place so later calls fail with ErrEngineIO instead of panicking.
		return errors.Join(cause, err)
	}
	s.gw = gw
	return cause
}

func (f *Factory) abandon(gw *gateway.BleveIndex, side string) {
	_ = gw.Close()
	if side != "" {
		_ = os.RemoveAll(side)
	}
}

// Clear deletes every document of the tenant by replacing its index with an empty one.
func (f *Factory) Clear(ctx context.Context, tenant string) error {
	s, err := f.slot(tenant)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if s.dropped {
		return fmt.Errorf("tenant %s was dropped: %w", tenant, models.ErrEngineIO)
	}

	gen := s.gw.Generation()
	if err := s.gw.Close(); err != nil {
		f.logger.Warn("failed to close cleared index", zap.String("tenant", tenant), zap.Error(err))
	}
	if path := f.Path(tenant); path != "" {
		if err := os.RemoveAll(path); err != nil {
			return f.reopen(s, gen, fmt.Errorf("failed to remove index: %w", err))
		}
	}
	if err := f.reopen(s, gen, nil); err != nil {
		return err
	}
	f.logger.Info("cleared tenant index", zap.String("tenant", tenant))
	return nil
}

// Drop closes the tenant's index and deletes its storage. A later Open starts empty.
func (f *Factory) Drop(tenant string) error {
	if err := models.ValidateTenant(tenant); err != nil {
		return err
	}
	done := make(chan struct{})
	f.mu.Lock()
	for {
		prev, ok := f.dropping[tenant]
		if !ok {
			break
		}
		f.mu.Unlock()
		<-prev
		f.mu.Lock()
	}
	s, ok := f.tenants[tenant]
	delete(f.tenants, tenant)
	f.dropping[tenant] = done
	f.mu.Unlock()

	var gen uint64
	if ok {
		s.writeMu.Lock()
		s.swapMu.Lock()
		s.dropped = true
		gen = s.gw.Generation()
		err := s.gw.Close()
		s.swapMu.Unlock()
		s.writeMu.Unlock()
		if err != nil {
			f.logger.Warn("failed to close dropped index", zap.String("tenant", tenant), zap.Error(err))
		}
	}

	var removeErr error
	if f.root != "" {
		if err := os.RemoveAll(f.Path(tenant)); err != nil {
			removeErr = fmt.Errorf("failed to remove tenant index: %w", err)
		} else {
			_ = os.RemoveAll(f.sidePath(tenant))
		}
	}

	f.mu.Lock()
	if gen > f.lastGen[tenant] {
		f.lastGen[tenant] = gen
	}
	delete(f.dropping, tenant)
	close(done)
	f.mu.Unlock()

	if removeErr != nil {
		return removeErr
	}
	f.logger.Info("dropped tenant index", zap.String("tenant", tenant))
	return nil
}

// Tenants lists the tenants with an open index, sorted.
func (f *Factory) Tenants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tenants))
	for name := range f.tenants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close closes every open index and releases the root lock.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	slots := f.tenants
	f.tenants = make(map[string]*slot)
	f.mu.Unlock()

	var errs []error
	for _, s := range slots {
		s.writeMu.Lock()
		s.swapMu.Lock()
		if err := s.gw.Close(); err != nil {
			errs = append(errs, err)
		}
		s.swapMu.Unlock()
		s.writeMu.Unlock()
	}
	if f.lock != nil {
		if err := f.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unlock index root: %w", err))
		}
	}
	return errors.Join(errs...)
}

package factory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/contentindex/internal/docid"
	"github.com/hyperjump/contentindex/internal/gateway"
	"github.com/hyperjump/contentindex/internal/models"
)

func newFactory(t *testing.T, root string) *Factory {
	t.Helper()
	f, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func factories(t *testing.T) map[string]func() *Factory {
	return map[string]func() *Factory{
		"memory": func() *Factory { return newFactory(t, "") },
		"fs":     func() *Factory { return newFactory(t, t.TempDir()) },
	}
}

func doc(id uuid.UUID, text string) *models.SearchDocument {
	return &models.SearchDocument{
		ID:        docid.For(id, "en", ""),
		ContentID: id,
		Language:  "en",
		Texts:     map[string]string{"title": text},
	}
}

func index(t *testing.T, f *Factory, tenant string, docs ...*models.SearchDocument) {
	t.Helper()
	err := f.Write(context.Background(), tenant, func(gw gateway.Gateway) error {
		if err := gw.Upsert(context.Background(), docs); err != nil {
			return err
		}
		return gw.Commit(context.Background())
	})
	require.NoError(t, err)
}

func count(t *testing.T, f *Factory, tenant string) uint64 {
	t.Helper()
	var n uint64
	err := f.Read(context.Background(), tenant, func(gw gateway.Gateway) error {
		var err error
		n, err = gw.DocCount()
		return err
	})
	require.NoError(t, err)
	return n
}

func TestFactory_OpenIsIdempotentAndPartitioned(t *testing.T) {
	for name, open := range factories(t) {
		t.Run(name, func(t *testing.T) {
			f := open()
			a1, err := f.Open("alpha")
			require.NoError(t, err)
			a2, err := f.Open("alpha")
			require.NoError(t, err)
			assert.Same(t, a1, a2)

			index(t, f, "alpha", doc(uuid.New(), "one"))
			assert.Equal(t, uint64(1), count(t, f, "alpha"))
			assert.Equal(t, uint64(0), count(t, f, "beta"))
			assert.Equal(t, []string{"alpha", "beta"}, f.Tenants())
		})
	}
}

func TestFactory_InvalidTenant(t *testing.T) {
	f := newFactory(t, "")
	_, err := f.Open("../escape")
	assert.ErrorIs(t, err, models.ErrInvalidTenant)
}

func TestFactory_WriteDiscardsOnError(t *testing.T) {
	f := newFactory(t, "")
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.Write(ctx, "t", func(gw gateway.Gateway) error {
		if err := gw.Upsert(ctx, []*models.SearchDocument{doc(uuid.New(), "lost")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	index(t, f, "t")
	assert.Equal(t, uint64(0), count(t, f, "t"), "discarded writes never reach a later commit")
}

func TestFactory_ReadDoesNotWaitForWriters(t *testing.T) {
	f := newFactory(t, "")
	ctx := context.Background()
	_, err := f.Open("t")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.Write(ctx, "t", func(gateway.Gateway) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		done <- f.Read(ctx, "t", func(gw gateway.Gateway) error {
			_, err := gw.DocCount()
			return err
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("read lease waited for the write lease")
	}
	close(release)
	wg.Wait()
}

func TestFactory_SwapReplacesIndex(t *testing.T) {
	for name, open := range factories(t) {
		t.Run(name, func(t *testing.T) {
			f := open()
			ctx := context.Background()
			index(t, f, "t", doc(uuid.New(), "old"), doc(uuid.New(), "old"))
			before, err := f.Generation("t")
			require.NoError(t, err)

			fresh := uuid.New()
			err = f.Swap(ctx, "t", func(gw gateway.Gateway) error {
				return gw.Upsert(ctx, []*models.SearchDocument{doc(fresh, "fresh")})
			})
			require.NoError(t, err)

			after, err := f.Generation("t")
			require.NoError(t, err)
			assert.Greater(t, after, before)

			err = f.Read(ctx, "t", func(gw gateway.Gateway) error {
				hits, err := gw.Search(ctx, &gateway.Request{Size: 10})
				if err != nil {
					return err
				}
				require.Len(t, hits.Hits, 1)
				assert.Equal(t, fresh, hits.Hits[0].ContentID)
				return nil
			})
			require.NoError(t, err)

			if path := f.Path("t"); path != "" {
				_, err := os.Stat(path + sideSuffix)
				assert.True(t, os.IsNotExist(err), "side location is consumed by the swap")
			}
		})
	}
}

func TestFactory_SwapFailureKeepsOldIndex(t *testing.T) {
	f := newFactory(t, t.TempDir())
	ctx := context.Background()
	index(t, f, "t", doc(uuid.New(), "old"))
	boom := errors.New("boom")

	err := f.Swap(ctx, "t", func(gw gateway.Gateway) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), count(t, f, "t"))
	_, statErr := os.Stat(f.Path("t") + sideSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFactory_Clear(t *testing.T) {
	for name, open := range factories(t) {
		t.Run(name, func(t *testing.T) {
			f := open()
			index(t, f, "t", doc(uuid.New(), "gone"))
			before, err := f.Generation("t")
			require.NoError(t, err)

			require.NoError(t, f.Clear(context.Background(), "t"))
			assert.Equal(t, uint64(0), count(t, f, "t"))
			after, err := f.Generation("t")
			require.NoError(t, err)
			assert.Greater(t, after, before)
		})
	}
}

func TestFactory_DropRemovesStorage(t *testing.T) {
	root := t.TempDir()
	f := newFactory(t, root)
	index(t, f, "t", doc(uuid.New(), "gone"))
	require.DirExists(t, filepath.Join(root, "t"))

	before, err := f.Generation("t")
	require.NoError(t, err)

	require.NoError(t, f.Drop("t"))
	assert.NoDirExists(t, filepath.Join(root, "t"))
	assert.Equal(t, uint64(0), count(t, f, "t"))

	after, err := f.Generation("t")
	require.NoError(t, err)
	assert.Greater(t, after, before, "a recreated tenant never repeats a generation")
}

func TestFactory_OpenWaitsForDropRemoval(t *testing.T) {
	root := t.TempDir()
	f := newFactory(t, root)
	index(t, f, "t", doc(uuid.New(), "old"))

	// Hold the tenant in the removal phase of a drop.
	removal := make(chan struct{})
	f.mu.Lock()
	delete(f.tenants, "t")
	f.dropping["t"] = removal
	f.mu.Unlock()

	opened := make(chan error, 1)
	go func() {
		_, err := f.Open("t")
		opened <- err
	}()
	select {
	case <-opened:
		t.Fatal("tenant reopened while its files were being removed")
	case <-time.After(50 * time.Millisecond):
	}

	f.mu.Lock()
	delete(f.dropping, "t")
	close(removal)
	f.mu.Unlock()
	require.NoError(t, <-opened)
}

func TestFactory_ConcurrentDropAndRead(t *testing.T) {
	root := t.TempDir()
	f := newFactory(t, root)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				err := f.Read(context.Background(), "t", func(gw gateway.Gateway) error {
					_, err := gw.DocCount()
					return err
				})
				if err != nil && !errors.Is(err, models.ErrEngineIO) {
					assert.NoError(t, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		index(t, f, "t", doc(uuid.New(), "churn"))
		require.NoError(t, f.Drop("t"))
	}
	close(stop)
	wg.Wait()

	index(t, f, "t", doc(uuid.New(), "after"))
	assert.Equal(t, uint64(1), count(t, f, "t"))
	require.NoError(t, f.Close())

	reopened := newFactory(t, root)
	assert.Equal(t, uint64(1), count(t, reopened, "t"), "index files of the live tenant survive")
}

func TestFactory_PersistsAcrossRestart(t *testing.T) {
	root := t.TempDir()
	f, err := New(root)
	require.NoError(t, err)
	index(t, f, "t", doc(uuid.New(), "kept"))
	require.NoError(t, f.Close())

	reopened := newFactory(t, root)
	assert.Equal(t, uint64(1), count(t, reopened, "t"))
}

func TestFactory_RootLock(t *testing.T) {
	root := t.TempDir()
	f, err := New(root)
	require.NoError(t, err)

	_, err = New(root)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, f.Close())
	second, err := New(root)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFactory_ClosedFactory(t *testing.T) {
	f, err := New("")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	_, err = f.Open("t")
	assert.ErrorIs(t, err, ErrClosed)
}

// Package watcher feeds content notifications dropped as JSON files into a spool directory
// to a handler, using fsnotify with debouncing.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/models"
)

const (
	defaultDebounce = 250 * time.Millisecond
	spoolExt        = ".json"
	failedExt       = ".failed"
)

// Handler applies one notification read from the inbox.
type Handler func(ctx context.Context, n *models.Notification) error

// Watcher watches an inbox directory for *.json notification files. A file is removed once
// its notification is applied; a file that cannot be decoded or applied is renamed to
// *.failed. Files whose handler reports an engine failure stay in place for the next sync.
type Watcher struct {
	inbox       string
	handle      Handler
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	pending     sync.WaitGroup
	ctx         context.Context
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must stay unchanged before it is processed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over inbox calling handle for each notification file.
func NewWatcher(inbox string, handle Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		inbox:       filepath.Clean(inbox),
		handle:      handle,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates the inbox if needed, begins watching it, and processes files already present.
// It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.inbox, 0755); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fw.Add(w.inbox); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching notification inbox", zap.String("inbox", w.inbox), zap.Duration("debounce", w.debounce))
	go w.run(ctx, fw.Events, fw.Errors)
	return w.SyncExistingFiles()
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !isSpoolFile(path) || filepath.Dir(path) != w.inbox {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.debounceProcess(path)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
	}
}

func isSpoolFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(strings.ToLower(base), spoolExt) && !strings.HasPrefix(base, ".")
}

func (w *Watcher) debounceProcess(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.debounceMap[path]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		defer w.pending.Done()
		w.mu.Lock()
		delete(w.debounceMap, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.process(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.debounceMap, path)
	}
}

// process applies one spool file and removes or quarantines it.
func (w *Watcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	n, err := readNotification(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil {
		err = w.handle(ctx, n)
	}
	switch {
	case err == nil:
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			w.logger.Warn("failed to remove processed notification", zap.String("path", path), zap.Error(rmErr))
		}
		w.logger.Debug("notification applied", zap.String("path", path))
	case errors.Is(err, models.ErrEngineIO), errors.Is(err, context.Canceled):
		w.logger.Warn("notification not applied, will retry", zap.String("path", path), zap.Error(err))
	default:
		w.logger.Error("notification rejected", zap.String("path", path), zap.Error(err))
		if mvErr := os.Rename(path, path+failedExt); mvErr != nil {
			w.logger.Warn("failed to quarantine notification", zap.String("path", path), zap.Error(mvErr))
		}
	}
}

func readNotification(path string) (*models.Notification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return &n, nil
}

// SyncExistingFiles processes every notification file currently in the inbox, in name order.
func (w *Watcher) SyncExistingFiles() error {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		return errors.New("watcher not started")
	}
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isSpoolFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	w.logger.Debug("watcher syncing existing files", zap.Int("files", len(names)))
	for _, name := range names {
		path := filepath.Join(w.inbox, name)
		w.cancelDebounce(path)
		w.process(ctx, path)
	}
	return nil
}

// Inbox returns the watched directory.
func (w *Watcher) Inbox() string {
	return w.inbox
}

// Stop stops the watcher and waits for notifications being applied.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.pending.Wait()
}

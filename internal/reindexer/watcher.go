package reindexer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher observes a tree and triggers a reindex run after filesystem
// activity settles. Events are debounced; the reindexer recomputes the
// full diff, so the watcher does not need to track which files changed.
type Watcher struct {
	root      string
	scope     string
	reindexer *Reindexer
	watcher   *fsnotify.Watcher
	debounce  time.Duration

	mu    sync.Mutex
	dirty bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher that reindexes scope from root on change
func NewWatcher(root, scope string, r *Reindexer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:      root,
		scope:     scope,
		reindexer: r,
		watcher:   fsw,
		debounce:  defaultDebounce,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers all directories under the root and begins processing
// events
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		for _, ignored := range DefaultIgnorePatterns {
			if d.Name() == ignored {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("watch: failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk root: %w", err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher and waits for its goroutines to exit
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories need their own watch registration
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("watch: failed to watch new directory %s: %v", event.Name, err)
			}
			w.markDirty()
			return
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.markDirty()
	}
}

func (w *Watcher) markDirty() {
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			dirty := w.dirty
			w.dirty = false
			w.mu.Unlock()

			if !dirty {
				continue
			}
			if _, err := w.reindexer.Reindex(w.ctx, w.scope, w.root, true); err != nil {
				// An overlapping manual run holds the lock; the next tick retries
				log.Printf("watch: reindex failed: %v", err)
				w.markDirty()
			}
		}
	}
}

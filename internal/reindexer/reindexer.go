package reindexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry-mcp/internal/fileindexer"
	"github.com/quarrylabs/quarry-mcp/internal/storage"
	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// ErrReindexInProgress is returned when a reindex run for the same scope
// is already executing
var ErrReindexInProgress = errors.New("reindex already in progress for this scope")

// FileIndexer processes one file into both indexes
type FileIndexer interface {
	IndexFile(ctx context.Context, path, scope string) (*fileindexer.Result, error)
}

// SemanticIndex is the reindexer's view of the vector store: membership
// enumeration, freshness, and deletion
type SemanticIndex interface {
	ListFiles(ctx context.Context, scope string) ([]string, error)
	LastIndexedAt(ctx context.Context, scope, filePath string) (time.Time, error)
	DeleteByPath(ctx context.Context, scope, filePath string) error
}

// StructuralIndex is the reindexer's view of the graph store
type StructuralIndex interface {
	DeleteByPath(ctx context.Context, scope, filePath string) error
}

// Reindexer keeps both indexes consistent with the filesystem by
// recomputing the diff from current ground truth on every run. There is
// no persisted pending queue; a run interrupted halfway is repaired by
// simply running again.
type Reindexer struct {
	indexer    FileIndexer
	semantic   SemanticIndex
	structural StructuralIndex
	locks      *ScopeLocks
}

// New creates a Reindexer
func New(indexer FileIndexer, semantic SemanticIndex, structural StructuralIndex) *Reindexer {
	return &Reindexer{
		indexer:    indexer,
		semantic:   semantic,
		structural: structural,
		locks:      NewScopeLocks(),
	}
}

// Reindex diffs the filesystem under rootPath against the semantic
// index's file set for scope, then adds new files, refreshes modified
// ones, and (when removeStale is set) drops entries whose files are gone.
// One file's failure is recorded in the run's errors and processing
// continues.
func (r *Reindexer) Reindex(ctx context.Context, scope, rootPath string, removeStale bool) (*types.ReindexRun, error) {
	if !r.locks.TryAcquire(scope) {
		return nil, ErrReindexInProgress
	}
	defer r.locks.Release(scope)

	startTime := time.Now()
	run := &types.ReindexRun{Scope: scope}

	walker, err := NewWalker(rootPath)
	if err != nil {
		return nil, err
	}

	currentPaths, walkErrs := walker.Walk()
	run.Errors = append(run.Errors, walkErrs...)

	// Normalized path -> path as walked, for stat and indexing
	current := make(map[string]string, len(currentPaths))
	for _, path := range currentPaths {
		current[storage.NormalizePath(path)] = path
	}

	indexedPaths, err := r.semantic.ListFiles(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}
	indexed := make(map[string]bool, len(indexedPaths))
	for _, path := range indexedPaths {
		indexed[storage.NormalizePath(path)] = true
	}

	if removeStale {
		for path := range indexed {
			if _, exists := current[path]; exists {
				continue
			}
			if err := r.removeFile(ctx, scope, path); err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			run.FilesRemoved++
		}
	}

	// Index files concurrently; the stores serialize writes internally
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex

	for normalized, path := range current {
		wasIndexed := indexed[normalized]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if wasIndexed {
				fresh, err := r.isFresh(gctx, scope, normalized, path)
				if err != nil {
					mu.Lock()
					run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", path, err))
					mu.Unlock()
					return nil
				}
				if fresh {
					return nil
				}
			}

			result, err := r.indexer.IndexFile(gctx, path, scope)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			run.Errors = append(run.Errors, result.Errors...)
			if wasIndexed {
				run.FilesUpdated++
			} else {
				run.FilesAdded++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	run.TotalProcessed = run.FilesAdded + run.FilesUpdated + run.FilesRemoved
	run.Duration = time.Since(startTime)
	run.Success = len(run.Errors) == 0

	log.Printf("reindex %s: added=%d updated=%d removed=%d errors=%d in %s",
		scope, run.FilesAdded, run.FilesUpdated, run.FilesRemoved, len(run.Errors), run.Duration)

	return run, nil
}

// isFresh compares the file's mtime against the stored last-indexed
// time. An unknown timestamp counts as stale.
func (r *Reindexer) isFresh(ctx context.Context, scope, normalized, path string) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat failed: %w", err)
	}

	lastIndexed, err := r.semantic.LastIndexedAt(ctx, scope, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !stat.ModTime().After(lastIndexed), nil
}

// removeFile drops a vanished file from both indexes
func (r *Reindexer) removeFile(ctx context.Context, scope, path string) error {
	if err := r.semantic.DeleteByPath(ctx, scope, path); err != nil {
		return fmt.Errorf("removing from semantic index: %w", err)
	}
	if err := r.structural.DeleteByPath(ctx, scope, path); err != nil {
		return fmt.Errorf("removing from structural index: %w", err)
	}
	return nil
}

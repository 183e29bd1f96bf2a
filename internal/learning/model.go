package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quarrylabs/quarry-mcp/internal/storage"
	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// Score caps and defaults
const (
	maxFrequencyScore  = 0.95
	maxImportanceScore = 0.95

	// DefaultImportance is returned for files with no recorded events.
	// Lookups must always be answerable, so absence is never an error.
	DefaultImportance = 0.5
	defaultRecency    = 0.5
	defaultFrequency  = 0.1
)

// Model maintains per-file learning signals and re-ranks search results
// with them. All per-key updates are increment-or-create under one lock;
// counters only grow, so concurrent updates from query goroutines
// commute.
type Model struct {
	store Store
	mu    sync.Mutex // Serializes read-modify-write cycles on metrics
	now   func() time.Time
}

// NewModel creates a learning model over the given store
func NewModel(store Store) *Model {
	return &Model{
		store: store,
		now:   time.Now,
	}
}

// RecordAccess registers that a file was read or opened
func (m *Model) RecordAccess(ctx context.Context, scope, filePath string) error {
	return m.updateMetric(ctx, scope, filePath,
		func(metric *types.ImportanceMetric, now time.Time) {
			// Create
			metric.AccessCount = 1
			metric.RecencyScore = 1.0
			metric.FrequencyScore = 0.1
			metric.ImportanceScore = DefaultImportance
			metric.LastAccessedAt = now
		},
		func(metric *types.ImportanceMetric, now time.Time) {
			// Update
			metric.AccessCount++
			metric.RecencyScore = 1.0
			metric.FrequencyScore = capped(metric.FrequencyScore+0.05, maxFrequencyScore)
			metric.LastAccessedAt = now
		})
}

// RecordEdit registers that a file was modified
func (m *Model) RecordEdit(ctx context.Context, scope, filePath string) error {
	return m.updateMetric(ctx, scope, filePath,
		func(metric *types.ImportanceMetric, now time.Time) {
			metric.EditCount = 1
			metric.RecencyScore = 1.0
			metric.FrequencyScore = 0.2
			metric.ImportanceScore = 0.6
			metric.LastEditedAt = now
		},
		func(metric *types.ImportanceMetric, now time.Time) {
			metric.EditCount++
			metric.RecencyScore = 1.0
			metric.FrequencyScore = capped(metric.FrequencyScore+0.1, maxFrequencyScore)
			metric.ImportanceScore = capped(metric.ImportanceScore+0.05, maxImportanceScore)
			metric.LastEditedAt = now
		})
}

// RecordSearchResult registers that a file appeared in returned search
// results. This is the feedback hook the orchestrator fires per result;
// it deliberately leaves recency untouched on update so that merely
// showing up in results does not mask real inactivity.
func (m *Model) RecordSearchResult(ctx context.Context, scope, filePath string) error {
	return m.updateMetric(ctx, scope, filePath,
		func(metric *types.ImportanceMetric, now time.Time) {
			metric.SearchResultCount = 1
			metric.ImportanceScore = DefaultImportance
			metric.RecencyScore = 0.5
			metric.FrequencyScore = 0.1
		},
		func(metric *types.ImportanceMetric, now time.Time) {
			metric.SearchResultCount++
		})
}

// RecordSelection registers that a user picked a file from search results
func (m *Model) RecordSelection(ctx context.Context, scope, filePath string) error {
	return m.updateMetric(ctx, scope, filePath,
		func(metric *types.ImportanceMetric, now time.Time) {
			metric.SelectedCount = 1
			metric.AccessCount = 1
			metric.ImportanceScore = 0.6
			metric.RecencyScore = 1.0
			metric.FrequencyScore = 0.2
			metric.LastAccessedAt = now
		},
		func(metric *types.ImportanceMetric, now time.Time) {
			metric.SelectedCount++
			metric.AccessCount++
			metric.RecencyScore = 1.0
			metric.ImportanceScore = capped(metric.ImportanceScore+0.02, maxImportanceScore)
			metric.LastAccessedAt = now
		})
}

// GetImportance returns the metric for a file, or a default metric when
// none exists
func (m *Model) GetImportance(ctx context.Context, scope, filePath string) (*types.ImportanceMetric, error) {
	metric, err := m.store.GetMetric(ctx, scope, filePath)
	if errors.Is(err, storage.ErrNotFound) {
		return &types.ImportanceMetric{
			FilePath:        storage.NormalizePath(filePath),
			Scope:           scope,
			ImportanceScore: DefaultImportance,
			RecencyScore:    defaultRecency,
			FrequencyScore:  defaultFrequency,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return metric, nil
}

// Recalculate recomputes recency and importance for every metric in a
// scope from its counters. This is the only place importance is derived
// from scratch rather than incremented; running it supersedes accumulated
// drift, and running it twice in a row is a no-op.
func (m *Model) Recalculate(ctx context.Context, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, err := m.store.ListMetrics(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to list metrics: %w", err)
	}

	now := m.now()
	updated := 0
	for _, metric := range metrics {
		metric.RecencyScore = recencyForAge(metric.LastAccessedAt, now)

		access := float64(metric.AccessCount)
		edit := float64(metric.EditCount)
		selected := float64(metric.SelectedCount)
		discussion := float64(metric.DiscussionCount)

		metric.ImportanceScore = (access*0.1 + edit*0.3 + selected*0.2 +
			discussion*0.2 + metric.RecencyScore*0.2) /
			(access + edit + selected + discussion + 1)

		if err := m.store.PutMetric(ctx, metric); err != nil {
			return updated, fmt.Errorf("failed to store recalculated metric for %s: %w", metric.FilePath, err)
		}
		updated++
	}

	return updated, nil
}

// recencyForAge maps days since last access onto the decay ladder.
// Unknown access times score 0.5.
func recencyForAge(lastAccessedAt, now time.Time) float64 {
	if lastAccessedAt.IsZero() {
		return 0.5
	}

	days := now.Sub(lastAccessedAt).Hours() / 24
	switch {
	case days < 1:
		return 1.0
	case days < 7:
		return 0.8
	case days < 30:
		return 0.5
	case days < 90:
		return 0.3
	default:
		return 0.1
	}
}

// EnhanceResults re-ranks raw search results using learned importance and
// accumulated reward:
//
//	enhanced = raw × (1 + importance) × (1 + 0.1 × reward)
//
// The importance and reward inputs are attached to each result's metadata
// for observability. Lookup failures leave the raw score in place rather
// than dropping the result.
func (m *Model) EnhanceResults(ctx context.Context, scope, query string, results []*types.SearchResult) ([]*types.SearchResult, error) {
	for _, result := range results {
		metric, err := m.GetImportance(ctx, scope, result.FilePath)
		if err != nil {
			continue
		}

		reward, err := m.AccumulatedReward(ctx, query, result.FilePath)
		if err != nil {
			reward = 0
		}

		result.CombinedScore = result.CombinedScore *
			(1 + metric.ImportanceScore) * (1 + 0.1*reward)

		if result.Metadata == nil {
			result.Metadata = make(map[string]interface{})
		}
		result.Metadata["importance_score"] = metric.ImportanceScore
		result.Metadata["reward_score"] = reward
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})

	return results, nil
}

// updateMetric runs an increment-or-create cycle for one (scope, path)
// key
func (m *Model) updateMetric(ctx context.Context, scope, filePath string,
	onCreate, onUpdate func(*types.ImportanceMetric, time.Time)) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	metric, err := m.store.GetMetric(ctx, scope, filePath)
	if errors.Is(err, storage.ErrNotFound) {
		metric = &types.ImportanceMetric{
			FilePath: storage.NormalizePath(filePath),
			Scope:    scope,
		}
		onCreate(metric, now)
	} else if err != nil {
		return fmt.Errorf("failed to load metric: %w", err)
	} else {
		onUpdate(metric, now)
	}

	if err := m.store.PutMetric(ctx, metric); err != nil {
		return fmt.Errorf("failed to store metric: %w", err)
	}
	return nil
}

func capped(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

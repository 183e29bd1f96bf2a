package learning

import (
	"context"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry-mcp/internal/storage"
	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// Store persists learning-model state. The model is written through this
// interface so tests can substitute an in-memory implementation; the
// production implementation is storage.LearningStore.
type Store interface {
	GetMetric(ctx context.Context, scope, filePath string) (*types.ImportanceMetric, error)
	PutMetric(ctx context.Context, metric *types.ImportanceMetric) error
	ListMetrics(ctx context.Context, scope string) ([]*types.ImportanceMetric, error)

	GetCoEdit(ctx context.Context, scope, fileA, fileB string) (*types.CoEditEdge, error)
	PutCoEdit(ctx context.Context, edge *types.CoEditEdge) error
	ListCoEdits(ctx context.Context, scope string) ([]*types.CoEditEdge, error)

	AppendReward(ctx context.Context, signal *types.RewardSignal) error
	RewardsByPath(ctx context.Context, resultPath string) ([]*types.RewardSignal, error)
}

// MemoryStore is an in-memory Store used in tests and as a fallback when
// no database is configured
type MemoryStore struct {
	mu      sync.RWMutex
	metrics map[string]*types.ImportanceMetric
	coedits map[string]*types.CoEditEdge
	rewards []*types.RewardSignal
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metrics: make(map[string]*types.ImportanceMetric),
		coedits: make(map[string]*types.CoEditEdge),
	}
}

func metricKey(scope, filePath string) string {
	return scope + "\x00" + storage.NormalizePath(filePath)
}

func coeditKey(scope, fileA, fileB string) string {
	return scope + "\x00" + fileA + "\x00" + fileB
}

func (m *MemoryStore) GetMetric(ctx context.Context, scope, filePath string) (*types.ImportanceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metric, ok := m.metrics[metricKey(scope, filePath)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *metric
	return &clone, nil
}

func (m *MemoryStore) PutMetric(ctx context.Context, metric *types.ImportanceMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *metric
	clone.FilePath = storage.NormalizePath(clone.FilePath)
	m.metrics[metricKey(metric.Scope, metric.FilePath)] = &clone
	return nil
}

func (m *MemoryStore) ListMetrics(ctx context.Context, scope string) ([]*types.ImportanceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var metrics []*types.ImportanceMetric
	for _, metric := range m.metrics {
		if metric.Scope == scope {
			clone := *metric
			metrics = append(metrics, &clone)
		}
	}
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].FilePath < metrics[j].FilePath
	})
	return metrics, nil
}

func (m *MemoryStore) GetCoEdit(ctx context.Context, scope, fileA, fileB string) (*types.CoEditEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edge, ok := m.coedits[coeditKey(scope, fileA, fileB)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *edge
	clone.SessionIDs = append([]string(nil), edge.SessionIDs...)
	return &clone, nil
}

func (m *MemoryStore) PutCoEdit(ctx context.Context, edge *types.CoEditEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *edge
	clone.SessionIDs = append([]string(nil), edge.SessionIDs...)
	m.coedits[coeditKey(edge.Scope, edge.FileA, edge.FileB)] = &clone
	return nil
}

func (m *MemoryStore) ListCoEdits(ctx context.Context, scope string) ([]*types.CoEditEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var edges []*types.CoEditEdge
	for _, edge := range m.coedits {
		if edge.Scope == scope {
			clone := *edge
			clone.SessionIDs = append([]string(nil), edge.SessionIDs...)
			edges = append(edges, &clone)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Count > edges[j].Count
	})
	return edges, nil
}

func (m *MemoryStore) AppendReward(ctx context.Context, signal *types.RewardSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *signal
	clone.ResultPath = storage.NormalizePath(clone.ResultPath)
	m.rewards = append(m.rewards, &clone)
	return nil
}

func (m *MemoryStore) RewardsByPath(ctx context.Context, resultPath string) ([]*types.RewardSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := storage.NormalizePath(resultPath)
	var signals []*types.RewardSignal
	for _, s := range m.rewards {
		if s.ResultPath == normalized {
			clone := *s
			signals = append(signals, &clone)
		}
	}
	return signals, nil
}

package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/quarrylabs/quarry-mcp/internal/storage"
	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

const (
	// clusterMinCount is the minimum edge count for an edge to take part
	// in clustering
	clusterMinCount = 3
	// maxClusters caps the number of returned clusters
	maxClusters = 20
)

// CoEditedFile pairs a neighbor path with how strongly it is associated
type CoEditedFile struct {
	FilePath string
	Count    int
	Strength float64
}

// Cluster is a connected component of frequently co-edited files
type Cluster struct {
	Files []string
	Size  int
}

// RecordCoEditSession registers that a set of files was edited together
// in one session. Every unordered pair gets its shared edge counter
// incremented; the pair is canonicalized by lexical order so [A,B] and
// [B,A] land on the same edge. Sessions with fewer than two distinct
// files carry no pair signal and are ignored.
func (m *Model) RecordCoEditSession(ctx context.Context, scope string, files []string, sessionID string) error {
	distinct := normalizeDistinct(files)
	if len(distinct) < 2 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for i := 0; i < len(distinct); i++ {
		for j := i + 1; j < len(distinct); j++ {
			fileA, fileB := distinct[i], distinct[j]

			edge, err := m.store.GetCoEdit(ctx, scope, fileA, fileB)
			if errors.Is(err, storage.ErrNotFound) {
				edge = &types.CoEditEdge{
					FileA:       fileA,
					FileB:       fileB,
					Scope:       scope,
					FirstSeenAt: now,
				}
			} else if err != nil {
				return fmt.Errorf("failed to load co-edit edge: %w", err)
			}

			edge.Count++
			edge.LastSeenAt = now
			if sessionID != "" && !containsString(edge.SessionIDs, sessionID) {
				edge.SessionIDs = append(edge.SessionIDs, sessionID)
			}

			if err := m.store.PutCoEdit(ctx, edge); err != nil {
				return fmt.Errorf("failed to store co-edit edge: %w", err)
			}
		}
	}

	return nil
}

// CoEditStrength maps an edge count onto a bounded association score
func CoEditStrength(count int) float64 {
	return math.Min(0.95, math.Log(float64(count)+1)*0.3)
}

// GetCoEditedFiles returns the files co-edited with filePath, strongest
// first
func (m *Model) GetCoEditedFiles(ctx context.Context, scope, filePath string) ([]CoEditedFile, error) {
	normalized := storage.NormalizePath(filePath)

	edges, err := m.store.ListCoEdits(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list co-edit edges: %w", err)
	}

	var neighbors []CoEditedFile
	for _, edge := range edges {
		var other string
		switch normalized {
		case edge.FileA:
			other = edge.FileB
		case edge.FileB:
			other = edge.FileA
		default:
			continue
		}

		neighbors = append(neighbors, CoEditedFile{
			FilePath: other,
			Count:    edge.Count,
			Strength: CoEditStrength(edge.Count),
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Count > neighbors[j].Count
	})
	return neighbors, nil
}

// Clusters builds connected components over co-edit edges with count >= 3
// and returns components of more than one file, largest first, capped at
// 20
func (m *Model) Clusters(ctx context.Context, scope string) ([]Cluster, error) {
	edges, err := m.store.ListCoEdits(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list co-edit edges: %w", err)
	}

	parent := make(map[string]string)

	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	union := func(a, b string) {
		if _, ok := parent[a]; !ok {
			parent[a] = a
		}
		if _, ok := parent[b]; !ok {
			parent[b] = b
		}
		rootA, rootB := find(a), find(b)
		if rootA != rootB {
			parent[rootB] = rootA
		}
	}

	for _, edge := range edges {
		if edge.Count >= clusterMinCount {
			union(edge.FileA, edge.FileB)
		}
	}

	components := make(map[string][]string)
	for node := range parent {
		root := find(node)
		components[root] = append(components[root], node)
	}

	var clusters []Cluster
	for _, files := range components {
		if len(files) <= 1 {
			continue
		}
		sort.Strings(files)
		clusters = append(clusters, Cluster{Files: files, Size: len(files)})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].Files[0] < clusters[j].Files[0]
	})

	if len(clusters) > maxClusters {
		clusters = clusters[:maxClusters]
	}
	return clusters, nil
}

// normalizeDistinct normalizes paths, removes duplicates, and sorts
func normalizeDistinct(files []string) []string {
	seen := make(map[string]bool, len(files))
	var distinct []string
	for _, f := range files {
		normalized := storage.NormalizePath(f)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		distinct = append(distinct, normalized)
	}
	sort.Strings(distinct)
	return distinct
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

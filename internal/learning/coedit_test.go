package learning

import (
	"context"
	"math"
	"testing"
)

func TestCoEditSymmetry(t *testing.T) {
	m := newTestModel()
	ctx := context.Background()

	if err := m.RecordCoEditSession(ctx, testScope, []string{"a.go", "b.go"}, "s1"); err != nil {
		t.Fatalf("RecordCoEditSession failed: %v", err)
	}
	if err := m.RecordCoEditSession(ctx, testScope, []string{"b.go", "a.go"}, "s2"); err != nil {
		t.Fatalf("RecordCoEditSession failed: %v", err)
	}

	edges, err := m.store.ListCoEdits(ctx, testScope)
	if err != nil {
		t.Fatalf("ListCoEdits failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}

	edge := edges[0]
	if edge.Count != 2 {
		t.Errorf("Count = %d, want 2", edge.Count)
	}
	if edge.FileA != "a.go" || edge.FileB != "b.go" {
		t.Errorf("pair not canonicalized: (%s, %s)", edge.FileA, edge.FileB)
	}
	if len(edge.SessionIDs) != 2 {
		t.Errorf("SessionIDs = %v, want both sessions", edge.SessionIDs)
	}
}

func TestCoEditSessionDeduplication(t *testing.T) {
	m := newTestModel()
	ctx := context.Background()

	// Same session twice: counter still grows, session recorded once
	for i := 0; i < 2; i++ {
		if err := m.RecordCoEditSession(ctx, testScope, []string{"x.go", "y.go"}, "same"); err != nil {
			t.Fatalf("RecordCoEditSession failed: %v", err)
		}
	}

	edge, err := m.store.GetCoEdit(ctx, testScope, "x.go", "y.go")
	if err != nil {
		t.Fatalf("GetCoEdit failed: %v", err)
	}
	if edge.Count != 2 {
		t.Errorf("Count = %d, want 2", edge.Count)
	}
	if len(edge.SessionIDs) != 1 {
		t.Errorf("SessionIDs = %v, want single entry", edge.SessionIDs)
	}
}

func TestCoEditSingleFileIgnored(t *testing.T) {
	m := newTestModel()
	ctx := context.Background()

	if err := m.RecordCoEditSession(ctx, testScope, []string{"solo.go"}, "s1"); err != nil {
		t.Fatalf("RecordCoEditSession failed: %v", err)
	}
	if err := m.RecordCoEditSession(ctx, testScope, []string{"dup.go", "dup.go"}, "s2"); err != nil {
		t.Fatalf("RecordCoEditSession failed: %v", err)
	}

	edges, _ := m.store.ListCoEdits(ctx, testScope)
	if len(edges) != 0 {
		t.Errorf("expected no edges, got %d", len(edges))
	}
}

func TestCoEditStrength(t *testing.T) {
	tests := []struct {
		count int
		want  float64
	}{
		{1, math.Log(2) * 0.3},
		{3, math.Log(4) * 0.3},
		{1000, 0.95}, // Saturates
	}

	for _, tt := range tests {
		got := CoEditStrength(tt.count)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CoEditStrength(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestGetCoEditedFilesOrdering(t *testing.T) {
	m := newTestModel()
	ctx := context.Background()

	// hub.go co-edited 3x with near.go, 1x with far.go
	for i := 0; i < 3; i++ {
		_ = m.RecordCoEditSession(ctx, testScope, []string{"hub.go", "near.go"}, "")
	}
	_ = m.RecordCoEditSession(ctx, testScope, []string{"hub.go", "far.go"}, "")

	neighbors, err := m.GetCoEditedFiles(ctx, testScope, "hub.go")
	if err != nil {
		t.Fatalf("GetCoEditedFiles failed: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].FilePath != "near.go" || neighbors[0].Count != 3 {
		t.Errorf("strongest neighbor = %+v, want near.go count 3", neighbors[0])
	}
	if neighbors[1].FilePath != "far.go" {
		t.Errorf("second neighbor = %+v, want far.go", neighbors[1])
	}
}

func TestClusters(t *testing.T) {
	m := newTestModel()
	ctx := context.Background()

	// Strong component: a-b-c edited together 3 times
	for i := 0; i < 3; i++ {
		_ = m.RecordCoEditSession(ctx, testScope, []string{"a.go", "b.go", "c.go"}, "")
	}
	// Weak pair below the clustering threshold
	_ = m.RecordCoEditSession(ctx, testScope, []string{"d.go", "e.go"}, "")

	clusters, err := m.Clusters(ctx, testScope)
	if err != nil {
		t.Fatalf("Clusters failed: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].Size != 3 {
		t.Errorf("cluster size = %d, want 3", clusters[0].Size)
	}
	want := []string{"a.go", "b.go", "c.go"}
	for i, f := range want {
		if clusters[0].Files[i] != f {
			t.Errorf("cluster files = %v, want %v", clusters[0].Files, want)
			break
		}
	}
}

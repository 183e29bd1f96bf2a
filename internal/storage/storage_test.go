package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

const testScope = "test-project"

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "quarry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	var version string
	err := db.Conn().QueryRow("SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`internal\auth\token.go`, "internal/auth/token.go"},
		{"./internal/auth/token.go", "internal/auth/token.go"},
		{"internal/auth/token.go", "internal/auth/token.go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in))
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	assert.Equal(t, `"auth" "middleware"`, sanitizeFTSQuery("auth middleware"))
	assert.Equal(t, `"a""b"`, sanitizeFTSQuery(`a"b`))
	assert.Equal(t, "", sanitizeFTSQuery("   "))
	// FTS operators end up quoted, not interpreted
	assert.Equal(t, `"auth" "OR" "admin"`, sanitizeFTSQuery("auth OR admin"))
}

func TestVectorRoundTrip(t *testing.T) {
	original := []float32{0.1, -2.5, 3.75, 0}
	restored, err := deserializeVector(serializeVector(original))
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	_, err = deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestGraphStoreImpact(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphStore(db)
	ctx := context.Background()

	nodes := []*Node{
		{Scope: testScope, Name: "UserRepository", Kind: "interface", FilePath: "internal/repo/user.go", Line: 10, Snippet: "type UserRepository interface {"},
		{Scope: testScope, Name: "SQLUserRepository", Kind: "struct", FilePath: "internal/repo/sql.go", Line: 20, Snippet: "type SQLUserRepository struct {"},
		{Scope: testScope, Name: "UserService", Kind: "struct", FilePath: "internal/service/user.go", Line: 5, Snippet: "type UserService struct {"},
	}
	for _, n := range nodes {
		require.NoError(t, graph.UpsertNode(ctx, n))
	}
	require.NoError(t, graph.UpsertEdge(ctx, testScope, "SQLUserRepository", "UserRepository", EdgeDependsOn))
	require.NoError(t, graph.UpsertEdge(ctx, testScope, "UserService", "UserRepository", EdgeDependsOn))

	impacted, err := graph.ImpactOf(ctx, testScope, "UserRepository", 10)
	require.NoError(t, err)
	require.Len(t, impacted, 2)

	names := []string{impacted[0].Name, impacted[1].Name}
	assert.Contains(t, names, "SQLUserRepository")
	assert.Contains(t, names, "UserService")
}

func TestGraphStoreDependencyChain(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphStore(db)
	ctx := context.Background()

	for _, name := range []string{"Handler", "Service", "Repository"} {
		require.NoError(t, graph.UpsertNode(ctx, &Node{
			Scope: testScope, Name: name, Kind: "struct", FilePath: "x.go", Line: 1,
		}))
	}
	require.NoError(t, graph.UpsertEdge(ctx, testScope, "Handler", "Service", EdgeDependsOn))
	require.NoError(t, graph.UpsertEdge(ctx, testScope, "Service", "Repository", EdgeDependsOn))

	chain, err := graph.DependencyChainOf(ctx, testScope, "Handler", 3)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	names := []string{chain[0].Name, chain[1].Name}
	assert.Contains(t, names, "Service")
	assert.Contains(t, names, "Repository")

	// Depth 1 stops at the direct dependency
	chain, err = graph.DependencyChainOf(ctx, testScope, "Handler", 1)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "Service", chain[0].Name)
}

func TestGraphStoreFullTextSearch(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphStore(db)
	ctx := context.Background()

	require.NoError(t, graph.UpsertNode(ctx, &Node{
		Scope: testScope, Name: "validateToken", Kind: "function",
		FilePath: "internal/auth/token.go", Line: 12,
		Snippet: "func validateToken(raw string) error {",
	}))
	require.NoError(t, graph.UpsertNode(ctx, &Node{
		Scope: testScope, Name: "renderPage", Kind: "function",
		FilePath: "internal/web/render.go", Line: 30,
		Snippet: "func renderPage(w io.Writer) error {",
	}))

	found, err := graph.FullTextSearch(ctx, testScope, "validateToken", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "validateToken", found[0].Name)

	// Other scopes stay invisible
	found, err = graph.FullTextSearch(ctx, "other-project", "validateToken", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGraphStoreDeleteByPath(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphStore(db)
	ctx := context.Background()

	require.NoError(t, graph.UpsertNode(ctx, &Node{Scope: testScope, Name: "A", Kind: "struct", FilePath: "a.go", Line: 1}))
	require.NoError(t, graph.UpsertNode(ctx, &Node{Scope: testScope, Name: "B", Kind: "struct", FilePath: "b.go", Line: 1}))
	require.NoError(t, graph.UpsertEdge(ctx, testScope, "B", "A", EdgeDependsOn))

	require.NoError(t, graph.DeleteByPath(ctx, testScope, "a.go"))

	count, err := graph.CountNodes(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	impacted, err := graph.ImpactOf(ctx, testScope, "A", 10)
	require.NoError(t, err)
	assert.Empty(t, impacted, "edges touching the deleted node are gone")
}

func TestVectorStoreSearch(t *testing.T) {
	db := openTestDB(t)
	vector := NewVectorStore(db)
	ctx := context.Background()

	docs := []struct {
		doc *Document
		vec []float32
	}{
		{&Document{Scope: testScope, FilePath: "a.go", Name: "parseConfig", Kind: "function", Content: "func parseConfig()", Line: 1}, []float32{1, 0, 0}},
		{&Document{Scope: testScope, FilePath: "b.go", Name: "renderPage", Kind: "function", Content: "func renderPage()", Line: 1}, []float32{0, 1, 0}},
		{&Document{Scope: testScope, FilePath: "c.go", Name: "retry-with-backoff", Kind: "pattern", Content: "pattern", Line: 1, Confidence: 0.8}, []float32{1, 0, 0}},
	}
	for _, d := range docs {
		require.NoError(t, vector.UpsertDocument(ctx, d.doc, d.vec, "mock", "mock-v1"))
	}

	// Plain searches leave pattern entries out
	matches, err := vector.Search(ctx, testScope, []float32{1, 0, 0}, 10, 0.5, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "parseConfig", matches[0].Document.Name)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)

	// Pattern searches see only pattern entries
	matches, err = vector.Search(ctx, testScope, []float32{1, 0, 0}, 10, 0.5, "pattern")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "retry-with-backoff", matches[0].Document.Name)
	assert.Equal(t, 0.8, matches[0].Document.Confidence)
}

func TestVectorStoreUpsertReplaces(t *testing.T) {
	db := openTestDB(t)
	vector := NewVectorStore(db)
	ctx := context.Background()

	doc := &Document{Scope: testScope, FilePath: "a.go", Name: "f", Kind: "function", Content: "v1", Line: 1}
	require.NoError(t, vector.UpsertDocument(ctx, doc, []float32{1, 0}, "mock", "mock-v1"))

	doc.Content = "v2"
	require.NoError(t, vector.UpsertDocument(ctx, doc, []float32{0, 1}, "mock", "mock-v1"))

	count, err := vector.CountDocuments(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := vector.Search(ctx, testScope, []float32{0, 1}, 10, 0.9, "")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v2", matches[0].Document.Content)
}

func TestVectorStoreListFilesAndFreshness(t *testing.T) {
	db := openTestDB(t)
	vector := NewVectorStore(db)
	ctx := context.Background()

	require.NoError(t, vector.UpsertDocument(ctx,
		&Document{Scope: testScope, FilePath: "a.go", Name: "f", Kind: "function", Content: "x", Line: 1},
		[]float32{1}, "mock", "mock-v1"))
	require.NoError(t, vector.UpsertDocument(ctx,
		&Document{Scope: testScope, FilePath: "c.go", Name: "retry-with-backoff", Kind: "pattern", Content: "x", Line: 1},
		[]float32{1}, "mock", "mock-v1"))

	files, err := vector.ListFiles(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files, "pattern entries do not define file membership")

	got, err := vector.LastIndexedAt(ctx, testScope, "a.go")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got, 5*time.Second)

	_, err = vector.LastIndexedAt(ctx, testScope, "missing.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLearningStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewLearningStore(db)
	ctx := context.Background()

	_, err := store.GetMetric(ctx, testScope, "a.go")
	assert.ErrorIs(t, err, ErrNotFound)

	metric := &types.ImportanceMetric{
		FilePath: "a.go", Scope: testScope,
		AccessCount: 3, EditCount: 1,
		LastAccessedAt:  time.Now().UTC().Truncate(time.Second),
		ImportanceScore: 0.5, RecencyScore: 1.0, FrequencyScore: 0.3,
	}
	require.NoError(t, store.PutMetric(ctx, metric))

	got, err := store.GetMetric(ctx, testScope, "a.go")
	require.NoError(t, err)
	assert.Equal(t, 3, got.AccessCount)
	assert.Equal(t, 0.5, got.ImportanceScore)
	assert.True(t, got.LastEditedAt.IsZero(), "never edited timestamp survives as zero")

	edge := &types.CoEditEdge{
		FileA: "a.go", FileB: "b.go", Scope: testScope, Count: 2,
		FirstSeenAt: time.Now().UTC().Truncate(time.Second),
		LastSeenAt:  time.Now().UTC().Truncate(time.Second),
		SessionIDs:  []string{"s1", "s2"},
	}
	require.NoError(t, store.PutCoEdit(ctx, edge))

	gotEdge, err := store.GetCoEdit(ctx, testScope, "a.go", "b.go")
	require.NoError(t, err)
	assert.Equal(t, 2, gotEdge.Count)
	assert.Equal(t, []string{"s1", "s2"}, gotEdge.SessionIDs)

	signal := &types.RewardSignal{
		Query: "retry logic", ResultPath: "a.go", Kind: "function",
		Reward: 1.0, RecordedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.AppendReward(ctx, signal))
	require.NoError(t, store.AppendReward(ctx, signal))

	signals, err := store.RewardsByPath(ctx, "a.go")
	require.NoError(t, err)
	assert.Len(t, signals, 2, "the reward ledger is append-only")
}

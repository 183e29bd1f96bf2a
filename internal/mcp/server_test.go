package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("QUARRY_EMBEDDING_PROVIDER", "local")

	server, err := NewServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.db.Close() })
	return server
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func callTool(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestServerInitialization(t *testing.T) {
	server := newTestServer(t)

	assert.NotNil(t, server.mcp, "MCP server should be initialized")
	assert.NotNil(t, server.db, "storage should be initialized")
	assert.NotNil(t, server.searcher, "searcher should be initialized")
	assert.NotNil(t, server.reindexer, "reindexer should be initialized")
	assert.NotNil(t, server.model, "learning model should be initialized")
}

func TestHandleSearchCodeValidation(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	_, err := server.handleSearchCode(ctx, callTool(map[string]interface{}{"scope": "p"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")

	_, err = server.handleSearchCode(ctx, callTool(map[string]interface{}{"query": "auth"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scope")

	_, err = server.handleSearchCode(ctx, callTool(map[string]interface{}{
		"query": "auth", "scope": "p", "limit": float64(500),
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestHandleSearchCodeEmptyIndex(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleSearchCode(context.Background(), callTool(map[string]interface{}{
		"query": "how does error handling work",
		"scope": "test-project",
	}))
	require.NoError(t, err)

	payload := textOf(t, result)
	assert.Equal(t, float64(0), payload["total_found"])
	assert.Equal(t, false, payload["has_more"])
	assert.Equal(t, "semantic-first", payload["strategy_used"])
}

func TestHandleRecordEditCoEdit(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, err := server.handleRecordEdit(ctx, callTool(map[string]interface{}{
		"scope":      "test-project",
		"file_paths": []interface{}{"internal/auth/token.go", "internal/auth/session.go"},
	}))
	require.NoError(t, err)

	payload := textOf(t, result)
	assert.Equal(t, true, payload["recorded"])
	assert.Equal(t, float64(2), payload["files"])
	assert.NotEmpty(t, payload["session_id"], "session id should be generated when omitted")

	related, err := server.handleGetCoEditedFiles(ctx, callTool(map[string]interface{}{
		"scope":     "test-project",
		"file_path": "internal/auth/token.go",
	}))
	require.NoError(t, err)

	relPayload := textOf(t, related)
	files, ok := relPayload["related"].([]interface{})
	require.True(t, ok)
	require.Len(t, files, 1)
	entry := files[0].(map[string]interface{})
	assert.Equal(t, "internal/auth/session.go", entry["file_path"])
	assert.Equal(t, float64(1), entry["count"])

	_, hasClusters := relPayload["clusters"]
	assert.False(t, hasClusters, "clusters only appear when requested")
}

func TestHandleGetCoEditedFilesClusters(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	// Three shared sessions push the pair over the clustering threshold
	for i := 0; i < 3; i++ {
		_, err := server.handleRecordEdit(ctx, callTool(map[string]interface{}{
			"scope":      "test-project",
			"file_paths": []interface{}{"internal/auth/token.go", "internal/auth/session.go"},
			"session_id": fmt.Sprintf("session-%d", i),
		}))
		require.NoError(t, err)
	}

	related, err := server.handleGetCoEditedFiles(ctx, callTool(map[string]interface{}{
		"scope":            "test-project",
		"file_path":        "internal/auth/token.go",
		"include_clusters": true,
	}))
	require.NoError(t, err)

	payload := textOf(t, related)
	clusters, ok := payload["clusters"].([]interface{})
	require.True(t, ok)
	require.Len(t, clusters, 1)
	cluster := clusters[0].(map[string]interface{})
	assert.Equal(t, float64(2), cluster["size"])
}

func TestHandleGetImportanceDefault(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleGetImportance(context.Background(), callTool(map[string]interface{}{
		"scope":     "test-project",
		"file_path": "never/seen.go",
	}))
	require.NoError(t, err)

	payload := textOf(t, result)
	assert.Equal(t, 0.5, payload["importance_score"])
	assert.Equal(t, float64(0), payload["access_count"])
}

func TestHandleRecordRewardAndGetStatus(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	result, err := server.handleRecordReward(ctx, callTool(map[string]interface{}{
		"query":       "retry with backoff",
		"result_path": "internal/client/retry.go",
		"reward":      1.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, true, textOf(t, result)["recorded"])

	status, err := server.handleGetStatus(ctx, callTool(map[string]interface{}{
		"scope": "test-project",
	}))
	require.NoError(t, err)

	payload := textOf(t, status)
	stats, ok := payload["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), stats["documents_count"])

	embInfo, ok := payload["embedder"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "local", embInfo["provider"])
}

func TestHandleReindexInvalidPath(t *testing.T) {
	server := newTestServer(t)

	_, err := server.handleReindex(context.Background(), callTool(map[string]interface{}{
		"path":  "relative/path",
		"scope": "test-project",
	}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid path"))
}

func TestHandleReindexRoundTrip(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeSource(t, dir, "main.go", "package main\n\nfunc main() {\n}\n")

	result, err := server.handleReindex(ctx, callTool(map[string]interface{}{
		"path":  dir,
		"scope": "test-project",
	}))
	require.NoError(t, err)

	payload := textOf(t, result)
	assert.Equal(t, float64(1), payload["files_added"])
	assert.Equal(t, true, payload["success"])

	// A second run sees nothing to do
	result, err = server.handleReindex(ctx, callTool(map[string]interface{}{
		"path":  dir,
		"scope": "test-project",
	}))
	require.NoError(t, err)

	payload = textOf(t, result)
	assert.Equal(t, float64(0), payload["files_added"])
	assert.Equal(t, float64(0), payload["files_updated"])
}

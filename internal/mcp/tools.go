package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quarrylabs/quarry-mcp/internal/reindexer"
	"github.com/quarrylabs/quarry-mcp/internal/searcher"
	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery        = -32001 // Query parameter is empty
	ErrorCodeReindexInProgress = -32002 // Another reindex run holds the scope lock
)

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	offset := getIntDefault(args, "offset", 0)
	if offset < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "offset must not be negative", map[string]interface{}{
			"param": "offset",
			"value": offset,
		})
	}

	minScore := getFloatDefault(args, "min_score", 0)
	includeRelationships := getBoolDefault(args, "include_relationships", false)
	relationshipDepth := getIntDefault(args, "relationship_depth", 2)

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:                query,
		Scope:                scope,
		Limit:                limit,
		Offset:               offset,
		MinScore:             minScore,
		IncludeRelationships: includeRelationships,
		RelationshipDepth:    relationshipDepth,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"name":             r.Name,
			"kind":             r.Kind,
			"file_path":        r.FilePath,
			"line_number":      r.LineNumber,
			"content":          r.Content,
			"structural_score": r.StructuralScore,
			"semantic_score":   r.SemanticScore,
			"combined_score":   r.CombinedScore,
		}
		if r.Relationships != nil {
			entry["relationships"] = map[string]interface{}{
				"used_by":    r.Relationships.UsedBy,
				"depends_on": r.Relationships.DependsOn,
			}
		}
		if len(r.Metadata) > 0 {
			entry["metadata"] = r.Metadata
		}
		results = append(results, entry)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":       results,
		"total_found":   resp.TotalFound,
		"has_more":      resp.HasMore,
		"strategy_used": string(resp.StrategyUsed),
		"duration_ms":   resp.Duration.Milliseconds(),
	})), nil
}

// handleReindex handles the reindex tool invocation
func (s *Server) handleReindex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	removeStale := getBoolDefault(args, "remove_stale", true)

	run, err := s.reindexer.Reindex(ctx, scope, path, removeStale)
	if err != nil {
		if errors.Is(err, reindexer.ErrReindexInProgress) {
			return nil, newMCPError(ErrorCodeReindexInProgress, "reindex already in progress", map[string]interface{}{
				"scope": scope,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "reindex failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"files_added":     run.FilesAdded,
		"files_updated":   run.FilesUpdated,
		"files_removed":   run.FilesRemoved,
		"total_processed": run.TotalProcessed,
		"success":         run.Success,
		"duration_ms":     run.Duration.Milliseconds(),
	}
	if len(run.Errors) > 0 {
		if len(run.Errors) > 5 {
			response["errors"] = run.Errors[:5]
			response["error_count"] = len(run.Errors)
		} else {
			response["errors"] = run.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordAccess handles the record_access tool invocation
func (s *Server) handleRecordAccess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recordFileEvent(ctx, request, s.model.RecordAccess, "access")
}

// handleRecordSelection handles the record_selection tool invocation
func (s *Server) handleRecordSelection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recordFileEvent(ctx, request, s.model.RecordSelection, "selection")
}

// recordFileEvent implements the shared shape of single-file event tools
func (s *Server) recordFileEvent(ctx context.Context, request mcp.CallToolRequest, record func(context.Context, string, string) error, event string) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireString(args, "file_path")
	if err != nil {
		return nil, err
	}
	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	if err := record(ctx, scope, filePath); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to record "+event, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"recorded":  true,
		"event":     event,
		"file_path": filePath,
	})), nil
}

// handleRecordEdit handles the record_edit tool invocation. Editing more
// than one file in a batch also records a co-edit session.
func (s *Server) handleRecordEdit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	rawPaths, ok := args["file_paths"].([]interface{})
	if !ok || len(rawPaths) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "file_paths parameter is required", map[string]interface{}{
			"param":  "file_paths",
			"reason": "missing or empty",
		})
	}

	filePaths := make([]string, 0, len(rawPaths))
	for _, raw := range rawPaths {
		path, ok := raw.(string)
		if !ok || path == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "file_paths entries must be non-empty strings", nil)
		}
		filePaths = append(filePaths, path)
	}

	sessionID := getStringDefault(args, "session_id", "")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	for _, path := range filePaths {
		if err := s.model.RecordEdit(ctx, scope, path); err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to record edit", map[string]interface{}{
				"file_path": path,
				"error":     err.Error(),
			})
		}
	}

	if len(filePaths) > 1 {
		if err := s.model.RecordCoEditSession(ctx, scope, filePaths, sessionID); err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to record co-edit session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"recorded":   true,
		"files":      len(filePaths),
		"session_id": sessionID,
	})), nil
}

// handleGetImportance handles the get_importance tool invocation
func (s *Server) handleGetImportance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireString(args, "file_path")
	if err != nil {
		return nil, err
	}
	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	metric, err := s.model.GetImportance(ctx, scope, filePath)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get importance", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(metricResponse(metric))), nil
}

// handleGetCoEditedFiles handles the get_co_edited_files tool invocation
func (s *Server) handleGetCoEditedFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	filePath, err := requireString(args, "file_path")
	if err != nil {
		return nil, err
	}
	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	related, err := s.model.GetCoEditedFiles(ctx, scope, filePath)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get co-edited files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	files := make([]map[string]interface{}, 0, len(related))
	for _, f := range related {
		files = append(files, map[string]interface{}{
			"file_path": f.FilePath,
			"count":     f.Count,
			"strength":  f.Strength,
		})
	}

	response := map[string]interface{}{
		"file_path": filePath,
		"related":   files,
	}

	if getBoolDefault(args, "include_clusters", false) {
		clusters, err := s.model.Clusters(ctx, scope)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to compute clusters", map[string]interface{}{
				"error": err.Error(),
			})
		}
		clusterList := make([]map[string]interface{}, 0, len(clusters))
		for _, c := range clusters {
			clusterList = append(clusterList, map[string]interface{}{
				"files": c.Files,
				"size":  c.Size,
			})
		}
		response["clusters"] = clusterList
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordReward handles the record_reward tool invocation
func (s *Server) handleRecordReward(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}
	resultPath, err := requireString(args, "result_path")
	if err != nil {
		return nil, err
	}

	reward, ok := args["reward"].(float64)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "reward parameter is required", map[string]interface{}{
			"param":  "reward",
			"reason": "missing or not a number",
		})
	}

	signal := &types.RewardSignal{
		Query:      query,
		ResultPath: resultPath,
		Kind:       getStringDefault(args, "kind", ""),
		Reward:     reward,
		SessionID:  getStringDefault(args, "session_id", ""),
	}

	if err := s.model.RecordReward(ctx, signal); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to record reward", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"recorded":    true,
		"result_path": resultPath,
	})), nil
}

// handleRecalculateImportance handles the recalculate_importance tool invocation
func (s *Server) handleRecalculateImportance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	updated, err := s.model.Recalculate(ctx, scope)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "recalculation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"recalculated": true,
		"files":        updated,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := requireString(args, "scope")
	if err != nil {
		return nil, err
	}

	nodes, err := s.graph.CountNodes(ctx, scope)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count nodes", map[string]interface{}{
			"error": err.Error(),
		})
	}
	documents, err := s.vector.CountDocuments(ctx, scope)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count documents", map[string]interface{}{
			"error": err.Error(),
		})
	}
	files, err := s.vector.ListFiles(ctx, scope)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"scope": scope,
		"statistics": map[string]interface{}{
			"files_count":     len(files),
			"nodes_count":     nodes,
			"documents_count": documents,
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
		},
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func metricResponse(metric *types.ImportanceMetric) map[string]interface{} {
	resp := map[string]interface{}{
		"file_path":           metric.FilePath,
		"access_count":        metric.AccessCount,
		"edit_count":          metric.EditCount,
		"discussion_count":    metric.DiscussionCount,
		"search_result_count": metric.SearchResultCount,
		"selected_count":      metric.SelectedCount,
		"importance_score":    metric.ImportanceScore,
		"recency_score":       metric.RecencyScore,
		"frequency_score":     metric.FrequencyScore,
	}
	if !metric.LastAccessedAt.IsZero() {
		resp["last_accessed_at"] = metric.LastAccessedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if !metric.LastEditedAt.IsZero() {
		resp["last_edited_at"] = metric.LastEditedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

// requireString extracts a mandatory string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// validatePath checks if a path exists and is a readable directory
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

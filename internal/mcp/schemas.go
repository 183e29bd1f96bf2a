package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed code with natural language, structural, or pattern queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, identifiers, or structural phrasing)",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope the search is restricted to",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of ranked results to skip for pagination",
					"default":     0,
					"minimum":     0,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity score threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"include_relationships": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, attach used-by and depends-on relationships to results",
					"default":     false,
				},
				"relationship_depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum dependency chain depth when relationships are included",
					"default":     2,
					"minimum":     1,
					"maximum":     5,
				},
			},
			Required: []string{"query", "scope"},
		},
	}
}

// reindexTool returns the tool definition for reindex
func reindexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex",
		Description: "Incrementally reindex a directory tree: add new files, refresh modified ones, drop deleted ones",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope the indexed entries belong to",
				},
				"remove_stale": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, remove index entries whose files no longer exist",
					"default":     true,
				},
			},
			Required: []string{"path", "scope"},
		},
	}
}

// recordAccessTool returns the tool definition for record_access
func recordAccessTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_access",
		Description: "Record that a file was accessed, raising its learned importance",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the accessed file",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
			},
			Required: []string{"file_path", "scope"},
		},
	}
}

// recordEditTool returns the tool definition for record_edit
func recordEditTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_edit",
		Description: "Record edited files; editing several files together also strengthens their co-edit relationship",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_paths": map[string]interface{}{
					"type":        "array",
					"description": "Paths of the edited files",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Edit session identifier; generated when omitted",
				},
			},
			Required: []string{"file_paths", "scope"},
		},
	}
}

// recordSelectionTool returns the tool definition for record_selection
func recordSelectionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_selection",
		Description: "Record that a search result was selected by the user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the selected file",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
			},
			Required: []string{"file_path", "scope"},
		},
	}
}

// getImportanceTool returns the tool definition for get_importance
func getImportanceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_importance",
		Description: "Get the learned importance metric for a file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
			},
			Required: []string{"file_path", "scope"},
		},
	}
}

// getCoEditedFilesTool returns the tool definition for get_co_edited_files
func getCoEditedFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_co_edited_files",
		Description: "List files frequently edited together with the given file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
				"include_clusters": map[string]interface{}{
					"type":        "boolean",
					"description": "Also return connected groups of frequently co-edited files",
					"default":     false,
				},
			},
			Required: []string{"file_path", "scope"},
		},
	}
}

// recordRewardTool returns the tool definition for record_reward
func recordRewardTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_reward",
		Description: "Append a reward signal tying a query to a useful result",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query the reward applies to",
				},
				"result_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the rewarded result",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Kind of the rewarded entity (function, class, file, ...)",
				},
				"reward": map[string]interface{}{
					"type":        "number",
					"description": "Reward value; positive reinforces, negative discourages",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional session identifier",
				},
			},
			Required: []string{"query", "result_path", "reward"},
		},
	}
}

// recalculateImportanceTool returns the tool definition for recalculate_importance
func recalculateImportanceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recalculate_importance",
		Description: "Recompute importance and recency scores for every tracked file in a scope",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
			},
			Required: []string{"scope"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index statistics for a scope",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Project scope",
				},
			},
			Required: []string{"scope"},
		},
	}
}

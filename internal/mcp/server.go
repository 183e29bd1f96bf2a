package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/quarrylabs/quarry-mcp/internal/classifier"
	"github.com/quarrylabs/quarry-mcp/internal/embedder"
	"github.com/quarrylabs/quarry-mcp/internal/fileindexer"
	"github.com/quarrylabs/quarry-mcp/internal/learning"
	"github.com/quarrylabs/quarry-mcp/internal/reindexer"
	"github.com/quarrylabs/quarry-mcp/internal/searcher"
	"github.com/quarrylabs/quarry-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "quarry-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.quarry/index"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	db        *storage.DB
	graph     *storage.GraphStore
	vector    *storage.VectorStore
	model     *learning.Model
	searcher  *searcher.Searcher
	reindexer *reindexer.Reindexer
	embedder  embedder.Embedder
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".quarry", "index")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := storage.Open(filepath.Join(dbPath, "quarry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	graph := storage.NewGraphStore(db)
	vector := storage.NewVectorStore(db)
	model := learning.NewModel(storage.NewLearningStore(db))

	indexer := fileindexer.New(vector, graph, emb)

	// Observed search results feed the learning model. Failures here must
	// not fail the search that triggered them.
	feedback := func(ctx context.Context, scope, filePath string) {
		if err := model.RecordSearchResult(ctx, scope, filePath); err != nil {
			log.Printf("feedback: recording search result for %s: %v", filePath, err)
		}
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		db:        db,
		graph:     graph,
		vector:    vector,
		model:     model,
		searcher:  searcher.New(classifier.New(), graph, vector, emb, model, feedback),
		reindexer: reindexer.New(indexer, vector, graph),
		embedder:  emb,
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.embedder.Close()
		_ = s.db.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(reindexTool(), s.handleReindex)
	s.mcp.AddTool(recordAccessTool(), s.handleRecordAccess)
	s.mcp.AddTool(recordEditTool(), s.handleRecordEdit)
	s.mcp.AddTool(recordSelectionTool(), s.handleRecordSelection)
	s.mcp.AddTool(getImportanceTool(), s.handleGetImportance)
	s.mcp.AddTool(getCoEditedFilesTool(), s.handleGetCoEditedFiles)
	s.mcp.AddTool(recordRewardTool(), s.handleRecordReward)
	s.mcp.AddTool(recalculateImportanceTool(), s.handleRecalculateImportance)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

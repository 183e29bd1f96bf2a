package main

import (
	"fmt"
	"path/filepath"

	"github.com/quarrylabs/quarry-mcp/internal/classifier"
	"github.com/quarrylabs/quarry-mcp/internal/embedder"
	"github.com/quarrylabs/quarry-mcp/internal/fileindexer"
	"github.com/quarrylabs/quarry-mcp/internal/learning"
	"github.com/quarrylabs/quarry-mcp/internal/reindexer"
	"github.com/quarrylabs/quarry-mcp/internal/searcher"
	"github.com/quarrylabs/quarry-mcp/internal/storage"
)

// backend bundles the wired components for the one-shot CLI commands
type backend struct {
	db        *storage.DB
	embedder  embedder.Embedder
	model     *learning.Model
	searcher  *searcher.Searcher
	reindexer *reindexer.Reindexer
}

func openBackend() (*backend, error) {
	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(filepath.Join(dbPath, "quarry.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
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

	return &backend{
		db:        db,
		embedder:  emb,
		model:     model,
		searcher:  searcher.New(classifier.New(), graph, vector, emb, model, nil),
		reindexer: reindexer.New(indexer, vector, graph),
	}, nil
}

func (b *backend) Close() {
	_ = b.embedder.Close()
	_ = b.db.Close()
}

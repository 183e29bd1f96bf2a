package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Document represents one embedded entry in the semantic index
type Document struct {
	ID            int64
	Scope         string
	FilePath      string
	Name          string
	Kind          string
	Content       string
	Line          int
	Confidence    float64 // Used by pattern entries
	LastIndexedAt time.Time
}

// Match is a document with its similarity score from a vector search
type Match struct {
	Document *Document
	Score    float64
}

// VectorStore is the semantic index: documents with embedding vectors,
// nearest-neighbor search, and per-file last-indexed bookkeeping.
// Similarity is computed in Go over stored blobs, which keeps the store
// driver-independent.
type VectorStore struct {
	db *DB
}

// NewVectorStore creates a vector store backed by the shared database
func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

// UpsertDocument inserts or refreshes a document and its embedding
func (v *VectorStore) UpsertDocument(ctx context.Context, doc *Document, vector []float32, provider, model string) error {
	doc.FilePath = NormalizePath(doc.FilePath)
	now := time.Now()

	query := `
		INSERT INTO documents (scope, file_path, name, kind, content, line, confidence, last_indexed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, file_path, name, line) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			confidence = excluded.confidence,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
	`
	if _, err := v.db.conn.ExecContext(ctx, query,
		doc.Scope, doc.FilePath, doc.Name, doc.Kind, doc.Content,
		doc.Line, doc.Confidence, now, now); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	// Resolve the row id: LastInsertId is unreliable on conflict updates
	row := v.db.conn.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE scope = ? AND file_path = ? AND name = ? AND line = ?",
		doc.Scope, doc.FilePath, doc.Name, doc.Line)
	if err := row.Scan(&doc.ID); err != nil {
		return fmt.Errorf("failed to resolve document id: %w", err)
	}
	doc.LastIndexedAt = now

	embQuery := `
		INSERT INTO embeddings (document_id, vector, dimension, provider, model)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model
	`
	if _, err := v.db.conn.ExecContext(ctx, embQuery,
		doc.ID, serializeVector(vector), len(vector), provider, model); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	return nil
}

// Search returns up to limit documents ordered by cosine similarity to
// queryVector, filtered by minScore. A non-empty kind restricts the search
// to that document kind; an empty kind searches code documents and leaves
// pattern entries out.
func (v *VectorStore) Search(ctx context.Context, scope string, queryVector []float32, limit int, minScore float64, kind string) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}

	query := `
		SELECT d.id, d.scope, d.file_path, d.name, d.kind, d.content, d.line, d.confidence, d.last_indexed_at, e.vector
		FROM documents d
		INNER JOIN embeddings e ON e.document_id = d.id
		WHERE d.scope = ?
	`
	args := []interface{}{scope}
	if kind != "" {
		query += " AND d.kind = ?"
		args = append(args, kind)
	} else {
		query += " AND d.kind != 'pattern'"
	}

	rows, err := v.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		doc, blob, err := scanDocumentWithVector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		vec, err := deserializeVector(blob)
		if err != nil {
			continue // Skip corrupt embeddings rather than failing the search
		}

		score := cosineSimilarity(queryVector, vec)
		if score < minScore {
			continue
		}

		matches = append(matches, Match{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ListFiles enumerates the distinct file paths known to the semantic index
// for a scope
func (v *VectorStore) ListFiles(ctx context.Context, scope string) ([]string, error) {
	rows, err := v.db.conn.QueryContext(ctx,
		"SELECT DISTINCT file_path FROM documents WHERE scope = ? AND kind != 'pattern' ORDER BY file_path", scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		files = append(files, path)
	}
	return files, rows.Err()
}

// LastIndexedAt returns the most recent indexing time for a file, or
// ErrNotFound if the file is unknown to the index
func (v *VectorStore) LastIndexedAt(ctx context.Context, scope, filePath string) (time.Time, error) {
	filePath = NormalizePath(filePath)

	var ts sql.NullTime
	err := v.db.conn.QueryRowContext(ctx,
		"SELECT MAX(last_indexed_at) FROM documents WHERE scope = ? AND file_path = ?",
		scope, filePath).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last indexed time: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, ErrNotFound
	}
	return ts.Time, nil
}

// DeleteByPath removes all documents (and, via cascade, embeddings) for a
// file
func (v *VectorStore) DeleteByPath(ctx context.Context, scope, filePath string) error {
	filePath = NormalizePath(filePath)

	if _, err := v.db.conn.ExecContext(ctx,
		"DELETE FROM documents WHERE scope = ? AND file_path = ?", scope, filePath); err != nil {
		return fmt.Errorf("failed to delete documents for %s: %w", filePath, err)
	}
	return nil
}

// CountDocuments returns the document count for a scope
func (v *VectorStore) CountDocuments(ctx context.Context, scope string) (int, error) {
	var count int
	err := v.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE scope = ?", scope).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func scanDocumentWithVector(rows *sql.Rows) (*Document, []byte, error) {
	var doc Document
	var lastIndexed sql.NullTime
	var blob []byte
	err := rows.Scan(&doc.ID, &doc.Scope, &doc.FilePath, &doc.Name, &doc.Kind,
		&doc.Content, &doc.Line, &doc.Confidence, &lastIndexed, &blob)
	if err != nil {
		return nil, nil, err
	}
	if lastIndexed.Valid {
		doc.LastIndexedAt = lastIndexed.Time
	}
	return &doc, blob, nil
}

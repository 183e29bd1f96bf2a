package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Node represents a code entity in the structural index
type Node struct {
	ID        int64
	Scope     string
	Name      string
	Kind      string
	FilePath  string
	Line      int
	Snippet   string
	CreatedAt time.Time
}

// EdgeDependsOn is the relationship kind for "from depends on to"
const EdgeDependsOn = "depends-on"

// GraphStore is the structural index: nodes, depends-on edges, and
// full-text search over entity names. It answers impact analysis (who
// depends on X) and dependency chains (what X depends on) with plain
// adjacency-table queries, so no graph engine is required.
type GraphStore struct {
	db *DB
}

// NewGraphStore creates a graph store backed by the shared database
func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{db: db}
}

// UpsertNode inserts or refreshes a node
func (g *GraphStore) UpsertNode(ctx context.Context, node *Node) error {
	node.FilePath = NormalizePath(node.FilePath)

	query := `
		INSERT INTO nodes (scope, name, kind, file_path, line, snippet)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, name, file_path, line) DO UPDATE SET
			kind = excluded.kind,
			snippet = excluded.snippet
	`
	result, err := g.db.conn.ExecContext(ctx, query,
		node.Scope, node.Name, node.Kind, node.FilePath, node.Line, node.Snippet)
	if err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil && id > 0 {
		node.ID = id
	}

	return nil
}

// UpsertEdge records a directed depends-on relationship between two entity
// names. Duplicate edges are ignored.
func (g *GraphStore) UpsertEdge(ctx context.Context, scope, fromName, toName, kind string) error {
	if kind == "" {
		kind = EdgeDependsOn
	}

	query := `
		INSERT INTO edges (scope, from_name, to_name, kind)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, from_name, to_name, kind) DO NOTHING
	`
	if _, err := g.db.conn.ExecContext(ctx, query, scope, fromName, toName, kind); err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}

	return nil
}

// ImpactOf returns the entities that depend on name, directly or not:
// everything that would be affected by changing it
func (g *GraphStore) ImpactOf(ctx context.Context, scope, name string, limit int) ([]*Node, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT DISTINCT n.id, n.scope, n.name, n.kind, n.file_path, n.line, n.snippet, n.created_at
		FROM edges e
		INNER JOIN nodes n ON n.name = e.from_name AND n.scope = e.scope
		WHERE e.scope = ? AND e.to_name = ?
		ORDER BY n.name
		LIMIT ?
	`
	rows, err := g.db.conn.QueryContext(ctx, query, scope, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query impact: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectNodes(rows)
}

// DependencyChainOf returns the entities name depends on, following edges
// transitively up to maxDepth hops
func (g *GraphStore) DependencyChainOf(ctx context.Context, scope, name string, maxDepth int) ([]*Node, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}

	query := `
		WITH RECURSIVE chain(to_name, depth) AS (
			SELECT e.to_name, 1
			FROM edges e
			WHERE e.scope = ?1 AND e.from_name = ?2
			UNION
			SELECT e.to_name, c.depth + 1
			FROM edges e
			INNER JOIN chain c ON e.from_name = c.to_name
			WHERE e.scope = ?1 AND c.depth < ?3
		)
		SELECT DISTINCT n.id, n.scope, n.name, n.kind, n.file_path, n.line, n.snippet, n.created_at
		FROM chain c
		INNER JOIN nodes n ON n.name = c.to_name AND n.scope = ?1
		ORDER BY n.name
	`
	rows, err := g.db.conn.QueryContext(ctx, query, scope, name, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependency chain: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectNodes(rows)
}

// FullTextSearch runs an FTS5 match over node names and snippets
func (g *GraphStore) FullTextSearch(ctx context.Context, scope, text string, limit int) ([]*Node, error) {
	sanitized := sanitizeFTSQuery(text)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT n.id, n.scope, n.name, n.kind, n.file_path, n.line, n.snippet, n.created_at
		FROM nodes_fts
		INNER JOIN nodes n ON n.id = nodes_fts.rowid
		WHERE nodes_fts MATCH ? AND n.scope = ?
		ORDER BY bm25(nodes_fts)
		LIMIT ?
	`
	rows, err := g.db.conn.QueryContext(ctx, query, sanitized, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectNodes(rows)
}

// GetNodeByName returns one node for an entity name, preferring
// definitions over references when multiple files declare it
func (g *GraphStore) GetNodeByName(ctx context.Context, scope, name string) (*Node, error) {
	query := `
		SELECT id, scope, name, kind, file_path, line, snippet, created_at
		FROM nodes
		WHERE scope = ? AND name = ?
		ORDER BY id
		LIMIT 1
	`
	row := g.db.conn.QueryRowContext(ctx, query, scope, name)

	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return node, nil
}

// DeleteByPath removes all nodes for a file, plus any edges touching a
// name that is defined nowhere else
func (g *GraphStore) DeleteByPath(ctx context.Context, scope, filePath string) error {
	filePath = NormalizePath(filePath)

	// Edges referencing names defined only in this file go with it, in
	// either direction
	cleanup := `
		WITH doomed(name) AS (
			SELECT name FROM nodes WHERE scope = ?1 AND file_path = ?2
			AND name NOT IN (
				SELECT name FROM nodes WHERE scope = ?1 AND file_path != ?2
			)
		)
		DELETE FROM edges
		WHERE scope = ?1 AND (
			from_name IN (SELECT name FROM doomed)
			OR to_name IN (SELECT name FROM doomed)
		)
	`
	if _, err := g.db.conn.ExecContext(ctx, cleanup, scope, filePath); err != nil {
		return fmt.Errorf("failed to delete edges for %s: %w", filePath, err)
	}

	query := `DELETE FROM nodes WHERE scope = ? AND file_path = ?`
	if _, err := g.db.conn.ExecContext(ctx, query, scope, filePath); err != nil {
		return fmt.Errorf("failed to delete nodes for %s: %w", filePath, err)
	}

	return nil
}

// CountNodes returns the node count for a scope
func (g *GraphStore) CountNodes(ctx context.Context, scope string) (int, error) {
	var count int
	err := g.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE scope = ?", scope).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(s scanner) (*Node, error) {
	var node Node
	var createdAt sql.NullTime
	err := s.Scan(&node.ID, &node.Scope, &node.Name, &node.Kind,
		&node.FilePath, &node.Line, &node.Snippet, &createdAt)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		node.CreatedAt = createdAt.Time
	}
	return &node, nil
}

func collectNodes(rows *sql.Rows) ([]*Node, error) {
	var nodes []*Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

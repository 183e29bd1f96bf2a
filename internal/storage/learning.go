package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// LearningStore persists the learning model's state: importance metrics,
// co-edit edges, and the reward ledger
type LearningStore struct {
	db *DB
}

// NewLearningStore creates a learning store backed by the shared database
func NewLearningStore(db *DB) *LearningStore {
	return &LearningStore{db: db}
}

// GetMetric returns the metric for (scope, filePath), or ErrNotFound
func (l *LearningStore) GetMetric(ctx context.Context, scope, filePath string) (*types.ImportanceMetric, error) {
	row := l.db.conn.QueryRowContext(ctx, `
		SELECT scope, file_path, access_count, edit_count, discussion_count,
		       search_result_count, selected_count, last_accessed_at, last_edited_at,
		       importance_score, recency_score, frequency_score
		FROM importance_metrics
		WHERE scope = ? AND file_path = ?
	`, scope, NormalizePath(filePath))

	metric, err := scanMetric(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}
	return metric, nil
}

// PutMetric inserts or replaces the metric for its (scope, filePath) key
func (l *LearningStore) PutMetric(ctx context.Context, metric *types.ImportanceMetric) error {
	query := `
		INSERT INTO importance_metrics (
			scope, file_path, access_count, edit_count, discussion_count,
			search_result_count, selected_count, last_accessed_at, last_edited_at,
			importance_score, recency_score, frequency_score, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, file_path) DO UPDATE SET
			access_count = excluded.access_count,
			edit_count = excluded.edit_count,
			discussion_count = excluded.discussion_count,
			search_result_count = excluded.search_result_count,
			selected_count = excluded.selected_count,
			last_accessed_at = excluded.last_accessed_at,
			last_edited_at = excluded.last_edited_at,
			importance_score = excluded.importance_score,
			recency_score = excluded.recency_score,
			frequency_score = excluded.frequency_score,
			updated_at = excluded.updated_at
	`
	_, err := l.db.conn.ExecContext(ctx, query,
		metric.Scope, NormalizePath(metric.FilePath),
		metric.AccessCount, metric.EditCount, metric.DiscussionCount,
		metric.SearchResultCount, metric.SelectedCount,
		nullableTime(metric.LastAccessedAt), nullableTime(metric.LastEditedAt),
		metric.ImportanceScore, metric.RecencyScore, metric.FrequencyScore,
		time.Now())
	if err != nil {
		return fmt.Errorf("failed to put metric: %w", err)
	}
	return nil
}

// ListMetrics returns all metrics for a scope
func (l *LearningStore) ListMetrics(ctx context.Context, scope string) ([]*types.ImportanceMetric, error) {
	rows, err := l.db.conn.QueryContext(ctx, `
		SELECT scope, file_path, access_count, edit_count, discussion_count,
		       search_result_count, selected_count, last_accessed_at, last_edited_at,
		       importance_score, recency_score, frequency_score
		FROM importance_metrics
		WHERE scope = ?
		ORDER BY file_path
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var metrics []*types.ImportanceMetric
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

// GetCoEdit returns the edge for an already-canonicalized pair, or
// ErrNotFound
func (l *LearningStore) GetCoEdit(ctx context.Context, scope, fileA, fileB string) (*types.CoEditEdge, error) {
	row := l.db.conn.QueryRowContext(ctx, `
		SELECT scope, file_a, file_b, count, first_seen_at, last_seen_at, session_ids
		FROM coedit_edges
		WHERE scope = ? AND file_a = ? AND file_b = ?
	`, scope, fileA, fileB)

	edge, err := scanCoEdit(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get co-edit edge: %w", err)
	}
	return edge, nil
}

// PutCoEdit inserts or replaces a co-edit edge
func (l *LearningStore) PutCoEdit(ctx context.Context, edge *types.CoEditEdge) error {
	sessions, err := json.Marshal(edge.SessionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal session ids: %w", err)
	}

	query := `
		INSERT INTO coedit_edges (scope, file_a, file_b, count, first_seen_at, last_seen_at, session_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, file_a, file_b) DO UPDATE SET
			count = excluded.count,
			last_seen_at = excluded.last_seen_at,
			session_ids = excluded.session_ids
	`
	_, err = l.db.conn.ExecContext(ctx, query,
		edge.Scope, edge.FileA, edge.FileB, edge.Count,
		nullableTime(edge.FirstSeenAt), nullableTime(edge.LastSeenAt), string(sessions))
	if err != nil {
		return fmt.Errorf("failed to put co-edit edge: %w", err)
	}
	return nil
}

// ListCoEdits returns all co-edit edges for a scope
func (l *LearningStore) ListCoEdits(ctx context.Context, scope string) ([]*types.CoEditEdge, error) {
	rows, err := l.db.conn.QueryContext(ctx, `
		SELECT scope, file_a, file_b, count, first_seen_at, last_seen_at, session_ids
		FROM coedit_edges
		WHERE scope = ?
		ORDER BY count DESC
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list co-edit edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*types.CoEditEdge
	for rows.Next() {
		edge, err := scanCoEdit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan co-edit edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// AppendReward adds one entry to the reward ledger. Entries are never
// updated or deleted.
func (l *LearningStore) AppendReward(ctx context.Context, signal *types.RewardSignal) error {
	recordedAt := signal.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := l.db.conn.ExecContext(ctx, `
		INSERT INTO reward_signals (query, result_path, kind, reward, session_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, signal.Query, NormalizePath(signal.ResultPath), signal.Kind,
		signal.Reward, signal.SessionID, recordedAt)
	if err != nil {
		return fmt.Errorf("failed to append reward: %w", err)
	}
	return nil
}

// RewardsByPath returns all ledger entries recorded for a result path
func (l *LearningStore) RewardsByPath(ctx context.Context, resultPath string) ([]*types.RewardSignal, error) {
	rows, err := l.db.conn.QueryContext(ctx, `
		SELECT query, result_path, kind, reward, session_id, recorded_at
		FROM reward_signals
		WHERE result_path = ?
		ORDER BY recorded_at
	`, NormalizePath(resultPath))
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var signals []*types.RewardSignal
	for rows.Next() {
		var s types.RewardSignal
		var recordedAt sql.NullTime
		if err := rows.Scan(&s.Query, &s.ResultPath, &s.Kind, &s.Reward, &s.SessionID, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		if recordedAt.Valid {
			s.RecordedAt = recordedAt.Time
		}
		signals = append(signals, &s)
	}
	return signals, rows.Err()
}

func scanMetric(s scanner) (*types.ImportanceMetric, error) {
	var m types.ImportanceMetric
	var accessedAt, editedAt sql.NullTime
	err := s.Scan(&m.Scope, &m.FilePath, &m.AccessCount, &m.EditCount,
		&m.DiscussionCount, &m.SearchResultCount, &m.SelectedCount,
		&accessedAt, &editedAt,
		&m.ImportanceScore, &m.RecencyScore, &m.FrequencyScore)
	if err != nil {
		return nil, err
	}
	if accessedAt.Valid {
		m.LastAccessedAt = accessedAt.Time
	}
	if editedAt.Valid {
		m.LastEditedAt = editedAt.Time
	}
	return &m, nil
}

func scanCoEdit(s scanner) (*types.CoEditEdge, error) {
	var e types.CoEditEdge
	var firstSeen, lastSeen sql.NullTime
	var sessions string
	err := s.Scan(&e.Scope, &e.FileA, &e.FileB, &e.Count, &firstSeen, &lastSeen, &sessions)
	if err != nil {
		return nil, err
	}
	if firstSeen.Valid {
		e.FirstSeenAt = firstSeen.Time
	}
	if lastSeen.Valid {
		e.LastSeenAt = lastSeen.Time
	}
	if err := json.Unmarshal([]byte(sessions), &e.SessionIDs); err != nil {
		e.SessionIDs = nil
	}
	return &e, nil
}

// nullableTime maps the zero time to NULL
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

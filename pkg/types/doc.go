// Package types provides shared type definitions for the Quarry retrieval
// backend.
//
// This package defines domain types used across multiple components of
// Quarry, including search results, learned importance metrics, co-edit
// edges, reward signals, and reindex run summaries.
//
// # Core Types
//
// SearchResult carries one ranked hit from the hybrid search pipeline:
//
//	result := &types.SearchResult{
//	    Name:            "UserRepository",
//	    Kind:            "class",
//	    FilePath:        "src/repositories/user.ts",
//	    StructuralScore: 0.9,
//	    SemanticScore:   0.62,
//	    CombinedScore:   0.816,
//	}
//
// ImportanceMetric accumulates access/edit/selection signals per
// (FilePath, Scope) pair and exposes decaying [0, 1] scores used for
// re-ranking.
//
// RewardSignal entries form an append-only ledger; they are never updated
// or deleted once recorded.
//
// # Validation
//
// Types with invariants implement Validate methods:
//
//	if err := metric.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Scores are normalized to the [0, 1] range, with higher values indicating
// stronger relevance.
package types

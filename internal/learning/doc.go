// Package learning implements the importance and reward model: per-file
// event counters with decaying scores, undirected co-edit edges with
// clustering, and an append-only reward ledger. The model both feeds
// search ranking (EnhanceResults) and is fed by it, via the
// search-result-observed events the orchestrator fires for every
// returned file.
package learning

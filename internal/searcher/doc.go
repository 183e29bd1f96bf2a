// Package searcher orchestrates hybrid retrieval. It classifies incoming
// queries, routes them to the structural and semantic indexes, merges and
// re-ranks the results with learned importance signals, and reports which
// strategy served each query.
package searcher

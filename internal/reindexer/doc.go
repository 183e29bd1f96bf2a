// Package reindexer keeps the semantic and structural indexes consistent
// with the filesystem. A run diffs the current file set against the
// indexed one and repairs the difference incrementally; a watch mode
// re-triggers runs after filesystem activity settles.
package reindexer

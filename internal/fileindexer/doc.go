// Package fileindexer indexes one source file at a time. It extracts
// declarations with line-oriented pattern matching, embeds each
// declaration body, and writes the results to the semantic and structural
// stores. The reindexer drives it; it never walks directories itself.
package fileindexer

// Package storage provides the SQLite-backed persistence layer for
// Quarry: the structural index (nodes, depends-on edges, FTS5 name
// search), the semantic index (documents with embedding vectors), and the
// learning model's state (importance metrics, co-edit edges, reward
// ledger).
//
// All three stores share one database file opened via Open. Two SQLite
// drivers are supported through build tags: mattn/go-sqlite3 with the
// cgo_sqlite tag, and the pure Go modernc.org/sqlite by default.
package storage

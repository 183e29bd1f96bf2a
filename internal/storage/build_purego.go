//go:build !cgo_sqlite
// +build !cgo_sqlite

package storage

// This file is compiled when building without the cgo_sqlite tag.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// The pure Go SQLite implementation needs no C compiler and
// cross-compiles cleanly, at the cost of slower query execution. It is the
// default for development and CI.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

//go:build sqlite_vec
// +build sqlite_vec

package storage

// This file is compiled with the sqlite_vec tag. Vector search is pushed
// into SQL through vec_distance_cosine, so the sqlite-vec extension must be
// loadable by the driver.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

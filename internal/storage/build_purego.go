//go:build purego || !sqlite_cgo

package storage

// Default build. Uses the pure Go modernc.org/sqlite driver, so no C
// toolchain is needed and cross-compilation works.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by this build
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// Package storage persists index artifacts under the index directory.
//
// Two kinds of files are written, always to a temp file renamed into place:
//
//   - Docstores: SQLite databases holding an index's ordered document list
//     (documents table, keyed by position) plus index_meta key/value rows.
//     The schema is versioned with semver migrations.
//   - Blobs: lz4-framed binary files starting with a 4-byte magic and a
//     version, used for the vector matrix and the BM25 structure.
//
// # Build Modes
//
// The default build uses the pure Go driver modernc.org/sqlite. Building
// with -tags sqlite_cgo switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
//
// Missing files are reported as ErrNotFound and undecodable blobs as
// ErrCorrupt, so callers can degrade to "index absent" on either.
package storage

// Package service is the process-wide composition of the retrieval engine.
//
// A Service owns the ingestion pipeline, both indices behind one retriever,
// the optional answer generator and the metrics. The REST API, the MCP
// server, the watcher and the CLI all drive the same operations through it.
// Builds are serialized by a try-lock: a second concurrent build fails with
// ErrBuildInProgress instead of waiting.
package service

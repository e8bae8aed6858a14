// Package indexer turns a directory tree into a flat list of chunks.
//
// # Basic Usage
//
//	p := indexer.New(rdr, chunker.New(800, 120), "data/index", logger, nil)
//	res, err := p.Ingest(ctx, "./repo", []string{"**/*"}, nil, false)
//	fmt.Printf("indexed %d files, %d chunks\n", res.Stats.FilesIndexed, res.Stats.Chunks)
//
// # Incremental Ingestion
//
// Every run rewrites file_hashes.yaml from scratch with the digests of the
// files it discovered. On a non-clean run a file whose digest matches the
// previous record is skipped and keeps its old entry, so re-running on an
// unchanged tree processes nothing. Files that fail, or that are empty, are
// left out of the record and are retried next time.
//
// Files are processed by a bounded worker pool; the merged chunk list keeps
// discovery order regardless of scheduling.
package indexer

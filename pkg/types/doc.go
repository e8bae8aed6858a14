// Package types provides shared type definitions for coderag.
//
// # Core Types
//
// Chunk is a line-bounded slice of a single file, the atomic unit indexed and
// retrieved. Its metadata carries at least the root-relative path, a language
// tag derived from the file extension, and the SHA-256 digest of the whole file
// at ingestion time:
//
//	chunk := types.Chunk{
//	    Content:   "def foo(): return bar()",
//	    StartLine: 1,
//	    EndLine:   10,
//	    Metadata:  map[string]string{types.MetaPath: "x.py", types.MetaLanguage: "python"},
//	}
//
// A chunk's identity is its location, path plus start line, as returned by
// Chunk.Key. Two chunks with identical content at different lines are distinct.
//
// Match is a fused search result with a snippet bounded to SnippetLength
// characters. RunStats is the per-ingestion summary persisted next to the index.
package types

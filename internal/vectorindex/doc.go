// Package vectorindex implements the dense half of hybrid retrieval: an
// exact, brute-force nearest-neighbor index over chunk embeddings.
//
// Distances are squared L2 and are reported as similarity 1/(1+d), so the
// best possible score is 1. The vectors and the document list are published
// together as one immutable snapshot; Build and Load swap it atomically and
// concurrent searches always see a consistent pair.
//
// On disk the index is two files under the index directory: vectors.lz4, an
// lz4-framed float32 matrix, and vector_docs.db, a SQLite docstore whose row
// positions match the matrix rows.
package vectorindex

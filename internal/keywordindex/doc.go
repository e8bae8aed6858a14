// Package keywordindex implements the lexical half of hybrid retrieval, a
// BM25Okapi scorer over whitespace tokens.
//
// Only documents with a positive score are returned. The scorer and its
// document list are persisted as bm25.lz4 (lz4-framed gob) and
// bm25_docs.db (SQLite docstore).
package keywordindex

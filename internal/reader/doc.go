// Package reader discovers corpus files and reads them for ingestion.
//
// Discovery walks the root once per iteration of the returned sequence.
// Include patterns are doublestar globs anchored at the root ("**/*" by
// default). Exclude patterns are the caller's list plus the configured
// defaults and match any contiguous run of path components, which lets a
// bare directory name such as "node_modules" prune a whole subtree. Finally
// only files whose extension is on the allow-list are yielded.
//
// Content digests are hex SHA-256 over the UTF-8 encoding of the decoded
// text, so replacing undecodable bytes never changes the digest of valid
// input.
package reader

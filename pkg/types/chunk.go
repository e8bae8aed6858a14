package types

import (
	"fmt"
	"strconv"
)

// Metadata keys every chunk carries once it leaves the ingestion pipeline
const (
	MetaPath     = "path"
	MetaLanguage = "language"
	MetaSHA256   = "sha256"
)

// Chunk is a contiguous, line-bounded slice of one file's text
type Chunk struct {
	Content   string            `json:"content"`
	StartLine int               `json:"start_line"` // 1-based, inclusive
	EndLine   int               `json:"end_line"`   // 1-based, inclusive
	Metadata  map[string]string `json:"metadata"`
}

// Path returns the root-relative file path recorded in the chunk metadata
func (c *Chunk) Path() string {
	return c.Metadata[MetaPath]
}

// Key returns the fusion identity of the chunk: its file location, not its content
func (c *Chunk) Key() string {
	return c.Path() + ":" + strconv.Itoa(c.StartLine)
}

// Validate checks the structural invariants of a chunk
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrInvalidChunk)
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return fmt.Errorf("%w: line numbers must be positive", ErrInvalidChunk)
	}

	if c.StartLine > c.EndLine {
		return fmt.Errorf("%w: start line %d after end line %d", ErrInvalidChunk, c.StartLine, c.EndLine)
	}

	if c.Path() == "" {
		return fmt.Errorf("%w: path metadata is required", ErrInvalidChunk)
	}

	return nil
}

// Clone returns a deep copy so each index can retain its own documents
func (c Chunk) Clone() Chunk {
	meta := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	c.Metadata = meta
	return c
}

// CloneChunks deep-copies a chunk list
func CloneChunks(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i := range chunks {
		out[i] = chunks[i].Clone()
	}
	return out
}

// ValidateChunks validates every chunk and rejects two chunks sharing a
// path and start line, which would collide in rank fusion
func ValidateChunks(chunks []Chunk) error {
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		key := chunks[i].Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateChunk, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ScoredDocument is one hit returned by a single sub-index
type ScoredDocument struct {
	Document Chunk
	Score    float64
}

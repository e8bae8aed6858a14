package types

// SnippetLength bounds Match.Snippet, counted in characters
const SnippetLength = 500

// Match is a ranked, fused search result
type Match struct {
	Score     float64           `json:"score"` // fusion score, not comparable across queries
	Path      string            `json:"path"`
	StartLine int               `json:"start_line"`
	EndLine   int               `json:"end_line"`
	Snippet   string            `json:"snippet"`
	Metadata  map[string]string `json:"metadata"`
}

// Citation points at a line range of a source file
type Citation struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// NewMatch materializes a document into a Match with a truncated snippet
func NewMatch(doc Chunk, score float64) Match {
	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	return Match{
		Score:     score,
		Path:      doc.Path(),
		StartLine: doc.StartLine,
		EndLine:   doc.EndLine,
		Snippet:   Truncate(doc.Content, SnippetLength),
		Metadata:  meta,
	}
}

// Truncate cuts s to at most n characters
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Citation returns the citation for a match
func (m Match) Citation() Citation {
	return Citation{Path: m.Path, StartLine: m.StartLine, EndLine: m.EndLine}
}

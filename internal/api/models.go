package api

import "github.com/dshills/coderag/pkg/types"

// Request defaults and bounds
const (
	DefaultTopK      = 8
	MaxTopK          = 50
	DefaultMaxTokens = 512
	MinMaxTokens     = 50
	MaxMaxTokens     = 4000
)

// DefaultPattern includes every file below the build root
const DefaultPattern = "**/*"

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type IndexBuildRequest struct {
	Root     string   `json:"root" description:"Root directory to index"`
	Clean    bool     `json:"clean" description:"Re-chunk every file, ignoring recorded hashes"`
	Patterns []string `json:"patterns" description:"Glob patterns to include"`
	Exclude  []string `json:"exclude" description:"Glob patterns to exclude"`
}

type IndexBuildResponse struct {
	OK           bool     `json:"ok"`
	FilesIndexed int      `json:"files_indexed"`
	Chunks       int      `json:"chunks"`
	DurationS    float64  `json:"duration_s"`
	FilesSkipped int      `json:"files_skipped"`
	FilesFailed  int      `json:"files_failed"`
	Documents    int      `json:"documents"`
	UpToDate     bool     `json:"up_to_date"`
	Errors       []string `json:"errors,omitempty"`
}

type IndexStatsResponse struct {
	Files     int    `json:"files"`
	Chunks    int    `json:"chunks"`
	UpdatedAt string `json:"updated_at"`
}

type QueryRequest struct {
	Q    string `json:"q" description:"Natural language query"`
	TopK int    `json:"top_k" description:"Number of results to return (1-50)"`
	Mode string `json:"mode,omitempty" description:"hybrid (default), vector or keyword"`
}

type QueryResponse struct {
	Matches []types.Match `json:"matches"`
}

type AnswerRequest struct {
	Q         string `json:"q" description:"Question to answer"`
	TopK      int    `json:"top_k" description:"Number of context matches (1-50)"`
	MaxTokens int    `json:"max_tokens" description:"Answer length limit (50-4000)"`
}

type AnswerResponse struct {
	Final     string           `json:"final"`
	Citations []types.Citation `json:"citations"`
	Matches   []types.Match    `json:"matches"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Detail string `json:"detail"`
}

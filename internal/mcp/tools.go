package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/coderag/internal/searcher"
	"github.com/dshills/coderag/internal/service"
	"github.com/dshills/coderag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeRootNotFound       = -32001 // Root path does not exist
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Nothing indexed yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeNoContext          = -32005 // Retrieval found nothing to answer from
)

// Argument defaults and bounds
const (
	DefaultLimit     = 8
	MaxLimit         = 50
	DefaultMaxTokens = 512
	MinMaxTokens     = 50
	MaxMaxTokens     = 4000
)

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	root, ok := args["root"].(string)
	if !ok || root == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "root parameter is required", map[string]any{
			"param":  "root",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(root); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodeRootNotFound
		}
		return nil, newMCPError(code, "invalid root", map[string]any{
			"param":  "root",
			"reason": err.Error(),
		})
	}

	req := service.BuildRequest{
		Root:     root,
		Patterns: getStringSliceDefault(args, "patterns", nil),
		Exclude:  getStringSliceDefault(args, "exclude", nil),
		Clean:    getBoolDefault(args, "clean", false),
	}

	var (
		result *service.BuildResult
		err    error
	)
	if getBoolDefault(args, "incremental", false) {
		result, err = s.svc.Incremental(ctx, req)
	} else {
		result, err = s.svc.Build(ctx, req)
	}
	if err != nil {
		return nil, buildError(err)
	}

	response := map[string]any{
		"indexed":       true,
		"files_indexed": result.Stats.FilesIndexed,
		"files_skipped": result.FilesSkipped,
		"files_failed":  result.FilesFailed,
		"chunks":        result.Stats.Chunks,
		"documents":     result.Documents,
		"up_to_date":    result.UpToDate,
		"duration_s":    result.Stats.DurationSeconds,
	}

	if len(result.Errors) > 0 {
		// Include first few errors
		errorCount := len(result.Errors)
		if errorCount > 5 {
			response["errors"] = result.Errors[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = result.Errors
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func buildError(err error) error {
	switch {
	case errors.Is(err, service.ErrRootNotFound):
		return newMCPError(ErrorCodeRootNotFound, "root path does not exist", map[string]any{"error": err.Error()})
	case errors.Is(err, service.ErrBuildInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, "an index build is already running", nil)
	case errors.Is(err, service.ErrNoFilesIndexed):
		return newMCPError(ErrorCodeInvalidParams, "no files were indexed", map[string]any{
			"reason": "no file under root matched the patterns and allowed file types",
		})
	default:
		return newMCPError(ErrorCodeInternalError, "indexing failed", map[string]any{"error": err.Error()})
	}
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	searchMode := getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid))
	if _, err := searcher.ParseMode(searchMode); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]any{
			"param":   "search_mode",
			"value":   searchMode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	if s.svc.Status(ctx).VectorDocuments == 0 {
		return nil, newMCPError(ErrorCodeNotIndexed, "nothing is indexed yet", map[string]any{
			"reason": "run index_codebase first",
		})
	}

	resp, err := s.svc.Query(ctx, query, limit, searchMode)
	if errors.Is(err, types.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]any{"error": err.Error()})
	}

	response := map[string]any{
		"query":           query,
		"search_mode":     string(resp.Mode),
		"results":         matchesJSON(resp.Matches),
		"total_results":   len(resp.Matches),
		"vector_results":  resp.VectorResults,
		"keyword_results": resp.KeywordResults,
		"cache_hit":       resp.CacheHit,
		"duration_ms":     resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAnswerQuestion handles the answer_question tool invocation
func (s *Server) handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}

	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	maxTokens := getIntDefault(args, "max_tokens", DefaultMaxTokens)
	if maxTokens < MinMaxTokens || maxTokens > MaxMaxTokens {
		return nil, newMCPError(ErrorCodeInvalidParams,
			fmt.Sprintf("max_tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens),
			map[string]any{"param": "max_tokens", "value": maxTokens})
	}

	result, err := s.svc.Answer(ctx, query, limit, maxTokens)
	if errors.Is(err, types.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	}
	if errors.Is(err, service.ErrNoContext) {
		return nil, newMCPError(ErrorCodeNoContext, "no relevant context found", map[string]any{
			"reason": "the index is empty or nothing matched; run index_codebase first",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "answer generation failed", map[string]any{"error": err.Error()})
	}

	response := map[string]any{
		"answer":    result.Final,
		"citations": result.Citations,
		"matches":   matchesJSON(result.Matches),
		"provider":  s.svc.LLMProvider(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.svc.Status(ctx)

	response := map[string]any{
		"indexed":  status.VectorDocuments > 0,
		"indexing": status.Indexing,
		"index": map[string]any{
			"dir":               status.IndexDir,
			"vector_documents":  status.VectorDocuments,
			"keyword_documents": status.KeywordDocuments,
			"dimension":         status.Dimension,
		},
		"providers": map[string]any{
			"embedding":       status.EmbeddingProvider,
			"embedding_model": status.EmbeddingModel,
			"llm":             status.LLMProvider,
		},
	}

	if status.Stats != nil {
		response["last_build"] = map[string]any{
			"files":      status.Stats.FilesIndexed,
			"chunks":     status.Stats.Chunks,
			"duration_s": status.Stats.DurationSeconds,
			"updated_at": status.Stats.UpdatedAt,
		}
	} else {
		response["message"] = "Nothing indexed yet. Use the index_codebase tool to build an index."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data any) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    any
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func requireQuery(args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]any{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return query, nil
}

func limitArg(args map[string]any) (int, error) {
	limit := getIntDefault(args, "limit", DefaultLimit)
	if limit < 1 || limit > MaxLimit {
		return 0, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", MaxLimit), map[string]any{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

// validatePath checks that a root is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

func matchesJSON(matches []types.Match) []map[string]any {
	out := make([]map[string]any, len(matches))
	for i, m := range matches {
		out[i] = map[string]any{
			"path":       m.Path,
			"start_line": m.StartLine,
			"end_line":   m.EndLine,
			"score":      m.Score,
			"language":   m.Metadata[types.MetaLanguage],
			"snippet":    m.Snippet,
		}
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]any, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]any, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]any, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSliceDefault extracts a string array; non-string items are skipped
func getStringSliceDefault(args map[string]any, key string, defaultValue []string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

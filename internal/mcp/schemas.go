package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index a directory of code and docs so it can be searched",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"root": map[string]any{
					"type":        "string",
					"description": "Absolute path of the directory to index",
				},
				"clean": map[string]any{
					"type":        "boolean",
					"description": "If true, re-chunk every file ignoring recorded hashes",
					"default":     false,
				},
				"incremental": map[string]any{
					"type":        "boolean",
					"description": "If true, re-index changed files only and keep the rest of the index",
					"default":     false,
				},
				"patterns": map[string]any{
					"type":        "array",
					"description": "Glob patterns to include, relative to root (default **/*)",
					"items":       map[string]any{"type": "string"},
				},
				"exclude": map[string]any{
					"type":        "array",
					"description": "Glob patterns or path components to exclude",
					"items":       map[string]any{"type": "string"},
				},
			},
			Required: []string{"root"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed corpus with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     DefaultLimit,
					"minimum":     1,
					"maximum":     MaxLimit,
				},
				"search_mode": map[string]any{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
			},
			Required: []string{"query"},
		},
	}
}

// answerQuestionTool returns the tool definition for answer_question
func answerQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "answer_question",
		Description: "Answer a question from retrieved context, with file:line citations",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Question to answer",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Number of context matches to retrieve (1-50)",
					"default":     DefaultLimit,
					"minimum":     1,
					"maximum":     MaxLimit,
				},
				"max_tokens": map[string]any{
					"type":        "integer",
					"description": "Answer length limit (50-4000)",
					"default":     DefaultMaxTokens,
					"minimum":     MinMaxTokens,
					"maximum":     MaxMaxTokens,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index sizes, providers and the last build",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/logging"
	"github.com/dshills/coderag/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	settings := config.Default()
	settings.DataDir = t.TempDir()
	settings.IndexDir = filepath.Join(settings.DataDir, "index")
	require.NoError(t, settings.EnsureDirs())

	svc, err := service.New(settings, logging.Nop(),
		service.WithEmbedder(embedder.NewLocalProvider(embedder.NewCache(1000))),
		service.WithGenerator(nil),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return NewServer(svc, "test", logging.Nop())
}

func setupCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range map[string]string{
		"x.py": "def foo(): return 1\n",
		"y.py": "class Bar: pass\n",
		"z.md": "# Bar documentation\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func TestIndexCodebase_Validation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		code int
	}{
		{name: "missing root", args: map[string]any{}, code: ErrorCodeInvalidParams},
		{name: "relative root", args: map[string]any{"root": "relative/dir"}, code: ErrorCodeInvalidParams},
		{name: "nonexistent root", args: map[string]any{"root": "/nonexistent/corpus"}, code: ErrorCodeRootNotFound},
		{name: "empty directory", args: map[string]any{"root": t.TempDir()}, code: ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIndexCodebase(ctx, call(tt.args))
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestIndexSearchAnswer(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	root := setupCorpus(t)

	res, err := s.handleIndexCodebase(ctx, call(map[string]any{"root": root}))
	require.NoError(t, err)
	indexed := resultJSON(t, res)
	assert.Equal(t, true, indexed["indexed"])
	assert.Equal(t, float64(3), indexed["files_indexed"])
	assert.Equal(t, float64(3), indexed["chunks"])

	res, err = s.handleSearchCode(ctx, call(map[string]any{"query": "bar", "search_mode": "keyword"}))
	require.NoError(t, err)
	search := resultJSON(t, res)
	results, ok := search["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	first, ok := results[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "z.md", first["path"])
	assert.Equal(t, "markdown", first["language"])

	res, err = s.handleAnswerQuestion(ctx, call(map[string]any{"query": "What is Bar?", "limit": float64(2)}))
	require.NoError(t, err)
	answer := resultJSON(t, res)
	assert.NotEmpty(t, answer["answer"])
	assert.Equal(t, "none", answer["provider"])
	assert.Len(t, answer["matches"], 2)

	res, err = s.handleIndexCodebase(ctx, call(map[string]any{"root": root, "incremental": true}))
	require.NoError(t, err)
	again := resultJSON(t, res)
	assert.Equal(t, true, again["up_to_date"])
	assert.Equal(t, float64(3), again["documents"])

	res, err = s.handleGetStatus(ctx, call(nil))
	require.NoError(t, err)
	status := resultJSON(t, res)
	assert.Equal(t, true, status["indexed"])
	assert.Contains(t, status, "last_build")
}

func TestSearchCode_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("not indexed", func(t *testing.T) {
		_, err := s.handleSearchCode(ctx, call(map[string]any{"query": "foo"}))
		requireMCPError(t, err, ErrorCodeNotIndexed)
	})

	_, err := s.handleIndexCodebase(ctx, call(map[string]any{"root": setupCorpus(t)}))
	require.NoError(t, err)

	tests := []struct {
		name string
		args map[string]any
		code int
	}{
		{name: "missing query", args: map[string]any{}, code: ErrorCodeEmptyQuery},
		{name: "blank query", args: map[string]any{"query": "   "}, code: ErrorCodeEmptyQuery},
		{name: "limit too large", args: map[string]any{"query": "foo", "limit": float64(MaxLimit + 1)}, code: ErrorCodeInvalidParams},
		{name: "limit zero", args: map[string]any{"query": "foo", "limit": 0}, code: ErrorCodeInvalidParams},
		{name: "bad mode", args: map[string]any{"query": "foo", "search_mode": "fuzzy"}, code: ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchCode(ctx, call(tt.args))
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestAnswerQuestion_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleAnswerQuestion(ctx, call(map[string]any{"query": "foo"}))
	requireMCPError(t, err, ErrorCodeNoContext)

	_, err = s.handleAnswerQuestion(ctx, call(map[string]any{"query": "foo", "max_tokens": float64(10)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestGetStatus_Empty(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleGetStatus(context.Background(), call(nil))
	require.NoError(t, err)
	status := resultJSON(t, res)
	assert.Equal(t, false, status["indexed"])
	assert.Contains(t, status, "message")
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]any{
		"b":     true,
		"f":     float64(7),
		"i":     3,
		"s":     "x",
		"list":  []any{"a", 1, "b"},
		"typed": []string{"c"},
	}

	assert.True(t, getBoolDefault(args, "b", false))
	assert.False(t, getBoolDefault(args, "missing", false))
	assert.Equal(t, 7, getIntDefault(args, "f", 1))
	assert.Equal(t, 3, getIntDefault(args, "i", 1))
	assert.Equal(t, 1, getIntDefault(args, "s", 1))
	assert.Equal(t, "x", getStringDefault(args, "s", "y"))
	assert.Equal(t, []string{"a", "b"}, getStringSliceDefault(args, "list", nil))
	assert.Equal(t, []string{"c"}, getStringSliceDefault(args, "typed", nil))
	assert.Nil(t, getStringSliceDefault(args, "missing", nil))
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.ErrorIs(t, validatePath(""), ErrPathRequired)
	assert.ErrorIs(t, validatePath("rel"), ErrPathNotAbsolute)
	assert.ErrorIs(t, validatePath(filepath.Join(dir, "missing")), ErrPathNotFound)
	assert.ErrorIs(t, validatePath(file), ErrNotDirectory)
	assert.NoError(t, validatePath(dir))
}

func TestToolSchemas(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		name     string
		required []string
	}{
		{indexCodebaseTool(), "index_codebase", []string{"root"}},
		{searchCodeTool(), "search_code", []string{"query"}},
		{answerQuestionTool(), "answer_question", []string{"query"}},
		{getStatusTool(), "get_status", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.tool.Name)
			assert.Equal(t, "object", tt.tool.InputSchema.Type)
			assert.Equal(t, tt.required, tt.tool.InputSchema.Required)
			for _, key := range tt.required {
				assert.Contains(t, tt.tool.InputSchema.Properties, key)
			}
		})
	}
}

package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/llm"
	"github.com/dshills/coderag/internal/logging"
	"github.com/dshills/coderag/internal/searcher"
	"github.com/dshills/coderag/internal/vectorindex"
	"github.com/dshills/coderag/pkg/types"
)

type mockGenerator struct {
	answer    string
	err       error
	prompt    string
	maxTokens int
}

func (g *mockGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	g.prompt = prompt
	g.maxTokens = maxTokens
	return g.answer, g.err
}

func (g *mockGenerator) Name() string { return "mock" }

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setupCorpus writes the three-file corpus used across these tests
func setupCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "x.py", "def foo(): return 1\n")
	writeFile(t, root, "y.py", "class Bar: pass\n")
	writeFile(t, root, "z.md", "# Bar documentation\n")
	return root
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.Default()
	s.DataDir = t.TempDir()
	s.IndexDir = filepath.Join(s.DataDir, "index")
	require.NoError(t, s.EnsureDirs())
	return s
}

func newTestService(t *testing.T, settings *config.Settings, gen llm.Generator) *Service {
	t.Helper()
	svc, err := New(settings, logging.Nop(),
		WithEmbedder(embedder.NewLocalProvider(embedder.NewCache(1000))),
		WithGenerator(gen),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func scrapeMetrics(t *testing.T, svc *Service) string {
	t.Helper()
	rec := httptest.NewRecorder()
	svc.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func paths(matches []types.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Path
	}
	return out
}

func TestNew_LLMProviderFromSettings(t *testing.T) {
	s := testSettings(t)
	svc, err := New(s, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, config.LLMNone, svc.LLMProvider())

	s.LLMProvider = config.LLMOllama
	svc, err = New(s, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "ollama", svc.LLMProvider())
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing root", func(t *testing.T) {
		svc := newTestService(t, testSettings(t), nil)
		_, err := svc.Build(ctx, BuildRequest{Root: "/nonexistent/corpus"})
		assert.ErrorIs(t, err, ErrRootNotFound)
	})

	t.Run("root is a file", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "a.py", "x = 1\n")
		svc := newTestService(t, testSettings(t), nil)
		_, err := svc.Build(ctx, BuildRequest{Root: filepath.Join(root, "a.py")})
		assert.ErrorIs(t, err, ErrRootNotFound)
	})

	t.Run("no indexable files", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "image.png", "not text")
		svc := newTestService(t, testSettings(t), nil)

		_, err := svc.Build(ctx, BuildRequest{Root: root})
		assert.ErrorIs(t, err, ErrNoFilesIndexed)
		assert.Contains(t, scrapeMetrics(t, svc), `coderag_index_builds_total{outcome="empty"} 1`)
	})

	t.Run("build in progress", func(t *testing.T) {
		svc := newTestService(t, testSettings(t), nil)
		require.True(t, svc.lock.TryAcquire())
		defer svc.lock.Release()

		_, err := svc.Build(ctx, BuildRequest{Root: setupCorpus(t)})
		assert.ErrorIs(t, err, ErrBuildInProgress)
		assert.True(t, svc.Status(ctx).Indexing)
	})
}

func TestBuild_QueryAndStats(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testSettings(t), nil)

	_, err := svc.Stats()
	assert.ErrorIs(t, err, ErrIndexNotFound)

	res, err := svc.Build(ctx, BuildRequest{Root: setupCorpus(t)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.FilesIndexed)
	assert.Equal(t, 3, res.Stats.Chunks)
	assert.Equal(t, 3, res.Documents)
	assert.False(t, res.UpToDate)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 3, stats.Chunks)

	resp, err := svc.Query(ctx, "bar", 8, "keyword")
	require.NoError(t, err)
	assert.Equal(t, []string{"z.md"}, paths(resp.Matches))
	assert.Equal(t, searcher.SearchModeKeyword, resp.Mode)

	resp, err = svc.Query(ctx, "Bar documentation", 0, "")
	require.NoError(t, err)
	assert.Equal(t, searcher.SearchModeHybrid, resp.Mode)
	require.NotEmpty(t, resp.Matches)
	assert.LessOrEqual(t, len(resp.Matches), 3)
	assert.Equal(t, "z.md", resp.Matches[0].Path)

	status := svc.Status(ctx)
	assert.Equal(t, 3, status.VectorDocuments)
	assert.Equal(t, 3, status.KeywordDocuments)
	assert.Equal(t, 384, status.Dimension)
	assert.Equal(t, "local", status.EmbeddingProvider)
	assert.Equal(t, config.LLMNone, status.LLMProvider)
	require.NotNil(t, status.Stats)
	assert.Equal(t, 3, status.Stats.Chunks)

	body := scrapeMetrics(t, svc)
	assert.Contains(t, body, `coderag_index_builds_total{outcome="success"} 1`)
	assert.Contains(t, body, `coderag_queries_total{mode="keyword"} 1`)
	assert.Contains(t, body, `coderag_indexed_documents{index="vector"} 3`)
}

func TestQuery_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testSettings(t), nil)

	_, err := svc.Query(ctx, "   ", 5, "")
	assert.ErrorIs(t, err, types.ErrEmptyQuery)

	_, err = svc.Query(ctx, "foo", 5, "semantic")
	assert.ErrorIs(t, err, searcher.ErrInvalidMode)

	_, err = svc.Query(ctx, "foo", -1, "")
	assert.ErrorIs(t, err, searcher.ErrInvalidTopK)

	resp, err := svc.Query(ctx, "foo", 5, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Matches)
}

func TestRetriever_LoadsPersistedIndex(t *testing.T) {
	ctx := context.Background()
	settings := testSettings(t)

	first := newTestService(t, settings, nil)
	_, err := first.Build(ctx, BuildRequest{Root: setupCorpus(t)})
	require.NoError(t, err)

	second := newTestService(t, settings, nil)
	status := second.Status(ctx)
	assert.Equal(t, 3, status.VectorDocuments)
	assert.Equal(t, 3, status.KeywordDocuments)

	resp, err := second.Query(ctx, "bar", 8, "keyword")
	require.NoError(t, err)
	assert.Equal(t, []string{"z.md"}, paths(resp.Matches))
}

func TestIncremental(t *testing.T) {
	ctx := context.Background()
	root := setupCorpus(t)
	svc := newTestService(t, testSettings(t), nil)

	first, err := svc.Incremental(ctx, BuildRequest{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Documents)

	t.Run("nothing changed", func(t *testing.T) {
		res, err := svc.Incremental(ctx, BuildRequest{Root: root})
		require.NoError(t, err)
		assert.True(t, res.UpToDate)
		assert.Equal(t, 0, res.Stats.FilesIndexed)
		assert.Equal(t, 3, res.FilesSkipped)
		assert.Equal(t, 3, res.Documents)
	})

	t.Run("changed file replaces its chunks", func(t *testing.T) {
		writeFile(t, root, "x.py", "def qux(): return 2\n")

		res, err := svc.Incremental(ctx, BuildRequest{Root: root})
		require.NoError(t, err)
		assert.False(t, res.UpToDate)
		assert.Equal(t, 1, res.Stats.FilesIndexed)
		assert.Equal(t, 3, res.Documents)

		resp, err := svc.Query(ctx, "qux():", 8, "keyword")
		require.NoError(t, err)
		assert.Equal(t, []string{"x.py"}, paths(resp.Matches))

		resp, err = svc.Query(ctx, "foo():", 8, "keyword")
		require.NoError(t, err)
		assert.Empty(t, resp.Matches)

		stats, err := svc.Stats()
		require.NoError(t, err)
		assert.Equal(t, 3, stats.FilesIndexed)
		assert.Equal(t, 3, stats.Chunks)
	})

	t.Run("removed file drops its chunks", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(root, "z.md")))

		res, err := svc.Incremental(ctx, BuildRequest{Root: root})
		require.NoError(t, err)
		assert.False(t, res.UpToDate)
		assert.Equal(t, 2, res.Documents)

		v, k := svc.Retriever(ctx).Counts()
		assert.Equal(t, 2, v)
		assert.Equal(t, 2, k)
	})
}

func TestIncremental_RebuildsWhenIndexMissing(t *testing.T) {
	ctx := context.Background()
	root := setupCorpus(t)
	settings := testSettings(t)

	first := newTestService(t, settings, nil)
	_, err := first.Build(ctx, BuildRequest{Root: root})
	require.NoError(t, err)

	// hashes survive but the vector index does not
	require.NoError(t, os.Remove(filepath.Join(settings.IndexDir, vectorindex.VectorsFile)))

	second := newTestService(t, settings, nil)
	res, err := second.Incremental(ctx, BuildRequest{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.FilesIndexed)
	assert.Equal(t, 3, res.Documents)
}

func TestIncremental_IndexDirBelowRoot(t *testing.T) {
	ctx := context.Background()
	root := setupCorpus(t)
	settings := config.Default()
	settings.DataDir = filepath.Join(root, "data")
	settings.IndexDir = filepath.Join(root, "data", "index")
	require.NoError(t, settings.EnsureDirs())
	svc := newTestService(t, settings, nil)

	assert.Equal(t, []string{"/data/index", "/data"}, svc.ReservedExcludes(root))

	res, err := svc.Build(ctx, BuildRequest{Root: root, Clean: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Documents)
	require.FileExists(t, filepath.Join(settings.IndexDir, "stats.yaml"))

	for range 2 {
		res, err = svc.Incremental(ctx, BuildRequest{Root: root})
		require.NoError(t, err)
		assert.True(t, res.UpToDate)
		assert.Equal(t, 3, res.Documents)
	}

	indexed := make([]string, 0, 3)
	for _, c := range svc.Retriever(ctx).Documents() {
		indexed = append(indexed, c.Path())
	}
	assert.ElementsMatch(t, []string{"x.py", "y.py", "z.md"}, indexed)
}

func TestBuild_NonCleanKeepsUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	root := setupCorpus(t)
	svc := newTestService(t, testSettings(t), nil)

	_, err := svc.Build(ctx, BuildRequest{Root: root, Clean: true})
	require.NoError(t, err)

	writeFile(t, root, "x.py", "def qux(): return 2\n")
	res, err := svc.Build(ctx, BuildRequest{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.FilesIndexed)
	assert.Equal(t, 2, res.FilesSkipped)
	assert.Equal(t, 3, res.Documents)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 3, stats.Chunks)

	resp, err := svc.Query(ctx, "bar", 8, "keyword")
	require.NoError(t, err)
	assert.Equal(t, []string{"z.md"}, paths(resp.Matches))

	t.Run("repeat is up to date", func(t *testing.T) {
		res, err := svc.Build(ctx, BuildRequest{Root: root})
		require.NoError(t, err)
		assert.True(t, res.UpToDate)
		assert.Equal(t, 3, res.Documents)
	})

	t.Run("clean re-chunks everything", func(t *testing.T) {
		res, err := svc.Build(ctx, BuildRequest{Root: root, Clean: true})
		require.NoError(t, err)
		assert.False(t, res.UpToDate)
		assert.Equal(t, 3, res.Stats.FilesIndexed)
		assert.Equal(t, 3, res.Documents)
	})
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("no context", func(t *testing.T) {
		svc := newTestService(t, testSettings(t), nil)
		_, err := svc.Answer(ctx, "What is Bar?", 5, 0)
		assert.ErrorIs(t, err, ErrNoContext)
	})

	t.Run("retrieval only", func(t *testing.T) {
		svc := newTestService(t, testSettings(t), nil)
		_, err := svc.Build(ctx, BuildRequest{Root: setupCorpus(t)})
		require.NoError(t, err)

		res, err := svc.Answer(ctx, "What is Bar?", 2, 0)
		require.NoError(t, err)
		assert.Equal(t, llm.RetrievalOnlyAnswer, res.Final)
		require.Len(t, res.Matches, 2)
		assert.Equal(t, llm.MatchCitations(res.Matches), res.Citations)
	})

	t.Run("generated", func(t *testing.T) {
		gen := &mockGenerator{answer: "Bar is a class.\nSources:\n- y.py:1-1"}
		svc := newTestService(t, testSettings(t), gen)
		_, err := svc.Build(ctx, BuildRequest{Root: setupCorpus(t)})
		require.NoError(t, err)

		res, err := svc.Answer(ctx, "What is Bar?", 3, 0)
		require.NoError(t, err)
		assert.Equal(t, gen.answer, res.Final)
		assert.Equal(t, []types.Citation{{Path: "y.py", StartLine: 1, EndLine: 1}}, res.Citations)
		assert.Equal(t, DefaultMaxTokens, gen.maxTokens)
		assert.Contains(t, gen.prompt, "User question:\nWhat is Bar?")
		assert.Equal(t, "mock", svc.Status(ctx).LLMProvider)
	})

	t.Run("generator failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		svc := newTestService(t, testSettings(t), &mockGenerator{err: boom})
		_, err := svc.Build(ctx, BuildRequest{Root: setupCorpus(t)})
		require.NoError(t, err)

		_, err = svc.Answer(ctx, "What is Bar?", 3, 100)
		assert.ErrorIs(t, err, boom)
	})
}

func TestCarryForward(t *testing.T) {
	chunk := func(path string, start int) types.Chunk {
		return types.Chunk{Content: "c", StartLine: start, EndLine: start, Metadata: map[string]string{types.MetaPath: path}}
	}
	current := []types.Chunk{chunk("a.py", 1), chunk("b.py", 1), chunk("a.py", 9)}

	carried, ok := carryForward(current, []string{"a.py"})
	require.True(t, ok)
	assert.Equal(t, []types.Chunk{current[0], current[2]}, carried)

	_, ok = carryForward(current, []string{"a.py", "gone.py"})
	assert.False(t, ok)

	carried, ok = carryForward(current, nil)
	assert.True(t, ok)
	assert.Empty(t, carried)
}

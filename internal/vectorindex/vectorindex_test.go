package vectorindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/logging"
	"github.com/dshills/coderag/pkg/types"
)

// mockEmbedder maps texts to fixed vectors
type mockEmbedder struct {
	vectors    map[string][]float32
	batchErr   error
	batchCalls atomic.Int32
}

func (m *mockEmbedder) lookup(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	return []float32{0, 0}
}

func (m *mockEmbedder) GenerateEmbedding(_ context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	v := m.lookup(req.Text)
	return &embedder.Embedding{Vector: v, Dimension: len(v)}, nil
}

func (m *mockEmbedder) GenerateBatch(_ context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.batchCalls.Add(1)
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	resp := &embedder.BatchEmbeddingResponse{}
	for _, t := range req.Texts {
		v := m.lookup(t)
		resp.Embeddings = append(resp.Embeddings, &embedder.Embedding{Vector: v, Dimension: len(v)})
	}
	return resp, nil
}

func (m *mockEmbedder) Dimension() int   { return 2 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-2d" }
func (m *mockEmbedder) Close() error     { return nil }

func chunk(path string, start int, content string) types.Chunk {
	return types.Chunk{
		Content:   content,
		StartLine: start,
		EndLine:   start + 1,
		Metadata:  map[string]string{types.MetaPath: path, types.MetaLanguage: "text"},
	}
}

func newMockIndex(t *testing.T, opts Options) (*Index, *mockEmbedder) {
	t.Helper()
	emb := &mockEmbedder{vectors: map[string][]float32{
		"origin": {0, 0},
		"near":   {1, 0},
		"far":    {3, 4},
		"query":  {0, 0},
	}}
	return New(t.TempDir(), emb, opts, logging.Nop()), emb
}

func TestSearch_BeforeBuildIsEmpty(t *testing.T) {
	idx, emb := newMockIndex(t, Options{})

	results, err := idx.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(0), emb.batchCalls.Load())
	assert.Equal(t, 0, idx.Len())
}

func TestBuildAndSearch_NearestFirst(t *testing.T) {
	idx, _ := newMockIndex(t, Options{})
	chunks := []types.Chunk{
		chunk("far.txt", 1, "far"),
		chunk("near.txt", 1, "near"),
		chunk("origin.txt", 1, "origin"),
	}
	require.NoError(t, idx.Build(context.Background(), chunks))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Dimension())

	results, err := idx.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "origin.txt", results[0].Document.Path())
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "near.txt", results[1].Document.Path())
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
	// squared distance 25
	assert.Equal(t, "far.txt", results[2].Document.Path())
	assert.InDelta(t, 1.0/26, results[2].Score, 1e-9)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_TopKBounds(t *testing.T) {
	idx, _ := newMockIndex(t, Options{})
	require.NoError(t, idx.Build(context.Background(), []types.Chunk{
		chunk("a", 1, "near"),
		chunk("b", 1, "far"),
	}))

	results, err := idx.Search(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = idx.Search(context.Background(), "query", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = idx.Search(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuild_BatchesAcrossWorkers(t *testing.T) {
	idx, emb := newMockIndex(t, Options{BatchSize: 2, Workers: 3})
	var chunks []types.Chunk
	for i := 1; i <= 7; i++ {
		chunks = append(chunks, chunk("f.txt", i*10, "near"))
	}
	require.NoError(t, idx.Build(context.Background(), chunks))
	assert.Equal(t, int32(4), emb.batchCalls.Load())
	assert.Equal(t, 7, idx.Len())
}

func TestBuild_EmbeddingFailureKeepsPreviousSnapshot(t *testing.T) {
	idx, emb := newMockIndex(t, Options{})
	require.NoError(t, idx.Build(context.Background(), []types.Chunk{chunk("a", 1, "near")}))

	emb.batchErr = errors.New("model exploded")
	err := idx.Build(context.Background(), []types.Chunk{chunk("b", 1, "far"), chunk("c", 1, "far")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")

	assert.Equal(t, 1, idx.Len())
	results, err := idx.Search(context.Background(), "query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Document.Path())
}

func TestBuild_DimensionMismatch(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{"two": {1, 0}, "three": {1, 0, 0}}}
	idx := New(t.TempDir(), emb, Options{}, logging.Nop())

	err := idx.Build(context.Background(), []types.Chunk{chunk("a", 1, "two"), chunk("b", 1, "three")})
	assert.ErrorIs(t, err, embedder.ErrDimensionMismatch)
}

func TestSearch_ResultsAreCopies(t *testing.T) {
	idx, _ := newMockIndex(t, Options{})
	chunks := []types.Chunk{chunk("a", 1, "near")}
	require.NoError(t, idx.Build(context.Background(), chunks))
	chunks[0].Metadata[types.MetaPath] = "mutated"

	results, err := idx.Search(context.Background(), "query", 1)
	require.NoError(t, err)
	results[0].Document.Metadata[types.MetaPath] = "mutated again"

	results, err = idx.Search(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", results[0].Document.Path())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	emb := embedder.NewLocalProvider(nil)
	chunks := []types.Chunk{
		chunk("x.py", 1, "def foo(): return bar()"),
		chunk("y.py", 1, "class Bar: pass"),
		chunk("z.md", 1, "# Bar documentation"),
	}

	built := New(dir, emb, Options{}, logging.Nop())
	require.NoError(t, built.Build(context.Background(), chunks))
	require.NoError(t, built.Save(context.Background()))

	assert.FileExists(t, filepath.Join(dir, VectorsFile))
	assert.FileExists(t, filepath.Join(dir, DocsFile))

	loaded := New(dir, emb, Options{}, logging.Nop())
	require.True(t, loaded.Load(context.Background()))
	assert.Equal(t, built.Len(), loaded.Len())
	assert.Equal(t, built.Dimension(), loaded.Dimension())

	for _, q := range []string{"bar", "foo", "documentation class"} {
		want, err := built.Search(context.Background(), q, 2)
		require.NoError(t, err)
		got, err := loaded.Search(context.Background(), q, 2)
		require.NoError(t, err)
		assert.Equal(t, want, got, "query %q", q)
	}
}

func TestSave_BeforeBuild(t *testing.T) {
	idx, _ := newMockIndex(t, Options{})
	assert.ErrorIs(t, idx.Save(context.Background()), ErrNotBuilt)
}

func TestLoad_Failures(t *testing.T) {
	t.Run("missing files", func(t *testing.T) {
		idx, _ := newMockIndex(t, Options{})
		assert.False(t, idx.Load(context.Background()))
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("corrupt vectors keep in-memory snapshot", func(t *testing.T) {
		idx, _ := newMockIndex(t, Options{})
		require.NoError(t, idx.Build(context.Background(), []types.Chunk{chunk("a", 1, "near")}))
		require.NoError(t, idx.Save(context.Background()))
		require.NoError(t, os.WriteFile(filepath.Join(idx.dir, VectorsFile), []byte("junk"), 0o644))

		assert.False(t, idx.Load(context.Background()))
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("missing documents", func(t *testing.T) {
		idx, _ := newMockIndex(t, Options{})
		require.NoError(t, idx.Build(context.Background(), []types.Chunk{chunk("a", 1, "near")}))
		require.NoError(t, idx.Save(context.Background()))
		require.NoError(t, os.Remove(filepath.Join(idx.dir, DocsFile)))

		fresh := New(idx.dir, idx.embedder, Options{}, logging.Nop())
		assert.False(t, fresh.Load(context.Background()))
		assert.Equal(t, 0, fresh.Len())
	})
}

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, 0.0, squaredL2([]float32{1, 2}, []float32{1, 2}))
	assert.Equal(t, 25.0, squaredL2([]float32{0, 0}, []float32{3, 4}))
}

package vectorindex

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/pkg/types"
)

// Files written under the index directory
const (
	VectorsFile = "vectors.lz4"
	DocsFile    = "vector_docs.db"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

var (
	vectorsMagic   = [4]byte{'C', 'R', 'V', 'X'}
	vectorsVersion = uint16(1)
)

// ErrNotBuilt is returned by Save when there is nothing to persist
var ErrNotBuilt = errors.New("vector index not built")

// Options tunes how Build drives the embedder
type Options struct {
	BatchSize int // texts per embedding call
	Workers   int // concurrent embedding calls
}

// snapshot pairs the vectors with their documents; row i belongs to docs[i].
// A snapshot is never mutated after it is published.
type snapshot struct {
	vectors [][]float32
	dim     int
	docs    []types.Chunk
}

// Index is an exact nearest-neighbor index over chunk embeddings
type Index struct {
	dir      string
	embedder embedder.Embedder
	opts     Options
	logger   zerolog.Logger

	snap atomic.Pointer[snapshot]
}

// New creates an empty index persisting under dir
func New(dir string, emb embedder.Embedder, opts Options, logger zerolog.Logger) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > embedder.MaxBatchSize {
		opts.BatchSize = embedder.MaxBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Index{
		dir:      dir,
		embedder: emb,
		opts:     opts,
		logger:   logger.With().Str("component", "vectorindex").Logger(),
	}
}

// Build embeds every chunk and replaces the current snapshot. Embedding
// failures abort the build and leave the previous snapshot in place.
func (x *Index) Build(ctx context.Context, chunks []types.Chunk) error {
	start := time.Now()

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Workers)

	for lo := 0; lo < len(chunks); lo += x.opts.BatchSize {
		hi := min(lo+x.opts.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := range texts {
				texts[i] = chunks[lo+i].Content
			}
			resp, err := x.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
			}
			if len(resp.Embeddings) != len(texts) {
				return fmt.Errorf("%w: got %d embeddings for %d chunks", embedder.ErrProviderFailed, len(resp.Embeddings), len(texts))
			}
			copy(vectors[lo:hi], resp.Vectors())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d", embedder.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	x.snap.Store(&snapshot{
		vectors: vectors,
		dim:     dim,
		docs:    types.CloneChunks(chunks),
	})

	x.logger.Info().
		Int("documents", len(chunks)).
		Int("dimension", dim).
		Str("model", x.embedder.Model()).
		Dur("duration", time.Since(start)).
		Msg("vector index built")
	return nil
}

// Save writes the vectors and the document list to the index directory
func (x *Index) Save(ctx context.Context) error {
	s := x.snap.Load()
	if s == nil {
		return ErrNotBuilt
	}

	err := storage.WriteBlob(x.vectorsPath(), vectorsMagic, vectorsVersion, func(w io.Writer) error {
		return storage.WriteMatrix(w, s.vectors, s.dim)
	})
	if err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}

	meta := map[string]string{
		"provider":  x.embedder.Provider(),
		"model":     x.embedder.Model(),
		"dimension": strconv.Itoa(s.dim),
	}
	if err := storage.WriteDocuments(ctx, x.docsPath(), s.docs, meta); err != nil {
		return fmt.Errorf("save vector documents: %w", err)
	}
	return nil
}

// Load restores a saved index. It reports false, leaving the current
// snapshot untouched, when either file is missing or unreadable.
func (x *Index) Load(ctx context.Context) bool {
	var (
		vectors [][]float32
		dim     int
	)
	err := storage.ReadBlob(x.vectorsPath(), vectorsMagic, vectorsVersion, func(r io.Reader) error {
		var err error
		vectors, dim, err = storage.ReadMatrix(r)
		return err
	})
	if err != nil {
		x.logLoadFailure(err, "vectors")
		return false
	}

	docs, meta, err := storage.ReadDocuments(ctx, x.docsPath())
	if err != nil {
		x.logLoadFailure(err, "documents")
		return false
	}

	if len(docs) != len(vectors) {
		x.logger.Warn().
			Int("vectors", len(vectors)).
			Int("documents", len(docs)).
			Msg("vector index files disagree, ignoring saved index")
		return false
	}

	if model := x.embedder.Model(); meta["model"] != "" && model != "" && meta["model"] != model {
		x.logger.Warn().
			Str("saved_model", meta["model"]).
			Str("model", model).
			Msg("saved vectors were built with a different embedding model")
	}

	x.snap.Store(&snapshot{vectors: vectors, dim: dim, docs: docs})
	x.logger.Info().Int("documents", len(docs)).Int("dimension", dim).Msg("vector index loaded")
	return true
}

func (x *Index) logLoadFailure(err error, what string) {
	ev := x.logger.Warn()
	if errors.Is(err, storage.ErrNotFound) {
		ev = x.logger.Debug()
	}
	ev.Err(err).Str("file", what).Msg("vector index not loaded")
}

// Search returns the topK documents nearest to the query, nearest first.
// An index that was never built or loaded returns no results.
func (x *Index) Search(ctx context.Context, query string, topK int) ([]types.ScoredDocument, error) {
	s := x.snap.Load()
	if s == nil || len(s.docs) == 0 || topK <= 0 {
		return []types.ScoredDocument{}, nil
	}

	emb, err := x.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(emb.Vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", embedder.ErrDimensionMismatch, len(emb.Vector), s.dim)
	}

	type candidate struct {
		pos  int
		dist float64
	}
	candidates := make([]candidate, len(s.vectors))
	for i, v := range s.vectors {
		candidates[i] = candidate{pos: i, dist: squaredL2(emb.Vector, v)}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.dist, b.dist)
	})

	n := min(topK, len(candidates))
	results := make([]types.ScoredDocument, n)
	for i, c := range candidates[:n] {
		results[i] = types.ScoredDocument{
			Document: s.docs[c.pos].Clone(),
			Score:    1 / (1 + c.dist),
		}
	}
	return results, nil
}

// squaredL2 is the flat-index distance; no square root is taken
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Documents returns a copy of the indexed chunks in index order
func (x *Index) Documents() []types.Chunk {
	if s := x.snap.Load(); s != nil {
		return types.CloneChunks(s.docs)
	}
	return nil
}

// Len returns the number of indexed documents
func (x *Index) Len() int {
	if s := x.snap.Load(); s != nil {
		return len(s.docs)
	}
	return 0
}

// Dimension returns the vector length of the current snapshot
func (x *Index) Dimension() int {
	if s := x.snap.Load(); s != nil {
		return s.dim
	}
	return 0
}

func (x *Index) vectorsPath() string { return filepath.Join(x.dir, VectorsFile) }
func (x *Index) docsPath() string    { return filepath.Join(x.dir, DocsFile) }

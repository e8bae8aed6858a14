package keywordindex

import (
	"cmp"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/coderag/internal/storage"
	"github.com/dshills/coderag/pkg/types"
)

// Files written under the index directory
const (
	ScorerFile = "bm25.lz4"
	DocsFile   = "bm25_docs.db"
)

var (
	scorerMagic   = [4]byte{'C', 'R', 'B', 'M'}
	scorerVersion = uint16(1)
)

// ErrNotBuilt is returned by Save when there is nothing to persist
var ErrNotBuilt = errors.New("keyword index not built")

type snapshot struct {
	scorer *BM25
	docs   []types.Chunk
}

// Index ranks chunks by BM25 relevance
type Index struct {
	dir    string
	logger zerolog.Logger

	snap atomic.Pointer[snapshot]
}

// New creates an empty index persisting under dir
func New(dir string, logger zerolog.Logger) *Index {
	return &Index{
		dir:    dir,
		logger: logger.With().Str("component", "keywordindex").Logger(),
	}
}

// Build tokenizes every chunk and replaces the current snapshot
func (x *Index) Build(ctx context.Context, chunks []types.Chunk) error {
	start := time.Now()

	corpus := make([][]string, len(chunks))
	for i := range chunks {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		corpus[i] = Tokenize(chunks[i].Content)
	}

	scorer := NewBM25(corpus)
	x.snap.Store(&snapshot{scorer: scorer, docs: types.CloneChunks(chunks)})

	x.logger.Info().
		Int("documents", len(chunks)).
		Int("terms", len(scorer.IDF)).
		Dur("duration", time.Since(start)).
		Msg("keyword index built")
	return nil
}

// Save writes the scorer and the document list to the index directory
func (x *Index) Save(ctx context.Context) error {
	s := x.snap.Load()
	if s == nil {
		return ErrNotBuilt
	}

	err := storage.WriteBlob(x.scorerPath(), scorerMagic, scorerVersion, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(s.scorer)
	})
	if err != nil {
		return fmt.Errorf("save bm25: %w", err)
	}

	if err := storage.WriteDocuments(ctx, x.docsPath(), s.docs, map[string]string{"scorer": "bm25okapi"}); err != nil {
		return fmt.Errorf("save bm25 documents: %w", err)
	}
	return nil
}

// Load restores a saved index, reporting false when either file is missing
// or unreadable
func (x *Index) Load(ctx context.Context) bool {
	var scorer BM25
	err := storage.ReadBlob(x.scorerPath(), scorerMagic, scorerVersion, func(r io.Reader) error {
		return gob.NewDecoder(r).Decode(&scorer)
	})
	if err != nil {
		x.logLoadFailure(err, "bm25")
		return false
	}

	docs, _, err := storage.ReadDocuments(ctx, x.docsPath())
	if err != nil {
		x.logLoadFailure(err, "documents")
		return false
	}

	if len(docs) != scorer.Len() || len(scorer.DocLens) != scorer.Len() {
		x.logger.Warn().
			Int("scored", scorer.Len()).
			Int("documents", len(docs)).
			Msg("keyword index files disagree, ignoring saved index")
		return false
	}
	// gob leaves empty maps nil
	for i := range scorer.DocFreqs {
		if scorer.DocFreqs[i] == nil {
			scorer.DocFreqs[i] = map[string]int{}
		}
	}
	if scorer.IDF == nil {
		scorer.IDF = map[string]float64{}
	}

	x.snap.Store(&snapshot{scorer: &scorer, docs: docs})
	x.logger.Info().Int("documents", len(docs)).Msg("keyword index loaded")
	return true
}

func (x *Index) logLoadFailure(err error, what string) {
	ev := x.logger.Warn()
	if errors.Is(err, storage.ErrNotFound) {
		ev = x.logger.Debug()
	}
	ev.Err(err).Str("file", what).Msg("keyword index not loaded")
}

// Search returns up to topK documents with a positive score, best first.
// Ties keep document order.
func (x *Index) Search(_ context.Context, query string, topK int) ([]types.ScoredDocument, error) {
	s := x.snap.Load()
	if s == nil || len(s.docs) == 0 || topK <= 0 {
		return []types.ScoredDocument{}, nil
	}

	scores := s.scorer.Scores(Tokenize(query))

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	// Take topK first, then drop what is not relevant.
	results := make([]types.ScoredDocument, 0, min(topK, len(order)))
	for _, pos := range order[:min(topK, len(order))] {
		if scores[pos] <= 0 {
			continue
		}
		results = append(results, types.ScoredDocument{
			Document: s.docs[pos].Clone(),
			Score:    scores[pos],
		})
	}
	return results, nil
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

func (x *Index) scorerPath() string { return filepath.Join(x.dir, ScorerFile) }
func (x *Index) docsPath() string   { return filepath.Join(x.dir, DocsFile) }

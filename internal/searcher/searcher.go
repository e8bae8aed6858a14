package searcher

import (
	"cmp"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/coderag/pkg/types"
)

// SearchMode defines which indices a search consults
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

// RRFConstant is the k in 1/(k+rank)
const RRFConstant = 60

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
)

var (
	ErrInvalidMode = errors.New("unsupported search mode")
	ErrInvalidTopK = errors.New("top_k must be positive")
)

// ParseMode maps a mode name to a SearchMode; empty means hybrid
func ParseMode(s string) (SearchMode, error) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SearchModeHybrid, nil
	case SearchModeHybrid, SearchModeVector, SearchModeKeyword:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidMode, s)
	}
}

// Index is one ranked sub-index. Search on an index that was never built
// or loaded returns an empty list.
type Index interface {
	Build(ctx context.Context, chunks []types.Chunk) error
	Save(ctx context.Context) error
	Load(ctx context.Context) bool
	Search(ctx context.Context, query string, topK int) ([]types.ScoredDocument, error)
	Len() int
	Documents() []types.Chunk
}

// Options configures the query cache. A negative CacheSize disables it.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query string
	TopK  int
	Mode  SearchMode
}

// SearchResponse contains fused matches and per-index diagnostics
type SearchResponse struct {
	Matches        []types.Match
	Mode           SearchMode
	VectorResults  int
	KeywordResults int
	CacheHit       bool
	Duration       time.Duration
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Retriever fuses the rankings of a vector index and a keyword index
type Retriever struct {
	vector  Index
	keyword Index
	logger  zerolog.Logger

	cache *lru.Cache[[32]byte, *cacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Retriever over the two indices
func New(vector, keyword Index, opts Options, logger zerolog.Logger) *Retriever {
	r := &Retriever{
		vector:  vector,
		keyword: keyword,
		logger:  logger.With().Str("component", "retriever").Logger(),
		ttl:     opts.CacheTTL,
		now:     time.Now,
	}
	if r.ttl <= 0 {
		r.ttl = DefaultCacheTTL
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](size)
		if err != nil {
			// only fails for non-positive sizes
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		r.cache = cache
	}
	return r
}

// BuildIndices validates chunks and builds both indices from them. A
// failure in either index is returned and the query cache is purged.
func (r *Retriever) BuildIndices(ctx context.Context, chunks []types.Chunk) error {
	defer r.InvalidateCache()

	if err := types.ValidateChunks(chunks); err != nil {
		return err
	}
	if err := r.vector.Build(ctx, chunks); err != nil {
		return fmt.Errorf("build vector index: %w", err)
	}
	if err := r.keyword.Build(ctx, chunks); err != nil {
		return fmt.Errorf("build keyword index: %w", err)
	}
	return nil
}

// Save persists both indices
func (r *Retriever) Save(ctx context.Context) error {
	if err := r.vector.Save(ctx); err != nil {
		return err
	}
	return r.keyword.Save(ctx)
}

// Load restores both indices. Both loads are attempted; it reports true
// only when both succeed.
func (r *Retriever) Load(ctx context.Context) bool {
	defer r.InvalidateCache()

	vectorOK := r.vector.Load(ctx)
	keywordOK := r.keyword.Load(ctx)
	if vectorOK != keywordOK {
		r.logger.Warn().
			Bool("vector", vectorOK).
			Bool("keyword", keywordOK).
			Msg("index only partially loaded")
	}
	return vectorOK && keywordOK
}

// Counts returns the number of documents in each index
func (r *Retriever) Counts() (vector, keyword int) {
	return r.vector.Len(), r.keyword.Len()
}

// Documents returns the chunks currently held by the vector index. Both
// indices are always built from the same chunk list.
func (r *Retriever) Documents() []types.Chunk {
	return r.vector.Documents()
}

// Retrieve runs a hybrid search and returns at most topK fused matches
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]types.Match, error) {
	resp, err := r.Search(ctx, SearchRequest{Query: query, TopK: topK, Mode: SearchModeHybrid})
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// Search performs a search based on the request parameters
func (r *Retriever) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, types.ErrEmptyQuery
	}
	if req.TopK <= 0 {
		return nil, ErrInvalidTopK
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}

	if cached := r.checkCache(req); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(start)
		return cached, nil
	}

	var (
		response *SearchResponse
		err      error
	)
	switch req.Mode {
	case SearchModeHybrid:
		response, err = r.hybridSearch(ctx, req)
	case SearchModeVector:
		var docs []types.ScoredDocument
		if docs, err = r.vector.Search(ctx, req.Query, 2*req.TopK); err == nil {
			response = &SearchResponse{Matches: Fuse(req.TopK, docs), VectorResults: len(docs)}
		}
	case SearchModeKeyword:
		var docs []types.ScoredDocument
		if docs, err = r.keyword.Search(ctx, req.Query, 2*req.TopK); err == nil {
			response = &SearchResponse{Matches: Fuse(req.TopK, docs), KeywordResults: len(docs)}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Mode = req.Mode
	response.Duration = time.Since(start)

	if len(response.Matches) > 0 {
		r.storeInCache(req, response)
	}
	return response, nil
}

// searchResult holds the outcome of one sub-index search
type searchResult struct {
	docs []types.ScoredDocument
	err  error
}

// hybridSearch queries both indices concurrently for 2*topK candidates and
// fuses the lists. One failing index is tolerated.
func (r *Retriever) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	candidates := 2 * req.TopK

	var vectorRes, keywordRes searchResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorRes.docs, vectorRes.err = r.vector.Search(ctx, req.Query, candidates)
	}()
	go func() {
		defer wg.Done()
		keywordRes.docs, keywordRes.err = r.keyword.Search(ctx, req.Query, candidates)
	}()
	wg.Wait()

	if vectorRes.err != nil && keywordRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, keyword=%v", vectorRes.err, keywordRes.err)
	}
	if vectorRes.err != nil {
		r.logger.Warn().Err(vectorRes.err).Msg("vector search failed, using keyword results only")
	}
	if keywordRes.err != nil {
		r.logger.Warn().Err(keywordRes.err).Msg("keyword search failed, using vector results only")
	}

	return &SearchResponse{
		Matches:        Fuse(req.TopK, vectorRes.docs, keywordRes.docs),
		VectorResults:  len(vectorRes.docs),
		KeywordResults: len(keywordRes.docs),
	}, nil
}

// fusedDoc accumulates the reciprocal rank contributions of one document
type fusedDoc struct {
	doc   types.Chunk
	score float64
	first int // order of first appearance, the tie-break
}

// Fuse applies Reciprocal Rank Fusion to ranked lists and returns the best
// topK documents as matches. Only rank positions count; list scores are
// ignored. Documents are identified by path and start line. A single list
// keeps its order and gets RRF-scale scores, which the single-index modes use.
// RRF formula: RRF(d) = Σ 1/(k + rank(d)), rank starting at 1
func Fuse(topK int, lists ...[]types.ScoredDocument) []types.Match {
	byKey := make(map[string]*fusedDoc)
	var order []*fusedDoc

	for _, list := range lists {
		for i, sd := range list {
			key := sd.Document.Key()
			f, ok := byKey[key]
			if !ok {
				f = &fusedDoc{doc: sd.Document, first: len(order)}
				byKey[key] = f
				order = append(order, f)
			}
			f.score += 1.0 / float64(RRFConstant+i+1)
		}
	}

	slices.SortStableFunc(order, func(a, b *fusedDoc) int {
		return cmp.Compare(b.score, a.score)
	})

	n := min(topK, len(order))
	matches := make([]types.Match, n)
	for i, f := range order[:n] {
		matches[i] = types.NewMatch(f.doc, f.score)
	}
	return matches
}

// checkCache returns a copy of a live cached response, or nil
func (r *Retriever) checkCache(req SearchRequest) *SearchResponse {
	if r.cache == nil {
		return nil
	}
	hash := computeQueryHash(req)
	entry, found := r.cache.Get(hash)
	if !found {
		return nil
	}
	if r.now().After(entry.expiresAt) {
		r.cache.Remove(hash)
		return nil
	}
	return copySearchResponse(entry.response)
}

// storeInCache saves a copy of the response
func (r *Retriever) storeInCache(req SearchRequest, response *SearchResponse) {
	if r.cache == nil {
		return
	}
	r.cache.Add(computeQueryHash(req), &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: r.now().Add(r.ttl),
	})
}

// InvalidateCache drops every cached query
func (r *Retriever) InvalidateCache() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Matches = make([]types.Match, len(src.Matches))
	for i, m := range src.Matches {
		meta := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		m.Metadata = meta
		dst.Matches[i] = m
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.TopK))
	return sha256.Sum256([]byte(data.String()))
}

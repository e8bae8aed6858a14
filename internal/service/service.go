package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/coderag/internal/chunker"
	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/keywordindex"
	"github.com/dshills/coderag/internal/llm"
	"github.com/dshills/coderag/internal/metrics"
	"github.com/dshills/coderag/internal/reader"
	"github.com/dshills/coderag/internal/searcher"
	"github.com/dshills/coderag/internal/vectorindex"
	"github.com/dshills/coderag/pkg/types"
)

// DefaultRoot is the build root used when a request names none
const DefaultRoot = "./"

// DefaultMaxTokens bounds generated answers when the caller gives no limit
const DefaultMaxTokens = 512

var (
	ErrRootNotFound    = indexer.ErrRootNotFound
	ErrNoFilesIndexed  = errors.New("no files were indexed")
	ErrIndexNotFound   = errors.New("no index found")
	ErrNoContext       = errors.New("no relevant context found")
	ErrBuildInProgress = errors.New("index build already in progress")
)

// BuildRequest selects the files of one ingestion run
type BuildRequest struct {
	Root     string
	Patterns []string
	Exclude  []string
	Clean    bool
}

// BuildResult reports one build. Stats describes the files processed by
// this run; Documents is the number of chunks the indices now hold.
type BuildResult struct {
	Stats        types.RunStats
	FilesSkipped int
	FilesFailed  int
	Errors       []string
	Documents    int
	UpToDate     bool // nothing changed, indices were left as they were
}

// AnswerResult is a generated answer with its supporting matches
type AnswerResult struct {
	Final     string
	Citations []types.Citation
	Matches   []types.Match
}

// Status is a point-in-time view of the service
type Status struct {
	IndexDir          string
	Indexing          bool
	VectorDocuments   int
	KeywordDocuments  int
	Dimension         int
	EmbeddingProvider string
	EmbeddingModel    string
	LLMProvider       string
	Stats             *types.RunStats // nil until a build has completed
}

// Option customizes a Service
type Option func(*Service)

// WithEmbedder replaces the embedder built from settings
func WithEmbedder(e embedder.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithGenerator replaces the generator built from settings; nil means
// retrieval-only answers
func WithGenerator(g llm.Generator) Option {
	return func(s *Service) {
		s.generator = g
		s.generatorSet = true
	}
}

// WithMetrics records into m instead of a private registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service composes ingestion, both indices, retrieval and answering. The
// retriever is created on first use, which also attempts to load the
// persisted indices once.
type Service struct {
	settings     *config.Settings
	logger       zerolog.Logger
	pipeline     *indexer.Pipeline
	embedder     embedder.Embedder
	generator    llm.Generator
	generatorSet bool
	metrics      *metrics.Metrics
	lock         indexer.IndexLock

	mu        sync.Mutex
	retriever *searcher.Retriever
	vectors   *vectorindex.Index
}

// New wires a Service from settings
func New(settings *config.Settings, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if settings == nil {
		settings = config.Default()
	}

	s := &Service{
		settings: settings,
		logger:   logger.With().Str("component", "service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.embedder == nil {
		s.embedder = embedder.NewLazy(embedder.ConfigFromSettings(settings))
	}
	if !s.generatorSet {
		gen, err := llm.New(llm.ConfigFromSettings(settings))
		if err != nil {
			return nil, fmt.Errorf("create llm provider: %w", err)
		}
		s.generator = gen
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	r := reader.New(settings.AllowedExtensions(), settings.ExcludeGlobs(),
		logger.With().Str("component", "reader").Logger())
	c := chunker.New(settings.ChunkSize, settings.ChunkOverlap)
	s.pipeline = indexer.New(r, c, settings.IndexDir, logger, &indexer.Config{
		ReservedDirs: []string{settings.DataDir},
	})

	return s, nil
}

// Settings returns the configuration the service was built from
func (s *Service) Settings() *config.Settings {
	return s.settings
}

// Metrics returns the instruments the service records into
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// LLMProvider names the configured answer generator
func (s *Service) LLMProvider() string {
	if s.generator == nil {
		return config.LLMNone
	}
	return s.generator.Name()
}

// Close releases the embedder
func (s *Service) Close() error {
	return s.embedder.Close()
}

// Retriever returns the shared retriever, creating it and loading the
// persisted indices on first use
func (s *Service) Retriever(ctx context.Context) *searcher.Retriever {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retriever != nil {
		return s.retriever
	}

	dir := s.settings.IndexDir
	s.vectors = vectorindex.New(dir, s.embedder, vectorindex.Options{
		BatchSize: s.settings.EmbeddingBatchSize,
		Workers:   s.settings.EmbeddingWorkers,
	}, s.logger)
	keyword := keywordindex.New(dir, s.logger)
	s.retriever = searcher.New(s.vectors, keyword, searcher.Options{CacheTTL: s.settings.QueryCacheTTL}, s.logger)

	if s.retriever.Load(ctx) {
		v, k := s.retriever.Counts()
		s.logger.Info().Str("dir", dir).Int("vector_docs", v).Int("keyword_docs", k).Msg("loaded persisted indices")
	} else {
		s.logger.Info().Str("dir", dir).Msg("no usable persisted index; build one to enable search")
	}
	s.publishCounts(s.retriever)
	return s.retriever
}

// Build ingests root and replaces both indices. A clean build re-chunks
// every file; otherwise unchanged files keep the chunks the indices already
// hold, exactly as Incremental does.
func (s *Service) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	return s.build(ctx, req, !req.Clean)
}

// Incremental re-chunks only changed files and merges them with the chunks
// of unchanged files already held by the indices. Files that were removed
// or changed lose their old chunks.
func (s *Service) Incremental(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	req.Clean = false
	return s.build(ctx, req, true)
}

// ReservedExcludes returns root-anchored excludes for the data and index
// directories when they lie below root. Ingestion always applies them.
func (s *Service) ReservedExcludes(root string) []string {
	if root == "" {
		root = DefaultRoot
	}
	return s.pipeline.ReservedExcludes(root)
}

func (s *Service) build(ctx context.Context, req BuildRequest, merge bool) (*BuildResult, error) {
	start := time.Now()

	root, err := resolveRoot(req.Root)
	if err != nil {
		s.metrics.ObserveBuild(metrics.OutcomeError, 0, 0, 0)
		return nil, err
	}

	if !s.lock.TryAcquire() {
		s.metrics.ObserveBuild(metrics.OutcomeBusy, 0, 0, 0)
		return nil, ErrBuildInProgress
	}
	defer s.lock.Release()

	s.logger.Info().Str("root", root).Bool("clean", req.Clean).Bool("merge", merge).Msg("index build requested")

	result, err := s.ingestAndBuild(ctx, root, req, merge, start)
	switch {
	case errors.Is(err, ErrNoFilesIndexed):
		s.metrics.ObserveBuild(metrics.OutcomeEmpty, 0, 0, 0)
	case err != nil:
		s.metrics.ObserveBuild(metrics.OutcomeError, 0, 0, 0)
		s.logger.Error().Err(err).Str("root", root).Msg("index build failed")
	default:
		s.metrics.ObserveBuild(metrics.OutcomeSuccess, result.Stats.FilesIndexed, result.Stats.Chunks, time.Since(start))
	}
	return result, err
}

func (s *Service) ingestAndBuild(ctx context.Context, root string, req BuildRequest, merge bool, start time.Time) (*BuildResult, error) {
	ret := s.Retriever(ctx)

	ingested, err := s.pipeline.Ingest(ctx, root, req.Patterns, req.Exclude, req.Clean)
	if err != nil {
		return nil, err
	}

	chunks := ingested.Chunks
	if merge {
		current := ret.Documents()
		carried, complete := carryForward(current, ingested.Unchanged)
		switch {
		case !complete:
			s.logger.Warn().Msg("index is missing unchanged files; re-ingesting every file")
			if ingested, err = s.pipeline.Ingest(ctx, root, req.Patterns, req.Exclude, true); err != nil {
				return nil, err
			}
			chunks = ingested.Chunks
		case len(ingested.Chunks) == 0 && len(carried) == len(current) && len(current) > 0:
			s.logger.Info().Int("documents", len(current)).Msg("index is up to date")
			return newBuildResult(ingested, len(current), true), nil
		default:
			chunks = append(carried, ingested.Chunks...)
		}
	}

	if len(chunks) == 0 {
		return nil, ErrNoFilesIndexed
	}

	if err := ret.BuildIndices(ctx, chunks); err != nil {
		return nil, fmt.Errorf("build indices: %w", err)
	}
	if err := ret.Save(ctx); err != nil {
		return nil, fmt.Errorf("save indices: %w", err)
	}
	s.publishCounts(ret)

	totals := types.NewRunStats(countFiles(chunks), len(chunks), time.Since(start))
	if err := indexer.SaveStats(s.settings.IndexDir, totals); err != nil {
		return nil, fmt.Errorf("save stats: %w", err)
	}

	s.logger.Info().
		Int("files_indexed", ingested.Stats.FilesIndexed).
		Int("files_skipped", ingested.FilesSkipped).
		Int("documents", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("index build complete")

	return newBuildResult(ingested, len(chunks), false), nil
}

func newBuildResult(ingested *indexer.Result, documents int, upToDate bool) *BuildResult {
	return &BuildResult{
		Stats:        ingested.Stats,
		FilesSkipped: ingested.FilesSkipped,
		FilesFailed:  ingested.FilesFailed,
		Errors:       ingested.Errors,
		Documents:    documents,
		UpToDate:     upToDate,
	}
}

// carryForward keeps the chunks of unchanged files in index order. It
// reports false when an unchanged file has no chunks in the index, which
// means the hash record and the indices have drifted apart.
func carryForward(current []types.Chunk, unchanged []string) ([]types.Chunk, bool) {
	keep := make(map[string]bool, len(unchanged))
	for _, path := range unchanged {
		keep[path] = false
	}

	carried := make([]types.Chunk, 0, len(current))
	for _, c := range current {
		if _, ok := keep[c.Path()]; ok {
			keep[c.Path()] = true
			carried = append(carried, c)
		}
	}

	for _, seen := range keep {
		if !seen {
			return nil, false
		}
	}
	return carried, true
}

func countFiles(chunks []types.Chunk) int {
	paths := make(map[string]struct{})
	for _, c := range chunks {
		paths[c.Path()] = struct{}{}
	}
	return len(paths)
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		root = DefaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	return abs, nil
}

// Stats returns the record of the last completed build
func (s *Service) Stats() (types.RunStats, error) {
	stats, err := indexer.LoadStats(s.settings.IndexDir)
	if errors.Is(err, indexer.ErrStatsNotFound) {
		return types.RunStats{}, ErrIndexNotFound
	}
	if err != nil {
		return types.RunStats{}, fmt.Errorf("read stats: %w", err)
	}
	return stats, nil
}

// Query retrieves at most topK matches. topK 0 uses the configured default
// and an empty mode means hybrid.
func (s *Service) Query(ctx context.Context, query string, topK int, mode string) (*searcher.SearchResponse, error) {
	m, err := searcher.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if topK == 0 {
		topK = s.settings.TopK
	}

	resp, err := s.Retriever(ctx).Search(ctx, searcher.SearchRequest{Query: query, TopK: topK, Mode: m})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveQuery(string(m), resp.Duration)

	s.logger.Debug().
		Str("mode", string(m)).
		Int("top_k", topK).
		Int("matches", len(resp.Matches)).
		Bool("cache_hit", resp.CacheHit).
		Msg("query served")
	return resp, nil
}

// Answer retrieves context for question and asks the generator to answer
// from it. Without a generator the matches are returned with a fixed
// retrieval-only answer.
func (s *Service) Answer(ctx context.Context, question string, topK, maxTokens int) (*AnswerResult, error) {
	resp, err := s.Query(ctx, question, topK, string(searcher.SearchModeHybrid))
	if err != nil {
		return nil, err
	}
	if len(resp.Matches) == 0 {
		return nil, ErrNoContext
	}

	if s.generator == nil {
		return &AnswerResult{
			Final:     llm.RetrievalOnlyAnswer,
			Citations: llm.MatchCitations(resp.Matches),
			Matches:   resp.Matches,
		}, nil
	}

	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	final, err := s.generator.Generate(ctx, llm.BuildGroundingPrompt(question, resp.Matches), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &AnswerResult{
		Final:     final,
		Citations: llm.ExtractCitations(final, resp.Matches),
		Matches:   resp.Matches,
	}, nil
}

// Status reports index sizes, providers and the last build record
func (s *Service) Status(ctx context.Context) Status {
	ret := s.Retriever(ctx)
	v, k := ret.Counts()

	st := Status{
		IndexDir:          s.settings.IndexDir,
		Indexing:          s.lock.Held(),
		VectorDocuments:   v,
		KeywordDocuments:  k,
		EmbeddingProvider: s.embedder.Provider(),
		EmbeddingModel:    s.embedder.Model(),
		LLMProvider:       s.LLMProvider(),
	}

	s.mu.Lock()
	st.Dimension = s.vectors.Dimension()
	s.mu.Unlock()

	if stats, err := s.Stats(); err == nil {
		st.Stats = &stats
	}
	return st
}

func (s *Service) publishCounts(ret *searcher.Retriever) {
	v, k := ret.Counts()
	s.metrics.SetDocuments(v, k)
}

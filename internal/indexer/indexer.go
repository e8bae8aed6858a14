package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/coderag/internal/chunker"
	"github.com/dshills/coderag/internal/reader"
	"github.com/dshills/coderag/pkg/types"
)

var (
	// ErrRootNotFound is returned when the ingestion root does not exist
	ErrRootNotFound = errors.New("root path not found")
)

// Pipeline coordinates ingestion: discover -> detect changes -> chunk -> record hashes
type Pipeline struct {
	reader  *reader.Reader
	chunker *chunker.Chunker
	hashes  *HashStore
	logger  zerolog.Logger

	// directories never ingested even when they sit below the root
	reserved []string

	// Worker pool configuration
	workers int
}

// Config contains configuration for the pipeline
type Config struct {
	Workers      int      // Number of concurrent file workers (default: runtime.NumCPU())
	ReservedDirs []string // kept out of ingestion in addition to the index dir
}

// Result is the outcome of one ingestion run
type Result struct {
	Chunks       []types.Chunk
	Stats        types.RunStats
	FilesSkipped int      // unchanged files carried forward
	Unchanged    []string // relative paths of the carried-forward files
	FilesFailed  int      // files that errored and will be retried next run
	Errors       []string // one "path: error" entry per failed file
}

// fileOutcome is the per-file result, merged in discovery order once all
// workers finish so chunk order does not depend on scheduling
type fileOutcome struct {
	rel     string
	digest  string
	chunks  []types.Chunk
	skipped bool // unchanged; digest is carried forward
	empty   bool // unreadable or empty; nothing recorded
	err     error
}

// New creates a Pipeline that records file hashes below indexDir. The
// index dir is never ingested, even when it lies below the root.
func New(r *reader.Reader, c *chunker.Chunker, indexDir string, logger zerolog.Logger, config *Config) *Pipeline {
	workers := runtime.NumCPU()
	reserved := []string{indexDir}
	if config != nil {
		if config.Workers > 0 {
			workers = config.Workers
		}
		reserved = append(reserved, config.ReservedDirs...)
	}
	return &Pipeline{
		reader:   r,
		chunker:  c,
		hashes:   NewHashStore(indexDir),
		logger:   logger.With().Str("component", "indexer").Logger(),
		workers:  workers,
		reserved: reserved,
	}
}

// ReservedExcludes returns root-anchored excludes for the reserved
// directories that lie below root
func (p *Pipeline) ReservedExcludes(root string) []string {
	return reader.AnchoredExcludes(root, p.reserved...)
}

// Hashes returns the store the pipeline records file digests in
func (p *Pipeline) Hashes() *HashStore {
	return p.hashes
}

// Ingest discovers files under root and chunks every new or changed file.
// When clean is false, files whose digest matches the previous run are
// skipped and their digest is carried forward. Per-file failures are logged
// and never abort the run; only cancellation of ctx does.
func (p *Pipeline) Ingest(ctx context.Context, root string, patterns, excludes []string, clean bool) (*Result, error) {
	startTime := time.Now()

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	previous := map[string]string{}
	if !clean {
		previous = p.loadPrevious()
	}

	excludes = append(append([]string(nil), excludes...), p.ReservedExcludes(root)...)
	files := slices.Collect(p.reader.DiscoverFiles(root, patterns, excludes))
	outcomes := make([]fileOutcome, len(files))

	var processed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.processFile(root, path, previous, clean)
			processed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingestion interrupted: %w", err)
	}

	result := &Result{Chunks: make([]types.Chunk, 0)}
	next := make(map[string]string, len(files))
	filesIndexed := 0

	for _, out := range outcomes {
		switch {
		case out.err != nil:
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", out.rel, out.err))
		case out.empty:
		case out.skipped:
			result.FilesSkipped++
			result.Unchanged = append(result.Unchanged, out.rel)
			next[out.rel] = out.digest
		default:
			result.Chunks = append(result.Chunks, out.chunks...)
			next[out.rel] = out.digest
			filesIndexed++
		}
	}

	if err := p.hashes.Save(next); err != nil {
		p.logger.Warn().Err(err).Msg("failed to persist file hashes")
	}

	result.Stats = types.NewRunStats(filesIndexed, len(result.Chunks), time.Since(startTime))

	p.logger.Info().
		Str("root", root).
		Bool("clean", clean).
		Int("discovered", len(files)).
		Int32("processed", processed.Load()).
		Int("files_indexed", filesIndexed).
		Int("files_skipped", result.FilesSkipped).
		Int("files_failed", result.FilesFailed).
		Int("chunks", len(result.Chunks)).
		Float64("duration_s", result.Stats.DurationSeconds).
		Msg("ingestion complete")

	return result, nil
}

// loadPrevious reads the last run's hashes; any failure means "no prior hashes"
func (p *Pipeline) loadPrevious() map[string]string {
	prev, err := p.hashes.Load()
	if err != nil {
		p.logger.Warn().Err(err).Msg("ignoring unreadable file hashes")
		return map[string]string{}
	}
	return prev
}

// processFile reads, change-checks and chunks a single file
func (p *Pipeline) processFile(root, path string, previous map[string]string, clean bool) fileOutcome {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("failed to relativize path")
		return fileOutcome{rel: path, err: err}
	}
	rel = filepath.ToSlash(rel)

	content, digest := p.reader.ReadFile(path)
	if content == "" {
		return fileOutcome{rel: rel, empty: true}
	}

	if !clean {
		if old, ok := previous[rel]; ok && old == digest {
			return fileOutcome{rel: rel, digest: old, skipped: true}
		}
	}

	chunks := p.chunker.Chunk(content, rel, reader.LanguageFor(rel))
	for i := range chunks {
		chunks[i].Metadata[types.MetaSHA256] = digest
		if err := chunks[i].Validate(); err != nil {
			p.logger.Warn().Err(err).Str("path", rel).Msg("failed to chunk file")
			return fileOutcome{rel: rel, err: err}
		}
	}

	p.logger.Debug().Str("path", rel).Int("chunks", len(chunks)).Msg("file chunked")
	return fileOutcome{rel: rel, digest: digest, chunks: chunks}
}

package reader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// DefaultPattern includes every file below the root
const DefaultPattern = "**/*"

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Reader discovers and reads corpus files
type Reader struct {
	allowed  map[string]struct{}
	excludes []string
	logger   zerolog.Logger
}

// New creates a Reader with an extension allow-list and the default exclude
// set that is unioned with every caller-supplied exclude list
func New(allowedExtensions, defaultExcludes []string, logger zerolog.Logger) *Reader {
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[ext] = struct{}{}
	}
	return &Reader{
		allowed:  allowed,
		excludes: append([]string(nil), defaultExcludes...),
		logger:   logger,
	}
}

// DiscoverFiles returns a restartable sequence of regular files below root
// whose root-relative path matches an include pattern, matches no exclude
// pattern, and carries an allowed extension. Paths are yielded once per
// iteration even when several patterns match them.
func (r *Reader) DiscoverFiles(root string, include, exclude []string) iter.Seq[string] {
	includes := r.validPatterns(include)
	if len(include) == 0 {
		includes = []string{DefaultPattern}
	}
	excludes := r.validPatterns(append(append([]string(nil), exclude...), r.excludes...))

	return func(yield func(string) bool) {
		r.logger.Info().
			Str("root", root).
			Strs("patterns", includes).
			Int("exclude_count", len(excludes)).
			Msg("discovering files")

		discovered := 0
		stop := errors.New("stop")

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				r.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if path == root {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				// Everything below an excluded directory is excluded too.
				if matchesAny(excludes, rel) {
					return filepath.SkipDir
				}
				return nil
			}

			if !r.accept(path, rel, includes, excludes) {
				return nil
			}

			discovered++
			if !yield(path) {
				return stop
			}
			return nil
		})

		switch {
		case errors.Is(err, stop):
			return
		case err != nil:
			r.logger.Warn().Err(err).Str("root", root).Msg("discovery failed")
			return
		}

		r.logger.Info().Int("files_found", discovered).Msg("discovery complete")
	}
}

func (r *Reader) accept(path, rel string, includes, excludes []string) bool {
	if !matchesInclude(includes, rel) {
		return false
	}
	if matchesAny(excludes, rel) {
		return false
	}
	if _, ok := r.allowed[Suffix(rel)]; !ok {
		return false
	}

	// Stat follows symlinks, so a link to a regular file counts as one.
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return true
}

// Excluded reports whether the root-relative slash path falls under one of
// exclude or the default exclude set
func (r *Reader) Excluded(rel string, exclude []string) bool {
	return matchesAny(r.validPatterns(append(append([]string(nil), exclude...), r.excludes...)), rel)
}

// Allowed reports whether path carries an allowed extension
func (r *Reader) Allowed(path string) bool {
	_, ok := r.allowed[Suffix(path)]
	return ok
}

func (r *Reader) validPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			r.logger.Warn().Str("pattern", p).Msg("ignoring malformed glob pattern")
			continue
		}
		out = append(out, p)
	}
	return out
}

// ReadFile reads path as UTF-8, replacing undecodable bytes with U+FFFD and
// turning "\r\n" and bare "\r" line endings into "\n". It returns the content
// with the hex SHA-256 digest of its encoded bytes. Any read failure yields
// two empty strings.
func (r *Reader) ReadFile(path string) (string, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("file read error")
		return "", ""
	}

	content := newlines.Replace(strings.ToValidUTF8(string(data), "\uFFFD"))
	return content, Digest(content)
}

// ShouldReindex reports whether path differs from storedDigest, returning
// the freshly computed digest so callers do not need a second read. An
// empty storedDigest means the file was never seen.
func (r *Reader) ShouldReindex(path, storedDigest string) (bool, string) {
	_, current := r.ReadFile(path)
	if storedDigest == "" {
		return true, current
	}
	return current != storedDigest, current
}

// Digest returns the hex SHA-256 of the UTF-8 bytes of content
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Suffix returns the final extension of the last path element, treating a
// single leading dot as part of the name (".bashrc" has no suffix)
func Suffix(path string) string {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	if ext == name {
		return ""
	}
	return ext
}

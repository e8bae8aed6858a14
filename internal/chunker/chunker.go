package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/coderag/pkg/types"
)

const (
	// DefaultChunkSize is the character budget used when none is configured
	DefaultChunkSize = 800

	// DefaultOverlap is the trailing overlap budget used when none is configured
	DefaultOverlap = 120
)

// Chunker splits file text into overlapping, line-bounded windows
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a Chunker. Non-positive sizes fall back to the defaults and
// an overlap at or above the chunk size is clamped below it.
func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// ChunkSize returns the character budget per chunk
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the trailing overlap budget
func (c *Chunker) Overlap() int { return c.overlap }

// window is the active buffer of lines for the chunk being built
type window struct {
	lines  []string
	length int
	start  int // 1-based line number of lines[0]
}

func (w *window) push(line string) {
	w.lines = append(w.lines, line)
	w.length += utf8.RuneCountInString(line)
}

// Chunk splits text into chunks whose metadata carries path and language.
// Lines keep their terminators, so joining a chunk's lines reproduces the
// original slice of text exactly.
func (c *Chunker) Chunk(text, path, language string) []types.Chunk {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	chunks := make([]types.Chunk, 0, len(text)/c.chunkSize+1)
	w := &window{start: 1}

	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if len(w.lines) > 0 && w.length+n > c.chunkSize {
			chunks = append(chunks, c.emit(w, i, path, language))
			w = c.seed(w, i+1, n)
		}
		w.push(line)
	}

	if len(w.lines) > 0 {
		chunks = append(chunks, c.emit(w, len(lines), path, language))
	}

	return chunks
}

func (c *Chunker) emit(w *window, endLine int, path, language string) types.Chunk {
	return types.Chunk{
		Content:   strings.Join(w.lines, ""),
		StartLine: w.start,
		EndLine:   endLine,
		Metadata: map[string]string{
			types.MetaPath:     path,
			types.MetaLanguage: language,
		},
	}
}

// seed starts the next window with the longest suffix of the closed window
// that fits the overlap budget. Leading overlap lines are dropped while the
// incoming line of length next would overflow the new window.
func (c *Chunker) seed(closed *window, nextLine, next int) *window {
	total := 0
	keep := 0
	for j := len(closed.lines) - 1; j >= 0; j-- {
		n := utf8.RuneCountInString(closed.lines[j])
		if total+n > c.overlap {
			break
		}
		total += n
		keep++
	}

	tail := closed.lines[len(closed.lines)-keep:]
	for len(tail) > 0 && total+next > c.chunkSize {
		total -= utf8.RuneCountInString(tail[0])
		tail = tail[1:]
	}

	w := &window{start: nextLine - len(tail)}
	for _, l := range tail {
		w.push(l)
	}
	return w
}

// splitLines splits after every line boundary keeping terminators: "\r\n",
// "\n", "\r", the vertical tab, form feed, file/group/record separators,
// NEL and the Unicode line and paragraph separators. A trailing boundary
// does not produce an extra empty line.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if !isLineBoundary(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if r == '\r' && end < len(text) && text[end] == '\n' {
			continue
		}
		lines = append(lines, text[start:end])
		start = end
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBoundary(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// LineCount returns the number of lines Chunk sees in text
func LineCount(text string) int {
	return len(splitLines(text))
}

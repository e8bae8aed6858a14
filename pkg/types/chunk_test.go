package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunk(path string, start, end int, content string) Chunk {
	return Chunk{
		Content:   content,
		StartLine: start,
		EndLine:   end,
		Metadata:  map[string]string{MetaPath: path},
	}
}

func TestChunk_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   Chunk
		wantErr bool
	}{
		{name: "valid", chunk: newChunk("a.py", 1, 3, "x")},
		{name: "single line", chunk: newChunk("a.py", 4, 4, "x")},
		{name: "empty content", chunk: newChunk("a.py", 1, 1, ""), wantErr: true},
		{name: "zero start", chunk: newChunk("a.py", 0, 1, "x"), wantErr: true},
		{name: "start after end", chunk: newChunk("a.py", 5, 2, "x"), wantErr: true},
		{name: "missing path", chunk: newChunk("", 1, 1, "x"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunk)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestChunk_Key verifies identity is location based
func TestChunk_Key(t *testing.T) {
	a := newChunk("x.py", 1, 10, "same")
	b := newChunk("y.py", 1, 10, "same")
	c := newChunk("x.py", 11, 20, "same")

	assert.Equal(t, "x.py:1", a.Key())
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestValidateChunks_RejectsDuplicateLocation(t *testing.T) {
	chunks := []Chunk{
		newChunk("x.py", 1, 5, "one"),
		newChunk("x.py", 1, 7, "two"),
	}
	err := ValidateChunks(chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateChunk)

	require.NoError(t, ValidateChunks(chunks[:1]))
}

func TestChunk_CloneIsIndependent(t *testing.T) {
	orig := newChunk("x.py", 1, 1, "a")
	cp := orig.Clone()
	cp.Metadata[MetaPath] = "changed"

	assert.Equal(t, "x.py", orig.Path())
}

func TestNewMatch_TruncatesSnippet(t *testing.T) {
	doc := newChunk("x.py", 3, 9, strings.Repeat("é", SnippetLength+20))
	doc.Metadata[MetaLanguage] = "python"

	m := NewMatch(doc, 0.5)

	assert.Equal(t, "x.py", m.Path)
	assert.Equal(t, 3, m.StartLine)
	assert.Equal(t, 9, m.EndLine)
	assert.Equal(t, SnippetLength, len([]rune(m.Snippet)))
	assert.Equal(t, "python", m.Metadata[MetaLanguage])
	assert.Equal(t, Citation{Path: "x.py", StartLine: 3, EndLine: 9}, m.Citation())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}

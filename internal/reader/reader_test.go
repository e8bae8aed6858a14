package reader

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAllowed  = []string{".py", ".md", ".txt", ".json"}
	testExcludes = []string{"node_modules", ".git", "__pycache__", "*.pyc"}
)

func newTestReader() *Reader {
	return New(testAllowed, testExcludes, zerolog.Nop())
}

// createTestFile writes content below root, creating parent directories
func createTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func relPaths(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	slices.Sort(out)
	return out
}

func TestDiscoverFiles_DefaultRules(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "main.py", "print(1)\n")
	createTestFile(t, root, "docs/guide.md", "# Guide\n")
	createTestFile(t, root, "logo.png", "\x89PNG")
	createTestFile(t, root, "node_modules/pkg/index.md", "vendored\n")
	createTestFile(t, root, "src/node_modules/deep.py", "x\n")
	createTestFile(t, root, ".git/HEAD.txt", "ref\n")
	createTestFile(t, root, "__pycache__/mod.py", "x\n")
	createTestFile(t, root, "build.pyc", "x")

	files := slices.Collect(newTestReader().DiscoverFiles(root, nil, nil))

	assert.Equal(t, []string{"docs/guide.md", "main.py"}, relPaths(t, root, files))
}

func TestDiscoverFiles_CallerExcludesAreUnioned(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "keep.py", "x\n")
	createTestFile(t, root, "generated/skip.py", "x\n")
	createTestFile(t, root, "src/gen/skip.py", "x\n")
	createTestFile(t, root, "node_modules/skip.py", "x\n")

	files := slices.Collect(newTestReader().DiscoverFiles(root, nil, []string{"generated", "gen/*.py"}))

	assert.Equal(t, []string{"keep.py"}, relPaths(t, root, files))
}

func TestExcludedAndAllowed(t *testing.T) {
	r := newTestReader()

	assert.True(t, r.Excluded("node_modules", nil))
	assert.True(t, r.Excluded("a/node_modules/b.py", nil))
	assert.True(t, r.Excluded("generated", []string{"generated"}))
	assert.False(t, r.Excluded("src/main.py", nil))

	assert.True(t, r.Allowed("src/main.py"))
	assert.False(t, r.Allowed("logo.png"))
	assert.False(t, r.Allowed("src"))
}

func TestAnchoredExcludes(t *testing.T) {
	root := t.TempDir()

	got := AnchoredExcludes(root,
		filepath.Join(root, "data"),
		filepath.Join(root, "data", "index"),
		root,
		filepath.Dir(root),
		"",
	)
	assert.Equal(t, []string{"/data", "/data/index"}, got)

	r := newTestReader()
	assert.True(t, r.Excluded("data/index", []string{"/data/index"}))
	assert.True(t, r.Excluded("data/index/stats.json", []string{"/data/index"}))
	assert.False(t, r.Excluded("src/data/index/stats.json", []string{"/data/index"}))
	assert.False(t, r.Excluded("data/indexer.py", []string{"/data/index"}))
}

func TestDiscoverFiles_SkipsAnchoredDirs(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "main.py", "x\n")
	createTestFile(t, root, "data/index/hashes.json", "{}\n")
	createTestFile(t, root, "src/data/index/keep.py", "x\n")

	excludes := AnchoredExcludes(root, filepath.Join(root, "data", "index"))
	files := slices.Collect(newTestReader().DiscoverFiles(root, nil, excludes))
	assert.ElementsMatch(t, []string{"main.py", "src/data/index/keep.py"}, relPaths(t, root, files))
}

func TestDiscoverFiles_IncludePatterns(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.py", "x\n")
	createTestFile(t, root, "pkg/b.py", "x\n")
	createTestFile(t, root, "pkg/c.md", "x\n")

	t.Run("top level only", func(t *testing.T) {
		files := slices.Collect(newTestReader().DiscoverFiles(root, []string{"*.py"}, nil))
		assert.Equal(t, []string{"a.py"}, relPaths(t, root, files))
	})

	t.Run("recursive extension", func(t *testing.T) {
		files := slices.Collect(newTestReader().DiscoverFiles(root, []string{"**/*.py"}, nil))
		assert.Equal(t, []string{"a.py", "pkg/b.py"}, relPaths(t, root, files))
	})

	t.Run("overlapping patterns yield once", func(t *testing.T) {
		files := slices.Collect(newTestReader().DiscoverFiles(root, []string{"**/*", "**/*.py", "pkg/*"}, nil))
		assert.Equal(t, []string{"a.py", "pkg/b.py", "pkg/c.md"}, relPaths(t, root, files))
	})
}

// TestDiscoverFiles_Restartable verifies the sequence can be iterated twice
func TestDiscoverFiles_Restartable(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "a.py", "x\n")
	createTestFile(t, root, "b.py", "x\n")

	seq := newTestReader().DiscoverFiles(root, nil, nil)
	first := slices.Collect(seq)
	second := slices.Collect(seq)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)

	// Early termination must not break later iterations.
	for range seq {
		break
	}
	assert.Len(t, slices.Collect(seq), 2)
}

func TestDiscoverFiles_MissingRoot(t *testing.T) {
	files := slices.Collect(newTestReader().DiscoverFiles(filepath.Join(t.TempDir(), "nope"), nil, nil))
	assert.Empty(t, files)
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	r := newTestReader()

	t.Run("digest is stable and content sensitive", func(t *testing.T) {
		a := createTestFile(t, root, "a.txt", "hello world\n")
		b := createTestFile(t, root, "b.txt", "hello world\n")
		c := createTestFile(t, root, "c.txt", "hello worle\n")

		contentA, digestA := r.ReadFile(a)
		_, digestB := r.ReadFile(b)
		_, digestC := r.ReadFile(c)

		assert.Equal(t, "hello world\n", contentA)
		assert.Len(t, digestA, 64)
		assert.Equal(t, digestA, digestB)
		assert.NotEqual(t, digestA, digestC)
	})

	t.Run("invalid utf8 is replaced", func(t *testing.T) {
		path := createTestFile(t, root, "bad.txt", "ok\xffend")
		content, digest := r.ReadFile(path)
		assert.Equal(t, "ok\uFFFDend", content)
		assert.Equal(t, Digest("ok\uFFFDend"), digest)
	})

	t.Run("line endings are normalized before hashing", func(t *testing.T) {
		unix := createTestFile(t, root, "unix.py", "a = 1\nb = 2\n")
		dos := createTestFile(t, root, "dos.py", "a = 1\r\nb = 2\r\n")
		mac := createTestFile(t, root, "mac.py", "a = 1\rb = 2\r")

		want, digest := r.ReadFile(unix)
		for _, path := range []string{dos, mac} {
			content, d := r.ReadFile(path)
			assert.Equal(t, want, content)
			assert.Equal(t, digest, d)
		}
	})

	t.Run("missing file yields empty pair", func(t *testing.T) {
		content, digest := r.ReadFile(filepath.Join(root, "missing.txt"))
		assert.Empty(t, content)
		assert.Empty(t, digest)
	})
}

func TestShouldReindex(t *testing.T) {
	root := t.TempDir()
	r := newTestReader()
	path := createTestFile(t, root, "a.py", "x = 1\n")
	_, digest := r.ReadFile(path)

	changed, fresh := r.ShouldReindex(path, "")
	assert.True(t, changed, "unknown file must be reindexed")
	assert.Equal(t, digest, fresh)

	changed, _ = r.ShouldReindex(path, digest)
	assert.False(t, changed)

	createTestFile(t, root, "a.py", "x = 2\n")
	changed, fresh = r.ShouldReindex(path, digest)
	assert.True(t, changed)
	assert.NotEqual(t, digest, fresh)
}

func TestLanguageFor(t *testing.T) {
	tests := map[string]string{
		"a.py":         "python",
		"b.php":        "php",
		"c.js":         "javascript",
		"d.ts":         "typescript",
		"README.md":    "markdown",
		"page.mdx":     "markdown",
		"pkg.json":     "json",
		"ci.yml":       "yaml",
		"ci.yaml":      "yaml",
		"setup.ini":    "text",
		"notes.txt":    "text",
		"dir/UPPER.PY": "python",
		"Makefile":     "text",
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, LanguageFor(path))
		})
	}
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, ".py", Suffix("a/b.py"))
	assert.Equal(t, ".gz", Suffix("a.tar.gz"))
	assert.Equal(t, "", Suffix(".bashrc"))
	assert.Equal(t, "", Suffix("Makefile"))
}

package reader

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// matchesInclude reports whether the slash-separated relative path matches
// one of the include patterns, anchored at the root
func matchesInclude(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// matchesAny reports whether an exclude pattern matches rel as a whole or
// any contiguous run of its components, so "node_modules" excludes
// "a/node_modules/b.js" and "gen/*.ts" excludes "src/gen/x.ts". A pattern
// with a leading slash is anchored at the root and also excludes everything
// below the directory it names.
func matchesAny(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		return false
	}
	parts := strings.Split(rel, "/")
	for _, p := range patterns {
		if anchored, ok := strings.CutPrefix(p, "/"); ok {
			if matchesAnchored(anchored, rel) {
				return true
			}
			continue
		}
		depth := strings.Count(p, "/") + 1
		if strings.Contains(p, "**") {
			if ok, _ := doublestar.Match(p, rel); ok {
				return true
			}
			depth = len(parts)
		}
		for i := 0; i < len(parts); i++ {
			for j := i + 1; j <= len(parts) && j-i <= depth; j++ {
				if ok, _ := doublestar.Match(p, strings.Join(parts[i:j], "/")); ok {
					return true
				}
			}
		}
	}
	return false
}

func matchesAnchored(p, rel string) bool {
	if rel == p || strings.HasPrefix(rel, p+"/") {
		return true
	}
	ok, _ := doublestar.Match(p, rel)
	return ok
}

// AnchoredExcludes returns a root-anchored exclude pattern for each of dirs
// that lies strictly below root. Dirs outside root, or equal to it, yield
// nothing.
func AnchoredExcludes(root string, dirs ...string) []string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil
	}

	var out []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, "/"+filepath.ToSlash(rel))
	}
	return out
}

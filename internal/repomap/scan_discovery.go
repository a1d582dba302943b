package repomap

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// discoverFiles walks root and returns, repo-relative and
// forward-slash-normalized, every file not matched by any of the
// ignore patterns. Patterns are basename globs (doublestar syntax)
// applied both to the path relative to root and to each path segment,
// so a pattern like "__pycache__" or "*.pyc" excludes matching
// directories/files at any depth.
func discoverFiles(root string, ignorePatterns []string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if matchesIgnore(rel, info.Name(), ignorePatterns) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// matchesIgnore reports whether rel (path relative to root) or its
// basename matches any ignore pattern.
func matchesIgnore(rel, base string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
			if ok, _ := doublestar.Match(p, seg); ok {
				return true
			}
		}
	}
	return false
}

// isEntryPoint reports whether path looks like a program entry point:
// its basename (without extension) matches a conventional entry-point
// name.
func isEntryPoint(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch base {
	case "main", "cli", "app", "index", "__main__":
		return true
	}
	return false
}

// isTestFile reports whether path is conventionally a test file:
// "test_" prefix, "_test" suffix before the extension, or a "test"/
// "tests" path segment.
func isTestFile(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if seg == "test" || seg == "tests" {
			return true
		}
	}
	return false
}

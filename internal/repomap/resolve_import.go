package repomap

import (
	"path/filepath"
	"strings"
)

// resolveModuleToFile maps an import's module name to one of the
// repository's known file paths, for building the file-level
// dependency graph. It tries, in order: the module path as a direct
// "<module>.py" file, and the module path as a package directory's
// "__init__.py". Relative imports ("." / ".." prefixes) are resolved
// by ascending from the importing file's directory once per leading
// dot before applying the same two patterns. Absolute imports resolve
// from the scan root. Returns "" when no file in known matches.
func resolveModuleToFile(root, fromFile, module string, known map[string]struct{}) string {
	if module == "" {
		return ""
	}

	if strings.HasPrefix(module, ".") {
		ascend := 0
		for ascend < len(module) && module[ascend] == '.' {
			ascend++
		}
		name := module[ascend:]
		dir := filepath.Dir(fromFile)
		for i := 1; i < ascend; i++ {
			dir = filepath.Dir(dir)
		}
		return resolveFromDir(dir, name, known)
	}

	return resolveFromDir(root, module, known)
}

func resolveFromDir(dir, name string, known map[string]struct{}) string {
	if name == "" {
		// A module of dots alone resolves to that package's __init__.
		candidate := filepath.Join(dir, "__init__.py")
		if _, ok := known[candidate]; ok {
			return candidate
		}
		return ""
	}

	parts := strings.Split(name, ".")
	asFile := filepath.Join(append([]string{dir}, parts...)...) + ".py"
	if _, ok := known[asFile]; ok {
		return asFile
	}

	asPackage := filepath.Join(append(append([]string{dir}, parts...), "__init__.py")...)
	if _, ok := known[asPackage]; ok {
		return asPackage
	}

	return ""
}

package repomap

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// Compress renders a compact textual summary of the repository map:
// a header (name, file count, line count, top-3 languages), a
// directory-grouped file list with a per-file brief and up to 3
// function and 3 class signatures each, a flat list of external
// dependencies, and up to 5 entry points. Rendering stops and appends
// "(truncated)" once the character budget (maxTokens×4) is exhausted.
func (rm *RepoMap) Compress(maxTokens int) string {
	snap := rm.Snapshot()
	if snap == nil {
		return ""
	}
	charBudget := maxTokens * 4
	if charBudget <= 0 {
		charBudget = 8000 * 4
	}

	var sb strings.Builder
	write := func(s string) bool {
		if sb.Len()+len(s) > charBudget {
			sb.WriteString("(truncated)")
			return false
		}
		sb.WriteString(s)
		return true
	}

	header := fmt.Sprintf("REPOSITORY MAP: %s\nfiles: %d\nlines: %d\ntop languages: %s\n\n",
		filepath.Base(rm.root), snap.TotalFiles, snap.TotalLines, strings.Join(topLanguages(snap.Languages, 3), ", "))
	if !write(header) {
		return sb.String()
	}

	byDir := make(map[string][]string)
	for path := range snap.Modules {
		dir := filepath.Dir(path)
		byDir[dir] = append(byDir[dir], path)
	}
	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		files := byDir[dir]
		sort.Strings(files)
		if !write(dir + "/\n") {
			return sb.String()
		}
		for _, path := range files {
			node := snap.Modules[path]
			brief := fmt.Sprintf("  %s (%d lines) %d funcs %d classes\n",
				filepath.Base(path), node.LinesOfCode, len(node.Functions), len(node.Classes))
			if !write(brief) {
				return sb.String()
			}
			for i, fn := range node.Functions {
				if i >= 3 {
					break
				}
				if !write(fmt.Sprintf("    def %s(%s)\n", fn.Name, strings.Join(fn.Parameters, ", "))) {
					return sb.String()
				}
			}
			for i, cls := range node.Classes {
				if i >= 3 {
					break
				}
				if !write(fmt.Sprintf("    class %s\n", cls.Name)) {
					return sb.String()
				}
			}
		}
	}

	if deps := rm.externalDependencies(snap); len(deps) > 0 {
		if !write("\nexternal dependencies:\n") {
			return sb.String()
		}
		for _, d := range deps {
			if !write("  " + d + "\n") {
				return sb.String()
			}
		}
	}

	entryPoints := snap.EntryPoints
	if len(entryPoints) > 5 {
		entryPoints = entryPoints[:5]
	}
	if len(entryPoints) > 0 {
		if !write("\nentry points:\n") {
			return sb.String()
		}
		for _, e := range entryPoints {
			if !write("  " + e + "\n") {
				return sb.String()
			}
		}
	}

	return sb.String()
}

// ContextForFile renders an overview of one file: its imports,
// functions, classes, and direct/reverse dependency neighbors,
// bounded to a character budget of budget×4. Returns "" when path is
// not a known module.
func (rm *RepoMap) ContextForFile(path string, budget int) string {
	snap := rm.Snapshot()
	if snap == nil {
		return ""
	}
	node, ok := snap.Modules[path]
	if !ok {
		return ""
	}
	charBudget := budget * 4
	if charBudget <= 0 {
		charBudget = 8000 * 4
	}

	var sb strings.Builder
	write := func(s string) bool {
		if sb.Len()+len(s) > charBudget {
			sb.WriteString("(truncated)")
			return false
		}
		sb.WriteString(s)
		return true
	}

	if !write(fmt.Sprintf("# %s\nlanguage: %s\nlines: %d\n", path, node.Language, node.LinesOfCode)) {
		return sb.String()
	}

	if len(node.Imports) > 0 {
		if !write("\nimports:\n") {
			return sb.String()
		}
		for _, imp := range node.Imports {
			if !write("  " + imp + "\n") {
				return sb.String()
			}
		}
	}

	if len(node.Functions) > 0 {
		if !write("\nfunctions:\n") {
			return sb.String()
		}
		for _, fn := range node.Functions {
			if !write(fmt.Sprintf("  def %s(%s)\n", fn.Name, strings.Join(fn.Parameters, ", "))) {
				return sb.String()
			}
		}
	}

	if len(node.Classes) > 0 {
		if !write("\nclasses:\n") {
			return sb.String()
		}
		for _, cls := range node.Classes {
			if !write(fmt.Sprintf("  class %s\n", cls.Name)) {
				return sb.String()
			}
		}
	}

	if deps := rm.Dependencies(path); len(deps) > 0 {
		if !write("\ndepends on:\n") {
			return sb.String()
		}
		for _, d := range deps {
			if !write("  " + d + "\n") {
				return sb.String()
			}
		}
	}

	if dependents := rm.Dependents(path); len(dependents) > 0 {
		if !write("\nused by:\n") {
			return sb.String()
		}
		for _, d := range dependents {
			if !write("  " + d + "\n") {
				return sb.String()
			}
		}
	}

	return sb.String()
}

// externalDependencies returns the sorted, deduplicated set of raw
// dependency names across every module that did not resolve to an
// in-repo file.
func (rm *RepoMap) externalDependencies(snap *maptypes.RepositoryMap) []string {
	known := make(map[string]struct{}, len(snap.Modules))
	for p := range snap.Modules {
		known[p] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for path, node := range snap.Modules {
		for dep := range node.Dependencies {
			if resolveModuleToFile(".", path, dep, known) != "" {
				continue
			}
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
		}
	}
	sort.Strings(out)
	return out
}

// topLanguages returns the n most common language tags in langs,
// most-frequent first, ties broken alphabetically.
func topLanguages(langs map[string]int, n int) []string {
	type kv struct {
		lang  string
		count int
	}
	list := make([]kv, 0, len(langs))
	for l, c := range langs {
		list = append(list, kv{l, c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].lang < list[j].lang
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, kv := range list {
		out[i] = kv.lang
	}
	return out
}

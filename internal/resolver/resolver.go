// Package resolver builds symbol, import, and reference indexes over
// a repository snapshot and answers "where is this defined" / "where
// is this used" / "what does this file depend on" queries.
package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// Resolver answers symbol and dependency queries over one built
// snapshot. Rebuild when the snapshot changes.
type Resolver struct {
	root string

	// symbolIndex maps a bare symbol name (function/class) or a
	// "ClassName.methodName" qualified name to every definition site.
	symbolIndex map[string][]maptypes.Definition

	// importMap maps a file to the files its imports resolved to.
	importMap map[string][]string

	// referenceIndex maps a symbol name to every reference to it,
	// including references induced by an import (every public symbol
	// of an imported file is considered referenced at the import
	// site).
	referenceIndex map[string][]maptypes.SymbolReference
}

// New builds empty indexes; call BuildIndexes to populate them.
func New(root string) *Resolver {
	return &Resolver{
		root:           root,
		symbolIndex:    make(map[string][]maptypes.Definition),
		importMap:      make(map[string][]string),
		referenceIndex: make(map[string][]maptypes.SymbolReference),
	}
}

// BuildIndexes (re)populates the symbol, import, and reference
// indexes from snap. It is not incremental; callers rebuild after any
// change to the snapshot.
func (r *Resolver) BuildIndexes(snap *maptypes.RepositoryMap) {
	r.symbolIndex = make(map[string][]maptypes.Definition)
	r.importMap = make(map[string][]string)
	r.referenceIndex = make(map[string][]maptypes.SymbolReference)

	known := make(map[string]struct{}, len(snap.Modules))
	for p := range snap.Modules {
		known[p] = struct{}{}
	}

	for path, node := range snap.Modules {
		r.indexDefinitions(path, node)
	}

	for path, node := range snap.Modules {
		r.indexImports(path, node, snap, known)
	}
}

func (r *Resolver) indexDefinitions(path string, node *maptypes.FileNode) {
	for _, fn := range node.Functions {
		def := maptypes.Definition{
			Symbol:    fn.Name,
			File:      path,
			Line:      fn.LineStart,
			Kind:      maptypes.SymbolFunction,
			Signature: fn.Name,
			Docstring: fn.Docstring,
		}
		r.symbolIndex[fn.Name] = append(r.symbolIndex[fn.Name], def)
		r.addDefinitionReference(def)
	}

	for _, cls := range node.Classes {
		classDef := maptypes.Definition{
			Symbol:    cls.Name,
			File:      path,
			Line:      cls.LineStart,
			Kind:      maptypes.SymbolClass,
			Signature: cls.Name,
			Docstring: cls.Docstring,
		}
		r.symbolIndex[cls.Name] = append(r.symbolIndex[cls.Name], classDef)
		r.addDefinitionReference(classDef)

		for _, m := range cls.Methods {
			qualified := cls.Name + "." + m.Name
			methodDef := maptypes.Definition{
				Symbol:    qualified,
				File:      path,
				Line:      m.LineStart,
				Kind:      maptypes.SymbolMethod,
				Signature: qualified,
				Docstring: m.Docstring,
			}
			r.symbolIndex[qualified] = append(r.symbolIndex[qualified], methodDef)
			r.addDefinitionReference(methodDef)
		}
	}
}

func (r *Resolver) addDefinitionReference(def maptypes.Definition) {
	r.referenceIndex[def.Symbol] = append(r.referenceIndex[def.Symbol], maptypes.SymbolReference{
		Symbol:     def.Symbol,
		File:       def.File,
		Line:       def.Line,
		Kind:       maptypes.ReferenceDefinition,
		SymbolKind: def.Kind,
	})
}

// indexImports resolves each of node's raw imports to a file in the
// repository (module-as-file, package-__init__, or relative-import
// ascent counting) and records every public symbol of the resolved
// file as referenced at the importing file.
func (r *Resolver) indexImports(path string, node *maptypes.FileNode, snap *maptypes.RepositoryMap, known map[string]struct{}) {
	for dep := range node.Dependencies {
		target := resolveModule(r.root, path, dep, known)
		if target == "" {
			continue
		}
		r.importMap[path] = append(r.importMap[path], target)

		targetNode, ok := snap.Modules[target]
		if !ok {
			continue
		}
		for _, fn := range targetNode.Functions {
			if !isPublic(fn.Name) {
				continue
			}
			r.referenceIndex[fn.Name] = append(r.referenceIndex[fn.Name], maptypes.SymbolReference{
				Symbol:     fn.Name,
				File:       path,
				Line:       1,
				Kind:       maptypes.ReferenceImport,
				SymbolKind: maptypes.SymbolFunction,
			})
		}
		for _, cls := range targetNode.Classes {
			if !isPublic(cls.Name) {
				continue
			}
			r.referenceIndex[cls.Name] = append(r.referenceIndex[cls.Name], maptypes.SymbolReference{
				Symbol:     cls.Name,
				File:       path,
				Line:       1,
				Kind:       maptypes.ReferenceImport,
				SymbolKind: maptypes.SymbolClass,
			})
		}
	}
	sort.Strings(r.importMap[path])
}

func isPublic(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}

// resolveModule mirrors the repomap package's import resolution
// (module-as-file / package-__init__ / relative-import ascent
// counting), kept local to avoid an import-cycle between resolver and
// repomap.
func resolveModule(root, fromFile, module string, known map[string]struct{}) string {
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

// FindDefinition resolves symbol to its definition. When fromFile is
// non-empty, precedence is: a unique definition anywhere; a
// definition in fromFile itself; a definition in a file fromFile
// imports; otherwise the first definition found. Qualified names
// ("Class.method") fall back to a bare class lookup when no method
// definition matches. Returns (zero, false) when symbol is unknown.
func (r *Resolver) FindDefinition(symbol, fromFile string) (maptypes.Definition, bool) {
	defs, ok := r.symbolIndex[symbol]
	if !ok || len(defs) == 0 {
		if dot := strings.LastIndex(symbol, "."); dot >= 0 {
			return r.FindDefinition(symbol[:dot], fromFile)
		}
		return maptypes.Definition{}, false
	}

	if len(defs) == 1 {
		return defs[0], true
	}

	if fromFile != "" {
		for _, d := range defs {
			if d.File == fromFile {
				return d, true
			}
		}
		imported := r.importMap[fromFile]
		for _, d := range defs {
			for _, imp := range imported {
				if d.File == imp {
					return d, true
				}
			}
		}
	}

	return defs[0], true
}

// FindReferences returns every reference to symbol, optionally
// restricted to occurrences in file. Matching accepts either the
// bare symbol name or a qualified "Class.symbol" reference.
func (r *Resolver) FindReferences(symbol, file string) []maptypes.SymbolReference {
	refs := append([]maptypes.SymbolReference(nil), r.referenceIndex[symbol]...)
	if dot := strings.LastIndex(symbol, "."); dot >= 0 {
		refs = append(refs, r.referenceIndex[symbol[dot+1:]]...)
	}
	for name, list := range r.referenceIndex {
		if strings.HasSuffix(name, "."+symbol) {
			refs = append(refs, list...)
		}
	}

	if file == "" {
		return refs
	}
	var out []maptypes.SymbolReference
	for _, ref := range refs {
		if ref.File == file {
			out = append(out, ref)
		}
	}
	return out
}

// GetDependencies returns the files path imports. When includeIndirect
// is true, the result is the full transitive closure (cycle-safe).
func (r *Resolver) GetDependencies(path string, includeIndirect bool) []string {
	if !includeIndirect {
		out := append([]string{}, r.importMap[path]...)
		sort.Strings(out)
		return out
	}

	visited := make(map[string]struct{})
	var walk func(string)
	walk = func(p string) {
		for _, dep := range r.importMap[p] {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(path)

	out := make([]string, 0, len(visited))
	for p := range visited {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetDependents returns every file whose import map contains path.
func (r *Resolver) GetDependents(path string) []string {
	var out []string
	for p, deps := range r.importMap {
		for _, d := range deps {
			if d == path {
				out = append(out, p)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Statistics summarizes the built indexes.
type Statistics struct {
	SymbolCount      int
	DefinitionCount  int
	ReferenceCount   int
	TopReferenced    []SymbolCount
}

// SymbolCount pairs a symbol name with its reference count.
type SymbolCount struct {
	Symbol string
	Count  int
}

// Statistics reports symbol/definition/reference counts and the 10
// most-referenced symbols, most-referenced first.
func (r *Resolver) Statistics() Statistics {
	stats := Statistics{SymbolCount: len(r.symbolIndex)}
	for _, defs := range r.symbolIndex {
		stats.DefinitionCount += len(defs)
	}

	counts := make([]SymbolCount, 0, len(r.referenceIndex))
	for symbol, refs := range r.referenceIndex {
		stats.ReferenceCount += len(refs)
		counts = append(counts, SymbolCount{Symbol: symbol, Count: len(refs)})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Symbol < counts[j].Symbol
	})
	if len(counts) > 10 {
		counts = counts[:10]
	}
	stats.TopReferenced = counts

	return stats
}

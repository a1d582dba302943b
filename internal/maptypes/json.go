package maptypes

import (
	"encoding/json"
	"sort"
)

// fileNodeWire is the on-disk/wire shape of FileNode: dependency sets
// become sorted string lists so the cache file is stable and readable.
type fileNodeWire struct {
	Path               string              `json:"path"`
	Language           string              `json:"language"`
	LinesOfCode        int                 `json:"lines_of_code"`
	Functions          []FunctionSignature `json:"functions,omitempty"`
	Classes            []ClassSignature    `json:"classes,omitempty"`
	Imports            []string            `json:"imports,omitempty"`
	Dependencies       []string            `json:"dependencies,omitempty"`
	TypeHintCoverage   float64             `json:"type_hint_coverage"`
	HasModuleDocstring bool                `json:"has_module_docstring"`
	LastModified       string              `json:"last_modified"`
}

// MarshalJSON renders FileNode with dependency sets as sorted lists
// and the last-modified timestamp in ISO-8601.
func (f *FileNode) MarshalJSON() ([]byte, error) {
	deps := f.DependencyList()
	sort.Strings(deps)
	wire := fileNodeWire{
		Path:               f.Path,
		Language:           f.Language,
		LinesOfCode:        f.LinesOfCode,
		Functions:          f.Functions,
		Classes:            f.Classes,
		Imports:            f.Imports,
		Dependencies:       deps,
		TypeHintCoverage:   f.TypeHintCoverage,
		HasModuleDocstring: f.HasModuleDocstring,
		LastModified:       f.LastModified.Format(isoLayout),
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores FileNode from its wire shape.
func (f *FileNode) UnmarshalJSON(data []byte) error {
	var wire fileNodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	f.Path = wire.Path
	f.Language = wire.Language
	f.LinesOfCode = wire.LinesOfCode
	f.Functions = wire.Functions
	f.Classes = wire.Classes
	f.Imports = wire.Imports
	f.TypeHintCoverage = wire.TypeHintCoverage
	f.HasModuleDocstring = wire.HasModuleDocstring
	f.Dependencies = make(map[string]struct{}, len(wire.Dependencies))
	for _, dep := range wire.Dependencies {
		f.Dependencies[dep] = struct{}{}
	}
	if wire.LastModified != "" {
		t, err := parseISO(wire.LastModified)
		if err != nil {
			return err
		}
		f.LastModified = t
	}
	return nil
}

// repositoryMapWire is the on-disk shape of RepositoryMap: the
// dependency graph's edge sets become sorted string lists.
type repositoryMapWire struct {
	Root            string               `json:"root"`
	TotalFiles      int                  `json:"total_files"`
	TotalLines      int                  `json:"total_lines"`
	Languages       map[string]int       `json:"languages"`
	Modules         map[string]*FileNode `json:"modules"`
	DependencyGraph map[string][]string  `json:"dependency_graph"`
	EntryPoints     []string             `json:"entry_points"`
	TestFiles       []string             `json:"test_files"`
	GeneratedAt     string               `json:"generated_at"`
}

// MarshalJSON renders RepositoryMap with edge sets as sorted lists and
// the generated-at timestamp in ISO-8601.
func (r *RepositoryMap) MarshalJSON() ([]byte, error) {
	graph := make(map[string][]string, len(r.DependencyGraph))
	for path, edges := range r.DependencyGraph {
		list := make([]string, 0, len(edges))
		for edge := range edges {
			list = append(list, edge)
		}
		sort.Strings(list)
		graph[path] = list
	}
	wire := repositoryMapWire{
		Root:            r.Root,
		TotalFiles:      r.TotalFiles,
		TotalLines:      r.TotalLines,
		Languages:       r.Languages,
		Modules:         r.Modules,
		DependencyGraph: graph,
		EntryPoints:     r.EntryPoints,
		TestFiles:       r.TestFiles,
		GeneratedAt:     r.GeneratedAt.Format(isoLayout),
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores RepositoryMap from its wire shape.
func (r *RepositoryMap) UnmarshalJSON(data []byte) error {
	var wire repositoryMapWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Root = wire.Root
	r.TotalFiles = wire.TotalFiles
	r.TotalLines = wire.TotalLines
	r.Languages = wire.Languages
	if r.Languages == nil {
		r.Languages = make(map[string]int)
	}
	r.Modules = wire.Modules
	if r.Modules == nil {
		r.Modules = make(map[string]*FileNode)
	}
	r.DependencyGraph = make(map[string]map[string]struct{}, len(wire.DependencyGraph))
	for path, list := range wire.DependencyGraph {
		set := make(map[string]struct{}, len(list))
		for _, edge := range list {
			set[edge] = struct{}{}
		}
		r.DependencyGraph[path] = set
	}
	r.EntryPoints = wire.EntryPoints
	r.TestFiles = wire.TestFiles
	if wire.GeneratedAt != "" {
		t, err := parseISO(wire.GeneratedAt)
		if err != nil {
			return err
		}
		r.GeneratedAt = t
	}
	return nil
}

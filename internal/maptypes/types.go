// Package maptypes holds the shared data model used across the
// repository intelligence engine: file/function/class signatures, the
// repository map, symbol references, token budgets, and context
// request/result pairs.
package maptypes

import "time"

// FunctionSignature describes one function or method extracted from a
// source file.
type FunctionSignature struct {
	Name         string   `json:"name"`
	Module       string   `json:"module"`
	File         string   `json:"file"`
	LineStart    int      `json:"line_start"`
	LineEnd      int      `json:"line_end"`
	Parameters   []string `json:"parameters"`
	ReturnType   string   `json:"return_type,omitempty"`
	Docstring    string   `json:"docstring,omitempty"`
	Complexity   int      `json:"complexity"`
	IsAsync      bool     `json:"is_async"`
	IsMethod     bool     `json:"is_method"`
	Decorators   []string `json:"decorators,omitempty"`
}

// ClassSignature describes one class extracted from a source file.
type ClassSignature struct {
	Name         string              `json:"name"`
	Module       string              `json:"module"`
	File         string              `json:"file"`
	LineStart    int                 `json:"line_start"`
	LineEnd      int                 `json:"line_end"`
	Bases        []string            `json:"bases,omitempty"`
	Methods      []FunctionSignature `json:"methods,omitempty"`
	Attributes   []string            `json:"attributes,omitempty"`
	Docstring    string              `json:"docstring,omitempty"`
	Decorators   []string            `json:"decorators,omitempty"`
	IsDataclass  bool                `json:"is_dataclass"`
}

// FileNode is the analysis result for a single source file.
type FileNode struct {
	Path               string           `json:"path"`
	Language           string           `json:"language"`
	LinesOfCode        int              `json:"lines_of_code"`
	Functions          []FunctionSignature `json:"functions,omitempty"`
	Classes            []ClassSignature    `json:"classes,omitempty"`
	Imports            []string         `json:"imports,omitempty"`
	Dependencies       map[string]struct{} `json:"dependencies,omitempty"`
	TypeHintCoverage   float64          `json:"type_hint_coverage"`
	HasModuleDocstring bool             `json:"has_module_docstring"`
	LastModified       time.Time        `json:"last_modified"`
}

// DependencyList returns the resolved dependency set as a sorted-free
// slice (callers sort when a stable order is needed).
func (f *FileNode) DependencyList() []string {
	out := make([]string, 0, len(f.Dependencies))
	for dep := range f.Dependencies {
		out = append(out, dep)
	}
	return out
}

// RepositoryMap is the full, owned-by-the-mapper snapshot of a
// repository: every analyzed file, the resolved dependency graph, and
// derived metadata (entry points, test files, language histogram).
type RepositoryMap struct {
	Root             string                         `json:"root"`
	TotalFiles       int                            `json:"total_files"`
	TotalLines       int                            `json:"total_lines"`
	Languages        map[string]int                 `json:"languages"`
	Modules          map[string]*FileNode            `json:"modules"`
	DependencyGraph  map[string]map[string]struct{} `json:"dependency_graph"`
	EntryPoints      []string                       `json:"entry_points"`
	TestFiles        []string                       `json:"test_files"`
	GeneratedAt      time.Time                      `json:"generated_at"`
}

// NewRepositoryMap returns an empty, initialized RepositoryMap rooted
// at root.
func NewRepositoryMap(root string) *RepositoryMap {
	return &RepositoryMap{
		Root:            root,
		Languages:       make(map[string]int),
		Modules:         make(map[string]*FileNode),
		DependencyGraph: make(map[string]map[string]struct{}),
	}
}

// ReferenceKind is the closed set of reasons a SymbolReference exists.
type ReferenceKind string

const (
	ReferenceDefinition ReferenceKind = "definition"
	ReferenceUsage      ReferenceKind = "usage"
	ReferenceImport     ReferenceKind = "import"
)

// SymbolKind is the closed set of symbol categories the resolver
// tracks.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
	SymbolVariable SymbolKind = "variable"
	SymbolModule   SymbolKind = "module"
	SymbolUnknown  SymbolKind = "unknown"
)

// SymbolReference is one occurrence of a symbol name: a definition, a
// usage, or an import.
type SymbolReference struct {
	Symbol     string        `json:"symbol"`
	File       string        `json:"file"`
	Line       int           `json:"line"`
	Column     int           `json:"column"`
	Kind       ReferenceKind `json:"kind"`
	Context    string        `json:"context"`
	SymbolKind SymbolKind    `json:"symbol_kind"`
}

// Definition is a single place a symbol is defined.
type Definition struct {
	Symbol    string     `json:"symbol"`
	File      string     `json:"file"`
	Line      int        `json:"line"`
	Column    int        `json:"column"`
	Kind      SymbolKind `json:"kind"`
	Signature string     `json:"signature,omitempty"`
	Docstring string     `json:"docstring,omitempty"`
}

// FileEventKind is the closed set of filesystem change kinds the
// monitor reports.
type FileEventKind string

const (
	FileCreated  FileEventKind = "created"
	FileModified FileEventKind = "modified"
	FileDeleted  FileEventKind = "deleted"
	FileMoved    FileEventKind = "moved"
)

// FileEvent describes one coalesced filesystem change.
type FileEvent struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Kind      FileEventKind `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
	OldPath   string        `json:"old_path,omitempty"`
}

// FileImportance is the cached result of scoring one file.
type FileImportance struct {
	Path      string             `json:"path"`
	Score     float64            `json:"score"`
	Factors   map[string]float64 `json:"factors"`
	ScoredAt  time.Time          `json:"scored_at"`
}

// TokenBudget is a partitioned allocation of a token ceiling across
// named sections.
type TokenBudget struct {
	Total            int            `json:"total"`
	Available        int            `json:"available"`
	ReservedResponse int            `json:"reserved_response"`
	Allocations      map[string]int `json:"allocations"`
}

// ContextItemKind is the closed set of candidate-inclusion kinds C7/C8
// work with.
type ContextItemKind string

const (
	ItemFile     ContextItemKind = "file"
	ItemFunction ContextItemKind = "function"
	ItemClass    ContextItemKind = "class"
	ItemImport   ContextItemKind = "import"
	ItemSummary  ContextItemKind = "summary"
	ItemMetadata ContextItemKind = "metadata"
)

// ContextItem is one candidate inclusion in an assembled excerpt.
type ContextItem struct {
	Path       string                 `json:"path"`
	Content    string                 `json:"content"`
	Importance float64                `json:"importance"`
	Tokens     int                    `json:"tokens"`
	Kind       ContextItemKind        `json:"kind"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
}

// Operation is the closed set of edit intents a ContextRequest can
// carry.
type Operation string

const (
	OpGenerate Operation = "generate"
	OpFix      Operation = "fix"
	OpRefactor Operation = "refactor"
	OpExplain  Operation = "explain"
	OpTest     Operation = "test"
	OpDocument Operation = "document"
)

// Valid reports whether op is one of the six recognized operations.
func (op Operation) Valid() bool {
	switch op {
	case OpGenerate, OpFix, OpRefactor, OpExplain, OpTest, OpDocument:
		return true
	}
	return false
}

// ContextRequest is the input to the context provider.
type ContextRequest struct {
	Operation          Operation `json:"operation"`
	TargetFile         string    `json:"target_file,omitempty"`
	TargetFunction     string    `json:"target_function,omitempty"`
	TargetClass        string    `json:"target_class,omitempty"`
	RelatedFiles       []string  `json:"related_files,omitempty"`
	TokenBudget        int       `json:"token_budget,omitempty"`
	IncludeTests       bool      `json:"include_tests"`
	IncludeDocstrings  bool      `json:"include_docstrings"`
	RecentChanges      []string  `json:"recent_changes,omitempty"`
	ModelName          string    `json:"model_name,omitempty"`
}

// ContextResult is the assembled excerpt returned by the context
// provider.
type ContextResult struct {
	Context           string   `json:"context"`
	FilesIncluded     []string `json:"files_included"`
	FunctionsIncluded []string `json:"functions_included"`
	ClassesIncluded   []string `json:"classes_included"`
	TokenEstimate     int      `json:"token_estimate"`
	Truncated         bool     `json:"truncated"`
}

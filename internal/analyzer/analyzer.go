// Package analyzer turns a single source file into a maptypes.FileNode:
// functions, classes, imports, complexity, and type-hint coverage for
// the primary language (Python), with a lightweight stub for every
// other language the repository mapper discovers.
//
// Parsing is grounded on the tree-sitter integration pattern used
// elsewhere in this codebase: one shared *sitter.Language per
// language, a recursive node walk, and byte-slice text extraction
// from the already-read file content instead of re-reading the file
// per node.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/standardbeagle/repomap-engine/internal/engineerrors"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// stdlibModules is the exact set of standard-library module names
// excluded from a file's recorded dependency set. Leading-underscore
// module names are excluded unconditionally, regardless of this list.
var stdlibModules = map[string]struct{}{
	"abc": {}, "ast": {}, "asyncio": {}, "collections": {}, "contextlib": {},
	"copy": {}, "dataclasses": {}, "datetime": {}, "enum": {}, "functools": {},
	"hashlib": {}, "io": {}, "itertools": {}, "json": {}, "logging": {},
	"math": {}, "os": {}, "pathlib": {}, "pickle": {}, "random": {}, "re": {},
	"shutil": {}, "string": {}, "sys": {}, "tempfile": {}, "threading": {},
	"time": {}, "typing": {}, "unittest": {}, "uuid": {}, "warnings": {},
}

// branchingNodeTypes are the tree-sitter node types that add one to
// cyclomatic complexity: conditionals, loops, exception handlers,
// context managers, comprehensions, and ternaries. Boolean chains are
// scored separately in complexityOf.
var branchingNodeTypes = map[string]struct{}{
	"if_statement": {}, "elif_clause": {}, "for_statement": {},
	"while_statement": {}, "except_clause": {}, "with_statement": {},
	"list_comprehension": {}, "set_comprehension": {},
	"dictionary_comprehension": {}, "generator_expression": {},
	"conditional_expression": {},
}

type cacheKey struct {
	path  string
	mtime int64
}

// Analyzer parses Python source into FileNodes and passes every other
// language through as a stub.
type Analyzer struct {
	language *sitter.Language
	cache    *lru.Cache[cacheKey, *maptypes.FileNode]
}

// New returns an Analyzer with an LRU cache bounded to cacheSize
// (path, mtime) entries.
func New(cacheSize int) (*Analyzer, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	c, err := lru.New[cacheKey, *maptypes.FileNode](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating analyzer cache: %w", err)
	}
	return &Analyzer{language: python.GetLanguage(), cache: c}, nil
}

// AnalyzeFile parses path and returns its FileNode. Non-Python files
// get a stub node (path, language, line count, mtime only). A
// tree-sitter parse failure is reported as a *engineerrors.Error with
// KindParse and does not panic the caller.
func (a *Analyzer) AnalyzeFile(path string) (*maptypes.FileNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, engineerrors.Wrap(engineerrors.KindIO, "stat "+path, err)
	}

	key := cacheKey{path: path, mtime: info.ModTime().UnixNano()}
	if cached, ok := a.cache.Get(key); ok {
		return cached, nil
	}

	lang := DetectLanguage(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerrors.Wrap(engineerrors.KindIO, "read "+path, err)
	}

	var node *maptypes.FileNode
	if lang == "python" {
		node, err = a.analyzePython(path, content, info.ModTime())
		if err != nil {
			return nil, err
		}
	} else {
		node = stubNode(path, lang, content, info.ModTime())
	}

	a.cache.Add(key, node)
	return node, nil
}

func stubNode(path, lang string, content []byte, mtime time.Time) *maptypes.FileNode {
	return &maptypes.FileNode{
		Path:         path,
		Language:     lang,
		LinesOfCode:  countLines(content),
		Dependencies: make(map[string]struct{}),
		LastModified: mtime,
	}
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

// DetectLanguage maps a file extension to a language tag. Only
// "python" gets full parsing; everything else is informational.
func DetectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi":
		return "python"
	case ".go":
		return "go"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	default:
		return "unknown"
	}
}

func (a *Analyzer) analyzePython(path string, content []byte, mtime time.Time) (*maptypes.FileNode, error) {
	if !utf8.Valid(content) {
		return nil, engineerrors.New(engineerrors.KindParse, "decode "+path+": not valid UTF-8")
	}

	parser := sitter.NewParser()
	parser.SetLanguage(a.language)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, engineerrors.Wrap(engineerrors.KindParse, "parse "+path, err)
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, engineerrors.New(engineerrors.KindParse, "parse "+path+": syntax error")
	}

	src := string(content)
	w := &walker{src: src}

	node := &maptypes.FileNode{
		Path:         path,
		Language:     "python",
		LinesOfCode:  countLines(content),
		Dependencies: make(map[string]struct{}),
		LastModified: mtime,
	}

	node.HasModuleDocstring = w.moduleDocstring(root) != ""

	var totalDefs, annotatedDefs int

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		def := unwrapDecorated(child)
		switch def.Type() {
		case "import_statement", "import_from_statement":
			imports, deps := w.extractImport(def)
			node.Imports = append(node.Imports, imports...)
			for _, d := range deps {
				node.Dependencies[d] = struct{}{}
			}
		case "function_definition":
			fn := w.extractFunction(def, child, "", "")
			node.Functions = append(node.Functions, fn)
			totalDefs++
			if fn.ReturnType != "" || hasAnnotatedParam(fn.Parameters) {
				annotatedDefs++
			}
		case "class_definition":
			cls := w.extractClass(def, child)
			node.Classes = append(node.Classes, cls)
			for _, m := range cls.Methods {
				totalDefs++
				if m.ReturnType != "" || hasAnnotatedParam(m.Parameters) {
					annotatedDefs++
				}
			}
		}
	}

	if totalDefs > 0 {
		node.TypeHintCoverage = float64(annotatedDefs) / float64(totalDefs)
	}

	return node, nil
}

// hasAnnotatedParam reports whether any parameter string carries a
// ":" type annotation, the format extractParameters emits.
func hasAnnotatedParam(params []string) bool {
	for _, p := range params {
		if strings.Contains(p, ":") {
			return true
		}
	}
	return false
}

// unwrapDecorated returns the wrapped definition node when node is a
// decorated_definition, otherwise node itself.
func unwrapDecorated(node *sitter.Node) *sitter.Node {
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return node
}

// decoratorsOf collects the decorator names attached to node (which
// may be a decorated_definition wrapper).
func (w *walker) decoratorsOf(outer *sitter.Node) []string {
	if outer.Type() != "decorated_definition" {
		return nil
	}
	var decorators []string
	for i := 0; i < int(outer.ChildCount()); i++ {
		c := outer.Child(i)
		if c.Type() == "decorator" {
			decorators = append(decorators, strings.TrimPrefix(strings.TrimSpace(w.text(c)), "@"))
		}
	}
	return decorators
}

type walker struct {
	src string
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(w.src) || int(start) > int(end) {
		return ""
	}
	return w.src[start:end]
}

// moduleDocstring returns the file's module-level docstring: the
// first top-level statement, if it is a bare string expression.
func (w *walker) moduleDocstring(root *sitter.Node) string {
	if root == nil || root.ChildCount() == 0 {
		return ""
	}
	first := root.Child(0)
	if first.Type() != "expression_statement" {
		return ""
	}
	if first.ChildCount() == 0 {
		return ""
	}
	expr := first.Child(0)
	if expr.Type() != "string" {
		return ""
	}
	return w.text(expr)
}

// extractImport returns the raw import text fragments and the
// resolved dependency module names (stdlib and leading-underscore
// modules excluded). For "from M import x" only M is a dependency;
// when M is dots alone ("from . import x"), each imported name is
// recorded as ".x".
func (w *walker) extractImport(node *sitter.Node) (imports []string, deps []string) {
	raw := w.text(node)
	imports = append(imports, raw)

	isFrom := node.Type() == "import_from_statement"
	fromModule := ""
	afterImport := false
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if isFrom && c.Type() == "import" {
			afterImport = true
			continue
		}
		var modName string
		switch c.Type() {
		case "dotted_name":
			modName = w.text(c)
		case "aliased_import":
			if name := c.ChildByFieldName("name"); name != nil {
				modName = w.text(name)
			}
		case "relative_import":
			modName = w.text(c)
		}
		if modName == "" {
			continue
		}
		if isFrom {
			if !afterImport {
				fromModule = modName
				if strings.Trim(modName, ".") == "" {
					continue
				}
			} else if strings.Trim(fromModule, ".") == "" {
				modName = fromModule + modName
			} else {
				continue
			}
		}
		top := strings.SplitN(modName, ".", 2)[0]
		if strings.HasPrefix(top, ".") {
			deps = append(deps, modName)
			continue
		}
		if _, excluded := stdlibModules[top]; excluded {
			continue
		}
		if strings.HasPrefix(top, "_") {
			continue
		}
		deps = append(deps, modName)
	}
	return imports, deps
}

// extractFunction builds a FunctionSignature for a function_definition
// node. outer is the same node or its decorated_definition wrapper.
func (w *walker) extractFunction(node, outer *sitter.Node, module, parent string) maptypes.FunctionSignature {
	name := w.text(node.ChildByFieldName("name"))
	isAsync := node.ChildCount() > 0 && node.Child(0).Type() == "async"

	var params []string
	if plist := node.ChildByFieldName("parameters"); plist != nil {
		params = w.extractParameters(plist)
	}

	returnType := ""
	if rt := node.ChildByFieldName("return_type"); rt != nil {
		returnType = w.text(rt)
	}

	sig := maptypes.FunctionSignature{
		Name:       name,
		Module:     module,
		File:       "",
		LineStart:  int(node.StartPoint().Row) + 1,
		LineEnd:    int(node.EndPoint().Row) + 1,
		Parameters: params,
		ReturnType: returnType,
		Docstring:  w.bodyDocstring(node),
		Complexity: w.complexityOf(node),
		IsAsync:    isAsync,
		IsMethod:   parent != "",
		Decorators: w.decoratorsOf(outer),
	}
	return sig
}

// extractParameters renders each parameter as "name" or "name: Type"
// when a type annotation is present, matching the convention
// hasAnnotatedParam checks against.
func (w *walker) extractParameters(plist *sitter.Node) []string {
	var params []string
	for i := 0; i < int(plist.ChildCount()); i++ {
		p := plist.Child(i)
		switch p.Type() {
		case "identifier":
			params = append(params, w.text(p))
		case "typed_parameter":
			name := ""
			if p.ChildCount() > 0 {
				name = w.text(p.Child(0))
			}
			var typ string
			if t := p.ChildByFieldName("type"); t != nil {
				typ = w.text(t)
			}
			if typ != "" {
				params = append(params, name+": "+typ)
			} else {
				params = append(params, name)
			}
		case "typed_default_parameter", "default_parameter":
			name := ""
			if n := p.ChildByFieldName("name"); n != nil {
				name = w.text(n)
			}
			var typ string
			if t := p.ChildByFieldName("type"); t != nil {
				typ = w.text(t)
			}
			if typ != "" {
				params = append(params, name+": "+typ)
			} else if name != "" {
				params = append(params, name)
			}
		}
	}
	return params
}

// bodyDocstring returns a function or method's docstring: the first
// statement in its body, if it is a bare string expression.
func (w *walker) bodyDocstring(node *sitter.Node) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first.Type() != "expression_statement" || first.ChildCount() == 0 {
		return ""
	}
	expr := first.Child(0)
	if expr.Type() != "string" {
		return ""
	}
	return w.text(expr)
}

// extractClass builds a ClassSignature, walking its body for nested
// method definitions only (not functions defined inside those
// methods).
func (w *walker) extractClass(node, outer *sitter.Node) maptypes.ClassSignature {
	name := w.text(node.ChildByFieldName("name"))

	var bases []string
	if sc := node.ChildByFieldName("superclasses"); sc != nil {
		for i := 0; i < int(sc.ChildCount()); i++ {
			c := sc.Child(i)
			if c.Type() == "identifier" || c.Type() == "attribute" {
				bases = append(bases, w.text(c))
			}
		}
	}

	decorators := w.decoratorsOf(outer)
	isDataclass := false
	for _, d := range decorators {
		if strings.Contains(d, "dataclass") {
			isDataclass = true
			break
		}
	}

	cls := maptypes.ClassSignature{
		Name:        name,
		LineStart:   int(node.StartPoint().Row) + 1,
		LineEnd:     int(node.EndPoint().Row) + 1,
		Bases:       bases,
		Docstring:   w.bodyDocstring(node),
		Decorators:  decorators,
		IsDataclass: isDataclass,
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return cls
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		def := unwrapDecorated(child)
		switch def.Type() {
		case "function_definition":
			cls.Methods = append(cls.Methods, w.extractFunction(def, child, "", name))
		case "expression_statement":
			if attr, ok := w.classAttribute(def); ok {
				cls.Attributes = append(cls.Attributes, attr)
			}
		}
	}
	return cls
}

// classAttribute extracts a class-body attribute from a plain or
// annotated assignment statement (e.g. "x = 1" or "x: int" / "x: int
// = 1"), rendered as "name" or "name: Type". Tuple/attribute targets
// and non-assignment expression statements are not attributes.
func (w *walker) classAttribute(stmt *sitter.Node) (string, bool) {
	if stmt.ChildCount() == 0 {
		return "", false
	}
	assign := stmt.Child(0)
	if assign.Type() != "assignment" {
		return "", false
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return "", false
	}

	name := w.text(left)
	if name == "" {
		return "", false
	}
	if t := assign.ChildByFieldName("type"); t != nil {
		if typ := w.text(t); typ != "" {
			return name + ": " + typ, true
		}
	}
	return name, true
}

// complexityOf computes cyclomatic complexity for a function's
// subtree: base 1, +1 per branching construct, +1 per additional
// boolean operand beyond the first in a chain. Nested function and
// class definitions are scored separately and excluded here.
func (w *walker) complexityOf(fn *sitter.Node) int {
	complexity := 1
	body := fn.ChildByFieldName("body")
	if body == nil {
		return complexity
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition", "class_definition":
			if n != fn {
				return
			}
		}
		if _, ok := branchingNodeTypes[n.Type()]; ok {
			complexity++
		}
		if n.Type() == "boolean_operator" {
			complexity++
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return complexity
}

// Package contextengine assembles the final, token-budgeted excerpt
// handed to an external coding assistant: it dispatches on the
// requested operation, pulls candidates from the repository map,
// importance scorer, and resolver, and renders them in importance
// order within a character budget.
package contextengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/repomap-engine/internal/budget"
	"github.com/standardbeagle/repomap-engine/internal/importance"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
	"github.com/standardbeagle/repomap-engine/internal/repomap"
	"github.com/standardbeagle/repomap-engine/internal/resolver"
	"github.com/standardbeagle/repomap-engine/internal/tokencount"
)

// Provider assembles ContextResults for a repository.
type Provider struct {
	repo     *repomap.RepoMap
	scorer   *importance.Scorer
	resolver *resolver.Resolver
	counter  *tokencount.Counter
}

// New returns a Provider wiring the repository map, importance
// scorer, reference resolver, and token counter together.
func New(repo *repomap.RepoMap, scorer *importance.Scorer, res *resolver.Resolver, counter *tokencount.Counter) *Provider {
	return &Provider{repo: repo, scorer: scorer, resolver: res, counter: counter}
}

// builder accumulates ContextItems up to a character budget.
type builder struct {
	charBudget int
	used       int
	items      []maptypes.ContextItem
	files      []string
	funcs      []string
	classes    []string
	truncated  bool
}

func newBuilder(tokenBudget int) *builder {
	return &builder{charBudget: tokenBudget * 4}
}

func (b *builder) add(item maptypes.ContextItem) bool {
	n := len(item.Content)
	if b.used+n > b.charBudget {
		b.truncated = true
		return false
	}
	b.used += n
	b.items = append(b.items, item)

	switch item.Kind {
	case maptypes.ItemFile:
		b.files = appendUnique(b.files, item.Path)
	case maptypes.ItemFunction:
		b.funcs = appendUnique(b.funcs, item.Path)
	case maptypes.ItemClass:
		b.classes = appendUnique(b.classes, item.Path)
	}
	return true
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func (b *builder) render() maptypes.ContextResult {
	var sb strings.Builder
	for i, item := range b.items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(item.Content)
	}
	return maptypes.ContextResult{
		Context:           sb.String(),
		FilesIncluded:     b.files,
		FunctionsIncluded: b.funcs,
		ClassesIncluded:   b.classes,
		TokenEstimate:     b.used / 4,
		Truncated:         b.truncated,
	}
}

// GetContext dispatches on request.Operation and assembles a
// ContextResult under a character budget of 4×request.TokenBudget.
func (p *Provider) GetContext(ctx context.Context, req maptypes.ContextRequest) (maptypes.ContextResult, error) {
	if _, err := p.repo.Scan(ctx, true); err != nil {
		return maptypes.ContextResult{}, err
	}
	snap := p.repo.Snapshot()
	if snap == nil {
		return maptypes.ContextResult{}, fmt.Errorf("repository map has not been built")
	}

	tokenBudget := req.TokenBudget
	if tokenBudget <= 0 {
		tokenBudget = 8000
	}
	b := newBuilder(tokenBudget)

	op := req.Operation
	if !op.Valid() {
		op = maptypes.OpGenerate
	}

	switch op {
	case maptypes.OpGenerate:
		p.renderGenerate(b, snap, req)
	case maptypes.OpFix:
		p.renderFix(b, snap, req)
	case maptypes.OpRefactor:
		p.renderRefactor(b, snap, req)
	case maptypes.OpExplain:
		p.renderExplain(b, snap, req)
	case maptypes.OpTest:
		p.renderTest(b, snap, req)
	case maptypes.OpDocument:
		p.renderDocument(b, snap, req)
	default:
		p.renderFallback(b, snap)
	}

	return b.render(), nil
}

func (p *Provider) renderGenerate(b *builder, snap *maptypes.RepositoryMap, req maptypes.ContextRequest) {
	b.add(maptypes.ContextItem{
		Path:    "overview",
		Kind:    maptypes.ItemSummary,
		Content: projectOverview(snap),
	})

	if req.TargetFile != "" {
		if node, ok := snap.Modules[req.TargetFile]; ok {
			b.add(maptypes.ContextItem{
				Path:    req.TargetFile,
				Kind:    maptypes.ItemFile,
				Content: fileSummary(req.TargetFile, node),
			})
		}
	}

	related := append([]string{}, req.RelatedFiles...)
	related = append(related, p.repo.Dependencies(req.TargetFile)...)
	for _, path := range uniqueStrings(related) {
		if node, ok := snap.Modules[path]; ok {
			b.add(maptypes.ContextItem{Path: path, Kind: maptypes.ItemFile, Content: fileSummary(path, node)})
		}
	}

	if pattern := crossFilePatterns(snap, req.TargetFile); pattern != "" {
		b.add(maptypes.ContextItem{Path: "patterns", Kind: maptypes.ItemSummary, Content: pattern})
	}
}

func (p *Provider) renderFix(b *builder, snap *maptypes.RepositoryMap, req maptypes.ContextRequest) {
	node, ok := snap.Modules[req.TargetFile]
	if !ok {
		return
	}
	b.add(maptypes.ContextItem{Path: req.TargetFile, Kind: maptypes.ItemFile, Content: p.fencedFile(req.TargetFile, node)})

	deps := p.repo.Dependencies(req.TargetFile)
	if len(deps) > 0 {
		var sb strings.Builder
		sb.WriteString("DEPENDENCIES:\n")
		for _, d := range deps {
			fmt.Fprintf(&sb, "- %s\n", d)
		}
		b.add(maptypes.ContextItem{Path: "dependencies", Kind: maptypes.ItemSummary, Content: sb.String()})
	}
}

func (p *Provider) renderRefactor(b *builder, snap *maptypes.RepositoryMap, req maptypes.ContextRequest) {
	node, ok := snap.Modules[req.TargetFile]
	if !ok {
		return
	}
	b.add(maptypes.ContextItem{Path: req.TargetFile, Kind: maptypes.ItemFile, Content: p.fencedFile(req.TargetFile, node)})

	dependents := p.repo.Dependents(req.TargetFile)
	if len(dependents) > 0 {
		var sb strings.Builder
		sb.WriteString("DEPENDENTS:\n")
		for _, d := range dependents {
			fmt.Fprintf(&sb, "- %s\n", d)
		}
		b.add(maptypes.ContextItem{Path: "dependents", Kind: maptypes.ItemSummary, Content: sb.String()})
	}
}

func (p *Provider) renderExplain(b *builder, snap *maptypes.RepositoryMap, req maptypes.ContextRequest) {
	node, ok := snap.Modules[req.TargetFile]
	if !ok {
		return
	}
	b.add(maptypes.ContextItem{Path: req.TargetFile, Kind: maptypes.ItemFile, Content: p.fencedFile(req.TargetFile, node)})

	meta := fmt.Sprintf(
		"METADATA:\nlanguage: %s\nlines: %d\nfunctions: %d\nclasses: %d\ntype_hint_coverage: %.2f\n",
		node.Language, node.LinesOfCode, len(node.Functions), len(node.Classes), node.TypeHintCoverage,
	)
	b.add(maptypes.ContextItem{Path: "metadata", Kind: maptypes.ItemMetadata, Content: meta})
}

func (p *Provider) renderTest(b *builder, snap *maptypes.RepositoryMap, req maptypes.ContextRequest) {
	node, ok := snap.Modules[req.TargetFile]
	if !ok {
		return
	}
	b.add(maptypes.ContextItem{Path: req.TargetFile, Kind: maptypes.ItemFile, Content: p.fencedFile(req.TargetFile, node)})

	testFiles := snap.TestFiles
	if len(testFiles) > 3 {
		testFiles = testFiles[:3]
	}
	var sb strings.Builder
	sb.WriteString("EXISTING TEST SIGNATURES:\n")
	for _, tf := range testFiles {
		tn, ok := snap.Modules[tf]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "# %s\n", tf)
		for _, fn := range tn.Functions {
			fmt.Fprintf(&sb, "def %s(%s):\n", fn.Name, strings.Join(fn.Parameters, ", "))
		}
	}
	b.add(maptypes.ContextItem{Path: "existing_tests", Kind: maptypes.ItemSummary, Content: sb.String()})
}

func (p *Provider) renderDocument(b *builder, snap *maptypes.RepositoryMap, req maptypes.ContextRequest) {
	node, ok := snap.Modules[req.TargetFile]
	if !ok {
		return
	}
	b.add(maptypes.ContextItem{Path: req.TargetFile, Kind: maptypes.ItemFile, Content: p.fencedFile(req.TargetFile, node)})

	guideline := "DOCUMENTATION GUIDELINES:\n" +
		"- Summarize the module's purpose in one sentence.\n" +
		"- Document every public function's parameters and return value.\n" +
		"- Note any side effects or raised exceptions.\n"
	b.add(maptypes.ContextItem{Path: "documentation", Kind: maptypes.ItemSummary, Content: guideline})
}

func (p *Provider) renderFallback(b *builder, snap *maptypes.RepositoryMap) {
	b.add(maptypes.ContextItem{Path: "overview", Kind: maptypes.ItemSummary, Content: p.repo.Compress(b.charBudget / 4)})
}

// GetContextWithBudgeting is the preferred entry point: it computes a
// budget with C7, builds one signature-summary candidate per module
// ranked by the scorer, runs compress, and renders the kept items in
// descending importance within a character budget of 4×tb.Total. It
// does not produce GetContext's per-operation sections or their
// ordering.
func (p *Provider) GetContextWithBudgeting(ctx context.Context, req maptypes.ContextRequest, historyLen int) (maptypes.ContextResult, error) {
	if _, err := p.repo.Scan(ctx, true); err != nil {
		return maptypes.ContextResult{}, err
	}
	snap := p.repo.Snapshot()
	if snap == nil {
		return maptypes.ContextResult{}, fmt.Errorf("repository map has not been built")
	}

	model := req.ModelName
	if model == "" {
		model = "gpt-4"
	}
	tb := budget.CalculateBudget(budget.Request{
		Operation:              req.Operation,
		TargetFile:             req.TargetFile,
		CustomBudget:           req.TokenBudget,
		ContextLimit:           tokencount.ContextWindow(model),
		ConversationHistoryLen: historyLen,
		RecentChanges:          req.RecentChanges,
	})

	candidates := p.candidateItems(snap, req, model)
	compressed := budget.Compress(candidates, tb)

	sort.SliceStable(compressed, func(i, j int) bool {
		return compressed[i].Importance > compressed[j].Importance
	})

	b := newBuilder(tb.Total)
	for _, item := range compressed {
		if !b.add(item) {
			break
		}
	}
	return b.render(), nil
}

func (p *Provider) candidateItems(snap *maptypes.RepositoryMap, req maptypes.ContextRequest, model string) []maptypes.ContextItem {
	ctx := importance.Context{TargetFile: req.TargetFile, Operation: req.Operation, RecentChanges: req.RecentChanges}

	paths := make([]string, 0, len(snap.Modules))
	for path := range snap.Modules {
		paths = append(paths, path)
	}
	ranked := p.scorer.Rank(snap, paths, ctx)

	items := make([]maptypes.ContextItem, 0, len(ranked))
	for _, r := range ranked {
		node := snap.Modules[r.Path]
		content := fileSummary(r.Path, node)
		items = append(items, maptypes.ContextItem{
			Path:       r.Path,
			Content:    content,
			Importance: r.Score,
			Tokens:     p.counter.CountTokens(content, model),
			Kind:       maptypes.ItemFile,
		})
	}
	return items
}

func uniqueStrings(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, v := range list {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func projectOverview(snap *maptypes.RepositoryMap) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "REPOSITORY OVERVIEW\nfiles: %d\nlines: %d\n", snap.TotalFiles, snap.TotalLines)
	for lang, count := range snap.Languages {
		fmt.Fprintf(&sb, "  %s: %d\n", lang, count)
	}
	return sb.String()
}

func fileSummary(path string, node *maptypes.FileNode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", path)
	for _, fn := range node.Functions {
		fmt.Fprintf(&sb, "def %s(%s)", fn.Name, strings.Join(fn.Parameters, ", "))
		if fn.ReturnType != "" {
			fmt.Fprintf(&sb, " -> %s", fn.ReturnType)
		}
		sb.WriteString(":\n")
		if fn.Docstring != "" {
			fmt.Fprintf(&sb, "    %s\n", fn.Docstring)
		}
	}
	for _, cls := range node.Classes {
		fmt.Fprintf(&sb, "class %s:\n", cls.Name)
		if cls.Docstring != "" {
			fmt.Fprintf(&sb, "    %s\n", cls.Docstring)
		}
	}
	return sb.String()
}

// fencedFile renders the target file's actual on-disk content inside
// a fenced code block, per §4.8's "full text of the target file"
// requirement. If the file cannot be read (e.g. it was deleted after
// the map was built), it falls back to the regenerated signature
// summary rather than failing the whole request.
func (p *Provider) fencedFile(path string, node *maptypes.FileNode) string {
	body := fileSummary(path, node)
	if content, err := os.ReadFile(filepath.Join(p.repo.Root(), path)); err == nil {
		body = string(content)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "```%s\n# %s\n", node.Language, path)
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n")
	return sb.String()
}

func crossFilePatterns(snap *maptypes.RepositoryMap, targetFile string) string {
	if targetFile == "" {
		return ""
	}
	dir := filepath.Dir(targetFile)
	commonImports := make(map[string]int)
	var sample string

	for path, node := range snap.Modules {
		if filepath.Dir(path) != dir || path == targetFile {
			continue
		}
		for _, imp := range node.Imports {
			commonImports[imp]++
		}
		if sample == "" && len(node.Classes) > 0 {
			sample = fmt.Sprintf("class %s:\n", node.Classes[0].Name)
		}
	}
	if len(commonImports) == 0 && sample == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("CROSS-FILE PATTERNS:\n")
	for imp, count := range commonImports {
		if count > 1 {
			fmt.Fprintf(&sb, "common import: %s\n", imp)
		}
	}
	if sample != "" {
		sb.WriteString(sample)
	}
	return sb.String()
}

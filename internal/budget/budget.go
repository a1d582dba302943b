// Package budget partitions a token ceiling across the named context
// sections an editing operation needs, then greedily packs candidate
// context items into those sections under the resulting allocation.
package budget

import (
	"math"
	"sort"
	"strings"

	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// Section names, matching the engine's per-operation allocation
// table exactly.
const (
	SectionRepositoryOverview = "repository_overview"
	SectionTargetFile         = "target_file"
	SectionDependencies       = "dependencies"
	SectionDependents         = "dependents"
	SectionRelatedPatterns    = "related_patterns"
	SectionErrorContext       = "error_context"
	SectionPatterns           = "patterns"
	SectionMetadata           = "metadata"
	SectionExistingTests      = "existing_tests"
	SectionDocumentation      = "documentation"
	SectionReserveResponse    = "reserve_response"
)

// operationPercentages is the exact per-operation section allocation
// table, percent of total.
var operationPercentages = map[maptypes.Operation]map[string]int{
	maptypes.OpGenerate: {
		SectionRepositoryOverview: 10,
		SectionTargetFile:         40,
		SectionDependencies:       30,
		SectionRelatedPatterns:    15,
		SectionReserveResponse:    5,
	},
	maptypes.OpFix: {
		SectionRepositoryOverview: 5,
		SectionTargetFile:         60,
		SectionDependencies:       20,
		SectionErrorContext:       10,
		SectionReserveResponse:    5,
	},
	maptypes.OpRefactor: {
		SectionRepositoryOverview: 10,
		SectionTargetFile:         50,
		SectionDependents:         25,
		SectionPatterns:           10,
		SectionReserveResponse:    5,
	},
	maptypes.OpExplain: {
		SectionRepositoryOverview: 15,
		SectionTargetFile:         50,
		SectionMetadata:           20,
		SectionReserveResponse:    15,
	},
	maptypes.OpTest: {
		SectionRepositoryOverview: 10,
		SectionTargetFile:         40,
		SectionPatterns:           10,
		SectionExistingTests:      30,
		SectionReserveResponse:    10,
	},
	maptypes.OpDocument: {
		SectionRepositoryOverview: 10,
		SectionTargetFile:         50,
		SectionDocumentation:      25,
		SectionReserveResponse:    10,
	},
}

// Request is the input to CalculateBudget.
type Request struct {
	Operation              maptypes.Operation
	TargetFile             string
	CustomBudget           int
	ContextLimit           int
	ConversationHistoryLen int
	RecentChanges          []string
}

// CalculateBudget implements the exact 4-step algorithm from the
// token budgeter: resolve a total, reserve the response section,
// allocate each remaining section by percentage (granting whatever is
// available when the nominal amount doesn't fit), then apply the
// soft-clamped recent-changes boost to target_file.
func CalculateBudget(req Request) maptypes.TokenBudget {
	op := req.Operation
	if !op.Valid() {
		op = maptypes.OpGenerate
	}
	pct := operationPercentages[op]

	var total int
	if req.CustomBudget > 0 {
		total = req.CustomBudget
		if req.ContextLimit > 0 {
			total = minInt(total, req.ContextLimit)
		}
	} else {
		total = req.ContextLimit - req.ConversationHistoryLen - int(0.3*float64(req.ContextLimit))
		if total < 0 {
			total = 0
		}
	}

	reservedResponse := int(float64(total) * float64(pct[SectionReserveResponse]) / 100.0)
	available := total - reservedResponse
	if available < 0 {
		available = 0
	}

	allocations := make(map[string]int)
	spent := 0
	for section, p := range pct {
		if section == SectionReserveResponse {
			continue
		}
		want := int(float64(total) * float64(p) / 100.0)
		remaining := available - spent
		if want > remaining {
			want = remaining
		}
		if want < 0 {
			want = 0
		}
		allocations[section] = want
		spent += want
	}

	if req.TargetFile != "" && allocations[SectionTargetFile] > 0 && containsString(req.RecentChanges, req.TargetFile) {
		boost := int(float64(total) * 0.1)
		remaining := available - spent
		if boost > remaining {
			boost = remaining
		}
		if boost > 0 {
			allocations[SectionTargetFile] += boost
			spent += boost
		}
	}

	return maptypes.TokenBudget{
		Total:            total,
		Available:        available,
		ReservedResponse: reservedResponse,
		Allocations:      allocations,
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sectionKeyOverrides maps a path substring to the section it forces
// an item into, regardless of the item's kind.
var sectionKeyOverrides = []struct {
	substr  string
	section string
}{
	{"dependency", SectionDependencies},
	{"import", SectionDependencies},
	{"target", SectionTargetFile},
}

// sectionKeyFor maps an item to its section: files/functions/classes
// go to target_file, imports go to dependencies, summaries go to
// repository_overview, then path-substring overrides take priority.
func sectionKeyFor(item maptypes.ContextItem) string {
	key := SectionTargetFile
	switch item.Kind {
	case maptypes.ItemFile, maptypes.ItemFunction, maptypes.ItemClass:
		key = SectionTargetFile
	case maptypes.ItemImport:
		key = SectionDependencies
	case maptypes.ItemSummary:
		key = SectionRepositoryOverview
	}

	lower := strings.ToLower(item.Path)
	for _, o := range sectionKeyOverrides {
		if strings.Contains(lower, o.substr) {
			key = o.section
		}
	}
	return key
}

// Compress sorts items by (importance descending, token_count
// ascending) and greedily packs them into budget's section
// allocations, staying within both the per-section allocation and
// the overall available total. An item that doesn't fit is
// summarized (file items only) and included if the summary fits,
// otherwise dropped.
func Compress(items []maptypes.ContextItem, tb maptypes.TokenBudget) []maptypes.ContextItem {
	sorted := append([]maptypes.ContextItem{}, items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Importance != sorted[j].Importance {
			return sorted[i].Importance > sorted[j].Importance
		}
		return sorted[i].Tokens < sorted[j].Tokens
	})

	usage := make(map[string]int)
	cumulative := 0
	var out []maptypes.ContextItem

	for _, item := range sorted {
		section := sectionKeyFor(item)
		allocation := tb.Allocations[section]

		if usage[section]+item.Tokens <= allocation && cumulative+item.Tokens <= tb.Available {
			out = append(out, item)
			usage[section] += item.Tokens
			cumulative += item.Tokens
			continue
		}

		summary, ok := summarize(item)
		if !ok {
			continue
		}
		if usage[section]+summary.Tokens <= allocation && cumulative+summary.Tokens <= tb.Available {
			out = append(out, summary)
			usage[section] += summary.Tokens
			cumulative += summary.Tokens
		}
	}

	return out
}

// summarize reduces a file item to its import lines, function/class
// signature lines, and docstring delimiters. Non-file items cannot be
// summarized.
func summarize(item maptypes.ContextItem) (maptypes.ContextItem, bool) {
	if item.Kind != maptypes.ItemFile {
		return maptypes.ContextItem{}, false
	}

	var kept []string
	for _, line := range strings.Split(item.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from "):
			kept = append(kept, line)
		case strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "async def ") ||
			strings.HasPrefix(trimmed, "class "):
			kept = append(kept, line)
		case strings.HasPrefix(trimmed, `"""`) || strings.HasPrefix(trimmed, "'''"):
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return maptypes.ContextItem{}, false
	}

	content := strings.Join(kept, "\n")
	return maptypes.ContextItem{
		Path:       item.Path,
		Content:    content,
		Importance: item.Importance,
		Tokens:     estimateTokens(content),
		Kind:       maptypes.ItemSummary,
		Metadata:   item.Metadata,
	}, true
}

// estimateTokens is the budgeter's own lightweight estimate (chars/4)
// used only to size a freshly produced summary; callers that already
// have a model-accurate count (via internal/tokencount) should prefer
// that instead.
func estimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}

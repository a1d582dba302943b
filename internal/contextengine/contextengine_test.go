package contextengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/repomap-engine/internal/analyzer"
	"github.com/standardbeagle/repomap-engine/internal/config"
	"github.com/standardbeagle/repomap-engine/internal/importance"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
	"github.com/standardbeagle/repomap-engine/internal/repomap"
	"github.com/standardbeagle/repomap-engine/internal/resolver"
	"github.com/standardbeagle/repomap-engine/internal/tokencount"
)

func newTestProvider(t *testing.T) (string, *Provider) {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte(
		"import utils\n\n\ndef main():\n    utils.helper()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "utils.py"), []byte(
		"\"\"\"Utility functions.\"\"\"\n\n\ndef helper():\n    return True\n\n\nclass Helper:\n    \"\"\"A helper class.\"\"\"\n\n    def run(self):\n        pass\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tests", "test_utils.py"), []byte(
		"def test_helper():\n    assert True\n"), 0o644))

	cfg := config.Default(dir)
	an, err := analyzer.New(32)
	require.NoError(t, err)
	rm, err := repomap.New(cfg, an)
	require.NoError(t, err)

	_, err = rm.Scan(context.Background(), false)
	require.NoError(t, err)

	res := resolver.New(".")
	res.BuildIndexes(rm.Snapshot())

	scorer := importance.New()
	counter, err := tokencount.New(64)
	require.NoError(t, err)

	return dir, New(rm, scorer, res, counter)
}

func TestGetContext_GenerateIncludesOverviewAndTargetFile(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpGenerate,
		TargetFile:  "main.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Context, "REPOSITORY OVERVIEW")
	assert.Contains(t, result.FilesIncluded, "main.py")
}

func TestGetContext_FixIncludesFencedFileAndDependencies(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpFix,
		TargetFile:  "main.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Context, "def main():\n    utils.helper()")
	assert.Contains(t, result.Context, "DEPENDENCIES:")
	assert.Contains(t, result.Context, "utils.py")
}

func TestGetContext_RefactorIncludesDependents(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpRefactor,
		TargetFile:  "utils.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Context, "DEPENDENTS:")
	assert.Contains(t, result.Context, "main.py")
}

func TestGetContext_ExplainIncludesMetadata(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpExplain,
		TargetFile:  "utils.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Context, "METADATA:")
	assert.Contains(t, result.Context, "language: python")
}

func TestGetContext_TestIncludesExistingTestSignatures(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpTest,
		TargetFile:  "utils.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Context, "EXISTING TEST SIGNATURES:")
	assert.Contains(t, result.Context, "def test_helper(")
}

func TestGetContext_DocumentIncludesGuidelines(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpDocument,
		TargetFile:  "utils.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)

	assert.Contains(t, result.Context, "DOCUMENTATION GUIDELINES:")
}

func TestGetContext_UnknownOperationFallsBackToOverview(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.Operation("nonsense"),
		TokenBudget: 2000,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Context, "REPOSITORY OVERVIEW")
}

func TestGetContext_TruncatesWhenCharBudgetExhausted(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpGenerate,
		TargetFile:  "main.py",
		TokenBudget: 1,
	})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
}

func TestGetContextWithBudgeting_ReturnsNonEmptyContext(t *testing.T) {
	_, p := newTestProvider(t)

	result, err := p.GetContextWithBudgeting(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpGenerate,
		TargetFile:  "main.py",
		TokenBudget: 4000,
		ModelName:   "gpt-4",
	}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Context)
}

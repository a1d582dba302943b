package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/repomap-engine/internal/config"
	"github.com/standardbeagle/repomap-engine/internal/importance"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

func newTestEngine(t *testing.T) (string, *Engine) {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte(
		"import utils\n\n\ndef main():\n    utils.helper()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "utils.py"), []byte(
		"\"\"\"Utility functions.\"\"\"\n\n\ndef helper():\n    return True\n"), 0o644))

	cfg := config.Default(dir)
	e, err := New(cfg)
	require.NoError(t, err)

	_, err = e.Scan(context.Background(), false)
	require.NoError(t, err)

	return dir, e
}

func TestEngine_ScanPopulatesSnapshotAndResolver(t *testing.T) {
	_, e := newTestEngine(t)

	snap := e.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.TotalFiles)

	def, ok := e.FindDefinition("helper", "main.py")
	require.True(t, ok)
	assert.Equal(t, "utils.py", def.File)
}

func TestEngine_GetContextDispatchesByOperation(t *testing.T) {
	_, e := newTestEngine(t)

	result, err := e.GetContext(context.Background(), maptypes.ContextRequest{
		Operation:   maptypes.OpFix,
		TargetFile:  "main.py",
		TokenBudget: 2000,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Context, "def main(")
}

func TestEngine_ImportanceScoresEntryPointHighly(t *testing.T) {
	_, e := newTestEngine(t)

	ctx := importance.Context{TargetFile: "main.py", Operation: maptypes.OpGenerate}
	mainScore := e.Importance("main.py", ctx)
	utilsScore := e.Importance("utils.py", ctx)

	assert.GreaterOrEqual(t, mainScore.Score, utilsScore.Score)
}

func TestEngine_InvalidateRemovesCache(t *testing.T) {
	_, e := newTestEngine(t)
	require.NoError(t, e.Invalidate())

	_, err := os.Stat(filepath.Join(e.Root(), ".vibe_cache", "repo_map.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestEngine_StartAndStopWatching(t *testing.T) {
	_, e := newTestEngine(t)

	ctx := context.Background()
	require.NoError(t, e.StartWatching(ctx))
	require.NoError(t, e.StopWatching())
}

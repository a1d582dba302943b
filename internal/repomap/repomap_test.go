package repomap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/repomap-engine/internal/analyzer"
	"github.com/standardbeagle/repomap-engine/internal/config"
)

func newTestRepo(t *testing.T) (string, *RepoMap) {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte(
		"import app\n\n\ndef main():\n    app.run()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte(
		"\"\"\"App module.\"\"\"\n\n\ndef run():\n    return True\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tests", "test_app.py"), []byte(
		"def test_run():\n    assert True\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644))

	cfg := config.Default(dir)
	an, err := analyzer.New(32)
	require.NoError(t, err)
	rm, err := New(cfg, an)
	require.NoError(t, err)
	return dir, rm
}

func TestScan_DiscoversAndAnalyzesFiles(t *testing.T) {
	_, rm := newTestRepo(t)

	snap, err := rm.Scan(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.TotalFiles)
	assert.Contains(t, snap.EntryPoints, "main.py")
	assert.Contains(t, snap.TestFiles, "tests/test_app.py")
}

func TestScan_BuildsDependencyGraph(t *testing.T) {
	_, rm := newTestRepo(t)

	_, err := rm.Scan(context.Background(), false)
	require.NoError(t, err)

	deps := rm.Dependencies("main.py")
	assert.Contains(t, deps, "app.py")

	dependents := rm.Dependents("app.py")
	assert.Contains(t, dependents, "main.py")
}

func TestScan_UsesCacheOnSecondCall(t *testing.T) {
	_, rm := newTestRepo(t)

	_, err := rm.Scan(context.Background(), false)
	require.NoError(t, err)

	cfg := config.Default(rm.Root())
	an, err := analyzer.New(32)
	require.NoError(t, err)
	rm2, err := New(cfg, an)
	require.NoError(t, err)

	snap, err := rm2.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalFiles)
}

func TestUpdateOnChange_AddsNewFile(t *testing.T) {
	_, rm := newTestRepo(t)
	ctx := context.Background()

	_, err := rm.Scan(ctx, false)
	require.NoError(t, err)

	newFile := filepath.Join(rm.Root(), "extra.py")
	require.NoError(t, os.WriteFile(newFile, []byte("def extra():\n    pass\n"), 0o644))

	require.NoError(t, rm.UpdateOnChange(ctx, newFile, false))
	assert.Equal(t, 4, rm.Snapshot().TotalFiles)
}

func TestUpdateOnChange_RemovesDeletedFile(t *testing.T) {
	_, rm := newTestRepo(t)
	ctx := context.Background()

	_, err := rm.Scan(ctx, false)
	require.NoError(t, err)

	appPath := filepath.Join(rm.Root(), "app.py")
	require.NoError(t, os.Remove(appPath))
	require.NoError(t, rm.UpdateOnChange(ctx, appPath, true))

	assert.Equal(t, 2, rm.Snapshot().TotalFiles)
	_, stillThere := rm.Snapshot().Modules["app.py"]
	assert.False(t, stillThere)
}

func TestInvalidate_RemovesCacheFile(t *testing.T) {
	_, rm := newTestRepo(t)
	ctx := context.Background()

	_, err := rm.Scan(ctx, false)
	require.NoError(t, err)

	require.NoError(t, rm.Invalidate())

	_, err = os.Stat(cachePath(rm.Root(), ".vibe_cache"))
	assert.True(t, os.IsNotExist(err))
}

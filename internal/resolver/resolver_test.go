package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

func buildSnapshot() *maptypes.RepositoryMap {
	snap := maptypes.NewRepositoryMap("/repo")

	app := &maptypes.FileNode{
		Path:         "/repo/app.py",
		Dependencies: map[string]struct{}{},
		Classes: []maptypes.ClassSignature{
			{
				Name: "Server",
				Methods: []maptypes.FunctionSignature{
					{Name: "start"},
					{Name: "stop"},
				},
			},
		},
		Functions: []maptypes.FunctionSignature{{Name: "run"}},
	}
	main := &maptypes.FileNode{
		Path:         "/repo/main.py",
		Dependencies: map[string]struct{}{"app": {}},
		Functions:    []maptypes.FunctionSignature{{Name: "main"}},
	}

	snap.Modules["/repo/app.py"] = app
	snap.Modules["/repo/main.py"] = main
	return snap
}

func TestBuildIndexes_ResolvesModuleAsFileImport(t *testing.T) {
	snap := buildSnapshot()
	r := New("/repo")
	r.BuildIndexes(snap)

	deps := r.GetDependencies("/repo/main.py", false)
	assert.Contains(t, deps, "/repo/app.py")
}

func TestFindDefinition_UniqueSymbol(t *testing.T) {
	snap := buildSnapshot()
	r := New("/repo")
	r.BuildIndexes(snap)

	def, ok := r.FindDefinition("run", "")
	require.True(t, ok)
	assert.Equal(t, "/repo/app.py", def.File)
}

func TestFindDefinition_QualifiedMethodName(t *testing.T) {
	snap := buildSnapshot()
	r := New("/repo")
	r.BuildIndexes(snap)

	def, ok := r.FindDefinition("Server.start", "")
	require.True(t, ok)
	assert.Equal(t, maptypes.SymbolMethod, def.Kind)
	assert.Equal(t, "/repo/app.py", def.File)
}

func TestFindDefinition_UnknownSymbol(t *testing.T) {
	r := New("/repo")
	r.BuildIndexes(buildSnapshot())

	_, ok := r.FindDefinition("doesNotExist", "")
	assert.False(t, ok)
}

func TestFindReferences_IncludesImportInducedReferences(t *testing.T) {
	snap := buildSnapshot()
	r := New("/repo")
	r.BuildIndexes(snap)

	refs := r.FindReferences("run", "")
	var sawImportRef bool
	for _, ref := range refs {
		if ref.File == "/repo/main.py" && ref.Kind == maptypes.ReferenceImport {
			sawImportRef = true
		}
	}
	assert.True(t, sawImportRef)
}

func TestGetDependents_ReturnsImportingFiles(t *testing.T) {
	snap := buildSnapshot()
	r := New("/repo")
	r.BuildIndexes(snap)

	dependents := r.GetDependents("/repo/app.py")
	assert.Contains(t, dependents, "/repo/main.py")
}

func TestStatistics_CountsSymbolsAndReferences(t *testing.T) {
	snap := buildSnapshot()
	r := New("/repo")
	r.BuildIndexes(snap)

	stats := r.Statistics()
	assert.Greater(t, stats.SymbolCount, 0)
	assert.Greater(t, stats.DefinitionCount, 0)
	assert.Greater(t, stats.ReferenceCount, 0)
	assert.NotEmpty(t, stats.TopReferenced)
}

package maptypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryMapRoundTrip(t *testing.T) {
	rm := NewRepositoryMap("/repo")
	rm.TotalFiles = 2
	rm.TotalLines = 10
	rm.Languages["python"] = 2
	rm.GeneratedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rm.Modules["main.py"] = &FileNode{
		Path:         "main.py",
		Language:     "python",
		LinesOfCode:  6,
		Dependencies: map[string]struct{}{"utils.py": {}},
		LastModified: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	rm.Modules["utils.py"] = &FileNode{
		Path:        "utils.py",
		Language:    "python",
		LinesOfCode: 4,
	}
	rm.DependencyGraph["main.py"] = map[string]struct{}{"utils.py": {}}
	rm.EntryPoints = []string{"main.py"}

	data, err := json.Marshal(rm)
	require.NoError(t, err)

	var restored RepositoryMap
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, rm.Root, restored.Root)
	assert.Equal(t, rm.TotalFiles, restored.TotalFiles)
	assert.Equal(t, rm.TotalLines, restored.TotalLines)
	assert.Equal(t, rm.Languages, restored.Languages)
	assert.Equal(t, rm.EntryPoints, restored.EntryPoints)
	assert.True(t, rm.GeneratedAt.Equal(restored.GeneratedAt))
	require.Contains(t, restored.Modules, "main.py")
	assert.Equal(t, rm.Modules["main.py"].Path, restored.Modules["main.py"].Path)
	assert.Equal(t, []string{"utils.py"}, restored.Modules["main.py"].DependencyList())
	require.Contains(t, restored.DependencyGraph, "main.py")
	_, ok := restored.DependencyGraph["main.py"]["utils.py"]
	assert.True(t, ok)
}

func TestFileEventRoundTrip(t *testing.T) {
	ev := FileEvent{
		ID:        "abc-123",
		Path:      "a/b.py",
		Kind:      FileMoved,
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		OldPath:   "a/old.py",
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var restored FileEvent
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, ev, restored)
}

func TestOperationValid(t *testing.T) {
	valid := []Operation{OpGenerate, OpFix, OpRefactor, OpExplain, OpTest, OpDocument}
	for _, op := range valid {
		assert.True(t, op.Valid(), "expected %q to be valid", op)
	}
	assert.False(t, Operation("unknown").Valid())
}

func TestTokenBudgetInvariant(t *testing.T) {
	b := TokenBudget{
		Total:            1000,
		ReservedResponse: 100,
		Allocations: map[string]int{
			"target_file": 500,
			"dependencies": 300,
		},
		Available: 100,
	}

	sum := b.ReservedResponse
	for _, v := range b.Allocations {
		sum += v
	}
	sum += b.Available
	assert.Equal(t, b.Total, sum)
}

func TestEmptyRepositoryMapRoundTrip(t *testing.T) {
	rm := NewRepositoryMap("/empty")
	data, err := json.Marshal(rm)
	require.NoError(t, err)

	var restored RepositoryMap
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, 0, restored.TotalFiles)
	assert.Empty(t, restored.Modules)
	assert.Empty(t, restored.DependencyGraph)
}

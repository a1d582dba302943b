package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeFile_PythonModule(t *testing.T) {
	dir := t.TempDir()
	src := `"""Module summary."""
import os
import requests
from . import sibling
from .utils import helper


def add(a: int, b: int) -> int:
    """Add two numbers."""
    if a > 0 and b > 0 and a < 100:
        return a + b
    return 0


class Greeter:
    """Greets people."""

    def greet(self, name):
        for i in range(3):
            if name:
                print(name)
        return None
`
	path := writeTemp(t, dir, "mod.py", src)

	a, err := New(16)
	require.NoError(t, err)

	node, err := a.AnalyzeFile(path)
	require.NoError(t, err)

	assert.Equal(t, "python", node.Language)
	assert.True(t, node.HasModuleDocstring)
	assert.Contains(t, node.Dependencies, "requests")
	assert.Contains(t, node.Dependencies, ".sibling")
	assert.NotContains(t, node.Dependencies, "os")

	require.Len(t, node.Functions, 1)
	add := node.Functions[0]
	assert.Equal(t, "add", add.Name)
	assert.Equal(t, "int", add.ReturnType)
	assert.False(t, add.IsAsync)
	// base 1 + if + 2 extra boolean operands = 4
	assert.Equal(t, 4, add.Complexity)

	require.Len(t, node.Classes, 1)
	greeter := node.Classes[0]
	assert.Equal(t, "Greeter", greeter.Name)
	require.Len(t, greeter.Methods, 1)
	greet := greeter.Methods[0]
	assert.True(t, greet.IsMethod)
	// base 1 + for + if = 3
	assert.Equal(t, 3, greet.Complexity)

	// 1 of 2 defs (add, and the method greet) carries an annotation.
	assert.InDelta(t, 0.5, node.TypeHintCoverage, 0.001)
}

func TestAnalyzeFile_NonPythonIsStub(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.go", "package main\n\nfunc main() {}\n")

	a, err := New(4)
	require.NoError(t, err)

	node, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "go", node.Language)
	assert.Empty(t, node.Functions)
	assert.Empty(t, node.Classes)
}

func TestAnalyzeFile_CachesByPathAndModTime(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.py", "def f():\n    pass\n")

	a, err := New(4)
	require.NoError(t, err)

	first, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	second, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestAnalyzeFile_AsyncFunctionDetected(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.py", "async def fetch():\n    pass\n")

	a, err := New(4)
	require.NoError(t, err)

	node, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	require.Len(t, node.Functions, 1)
	assert.True(t, node.Functions[0].IsAsync)
}

func TestAnalyzeFile_DataclassDetected(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.py", "from dataclasses import dataclass\n\n\n@dataclass\nclass Point:\n    x: int\n    y: int\n")

	a, err := New(4)
	require.NoError(t, err)

	node, err := a.AnalyzeFile(path)
	require.NoError(t, err)
	require.Len(t, node.Classes, 1)
	assert.True(t, node.Classes[0].IsDataclass)
	assert.Equal(t, []string{"x: int", "y: int"}, node.Classes[0].Attributes)
	assert.NotContains(t, node.Dependencies, "dataclasses")
}

func TestAnalyzeFile_MissingFile(t *testing.T) {
	a, err := New(4)
	require.NoError(t, err)

	_, err = a.AnalyzeFile("/nonexistent/path/does_not_exist.py")
	require.Error(t, err)
}

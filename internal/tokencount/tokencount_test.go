package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens_UsesModelCharRatio(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	text := strings.Repeat("a", 400)
	gpt := c.CountTokens(text, "gpt-4")
	claude := c.CountTokens(text, "claude-3-opus")

	assert.Greater(t, gpt, 0)
	assert.Greater(t, claude, 0)
	assert.NotEqual(t, gpt, claude)
}

func TestCountTokens_CachesResult(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	text := "hello world"
	first := c.CountTokens(text, "gpt-4")
	second := c.CountTokens(text, "gpt-4")
	assert.Equal(t, first, second)
}

func TestCountMessages_AddsPerMessageOverheadAndPriming(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	messages := []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hello"},
	}
	total := c.CountMessages(messages, "gpt-4")
	assert.Greater(t, total, c.CountTokens("be helpful", "gpt-4")+c.CountTokens("hello", "gpt-4"))
}

func TestWillExceedLimit(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	window := ContextWindow("llama")
	huge := strings.Repeat("x", window*10)
	assert.True(t, c.WillExceedLimit(huge, "llama", 0))
	assert.False(t, c.WillExceedLimit("short", "llama", 0))
}

func TestTruncateToLimit_KeepsHeadOrTail(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	text := strings.Repeat("0123456789", 50)
	head := c.TruncateToLimit(text, "gpt-4", 5, false)
	tail := c.TruncateToLimit(text, "gpt-4", 5, true)

	assert.True(t, strings.HasPrefix(text, head))
	assert.True(t, strings.HasSuffix(text, tail))
	assert.NotEqual(t, head, tail)
}

func TestTruncateToLimit_NoopWhenAlreadyWithinLimit(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	text := "short"
	assert.Equal(t, text, c.TruncateToLimit(text, "gpt-4", 1000, false))
}

// Package tokencount estimates token usage for a given model family:
// per-character-ratio text counting, per-message chat overhead, and a
// bounded cache keyed by (model, text hash), since re-estimating the
// same text for the same model repeatedly is wasted work.
package tokencount

import (
	"hash/fnv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// modelProfile is one model family's char/token ratio, the multiplier
// applied on top of the char-based estimate, its context and output
// limits, and whether it is a chat-completion model (which
// CountMessages charges 4 rather than 3 wrapper tokens per message).
type modelProfile struct {
	charsPerToken float64
	overhead      float64
	contextWindow int
	outputLimit   int
	isChat        bool
}

var defaultProfile = modelProfile{charsPerToken: 4.0, overhead: 1.1, contextWindow: 8192, outputLimit: 2048, isChat: true}

// modelProfiles is keyed by a lowercase model-family prefix; Count and
// friends match the longest prefix of the requested model name.
var modelProfiles = map[string]modelProfile{
	"claude":  {charsPerToken: 3.5, overhead: 1.15, contextWindow: 200000, outputLimit: 8192, isChat: true},
	"gpt-4":   {charsPerToken: 4.0, overhead: 1.1, contextWindow: 128000, outputLimit: 4096, isChat: true},
	"gpt-3.5": {charsPerToken: 4.0, overhead: 1.1, contextWindow: 16385, outputLimit: 4096, isChat: true},
	"llama":   {charsPerToken: 3.8, overhead: 1.05, contextWindow: 8192, outputLimit: 2048, isChat: false},
	"gemini":  {charsPerToken: 4.0, overhead: 1.1, contextWindow: 1000000, outputLimit: 8192, isChat: true},
}

func profileFor(model string) modelProfile {
	lower := strings.ToLower(model)
	best, bestLen := defaultProfile, 0
	for prefix, p := range modelProfiles {
		if strings.HasPrefix(lower, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best
}

// Message is one chat turn counted by CountMessages.
type Message struct {
	Role    string
	Content string
}

type cacheKey struct {
	model string
	hash  uint64
}

// Counter estimates and caches token counts.
type Counter struct {
	cache *lru.Cache[cacheKey, int]
}

// New returns a Counter with an LRU cache bounded to cacheSize
// (model, text-hash) entries.
func New(cacheSize int) (*Counter, error) {
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	c, err := lru.New[cacheKey, int](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Counter{cache: c}, nil
}

func hashText(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// CountTokens estimates the token count of text under model, caching
// by (model, hash(text)).
func (c *Counter) CountTokens(text, model string) int {
	key := cacheKey{model: model, hash: hashText(text)}
	if n, ok := c.cache.Get(key); ok {
		return n
	}

	p := profileFor(model)
	n := int(float64(len(text))/p.charsPerToken*p.overhead + 0.5)
	c.cache.Add(key, n)
	return n
}

// CountMessages estimates the token count of a full chat history:
// each message's own token count, plus a per-message wrapper overhead
// (4 tokens for chat-completion models, 3 otherwise), plus a constant
// 3-token reply-priming allowance.
func (c *Counter) CountMessages(messages []Message, model string) int {
	p := profileFor(model)
	perMessageOverhead := 3
	if p.isChat {
		perMessageOverhead = 4
	}

	total := 3
	for _, m := range messages {
		total += perMessageOverhead + c.CountTokens(m.Content, model) + c.CountTokens(m.Role, model)
	}
	return total
}

// ContextWindow reports the model family's total context window.
func ContextWindow(model string) int {
	return profileFor(model).contextWindow
}

// OutputLimit reports the model family's maximum completion length.
func OutputLimit(model string) int {
	return profileFor(model).outputLimit
}

// WillExceedLimit reports whether text's estimated token count, added
// to currentTokens, would exceed model's context window.
func (c *Counter) WillExceedLimit(text, model string, currentTokens int) bool {
	return currentTokens+c.CountTokens(text, model) > ContextWindow(model)
}

// TruncateToLimit trims text so its estimated token count fits
// within limit. When keepEnd is true, the tail of text is kept
// (useful for preserving a file's most-recently-edited region);
// otherwise the head is kept.
func (c *Counter) TruncateToLimit(text, model string, limit int, keepEnd bool) string {
	if limit <= 0 {
		return ""
	}
	if c.CountTokens(text, model) <= limit {
		return text
	}

	p := profileFor(model)
	maxChars := int(float64(limit) * p.charsPerToken / p.overhead)
	if maxChars <= 0 {
		return ""
	}
	if maxChars >= len(text) {
		return text
	}

	if keepEnd {
		return text[len(text)-maxChars:]
	}
	return text[:maxChars]
}

// Reset clears the cache (tests only need this; production callers
// size the cache once and let entries age out via LRU eviction).
func (c *Counter) Reset() {
	c.cache.Purge()
}

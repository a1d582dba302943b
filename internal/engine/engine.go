// Package engine wires the repository intelligence engine's
// components — config, analyzer, repository map, importance scorer,
// reference resolver, token counter, budgeter, context provider, and
// file monitor — into a single façade exposing the engine's public
// operations.
package engine

import (
	"context"
	"time"

	"github.com/standardbeagle/repomap-engine/internal/analyzer"
	"github.com/standardbeagle/repomap-engine/internal/config"
	"github.com/standardbeagle/repomap-engine/internal/contextengine"
	"github.com/standardbeagle/repomap-engine/internal/events"
	"github.com/standardbeagle/repomap-engine/internal/importance"
	"github.com/standardbeagle/repomap-engine/internal/logging"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
	"github.com/standardbeagle/repomap-engine/internal/monitor"
	"github.com/standardbeagle/repomap-engine/internal/repomap"
	"github.com/standardbeagle/repomap-engine/internal/resolver"
	"github.com/standardbeagle/repomap-engine/internal/tokencount"
)

const analyzerCacheSize = 2048
const tokenCacheSize = 4096

// Engine is the top-level handle an embedder or CLI talks to.
type Engine struct {
	cfg      config.EngineConfig
	analyzer *analyzer.Analyzer
	repoMap  *repomap.RepoMap
	resolver *resolver.Resolver
	scorer   *importance.Scorer
	counter  *tokencount.Counter
	provider *contextengine.Provider
	bus      *events.Bus
	watcher  *monitor.Monitor
	log      *logging.Logger
}

// New constructs an Engine for the repository rooted at cfg.Root. It
// does not scan the repository; call Scan to populate the map.
func New(cfg config.EngineConfig) (*Engine, error) {
	an, err := analyzer.New(analyzerCacheSize)
	if err != nil {
		return nil, err
	}

	rm, err := repomap.New(cfg, an)
	if err != nil {
		return nil, err
	}

	counter, err := tokencount.New(tokenCacheSize)
	if err != nil {
		return nil, err
	}

	res := resolver.New(".")
	scorer := importance.New()
	bus := events.NewBus(true)
	provider := contextengine.New(rm, scorer, res, counter)

	e := &Engine{
		cfg:      cfg,
		analyzer: an,
		repoMap:  rm,
		resolver: res,
		scorer:   scorer,
		counter:  counter,
		provider: provider,
		bus:      bus,
		log:      logging.NewLoggerWithName("engine"),
	}

	bus.Subscribe(func(ctx context.Context, ev maptypes.FileEvent) error {
		e.resolver.BuildIndexes(e.repoMap.Snapshot())
		return nil
	})

	return e, nil
}

// Scan builds (or reloads, if useCache, from the on-disk cache) the
// repository map and rebuilds the resolver's symbol indexes from it.
func (e *Engine) Scan(ctx context.Context, useCache bool) (*maptypes.RepositoryMap, error) {
	snap, err := e.repoMap.Scan(ctx, useCache)
	if err != nil {
		return nil, err
	}
	e.resolver.BuildIndexes(snap)
	return snap, nil
}

// Snapshot returns the most recently built repository map, or nil if
// Scan has not yet been called.
func (e *Engine) Snapshot() *maptypes.RepositoryMap {
	return e.repoMap.Snapshot()
}

// GetContext assembles a ContextResult for req using the simple,
// non-budgeted per-operation dispatch.
func (e *Engine) GetContext(ctx context.Context, req maptypes.ContextRequest) (maptypes.ContextResult, error) {
	return e.provider.GetContext(ctx, req)
}

// GetContextWithBudgeting assembles a ContextResult for req using the
// token budgeter and importance-ranked candidate selection.
func (e *Engine) GetContextWithBudgeting(ctx context.Context, req maptypes.ContextRequest, historyLen int) (maptypes.ContextResult, error) {
	return e.provider.GetContextWithBudgeting(ctx, req, historyLen)
}

// Importance scores path under the given operation context.
func (e *Engine) Importance(path string, ctx importance.Context) maptypes.FileImportance {
	return e.scorer.Score(e.repoMap.Snapshot(), path, ctx)
}

// FindDefinition delegates to the reference resolver.
func (e *Engine) FindDefinition(symbol, fromFile string) (maptypes.Definition, bool) {
	return e.resolver.FindDefinition(symbol, fromFile)
}

// FindReferences delegates to the reference resolver.
func (e *Engine) FindReferences(symbol, file string) []maptypes.SymbolReference {
	return e.resolver.FindReferences(symbol, file)
}

// StartWatching begins monitoring the repository root for changes,
// applying each change to the repository map and republishing it on
// the engine's event bus. The Monitor it creates is retained on the
// Engine for Stop/Status access.
func (e *Engine) StartWatching(ctx context.Context) error {
	debounce := e.cfg.DebounceWindow
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	m, err := monitor.New(e.repoMap, e.bus, debounce)
	if err != nil {
		return err
	}
	e.watcher = m
	return m.Start(ctx, []string{e.repoMap.Root()}, true)
}

// StopWatching stops the file monitor, if one was started.
func (e *Engine) StopWatching() error {
	if e.watcher == nil {
		return nil
	}
	return e.watcher.Stop()
}

// Subscribe registers a handler for file change events.
func (e *Engine) Subscribe(handler events.Handler) {
	e.bus.Subscribe(handler)
}

// UpdateWeights replaces the importance scorer's factor weights.
func (e *Engine) UpdateWeights(w importance.Weights) error {
	return e.scorer.UpdateWeights(w)
}

// Root returns the absolute repository root this Engine operates on.
func (e *Engine) Root() string {
	return e.repoMap.Root()
}

// Invalidate discards the on-disk repository map cache.
func (e *Engine) Invalidate() error {
	return e.repoMap.Invalidate()
}

// Compress returns the repository map's compact textual summary,
// bounded to maxTokens worth of characters.
func (e *Engine) Compress(maxTokens int) string {
	return e.repoMap.Compress(maxTokens)
}

// ContextForFile returns an overview of a single file plus its
// imports, functions, classes, and direct/reverse dependencies,
// bounded to budget worth of characters.
func (e *Engine) ContextForFile(path string, budget int) string {
	return e.repoMap.ContextForFile(path, budget)
}

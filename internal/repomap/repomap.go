// Package repomap builds and maintains the repository map: the
// analyzed-file snapshot, the file-to-file dependency graph, and the
// derived entry-point/test-file metadata that the rest of the engine
// (importance scoring, reference resolution, context assembly) reads
// from. It owns the on-disk cache at <root>/<cache_dir>/repo_map.json.
package repomap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/repomap-engine/internal/analyzer"
	"github.com/standardbeagle/repomap-engine/internal/config"
	"github.com/standardbeagle/repomap-engine/internal/engineerrors"
	"github.com/standardbeagle/repomap-engine/internal/logging"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// RepoMap owns one repository's analyzed snapshot and its on-disk
// cache. All exported methods are safe for concurrent use.
type RepoMap struct {
	root           string
	cacheDir       string
	ignorePatterns []string
	concurrency    int

	analyzer *analyzer.Analyzer
	log      *logging.Logger

	mu           sync.RWMutex
	snapshot     *maptypes.RepositoryMap
	fingerprints map[string]uint64
}

// New builds a RepoMap rooted at cfg.Root, with files discovered and
// analyzed according to cfg's ignore patterns and worker concurrency.
func New(cfg config.EngineConfig, an *analyzer.Analyzer) (*RepoMap, error) {
	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, engineerrors.Wrap(engineerrors.KindIO, "root path", err)
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	return &RepoMap{
		root:           absRoot,
		cacheDir:       cfg.CacheDir,
		ignorePatterns: cfg.IgnorePatterns,
		concurrency:    concurrency,
		analyzer:       an,
		log:            logging.NewLoggerWithName("repomap"),
		fingerprints:   make(map[string]uint64),
	}, nil
}

// Scan builds (or, when useCache is true and a valid cache exists,
// loads) the repository snapshot. The snapshot is cached in memory
// and, after a fresh build, persisted to disk.
func (rm *RepoMap) Scan(ctx context.Context, useCache bool) (*maptypes.RepositoryMap, error) {
	if useCache {
		if cached, fp, err := loadCache(rm.root, rm.cacheDir); err != nil {
			rm.log.Warn("failed to load cache: %v", err)
		} else if cached != nil {
			rm.mu.Lock()
			rm.snapshot = cached
			rm.fingerprints = fp
			rm.mu.Unlock()
			return cached, nil
		}
	}

	snapshot, fingerprints, err := rm.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	rm.mu.Lock()
	rm.snapshot = snapshot
	rm.fingerprints = fingerprints
	rm.mu.Unlock()

	if err := saveCache(rm.root, rm.cacheDir, snapshot, fingerprints); err != nil {
		rm.log.Warn("failed to persist cache: %v", err)
	}
	return snapshot, nil
}

// buildSnapshot discovers every non-ignored file under root and
// analyzes it with bounded concurrency, skipping files that fail to
// parse (a per-file failure never aborts the whole scan). Modules are
// keyed by repo-relative path; rel is resolved to an absolute path
// only to touch the filesystem.
func (rm *RepoMap) buildSnapshot(ctx context.Context) (*maptypes.RepositoryMap, map[string]uint64, error) {
	paths, err := discoverFiles(rm.root, rm.ignorePatterns)
	if err != nil {
		return nil, nil, engineerrors.Wrap(engineerrors.KindIO, "discovering files", err)
	}

	type result struct {
		path string
		node *maptypes.FileNode
		fp   uint64
	}

	results := make([]result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rm.concurrency)

	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			abs := filepath.Join(rm.root, rel)
			node, err := rm.analyzer.AnalyzeFile(abs)
			if err != nil {
				rm.log.Warn("skipping %s: %v", rel, err)
				return nil
			}
			node.Path = rel
			content, readErr := os.ReadFile(abs)
			var fp uint64
			if readErr == nil {
				fp = xxhash.Sum64(content)
			}
			results[i] = result{path: rel, node: node, fp: fp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	snapshot := maptypes.NewRepositoryMap(rm.root)
	fingerprints := make(map[string]uint64)
	known := make(map[string]struct{})

	for _, r := range results {
		if r.node == nil {
			continue
		}
		known[r.path] = struct{}{}
	}

	for _, r := range results {
		if r.node == nil {
			continue
		}
		snapshot.Modules[r.path] = r.node
		snapshot.TotalFiles++
		snapshot.TotalLines += r.node.LinesOfCode
		snapshot.Languages[r.node.Language]++
		fingerprints[r.path] = r.fp

		if isEntryPoint(r.path) || hasMainFunction(r.node) {
			snapshot.EntryPoints = append(snapshot.EntryPoints, r.path)
		}
		if isTestFile(r.path) {
			snapshot.TestFiles = append(snapshot.TestFiles, r.path)
		}
	}

	for _, r := range results {
		if r.node == nil {
			continue
		}
		edges := make(map[string]struct{})
		for dep := range r.node.Dependencies {
			if target := resolveModuleToFile(".", r.path, dep, known); target != "" {
				edges[target] = struct{}{}
			}
		}
		snapshot.DependencyGraph[r.path] = edges
	}

	sort.Strings(snapshot.EntryPoints)
	sort.Strings(snapshot.TestFiles)
	snapshot.GeneratedAt = time.Now()

	return snapshot, fingerprints, nil
}

func hasMainFunction(node *maptypes.FileNode) bool {
	for _, fn := range node.Functions {
		if fn.Name == "main" {
			return true
		}
	}
	return false
}

// Snapshot returns the current in-memory snapshot, or nil if Scan has
// not run yet.
func (rm *RepoMap) Snapshot() *maptypes.RepositoryMap {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.snapshot
}

// UpdateOnChange re-analyzes a single file and folds the result into
// the in-memory snapshot and dependency graph, then re-persists the
// cache. path may be absolute or repo-relative; it is always stored,
// keyed, and reported back as a path relative to root. Pass
// removed=true when path no longer exists on disk.
func (rm *RepoMap) UpdateOnChange(ctx context.Context, path string, removed bool) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.snapshot == nil {
		rm.snapshot = maptypes.NewRepositoryMap(rm.root)
	}

	rel := rm.relPath(path)
	abs := filepath.Join(rm.root, rel)

	if removed {
		rm.removeFileLocked(rel)
	} else {
		if err := rm.upsertFileLocked(rel, abs); err != nil {
			return err
		}
	}

	rm.rebuildDependencyGraphLocked()
	return saveCache(rm.root, rm.cacheDir, rm.snapshot, rm.fingerprints)
}

// relPath normalizes path (absolute or already-relative) to a
// forward-slash repo-relative path rooted at rm.root.
func (rm *RepoMap) relPath(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(rm.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (rm *RepoMap) removeFileLocked(path string) {
	if old, ok := rm.snapshot.Modules[path]; ok {
		rm.snapshot.TotalFiles--
		rm.snapshot.TotalLines -= old.LinesOfCode
		rm.snapshot.Languages[old.Language]--
		delete(rm.snapshot.Modules, path)
	}
	delete(rm.snapshot.DependencyGraph, path)
	delete(rm.fingerprints, path)
	rm.snapshot.EntryPoints = removeString(rm.snapshot.EntryPoints, path)
	rm.snapshot.TestFiles = removeString(rm.snapshot.TestFiles, path)
}

// upsertFileLocked (re)analyzes the file at abs and stores the result
// under rel, the repo-relative key the rest of the snapshot uses.
func (rm *RepoMap) upsertFileLocked(rel, abs string) error {
	node, err := rm.analyzer.AnalyzeFile(abs)
	if err != nil {
		return err
	}
	node.Path = rel

	if old, ok := rm.snapshot.Modules[rel]; ok {
		rm.snapshot.TotalLines -= old.LinesOfCode
		rm.snapshot.Languages[old.Language]--
	} else {
		rm.snapshot.TotalFiles++
	}
	rm.snapshot.Modules[rel] = node
	rm.snapshot.TotalLines += node.LinesOfCode
	rm.snapshot.Languages[node.Language]++

	content, readErr := os.ReadFile(abs)
	if readErr == nil {
		rm.fingerprints[rel] = xxhash.Sum64(content)
	}

	rm.snapshot.EntryPoints = removeString(rm.snapshot.EntryPoints, rel)
	if isEntryPoint(rel) || hasMainFunction(node) {
		rm.snapshot.EntryPoints = append(rm.snapshot.EntryPoints, rel)
		sort.Strings(rm.snapshot.EntryPoints)
	}
	rm.snapshot.TestFiles = removeString(rm.snapshot.TestFiles, rel)
	if isTestFile(rel) {
		rm.snapshot.TestFiles = append(rm.snapshot.TestFiles, rel)
		sort.Strings(rm.snapshot.TestFiles)
	}
	return nil
}

func (rm *RepoMap) rebuildDependencyGraphLocked() {
	known := make(map[string]struct{}, len(rm.snapshot.Modules))
	for p := range rm.snapshot.Modules {
		known[p] = struct{}{}
	}
	graph := make(map[string]map[string]struct{}, len(rm.snapshot.Modules))
	for p, node := range rm.snapshot.Modules {
		edges := make(map[string]struct{})
		for dep := range node.Dependencies {
			if target := resolveModuleToFile(".", p, dep, known); target != "" {
				edges[target] = struct{}{}
			}
		}
		graph[p] = edges
	}
	rm.snapshot.DependencyGraph = graph
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Dependents returns every file whose dependency graph entry points
// at path.
func (rm *RepoMap) Dependents(path string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if rm.snapshot == nil {
		return nil
	}
	var out []string
	for p, edges := range rm.snapshot.DependencyGraph {
		if _, ok := edges[path]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the direct dependency edges recorded for path.
func (rm *RepoMap) Dependencies(path string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if rm.snapshot == nil {
		return nil
	}
	edges := rm.snapshot.DependencyGraph[path]
	out := make([]string, 0, len(edges))
	for e := range edges {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Invalidate drops the on-disk cache so the next Scan(useCache=true)
// rebuilds from scratch.
func (rm *RepoMap) Invalidate() error {
	return invalidateCache(rm.root, rm.cacheDir)
}

// Root returns the absolute repository root this map was built from.
func (rm *RepoMap) Root() string {
	return rm.root
}

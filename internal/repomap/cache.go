package repomap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/repomap-engine/internal/engineerrors"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// cacheFileName is the on-disk cache file, always nested under a
// repository's cache directory (".vibe_cache" by default).
const cacheFileName = "repo_map.json"

// diskCache is the JSON payload persisted to <root>/<cacheDir>/repo_map.json.
type diskCache struct {
	Map          *maptypes.RepositoryMap  `json:"map"`
	Fingerprints map[string]uint64        `json:"fingerprints"`
}

func cachePath(root, cacheDir string) string {
	return filepath.Join(root, cacheDir, cacheFileName)
}

// loadCache reads the on-disk cache, if present. A missing file is not
// an error; callers treat it as a cold start.
func loadCache(root, cacheDir string) (*maptypes.RepositoryMap, map[string]uint64, error) {
	path := cachePath(root, cacheDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, engineerrors.Wrap(engineerrors.KindCache, "read cache", err)
	}

	var dc diskCache
	if err := json.Unmarshal(data, &dc); err != nil {
		return nil, nil, engineerrors.Wrap(engineerrors.KindCache, "decode cache", err)
	}
	return dc.Map, dc.Fingerprints, nil
}

// saveCache writes the cache atomically: encode to a temp file in the
// same directory, then rename over the target. This mirrors the
// write-temp-then-rename pattern used elsewhere in this codebase for
// crash-safe persistence.
func saveCache(root, cacheDir string, m *maptypes.RepositoryMap, fingerprints map[string]uint64) error {
	dir := filepath.Join(root, cacheDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return engineerrors.Wrap(engineerrors.KindCache, "create cache dir", err)
	}

	dc := diskCache{Map: m, Fingerprints: fingerprints}
	data, err := json.MarshalIndent(&dc, "", "  ")
	if err != nil {
		return engineerrors.Wrap(engineerrors.KindCache, "encode cache", err)
	}

	target := filepath.Join(dir, cacheFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return engineerrors.Wrap(engineerrors.KindCache, "write cache temp file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return engineerrors.Wrap(engineerrors.KindCache, "rename cache file", err)
	}
	return nil
}

// invalidateCache removes the on-disk cache entirely, forcing the
// next scan to rebuild from scratch.
func invalidateCache(root, cacheDir string) error {
	path := cachePath(root, cacheDir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache: %w", err)
	}
	return nil
}

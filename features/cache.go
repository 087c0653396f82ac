package features

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/XiaoTianFan/music-cluster/logging"
)

// Cache is an optional precomputed feature file. It is read only and applies
// solely to default-sourced songs. A cache is usable for a batch only when
// its declared key set equals the selected key set exactly; any mismatch is
// a full miss, never a partial hit.
type Cache struct {
	CachedFeatureKeys []string       `json:"cachedFeatureKeys"`
	SongData          map[string]Bag `json:"songData"`
}

// Matches reports whether the cache covers exactly the selected feature set
// (set equality, order-insensitive).
func (c *Cache) Matches(selected []string) bool {
	if c == nil || len(c.CachedFeatureKeys) != len(selected) {
		return false
	}
	declared := make(map[string]bool, len(c.CachedFeatureKeys))
	for _, k := range c.CachedFeatureKeys {
		declared[k] = true
	}
	if len(declared) != len(selected) {
		return false
	}
	for _, k := range selected {
		if !declared[k] {
			return false
		}
	}
	return true
}

// Lookup returns the cached bag for a song id, if present.
func (c *Cache) Lookup(songID string) (Bag, bool) {
	if c == nil {
		return nil, false
	}
	bag, ok := c.SongData[songID]
	return bag, ok
}

// Loader resolves a feature cache at batch start.
type Loader interface {
	// Load returns the cache, or (nil, nil) when no cache exists. Absence is
	// a normal miss, not an error.
	Load() (*Cache, error)
}

// FileLoader reads the cache from a JSON file on disk.
type FileLoader struct {
	Path   string
	logger logging.Logger
}

// NewFileLoader creates a loader for the given path. An empty path always
// misses.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{
		Path:   path,
		logger: logging.WithFields(logging.Fields{"component": "feature_cache"}),
	}
}

func (l *FileLoader) Load() (*Cache, error) {
	if l.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(l.Path)
	if os.IsNotExist(err) {
		l.logger.Debug("feature cache not found", logging.Fields{"path": l.Path})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feature cache: %w", err)
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parse feature cache: %w", err)
	}
	l.logger.Debug("feature cache loaded", logging.Fields{
		"path":  l.Path,
		"keys":  cache.CachedFeatureKeys,
		"songs": len(cache.SongData),
	})
	return &cache, nil
}

// Package localfs persists the response cache as a single JSON file.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

const legacyCacheFile = ".llm_codesearch_cache.json"

// ResponseCache is an in-memory fingerprint→response map loaded from and saved to
// one JSON object file. It is safe for concurrent Get/Put.
type ResponseCache struct {
	path string

	mu      sync.RWMutex
	entries map[string]string
	dirty   bool
}

func NewResponseCache(path string) *ResponseCache {
	return &ResponseCache{
		path:    path,
		entries: make(map[string]string),
	}
}

// DefaultPath returns the per-user cache file location.
func DefaultPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "codesearch", "responses.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, legacyCacheFile)
	}
	return legacyCacheFile
}

// Load replaces the in-memory entries with the file contents. A missing or corrupt
// file leaves the cache empty; the returned error is informational only.
func (c *ResponseCache) Load() error {
	entries, err := c.readFile()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false
	if err != nil {
		c.entries = make(map[string]string)
		if !os.IsNotExist(err) {
			slog.Warn("response_cache_load_failed", "path", c.path, "error", err)
		}
		return err
	}
	c.entries = entries
	return nil
}

func (c *ResponseCache) readFile() (map[string]string, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode cache file: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

// Save overwrites the cache file with every entry. Failures are logged and returned;
// callers are expected to carry on.
func (c *ResponseCache) Save() error {
	c.mu.RLock()
	raw, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		slog.Warn("response_cache_save_failed", "path", c.path, "error", err)
		return fmt.Errorf("encode cache: %w", err)
	}

	if err := writeFileAtomic(c.path, raw); err != nil {
		slog.Warn("response_cache_save_failed", "path", c.path, "error", err)
		return err
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".responses-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func (c *ResponseCache) Get(_ context.Context, fp domain.Fingerprint) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	response, ok := c.entries[string(fp)]
	return response, ok
}

func (c *ResponseCache) Put(_ context.Context, fp domain.Fingerprint, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(fp)] = response
	c.dirty = true
}

func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether entries were added since the last Load or Save.
func (c *ResponseCache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *ResponseCache) Path() string {
	return c.path
}

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/codesearch/internal/config"
	"github.com/kirillkom/codesearch/internal/core/ports"
	"github.com/kirillkom/codesearch/internal/core/usecase"
	"github.com/kirillkom/codesearch/internal/infrastructure/chunking"
	"github.com/kirillkom/codesearch/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/codesearch/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/codesearch/internal/infrastructure/tokens"
)

const (
	CacheFile     = "file"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// Cache is a response cache plus the hook that persists it when the process ends.
type Cache struct {
	ports.ResponseCache
	flush func() error
}

func (c *Cache) Flush() error {
	if c.flush == nil {
		return nil
	}
	return c.flush()
}

// OpenCache selects the cache backend. The postgres backend needs db; the file
// backend is loaded immediately.
func OpenCache(cfg config.Config, db *sql.DB) (*Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.CacheBackend)) {
	case CacheNone:
		return &Cache{ResponseCache: usecase.NoopCache{}}, nil
	case CachePostgres:
		if db == nil {
			return nil, fmt.Errorf("cache backend %q needs a database", CachePostgres)
		}
		return &Cache{ResponseCache: postgres.NewCacheRepository(db)}, nil
	case CacheFile, "":
		path := cfg.CachePath
		if strings.TrimSpace(path) == "" {
			path = localfs.DefaultPath()
		}
		cache := localfs.NewResponseCache(path)
		_ = cache.Load()
		slog.Debug("response_cache_loaded", "path", cache.Path(), "entries", cache.Len())
		return &Cache{
			ResponseCache: cache,
			flush: func() error {
				if !cache.Dirty() {
					return nil
				}
				return cache.Save()
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func NewChunkBuilder(cfg config.Config) *chunking.Builder {
	return chunking.NewBuilder(tokens.New(cfg.TokenizerMode), cfg.ExcludeDirs)
}

func NewSearchUseCase(
	cfg config.Config,
	completers Completers,
	cache ports.ResponseCache,
	observer ports.SearchObserver,
) *usecase.SearchUseCase {
	return usecase.NewSearchUseCase(
		NewChunkBuilder(cfg),
		usecase.NewDispatcher(completers.Search, cache, observer),
		usecase.NewReducer(completers.Reduce),
		usecase.SearchDefaults{
			Model:       cfg.LLMModel,
			Concurrency: cfg.SearchConcurrency,
			MaxTokens:   cfg.SearchMaxTokens,
		},
	)
}

// Local wires a search for the command line: no database and no queue.
type Local struct {
	*usecase.SearchUseCase

	Config config.Config
	Cache  *Cache
}

func NewLocal(ctx context.Context, cfg config.Config) (*Local, error) {
	if strings.EqualFold(cfg.CacheBackend, CachePostgres) {
		return nil, fmt.Errorf("cache backend %q is only available to the api and worker", CachePostgres)
	}
	completers, err := NewCompleters(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init completer: %w", err)
	}
	cache, err := OpenCache(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init response cache: %w", err)
	}
	return &Local{
		SearchUseCase: NewSearchUseCase(cfg, completers, cache, nil),
		Config:        cfg,
		Cache:         cache,
	}, nil
}

// Flush persists cache entries written since the last flush.
func (l *Local) Flush() error {
	return l.Cache.Flush()
}

// Close persists the cache. A failed save has already been logged.
func (l *Local) Close() {
	_ = l.Flush()
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"API_BACKPRESSURE_WAIT_MS", "API_MAX_CONNECTIONS", "API_MAX_IN_FLIGHT", "API_RATE_LIMIT_BURST", "API_RATE_LIMIT_RPS",
	"SEARCH_JOB_TIMEOUT_MINUTES", "API_PORT", "CACHE_BACKEND", "CACHE_PATH", "CODESEARCH_CONFIG", "EXCLUDE_DIRS",
	"LLM_API_KEY", "LLM_BASE_URL", "LLM_BREAKER_ENABLED", "LLM_MAX_OUTPUT_TOKENS",
	"LLM_MODEL", "LLM_PROVIDER", "LLM_REQUESTS_PER_SECOND", "LLM_RETRY_MAX_ATTEMPTS",
	"LOG_FORMAT", "LOG_LEVEL", "NATS_SUBJECT", "NATS_URL", "OLLAMA_NUM_CTX", "POSTGRES_DSN",
	"REPOS_PATH", "SEARCH_CONCURRENCY", "SEARCH_MAX_TOKENS", "TOKENIZER_MODE",
	"WATCH_DEBOUNCE_MS", "WORKER_METRICS_PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.SearchConcurrency != 8 || cfg.SearchMaxTokens != 950_000 {
		t.Fatalf("unexpected search defaults: %d, %d", cfg.SearchConcurrency, cfg.SearchMaxTokens)
	}
	if cfg.LLMBreakerEnabled {
		t.Fatalf("llm circuit breaker must be opt-in")
	}
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "llm_provider: openai\nllm_model: gpt-4o-mini\nsearch_concurrency: 4\nexclude_dirs: [node_modules, vendor]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CODESEARCH_CONFIG", path)
	t.Setenv("SEARCH_CONCURRENCY", "16")
	t.Setenv("LLM_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("LLM_BREAKER_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMProvider != "openai" || cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.SearchConcurrency != 16 {
		t.Fatalf("env should override file, got %d", cfg.SearchConcurrency)
	}
	if cfg.LLMRequestsPerSecond != 2.5 || !cfg.LLMBreakerEnabled {
		t.Fatalf("unexpected resilience settings: %v %v", cfg.LLMRequestsPerSecond, cfg.LLMBreakerEnabled)
	}
	if diff := cmp.Diff([]string{"node_modules", "vendor"}, cfg.ExcludeDirs); diff != "" {
		t.Fatalf("exclude dirs mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadReadsDefaultFileFromWorkingDirectory(t *testing.T) {
	clearEnv(t)
	if err := os.WriteFile(DefaultFile, []byte("cache_backend: none\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheBackend != "none" {
		t.Fatalf("expected cache backend from %s, got %q", DefaultFile, cfg.CacheBackend)
	}
}

func TestLoadFailsOnMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CODESEARCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadFailsOnMalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("search_concurrency: [not-an-int\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CODESEARCH_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSplitList(t *testing.T) {
	if diff := cmp.Diff([]string{"a", "b"}, splitList(" a, ,b ,")); diff != "" {
		t.Fatalf("splitList mismatch (-want +got):\n%s", diff)
	}
}

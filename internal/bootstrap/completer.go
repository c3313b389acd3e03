package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/codesearch/internal/config"
	"github.com/kirillkom/codesearch/internal/core/ports"
	"github.com/kirillkom/codesearch/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/codesearch/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/codesearch/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/codesearch/internal/infrastructure/llm/openai"
	"github.com/kirillkom/codesearch/internal/infrastructure/resilience"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Completers are the guarded backend of one search. Chunk queries and the reduce
// call share the rate limiter but run under separate breakers.
type Completers struct {
	Search ports.Completer
	Reduce ports.Completer
}

// NewCompleters builds the configured completion backend behind resilience guards.
func NewCompleters(ctx context.Context, cfg config.Config) (Completers, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))

	var inner ports.Completer
	switch provider {
	case ProviderOllama, "":
		provider = ProviderOllama
		inner = ollama.New(cfg.LLMBaseURL, cfg.LLMModel, ollama.WithNumCtx(cfg.OllamaNumCtx))
	case ProviderOpenAI:
		inner = openai.New(cfg.LLMAPIKey, baseURLFor(cfg, ProviderOpenAI), cfg.LLMModel)
	case ProviderAnthropic:
		inner = anthropic.New(cfg.LLMAPIKey, baseURLFor(cfg, ProviderAnthropic), cfg.LLMModel, cfg.LLMMaxOutputTokens)
	case ProviderGemini:
		client, err := gemini.New(ctx, cfg.LLMAPIKey, baseURLFor(cfg, ProviderGemini), cfg.LLMModel)
		if err != nil {
			return Completers{}, err
		}
		inner = client
	default:
		return Completers{}, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}

	exec := resilience.NewExecutor(policyFor(cfg))
	return Completers{
		Search: resilience.NewGuard(provider+".search", inner, exec, nil),
		Reduce: resilience.NewGuard(provider+".reduce", inner, exec, nil),
	}, nil
}

// baseURLFor drops the ollama default URL when another provider is selected, so a
// hosted provider is not pointed at localhost by accident.
func baseURLFor(cfg config.Config, provider string) string {
	if provider != ProviderOllama && cfg.LLMBaseURL == config.Defaults().LLMBaseURL {
		return ""
	}
	return cfg.LLMBaseURL
}

func policyFor(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.Retry.MaxAttempts = cfg.LLMRetryMaxAttempts
	policy.Breaker.Enabled = cfg.LLMBreakerEnabled
	policy.RequestsPerSecond = cfg.LLMRequestsPerSecond
	return policy
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
)

type SearchDefaults struct {
	Model       string
	Concurrency int
	MaxTokens   int
}

// SearchUseCase runs chunking, per-chunk dispatch and reduction for one question.
type SearchUseCase struct {
	chunks     ports.ChunkSource
	dispatcher *Dispatcher
	reducer    *Reducer
	defaults   SearchDefaults
}

func NewSearchUseCase(
	chunks ports.ChunkSource,
	dispatcher *Dispatcher,
	reducer *Reducer,
	defaults SearchDefaults,
) *SearchUseCase {
	return &SearchUseCase{
		chunks:     chunks,
		dispatcher: dispatcher,
		reducer:    reducer,
		defaults:   defaults,
	}
}

// Search answers req.Question for req.Root. When only the final reduction fails the
// report is still returned, alongside the error, so per-chunk results are not lost.
func (uc *SearchUseCase) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchReport, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("question is required"))
	}
	req = uc.withDefaults(req)
	start := time.Now()

	chunks, err := uc.collect(ctx, req.Root, req.MaxTokens)
	if err != nil {
		return nil, err
	}

	results := uc.dispatcher.Dispatch(ctx, chunks, req.Question, DispatchOptions{
		Model:       req.Model,
		Concurrency: req.Concurrency,
	})

	report := &domain.SearchReport{
		Question: req.Question,
		Model:    req.Model,
		Results:  results,
		Stats:    summarize(results),
	}

	answer, err := uc.reducer.Reduce(ctx, req.Question, req.Model, results)
	report.Stats.Duration = time.Since(start)
	if err != nil {
		slog.Error("search_reduce_failed", "root", req.Root, "relevant", report.Stats.Relevant, "error", err)
		return report, fmt.Errorf("reduce findings: %w", err)
	}
	if !answer.NothingFound {
		report.Stats.BackendCalls++
	}
	report.Answer = answer

	slog.Info("search_completed",
		"root", req.Root,
		"chunks", report.Stats.Chunks,
		"relevant", report.Stats.Relevant,
		"cache_hits", report.Stats.CacheHits,
		"backend_calls", report.Stats.BackendCalls,
		"failures", report.Stats.Failures,
		"duration_ms", float64(report.Stats.Duration.Microseconds())/1000.0,
	)
	return report, nil
}

// Estimate reports the token volume a search would send. It never calls the backend
// and never reads or writes the cache.
func (uc *SearchUseCase) Estimate(ctx context.Context, root string, maxTokens int) (*domain.CostEstimate, error) {
	if maxTokens <= 0 {
		maxTokens = uc.defaults.MaxTokens
	}
	chunks, err := uc.collect(ctx, root, maxTokens)
	if err != nil {
		return nil, err
	}
	estimate := &domain.CostEstimate{Chunks: len(chunks)}
	for _, chunk := range chunks {
		estimate.Files += len(chunk.Files)
		estimate.Tokens += chunk.Tokens
	}
	return estimate, nil
}

func (uc *SearchUseCase) collect(ctx context.Context, root string, maxTokens int) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for chunk, err := range uc.chunks.Chunks(ctx, root, maxTokens) {
		if err != nil {
			return nil, fmt.Errorf("build chunks: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (uc *SearchUseCase) withDefaults(req domain.SearchRequest) domain.SearchRequest {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = uc.defaults.Model
	}
	if req.Concurrency <= 0 {
		req.Concurrency = uc.defaults.Concurrency
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = uc.defaults.MaxTokens
	}
	return req
}

func summarize(results []domain.QueryResult) domain.SearchStats {
	stats := domain.SearchStats{Chunks: len(results)}
	for _, res := range results {
		switch {
		case res.Cached:
			stats.CacheHits++
		case errors.Is(res.Err, ErrSlotUnavailable):
		default:
			stats.BackendCalls++
		}
		if res.Err != nil {
			stats.Failures++
			continue
		}
		if res.Relevant {
			stats.Relevant++
		}
	}
	return stats
}

func Summarize(report *domain.SearchReport) domain.SearchSummary {
	matches := MatchedFiles(report)
	if matches == nil {
		matches = []string{}
	}
	return domain.SearchSummary{
		Answer:       report.Answer.Text,
		NothingFound: report.Answer.NothingFound,
		Matches:      matches,
		Stats:        report.Stats,
	}
}

// MatchedFiles lists the files behind relevant results. Paths named on a response's
// "Files:" line are used when they belong to the chunk; otherwise every file of the
// chunk is listed.
func MatchedFiles(report *domain.SearchReport) []string {
	if report == nil {
		return nil
	}
	var out []string
	for _, res := range report.Results {
		if res.Err != nil || !res.Relevant {
			continue
		}
		named := namedFiles(res.Response, res.Files)
		if len(named) == 0 {
			named = res.Files
		}
		out = append(out, named...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func namedFiles(response string, chunkFiles []string) []string {
	var out []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "*`- ")
		rest, ok := strings.CutPrefix(line, "Files:")
		if !ok {
			continue
		}
		for _, name := range strings.Split(rest, ",") {
			name = strings.Trim(name, " `*\"'")
			if slices.Contains(chunkFiles, name) {
				out = append(out, name)
			}
		}
	}
	return out
}

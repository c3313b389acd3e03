package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/infrastructure/chunking"
	"github.com/kirillkom/codesearch/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/codesearch/internal/infrastructure/tokens"
)

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func newSearch(completer *completerFake, cache *localfs.ResponseCache) *SearchUseCase {
	builder := chunking.NewBuilder(tokens.Heuristic{}, nil)
	return NewSearchUseCase(
		builder,
		NewDispatcher(completer, cache, nil),
		NewReducer(completer),
		SearchDefaults{Model: "default-model", Concurrency: 4, MaxTokens: 40},
	)
}

func reduceAware(word string) func(domain.CompletionRequest) (string, error) {
	perChunk := respondByWord(word)
	return func(req domain.CompletionRequest) (string, error) {
		if req.System == ReduceSystemPrompt {
			return "answer about " + word, nil
		}
		return perChunk(req)
	}
}

func TestSearchRepeatedRunIsServedFromCache(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"alpha.go":     strings.Repeat("a", 80),
		"needle.go":    "func needle() {}",
		"pkg/gamma.go": strings.Repeat("g", 80),
	})
	cache := localfs.NewResponseCache(filepath.Join(t.TempDir(), "cache.json"))
	completer := &completerFake{respond: reduceAware("needle")}
	uc := newSearch(completer, cache)
	req := domain.SearchRequest{Root: root, Question: "who defines it?"}

	first, err := uc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	if first.Stats.Chunks < 2 {
		t.Fatalf("expected several chunks under a small budget, got %d", first.Stats.Chunks)
	}
	if first.Stats.CacheHits != 0 {
		t.Fatalf("expected cold cache, got %d hits", first.Stats.CacheHits)
	}
	if first.Model != "default-model" {
		t.Fatalf("expected default model, got %q", first.Model)
	}
	callsAfterFirst := completer.callCount()

	second, err := uc.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if second.Answer != first.Answer {
		t.Fatalf("answers differ: %+v vs %+v", first.Answer, second.Answer)
	}
	if second.Stats.CacheHits != second.Stats.Chunks {
		t.Fatalf("expected every chunk cached, hits=%d chunks=%d", second.Stats.CacheHits, second.Stats.Chunks)
	}
	if got := completer.callCount() - callsAfterFirst; got != 1 {
		t.Fatalf("expected only the reduce call on the second run, got %d calls", got)
	}
	if second.Stats.BackendCalls != 1 {
		t.Fatalf("expected BackendCalls=1 (reduce only), got %d", second.Stats.BackendCalls)
	}
}

func TestSearchNothingFound(t *testing.T) {
	root := writeRepo(t, map[string]string{"a.go": "package a"})
	completer := &completerFake{}
	report, err := newSearch(completer, nil).Search(context.Background(), domain.SearchRequest{Root: root, Question: "q"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !report.Answer.NothingFound || report.Answer.Text != domain.NothingFoundText {
		t.Fatalf("expected sentinel, got %+v", report.Answer)
	}
	if completer.callCount() != 1 {
		t.Fatalf("expected one per-chunk call and no reduce, got %d", completer.callCount())
	}
}

func TestSearchReduceFailureKeepsReport(t *testing.T) {
	root := writeRepo(t, map[string]string{"needle.go": "package needle"})
	boom := errors.New("reduce failed")
	completer := &completerFake{respond: func(req domain.CompletionRequest) (string, error) {
		if req.System == ReduceSystemPrompt {
			return "", boom
		}
		return "FOUND\nFiles: needle.go", nil
	}}

	report, err := newSearch(completer, nil).Search(context.Background(), domain.SearchRequest{Root: root, Question: "q"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected reduce error, got %v", err)
	}
	if report == nil || len(report.Results) != 1 || !report.Results[0].Relevant {
		t.Fatalf("expected per-chunk results alongside the error, got %+v", report)
	}
}

func TestSearchRejectsEmptyQuestion(t *testing.T) {
	_, err := newSearch(&completerFake{}, nil).Search(context.Background(), domain.SearchRequest{Root: t.TempDir(), Question: "  "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchMissingRootIsFatal(t *testing.T) {
	completer := &completerFake{}
	_, err := newSearch(completer, nil).Search(context.Background(), domain.SearchRequest{
		Root:     filepath.Join(t.TempDir(), "missing"),
		Question: "q",
	})
	if !domain.IsKind(err, domain.ErrRepositoryUnavailable) {
		t.Fatalf("expected ErrRepositoryUnavailable, got %v", err)
	}
	if completer.callCount() != 0 {
		t.Fatalf("expected no backend calls, got %d", completer.callCount())
	}
}

func TestEstimateMakesNoCallsAndLeavesCacheUntouched(t *testing.T) {
	root := writeRepo(t, map[string]string{
		"a.go": strings.Repeat("x", 100),
		"b.go": strings.Repeat("y", 100),
	})
	cache := localfs.NewResponseCache(filepath.Join(t.TempDir(), "cache.json"))
	completer := &completerFake{}
	uc := newSearch(completer, cache)

	estimate, err := uc.Estimate(context.Background(), root, 0)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	builder := chunking.NewBuilder(tokens.Heuristic{}, nil)
	chunks, err := builder.Build(context.Background(), root, 40)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := domain.CostEstimate{Chunks: len(chunks), Files: 2}
	for _, c := range chunks {
		want.Tokens += c.Tokens
	}
	if diff := cmp.Diff(want, *estimate); diff != "" {
		t.Fatalf("estimate mismatch (-want +got):\n%s", diff)
	}
	if completer.callCount() != 0 {
		t.Fatalf("expected no backend calls, got %d", completer.callCount())
	}
	if cache.Len() != 0 || cache.Dirty() {
		t.Fatalf("estimate must not touch the cache")
	}
}

func TestMatchedFiles(t *testing.T) {
	report := &domain.SearchReport{Results: []domain.QueryResult{
		{Files: []string{"a.go", "b.go"}, Relevant: true, Response: "FOUND\n**Files:** `b.go`, other.go"},
		{Files: []string{"c.go", "d.go"}, Relevant: true, Response: "FOUND\nExplanation: no files line"},
		{Files: []string{"e.go"}, Relevant: false, Response: "NOT_FOUND"},
		{Files: []string{"f.go"}, Relevant: true, Err: errors.New("boom")},
		{Files: []string{"b.go"}, Relevant: true, Response: "FOUND\nFiles: b.go"},
	}}

	got := MatchedFiles(report)
	want := []string{"b.go", "c.go", "d.go"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MatchedFiles mismatch (-want +got):\n%s", diff)
	}
	if MatchedFiles(nil) != nil {
		t.Fatalf("expected nil for nil report")
	}
}

func TestSummarizeNeverReturnsNilMatches(t *testing.T) {
	summary := Summarize(&domain.SearchReport{
		Answer: domain.FinalAnswer{Text: domain.NothingFoundText, NothingFound: true},
		Stats:  domain.SearchStats{Chunks: 2},
	})
	if summary.Matches == nil || len(summary.Matches) != 0 {
		t.Fatalf("expected empty non-nil matches, got %#v", summary.Matches)
	}
	if !summary.NothingFound || summary.Stats.Chunks != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

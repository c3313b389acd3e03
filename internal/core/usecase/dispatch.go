package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
)

const DefaultConcurrency = 8

// ErrSlotUnavailable marks chunks whose query never reached the backend because the
// context ended while waiting for a concurrency slot.
var ErrSlotUnavailable = errors.New("concurrency slot unavailable")

type DispatchOptions struct {
	Model       string
	Concurrency int
}

// Dispatcher queries the completion backend once per chunk, consulting the cache first.
type Dispatcher struct {
	completer ports.Completer
	cache     ports.ResponseCache
	observer  ports.SearchObserver
}

func NewDispatcher(completer ports.Completer, cache ports.ResponseCache, observer ports.SearchObserver) *Dispatcher {
	if cache == nil {
		cache = NoopCache{}
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Dispatcher{
		completer: completer,
		cache:     cache,
		observer:  observer,
	}
}

// Dispatch returns one result per chunk, index-aligned with chunks. It returns only
// after every chunk has finished. Failures stay inside their own result.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []domain.Chunk, question string, opts DispatchOptions) []domain.QueryResult {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]domain.QueryResult, len(chunks))
	slots := semaphore.NewWeighted(int64(limit))

	var g errgroup.Group
	for i := range chunks {
		g.Go(func() error {
			results[i] = d.queryChunk(ctx, slots, chunks[i], question, opts.Model)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) queryChunk(
	ctx context.Context,
	slots *semaphore.Weighted,
	chunk domain.Chunk,
	question string,
	model string,
) domain.QueryResult {
	fp := domain.NewFingerprint(chunk.Text, question)
	result := domain.QueryResult{
		ChunkIndex:  chunk.Index,
		Files:       chunk.Files,
		Fingerprint: fp,
	}

	if cached, ok := d.cache.Get(ctx, fp); ok {
		d.observer.CacheLookup(true)
		result.Response = cached
		result.Relevant = domain.IsRelevant(cached)
		result.Cached = true
		return result
	}
	d.observer.CacheLookup(false)

	req := domain.CompletionRequest{
		System: SearchSystemPrompt,
		Prompt: buildSearchPrompt(question, chunk.Text),
		Model:  model,
	}

	if err := slots.Acquire(ctx, 1); err != nil {
		result.Err = fmt.Errorf("chunk %d: %w: %w", chunk.Index, ErrSlotUnavailable, err)
		return result
	}
	defer slots.Release(1)

	d.observer.BackendCallStarted()
	start := time.Now()
	response, err := d.completer.Complete(ctx, req)
	d.observer.BackendCallFinished(time.Since(start), err)
	if err != nil {
		slog.Warn("chunk_query_failed", "chunk", chunk.Index, "files", len(chunk.Files), "error", err)
		result.Err = fmt.Errorf("query chunk %d: %w", chunk.Index, err)
		return result
	}

	d.cache.Put(ctx, fp, response)
	result.Response = response
	result.Relevant = domain.IsRelevant(response)
	return result
}

// NoopCache never hits and drops every write.
type NoopCache struct{}

func (NoopCache) Get(context.Context, domain.Fingerprint) (string, bool) { return "", false }
func (NoopCache) Put(context.Context, domain.Fingerprint, string)        {}

type noopObserver struct{}

func (noopObserver) CacheLookup(bool)                         {}
func (noopObserver) BackendCallStarted()                      {}
func (noopObserver) BackendCallFinished(time.Duration, error) {}

package ports

import (
	"context"
	"iter"
	"time"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

// Completer is the opaque completion backend.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// ResponseCache maps fingerprints to raw responses. Implementations absorb their own
// persistence failures: a broken store behaves like an empty one.
type ResponseCache interface {
	Get(ctx context.Context, fp domain.Fingerprint) (string, bool)
	Put(ctx context.Context, fp domain.Fingerprint, response string)
}

// ChunkSource walks a repository and packs it into chunks under a token budget.
type ChunkSource interface {
	Chunks(ctx context.Context, root string, maxTokens int) iter.Seq2[domain.Chunk, error]
}

// TokenEstimator approximates model token usage of a text blob.
type TokenEstimator interface {
	Estimate(text string) int
}

// SearchJobRepository persists asynchronous search jobs.
type SearchJobRepository interface {
	Create(ctx context.Context, job *domain.SearchJob) error
	GetByID(ctx context.Context, id string) (*domain.SearchJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.SearchJobStatus, errMessage string) error
	SaveAnswer(ctx context.Context, id string, answer domain.FinalAnswer) error
}

// MessageQueue publishes/consumes search job ids.
type MessageQueue interface {
	PublishSearchRequested(ctx context.Context, jobID string) error
	SubscribeSearchRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// SearchObserver receives dispatcher events; metrics implement it.
type SearchObserver interface {
	CacheLookup(hit bool)
	BackendCallStarted()
	BackendCallFinished(duration time.Duration, err error)
}

package ports

import (
	"context"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

// CodeSearcher is the inbound contract for answering a question about one repository.
type CodeSearcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchReport, error)
	Estimate(ctx context.Context, root string, maxTokens int) (*domain.CostEstimate, error)
}

// SearchJobSubmitter is the inbound contract for asynchronous search requests.
type SearchJobSubmitter interface {
	Submit(ctx context.Context, repository, question, model string) (*domain.SearchJob, error)
}

// SearchJobReader is the inbound read model for job state.
type SearchJobReader interface {
	GetByID(ctx context.Context, id string) (*domain.SearchJob, error)
}

// SearchJobProcessor is the inbound contract for the queue worker.
type SearchJobProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}

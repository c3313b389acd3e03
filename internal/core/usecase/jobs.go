package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
)

// RepositoryResolver maps repository names from API requests onto directories under a
// single base path.
type RepositoryResolver struct {
	base string
}

func NewRepositoryResolver(base string) *RepositoryResolver {
	return &RepositoryResolver{base: base}
}

func (r *RepositoryResolver) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." {
		return r.base, nil
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if !filepath.IsLocal(clean) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve repository", fmt.Errorf("path %q escapes repository base", name))
	}
	return filepath.Join(r.base, clean), nil
}

type SubmitSearchUseCase struct {
	repo     ports.SearchJobRepository
	queue    ports.MessageQueue
	resolver *RepositoryResolver
}

func NewSubmitSearchUseCase(
	repo ports.SearchJobRepository,
	queue ports.MessageQueue,
	resolver *RepositoryResolver,
) *SubmitSearchUseCase {
	return &SubmitSearchUseCase{
		repo:     repo,
		queue:    queue,
		resolver: resolver,
	}
}

func (uc *SubmitSearchUseCase) Submit(ctx context.Context, repository, question, model string) (*domain.SearchJob, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit search", errors.New("question is required"))
	}
	if _, err := uc.resolver.Resolve(repository); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.SearchJob{
		ID:         uuid.NewString(),
		Repository: repository,
		Question:   question,
		Model:      model,
		Status:     domain.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create search job: %w", err)
	}
	if err := uc.queue.PublishSearchRequested(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish search request: %w", err)
	}
	return job, nil
}

func (uc *SubmitSearchUseCase) GetByID(ctx context.Context, id string) (*domain.SearchJob, error) {
	job, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch search job: %w", err)
	}
	return job, nil
}

// ProcessSearchJobUseCase is the worker side of asynchronous search.
type ProcessSearchJobUseCase struct {
	repo     ports.SearchJobRepository
	searcher ports.CodeSearcher
	resolver *RepositoryResolver
}

func NewProcessSearchJobUseCase(
	repo ports.SearchJobRepository,
	searcher ports.CodeSearcher,
	resolver *RepositoryResolver,
) *ProcessSearchJobUseCase {
	return &ProcessSearchJobUseCase{
		repo:     repo,
		searcher: searcher,
		resolver: resolver,
	}
}

func (uc *ProcessSearchJobUseCase) ProcessByID(ctx context.Context, jobID string) error {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch search job: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, jobID, domain.JobRunning, ""); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}

	answer, err := uc.run(ctx, job)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, jobID, domain.JobFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveAnswer(ctx, jobID, answer); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, jobID, domain.JobDone, ""); err != nil {
		return fmt.Errorf("set status=done: %w", err)
	}
	return nil
}

func (uc *ProcessSearchJobUseCase) run(ctx context.Context, job *domain.SearchJob) (domain.FinalAnswer, error) {
	root, err := uc.resolver.Resolve(job.Repository)
	if err != nil {
		return domain.FinalAnswer{}, err
	}
	report, err := uc.searcher.Search(ctx, domain.SearchRequest{
		Root:     root,
		Question: job.Question,
		Model:    job.Model,
	})
	if err != nil {
		return domain.FinalAnswer{}, fmt.Errorf("search repository: %w", err)
	}
	return report.Answer, nil
}

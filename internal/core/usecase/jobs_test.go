package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

type statusCall struct {
	status domain.SearchJobStatus
	errMsg string
}

type jobRepoFake struct {
	job         *domain.SearchJob
	created     *domain.SearchJob
	createErr   error
	getErr      error
	saveErr     error
	statusCalls []statusCall
	answer      domain.FinalAnswer
}

func (f *jobRepoFake) Create(_ context.Context, job *domain.SearchJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = job
	return nil
}

func (f *jobRepoFake) GetByID(context.Context, string) (*domain.SearchJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job := *f.job
	return &job, nil
}

func (f *jobRepoFake) UpdateStatus(_ context.Context, _ string, status domain.SearchJobStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *jobRepoFake) SaveAnswer(_ context.Context, _ string, answer domain.FinalAnswer) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.answer = answer
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishSearchRequested(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, jobID)
	return nil
}

func (f *queueFake) SubscribeSearchRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

type searcherFake struct {
	lastReq domain.SearchRequest
	report  *domain.SearchReport
	err     error
}

func (f *searcherFake) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchReport, error) {
	f.lastReq = req
	return f.report, f.err
}

func (f *searcherFake) Estimate(context.Context, string, int) (*domain.CostEstimate, error) {
	return &domain.CostEstimate{}, nil
}

func TestRepositoryResolver(t *testing.T) {
	base := filepath.FromSlash("/srv/repos")
	r := NewRepositoryResolver(base)

	cases := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: base},
		{name: "service-a", want: filepath.Join(base, "service-a")},
		{name: "group/service-b/", want: filepath.Join(base, "group", "service-b")},
		{name: "../etc", wantErr: true},
		{name: "a/../../b", wantErr: true},
		{name: "/etc/passwd", wantErr: true},
	}
	for _, tc := range cases {
		got, err := r.Resolve(tc.name)
		if tc.wantErr {
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("Resolve(%q): expected ErrInvalidInput, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSubmitPersistsAndPublishes(t *testing.T) {
	repo := &jobRepoFake{}
	queue := &queueFake{}
	uc := NewSubmitSearchUseCase(repo, queue, NewRepositoryResolver("/srv"))

	job, err := uc.Submit(context.Background(), "svc", "where is auth?", "m")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.ID == "" || job.Status != domain.JobQueued {
		t.Fatalf("unexpected job: %+v", job)
	}
	if repo.created != job {
		t.Fatalf("job not persisted")
	}
	if len(queue.published) != 1 || queue.published[0] != job.ID {
		t.Fatalf("expected job id published, got %v", queue.published)
	}
}

func TestSubmitValidation(t *testing.T) {
	uc := NewSubmitSearchUseCase(&jobRepoFake{}, &queueFake{}, NewRepositoryResolver("/srv"))

	if _, err := uc.Submit(context.Background(), "svc", " ", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty question, got %v", err)
	}
	if _, err := uc.Submit(context.Background(), "../x", "q", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for escaping repository, got %v", err)
	}
}

func TestSubmitPublishFailure(t *testing.T) {
	boom := errors.New("nats down")
	uc := NewSubmitSearchUseCase(&jobRepoFake{}, &queueFake{err: boom}, NewRepositoryResolver("/srv"))
	if _, err := uc.Submit(context.Background(), "svc", "q", ""); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestProcessSearchJobSuccess(t *testing.T) {
	repo := &jobRepoFake{job: &domain.SearchJob{ID: "j1", Repository: "svc", Question: "q", Model: "m"}}
	searcher := &searcherFake{report: &domain.SearchReport{Answer: domain.FinalAnswer{Text: "it is in auth.go"}}}
	uc := NewProcessSearchJobUseCase(repo, searcher, NewRepositoryResolver("/srv"))

	if err := uc.ProcessByID(context.Background(), "j1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if searcher.lastReq.Root != filepath.Join("/srv", "svc") || searcher.lastReq.Model != "m" {
		t.Fatalf("unexpected search request: %+v", searcher.lastReq)
	}
	if repo.answer.Text != "it is in auth.go" {
		t.Fatalf("answer not saved: %+v", repo.answer)
	}
	want := []statusCall{{status: domain.JobRunning}, {status: domain.JobDone}}
	if len(repo.statusCalls) != len(want) {
		t.Fatalf("status calls = %+v", repo.statusCalls)
	}
	for i := range want {
		if repo.statusCalls[i] != want[i] {
			t.Fatalf("status call %d = %+v, want %+v", i, repo.statusCalls[i], want[i])
		}
	}
}

func TestProcessSearchJobFailureMarksFailed(t *testing.T) {
	repo := &jobRepoFake{job: &domain.SearchJob{ID: "j1", Repository: "svc", Question: "q"}}
	searcher := &searcherFake{err: domain.WrapError(domain.ErrRepositoryUnavailable, "resolve root", errors.New("missing"))}
	uc := NewProcessSearchJobUseCase(repo, searcher, NewRepositoryResolver("/srv"))

	err := uc.ProcessByID(context.Background(), "j1")
	if !domain.IsKind(err, domain.ErrRepositoryUnavailable) {
		t.Fatalf("expected repository error, got %v", err)
	}
	last := repo.statusCalls[len(repo.statusCalls)-1]
	if last.status != domain.JobFailed || last.errMsg == "" {
		t.Fatalf("expected failed status with message, got %+v", last)
	}
}

func TestProcessSearchJobNotFound(t *testing.T) {
	repo := &jobRepoFake{getErr: domain.WrapError(domain.ErrJobNotFound, "get job", errors.New("no rows"))}
	uc := NewProcessSearchJobUseCase(repo, &searcherFake{}, NewRepositoryResolver("/srv"))

	if err := uc.ProcessByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if len(repo.statusCalls) != 0 {
		t.Fatalf("no status should be written for unknown job")
	}
}

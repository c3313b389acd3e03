package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

type SearchJobRepository struct {
	db *sql.DB
}

func NewSearchJobRepository(db *sql.DB) *SearchJobRepository {
	return &SearchJobRepository{db: db}
}

func (r *SearchJobRepository) Create(ctx context.Context, job *domain.SearchJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO search_jobs (
	id, repository, question, model, status, answer, nothing_found, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		job.ID, job.Repository, job.Question, job.Model, string(job.Status),
		job.Answer, job.NothingFound, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search job: %w", err)
	}
	return nil
}

func (r *SearchJobRepository) GetByID(ctx context.Context, id string) (*domain.SearchJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, repository, question, model, status, answer, nothing_found, error_message, created_at, updated_at
FROM search_jobs
WHERE id = $1
`, id)

	var job domain.SearchJob
	var status string
	err := row.Scan(
		&job.ID, &job.Repository, &job.Question, &job.Model, &status,
		&job.Answer, &job.NothingFound, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get search job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan search job: %w", err)
	}
	job.Status = domain.SearchJobStatus(status)
	return &job, nil
}

func (r *SearchJobRepository) UpdateStatus(ctx context.Context, id string, status domain.SearchJobStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE search_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update search job status: %w", err)
	}
	return requireRow(res, "update search job status", id)
}

func (r *SearchJobRepository) SaveAnswer(ctx context.Context, id string, answer domain.FinalAnswer) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE search_jobs
SET answer = $2, nothing_found = $3, updated_at = $4
WHERE id = $1
`, id, answer.Text, answer.NothingFound, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save search answer: %w", err)
	}
	return requireRow(res, "save search answer", id)
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrJobNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

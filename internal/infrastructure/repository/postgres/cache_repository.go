package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

// CacheRepository shares per-chunk responses between service instances. Database
// failures degrade to a miss or a dropped write.
type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) Get(ctx context.Context, fp domain.Fingerprint) (string, bool) {
	var response string
	err := r.db.QueryRowContext(ctx, `SELECT response FROM response_cache WHERE fingerprint = $1`, string(fp)).Scan(&response)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("response_cache_get_failed", "fingerprint", string(fp), "error", err)
		}
		return "", false
	}
	return response, true
}

func (r *CacheRepository) Put(ctx context.Context, fp domain.Fingerprint, response string) {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO response_cache (fingerprint, response)
VALUES ($1, $2)
ON CONFLICT (fingerprint) DO UPDATE SET response = EXCLUDED.response
`, string(fp), response)
	if err != nil {
		slog.Warn("response_cache_put_failed", "fingerprint", string(fp), "error", err)
	}
}

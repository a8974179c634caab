package posting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore maintains processed posting keys outside a posting
// transaction.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Cleanup removes keys older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE module=$1 AND created_at < $2`, idempotencyModuleVoucher, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a single key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if key == "" {
		return ErrIdempotencyKeyRequired
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND module=$2`, key, idempotencyModuleVoucher)
	return err
}

// KeyCleaner is implemented by stores that expire processed keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

var errNilCleaner = errors.New("posting: key cleaner not configured")

// RunCleanup is the cron entry point shared by the worker and the CLI.
func RunCleanup(ctx context.Context, cleaner KeyCleaner, retention time.Duration) (int64, error) {
	if cleaner == nil {
		return 0, errNilCleaner
	}
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return cleaner.Cleanup(ctx, retention)
}

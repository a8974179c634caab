package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

const draftKeyPrefix = "ledgerdesk:draft:"

// RedisStore keeps sessions as JSON values with a sliding TTL. Save runs
// under WATCH so a concurrent writer aborts the transaction.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a store; ttl defaults to 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func draftKey(id uuid.UUID) string {
	return draftKeyPrefix + id.String()
}

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, draftKey(s.Draft.ID), raw, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("workspace: create: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	raw, err := r.client.Get(ctx, draftKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("workspace: get: %w", err)
	}
	return decodeSession(raw)
}

func (r *RedisStore) Save(ctx context.Context, s Session, expected int64) (Session, error) {
	key := draftKey(s.Draft.ID)
	var saved Session
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Revision != expected {
			return &voucher.ConcurrentModificationError{Expected: expected, Actual: current.Revision}
		}
		next := s
		next.Revision = expected + 1
		body, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return Session{}, &voucher.ConcurrentModificationError{Expected: expected, Actual: -1}
	}
	if err != nil {
		return Session{}, err
	}
	return saved, nil
}

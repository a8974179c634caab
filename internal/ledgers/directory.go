package ledgers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const directoryVersionKey = "ledgers:version"

// Directory serves the ledger list from a versioned redis cache, loading
// through the repository on a miss. Concurrent misses share one load.
type Directory struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewDirectory wires the cache. A nil client disables caching.
func NewDirectory(repo Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Directory{repo: repo, client: client, ttl: ttl, logger: logger}
}

// List returns every active ledger.
func (d *Directory) List(ctx context.Context) ([]Ledger, error) {
	if d.client == nil {
		return d.repo.List(ctx)
	}
	key, err := d.key(ctx)
	if err != nil {
		d.logger.Warn("ledger cache version", slog.Any("error", err))
		return d.repo.List(ctx)
	}
	payload, err := d.client.Get(ctx, key).Bytes()
	if err == nil {
		var out []Ledger
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	} else if err != redis.Nil {
		d.logger.Warn("ledger cache read", slog.Any("error", err))
	}
	return d.load(ctx, key)
}

func (d *Directory) load(ctx context.Context, key string) ([]Ledger, error) {
	ch := d.group.DoChan(key, func() (interface{}, error) {
		list, err := d.repo.List(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		if err := d.client.Set(context.WithoutCancel(ctx), key, raw, d.ttl).Err(); err != nil {
			d.logger.Warn("ledger cache write", slog.Any("error", err))
		}
		return list, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		list := res.Val.([]Ledger)
		return append([]Ledger(nil), list...), nil
	}
}

func (d *Directory) key(ctx context.Context) (string, error) {
	ver, err := d.client.Get(ctx, directoryVersionKey).Int64()
	if err == redis.Nil {
		if err := d.client.SetNX(ctx, directoryVersionKey, 1, 0).Err(); err != nil {
			return "", err
		}
		ver = 1
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledgers:list:%d", ver), nil
}

// Invalidate bumps the cache version so the next List reloads balances.
func (d *Directory) Invalidate(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Incr(ctx, directoryVersionKey).Err()
}

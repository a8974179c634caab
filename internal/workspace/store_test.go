package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newSession(t *testing.T) Session {
	t.Helper()
	d, err := voucher.NewEngine(tax.DefaultTable(), "IN").New(voucher.NewDraftInput{Type: voucher.TypeSales, CompanyRegion: "MH"})
	require.NoError(t, err)
	return Session{Draft: d, Conversation: interpreter.Conversation{State: interpreter.StateIdle}}
}

func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	sess := newSession(t)

	require.NoError(t, store.Create(ctx, sess))
	assert.ErrorIs(t, store.Create(ctx, sess), ErrExists)

	got, err := store.Get(ctx, sess.Draft.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Draft.ID, got.Draft.ID)
	assert.Equal(t, voucher.ModeItemInvoice, got.Draft.Mode)
	assert.Len(t, got.Draft.StockEntries, 1)

	got.Draft.Narration = "first"
	saved, err := store.Save(ctx, got, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Revision)

	got.Draft.Narration = "second"
	_, err = store.Save(ctx, got, 0)
	var conflict *voucher.ConcurrentModificationError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.Actual)

	reloaded, err := store.Get(ctx, sess.Draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", reloaded.Draft.Narration)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Save(ctx, newSession(t), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	client, _ := newRedis(t)
	storeContract(t, NewRedisStore(client, time.Hour))
}

func TestRedisStoreExpiresDrafts(t *testing.T) {
	client, mr := newRedis(t)
	store := NewRedisStore(client, time.Minute)
	sess := newSession(t)
	require.NoError(t, store.Create(context.Background(), sess))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(context.Background(), sess.Draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDoesNotAlias(t *testing.T) {
	store := NewMemoryStore()
	sess := newSession(t)
	require.NoError(t, store.Create(context.Background(), sess))

	got, err := store.Get(context.Background(), sess.Draft.ID)
	require.NoError(t, err)
	got.Draft.StockEntries[0].Batch = "mutated"

	again, err := store.Get(context.Background(), sess.Draft.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Draft.StockEntries[0].Batch)
}

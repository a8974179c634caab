package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
)

func guardContract(t *testing.T, g Guard, expire func()) {
	ctx := context.Background()
	id := uuid.New()

	token, err := g.Acquire(ctx, id)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, id)
	assert.ErrorIs(t, err, interpreter.ErrBusy)

	require.NoError(t, g.Release(ctx, id, "someone-else"))
	_, err = g.Acquire(ctx, id)
	assert.ErrorIs(t, err, interpreter.ErrBusy)

	require.NoError(t, g.Release(ctx, id, token))
	_, err = g.Acquire(ctx, id)
	require.NoError(t, err)

	require.NoError(t, g.Clear(ctx, id))
	_, err = g.Acquire(ctx, id)
	require.NoError(t, err)

	expire()
	_, err = g.Acquire(ctx, id)
	assert.NoError(t, err)
}

func TestRedisGuard(t *testing.T) {
	client, mr := newRedis(t)
	guardContract(t, NewRedisGuard(client, time.Second), func() { mr.FastForward(2 * time.Second) })
}

func TestMemoryGuard(t *testing.T) {
	g := NewMemoryGuard(time.Second)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	guardContract(t, g, func() { now = now.Add(2 * time.Second) })
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &SessionStore{client: client}, mr
}

func TestSessionRegisterAndIsActive(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, 7, "token-a", time.Hour))

	active, err := store.IsActive(ctx, 7, "token-a")
	require.NoError(t, err)
	assert.True(t, active)

	// Same user, different token.
	active, err = store.IsActive(ctx, 7, "token-b")
	require.NoError(t, err)
	assert.False(t, active)

	// Different user, same token.
	active, err = store.IsActive(ctx, 8, "token-a")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSessionRevoke(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, 7, "token-a", time.Hour))
	require.NoError(t, store.Revoke(ctx, 7, "token-a"))

	active, err := store.IsActive(ctx, 7, "token-a")
	require.NoError(t, err)
	assert.False(t, active)

	// Revoking again is a no-op.
	require.NoError(t, store.Revoke(ctx, 7, "token-a"))
}

func TestSessionExpiresWithTTL(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, 7, "token-a", time.Hour))
	mr.FastForward(2 * time.Hour)

	active, err := store.IsActive(ctx, 7, "token-a")
	require.NoError(t, err)
	assert.False(t, active)
}

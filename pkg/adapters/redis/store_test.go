package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	wredis "github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...wredis.Option) (*wredis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return wredis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newTestStore(t)
	ports.RunStateStoreContract(t, store)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store, mr := newTestStore(t, wredis.WithPrefix("custom:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", &domain.SessionSnapshot{SessionID: "abc"}))
	assert.True(t, mr.Exists("custom:abc"))
	assert.False(t, mr.Exists("weft:session:abc"))
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t, wredis.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", &domain.SessionSnapshot{SessionID: "s1"}))

	_, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// The lazy index prune removes the expired session from List.
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "s1")
}

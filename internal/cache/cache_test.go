package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "billing:"), mr
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "settings:all", []byte(`{"a":1}`), time.Hour))
	assert.True(t, mr.Exists("billing:settings:all"), "keys are prefixed")

	value, ok, err := store.Get(ctx, "settings:all")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(value))

	require.NoError(t, store.Delete(ctx, "settings:all"))
	_, ok, err = store.Get(ctx, "settings:all")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Ping(ctx))
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("billing:k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Incr(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	n, err := store.Incr(ctx, "settings:version")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Incr(ctx, "settings:version")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	value, err := mr.Get("billing:settings:version")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func TestRedisStore_ErrorWhenServerDown(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, store.Delete(context.Background(), "k"))
	_, err = store.Incr(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(value))

	value[0] = 'x'
	again, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "v", string(again), "callers get a copy")

	now = now.Add(time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires at its ttl")

	require.NoError(t, store.Set(ctx, "forever", []byte("1"), 0))
	now = now.Add(24 * time.Hour)
	_, ok, _ = store.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "forever", "unknown"))
	_, ok, _ = store.Get(ctx, "forever")
	assert.False(t, ok)
	assert.NoError(t, store.Close())
}

func TestMemoryStore_Incr(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	value, ok, err := store.Get(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", string(value))

	require.NoError(t, store.Set(ctx, "text", []byte("abc"), 0))
	_, err = store.Incr(ctx, "text")
	assert.Error(t, err)
}

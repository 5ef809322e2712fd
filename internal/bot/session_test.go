package bot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(time.Minute)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "1", &Session{Step: StepAwaitPhone}))
	require.NoError(t, store.Put(ctx, "2", &Session{Step: StepAwaitPassword, Phone: "+7"}))

	got, err := store.Get(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepAwaitPassword, got.Step)
	assert.Equal(t, "+7", got.Phone)

	now = now.Add(time.Minute)
	got, err = store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, store.Len())

	assert.Equal(t, 1, store.sweep())
	assert.Equal(t, 0, store.Len())
}

func TestMemorySessionStoreSweeperStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemorySessionStore(time.Nanosecond)
	require.NoError(t, store.Put(ctx, "1", &Session{Step: StepAwaitPhone}))

	store.StartSweeper(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisSessionStore(client, 15*time.Minute)

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Put(ctx, "42", &Session{Step: StepAwaitPassword, Phone: "+70000000001"}))
	assert.Equal(t, 15*time.Minute, mr.TTL(redisKeyPrefix+"42"))

	got, err = store.Get(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StepAwaitPassword, got.Step)
	assert.Equal(t, "+70000000001", got.Phone)

	mr.FastForward(16 * time.Minute)
	got, err = store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Put(ctx, "42", &Session{Step: StepAwaitPhone}))
	require.NoError(t, store.Delete(ctx, "42"))
	assert.False(t, mr.Exists(redisKeyPrefix+"42"))
}

func TestRedisSessionStoreCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set(redisKeyPrefix+"7", "not json"))
	_, err := NewRedisSessionStore(client, time.Minute).Get(context.Background(), "7")
	assert.Error(t, err)
}

package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestStoreLoadMissingIsEmpty(t *testing.T) {
	_, client := setupTestRedis(t)
	s := NewStore(client, time.Hour)

	c, err := s.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", c.ID)
	assert.True(t, c.IsEmpty())
}

func TestStoreMutatePersists(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewStore(client, time.Hour)
	ctx := context.Background()

	_, err := s.Mutate(ctx, "sess-1", func(c *Cart) error { return c.Add(cleanser, 2) })
	require.NoError(t, err)
	got, err := s.Mutate(ctx, "sess-1", func(c *Cart) error { return c.Add(cream, 1) })
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalItems())

	restored, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, restored.Lines, 2)
	assert.Equal(t, "p1", restored.Lines[0].Product.ID)
	assert.True(t, restored.Lines[0].Product.Price.Equal(cleanser.Price))

	assert.True(t, mr.Exists(keyPrefix+"sess-1"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"sess-1"))
}

func TestStoreMutateErrorLeavesCart(t *testing.T) {
	_, client := setupTestRedis(t)
	s := NewStore(client, time.Hour)
	ctx := context.Background()

	_, err := s.Mutate(ctx, "sess-1", func(c *Cart) error { return c.Add(cleanser, 1) })
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Mutate(ctx, "sess-1", func(c *Cart) error {
		c.Clear()
		return boom
	})
	assert.ErrorIs(t, err, boom)

	c, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalItems())
}

func TestStoreExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewStore(client, time.Minute)
	ctx := context.Background()

	_, err := s.Mutate(ctx, "sess-1", func(c *Cart) error { return c.Add(cleanser, 1) })
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	c, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestStoreClear(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewStore(client, time.Hour)
	ctx := context.Background()

	_, err := s.Mutate(ctx, "sess-1", func(c *Cart) error { return c.Add(cleanser, 1) })
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "sess-1"))
	assert.False(t, mr.Exists(keyPrefix+"sess-1"))
	require.NoError(t, s.Clear(ctx, "sess-1"))
}

func TestStoreRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewStore(client, time.Hour)
	mr.Close()

	_, err = s.Load(context.Background(), "sess-1")
	assert.Error(t, err)
}

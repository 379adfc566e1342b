package seats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/events-aggregator/pkg/redis"
)

type fakeSource struct {
	calls int
	seats []string
	err   error
}

func (f *fakeSource) Seats(context.Context, uuid.UUID) ([]string, error) {
	f.calls++
	return f.seats, f.err
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.Wrap(raw), mr
}

func TestCacheServesFromRedisUntilExpiry(t *testing.T) {
	client, mr := newRedis(t)
	src := &fakeSource{seats: []string{"A1", "A2"}}
	cache := NewCache(src, client, 30*time.Second, nil)
	eventID := uuid.New()

	for i := 0; i < 3; i++ {
		seats, err := cache.Seats(context.Background(), eventID)
		require.NoError(t, err)
		assert.Equal(t, []string{"A1", "A2"}, seats)
	}
	assert.Equal(t, 1, src.calls)

	mr.FastForward(31 * time.Second)
	_, err := cache.Seats(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCacheInvalidate(t *testing.T) {
	client, _ := newRedis(t)
	src := &fakeSource{seats: []string{"A1"}}
	cache := NewCache(src, client, time.Minute, nil)
	eventID := uuid.New()

	_, err := cache.Seats(context.Background(), eventID)
	require.NoError(t, err)
	cache.Invalidate(context.Background(), eventID)
	_, err = cache.Seats(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCachePassThroughWithoutRedis(t *testing.T) {
	src := &fakeSource{seats: []string{"B1"}}
	cache := NewCache(src, nil, 0, nil)

	for i := 0; i < 2; i++ {
		_, err := cache.Seats(context.Background(), uuid.New())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)
	cache.Invalidate(context.Background(), uuid.New())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	client, mr := newRedis(t)
	src := &fakeSource{err: errors.New("upstream down")}
	cache := NewCache(src, client, time.Minute, nil)

	_, err := cache.Seats(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestCacheFallsBackWhenRedisUnavailable(t *testing.T) {
	client, mr := newRedis(t)
	src := &fakeSource{seats: []string{"C1"}}
	cache := NewCache(src, client, time.Minute, nil)
	mr.Close()

	seats, err := cache.Seats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, seats)
}

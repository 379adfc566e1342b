package seats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/events-aggregator/pkg/logger"
	"github.com/angelmondragon/events-aggregator/pkg/redis"
)

const DefaultTTL = 30 * time.Second

// Source returns the seats currently available for an event.
type Source interface {
	Seats(ctx context.Context, eventID uuid.UUID) ([]string, error)
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SeatsKey(eventID string) string
}

// Cache is a read-through TTL cache in front of the provider's seat
// endpoint. A nil store turns it into a pass-through, and Redis errors are
// logged and bypassed rather than failing the read.
type Cache struct {
	source Source
	store  store
	ttl    time.Duration
	logg   *logger.Logger
}

// NewCache builds the cache. client may be nil when Redis is not configured.
func NewCache(source Source, client *redis.Client, ttl time.Duration, logg *logger.Logger) *Cache {
	c := &Cache{source: source, ttl: ttl, logg: logg}
	if client != nil {
		c.store = client
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	return c
}

// Seats returns cached seats when fresh, else fetches from the source and
// caches the answer.
func (c *Cache) Seats(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	if c.store == nil {
		return c.source.Seats(ctx, eventID)
	}

	key := c.store.SeatsKey(eventID.String())
	cached, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var seats []string
		if jsonErr := json.Unmarshal([]byte(cached), &seats); jsonErr == nil {
			return seats, nil
		}
		c.logg.Warn(c.logg.WithField(ctx, "key", key), "discarding undecodable seats cache entry")
	case !errors.Is(err, redis.ErrNil):
		c.logg.Error(c.logg.WithField(ctx, "key", key), "seats cache read failed", err)
	}

	seats, err := c.source.Seats(ctx, eventID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(seats)
	if err == nil {
		if setErr := c.store.Set(ctx, key, payload, c.ttl); setErr != nil {
			c.logg.Error(c.logg.WithField(ctx, "key", key), "seats cache write failed", setErr)
		}
	}
	return seats, nil
}

// Invalidate drops the cached seats for an event.
func (c *Cache) Invalidate(ctx context.Context, eventID uuid.UUID) {
	if c.store == nil {
		return
	}
	key := c.store.SeatsKey(eventID.String())
	if err := c.store.Del(ctx, key); err != nil {
		c.logg.Error(c.logg.WithField(ctx, "key", key), "seats cache invalidate failed", err)
	}
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DecisionCache memoizes role-check decisions in Redis. Cache keys embed a
// per-object generation counter; any role-set mutation bumps the generation,
// which retires every cached decision for that object at once. Stale keys
// age out through the TTL.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewDecisionCache constructs a cache. A nil client disables caching.
func NewDecisionCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *DecisionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DecisionCache{client: client, ttl: ttl, logger: logger}
}

func genKey(objectID uuid.UUID) string {
	return "gatekit:gen:" + objectID.String()
}

// Lookup returns the cached decision for (object, query), computing and
// storing it on a miss. Concurrent misses for the same key collapse into one
// computation. Redis failures degrade to computing directly.
func (c *DecisionCache) Lookup(ctx context.Context, objectID uuid.UUID, query string, compute func() (bool, error)) (bool, error) {
	if c == nil || c.client == nil {
		return compute()
	}
	gen, err := c.client.Get(ctx, genKey(objectID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("decision cache generation", err)
			return compute()
		}
		gen = "0"
	}
	key := fmt.Sprintf("gatekit:dec:%s:%s:%s", objectID, gen, query)

	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		return val == "1", nil
	} else if !errors.Is(err, redis.Nil) {
		c.warn("decision cache get", err)
		return compute()
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		decision, err := compute()
		if err != nil {
			return false, err
		}
		stored := "0"
		if decision {
			stored = "1"
		}
		if err := c.client.Set(ctx, key, stored, c.ttl).Err(); err != nil {
			c.warn("decision cache set", err)
		}
		return decision, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Invalidate retires all cached decisions for an object. It runs
// synchronously on every role-set mutation so no caller observes a decision
// older than the mutation.
func (c *DecisionCache) Invalidate(ctx context.Context, objectID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, genKey(objectID)).Err(); err != nil {
		c.warn("decision cache invalidate", err)
	}
}

func (c *DecisionCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}

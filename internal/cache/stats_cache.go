// Package cache provides a Redis-backed cache for per-user task statistics.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskboard/task-service/internal/domain"
)

// generationTTL outlives any single Stats call by a wide margin; an expired
// counter restarts at zero.
const generationTTL = 24 * time.Hour

// setIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// StatsCache stores TaskStats per user under "<prefix>stats:<userID>" next to
// a generation counter under "<prefix>stats-gen:<userID>".
type StatsCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStatsCache creates a stats cache on top of client.
func NewStatsCache(client *redis.Client, prefix string, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *StatsCache) key(userID string) string {
	return c.prefix + "stats:" + userID
}

func (c *StatsCache) generationKey(userID string) string {
	return c.prefix + "stats-gen:" + userID
}

// Get returns the cached stats and whether they were found.
func (c *StatsCache) Get(ctx context.Context, userID string) (*domain.TaskStats, bool, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var stats domain.TaskStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return &stats, true, nil
}

// Generation returns the current invalidation counter for userID, zero when
// none has been recorded.
func (c *StatsCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration stores stats with the configured TTL unless userID was
// invalidated after generation was read. It reports whether the write happened.
func (c *StatsCache) SetIfGeneration(ctx context.Context, userID string, generation int64, stats domain.TaskStats) (bool, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("cache marshal: %w", err)
	}
	keys := []string{c.generationKey(userID), c.key(userID)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("cache set: %w", err)
	}
	return stored == 1, nil
}

// Invalidate bumps the generation and drops the cached stats for userID in a
// single transaction.
func (c *StatsCache) Invalidate(ctx context.Context, userID string) error {
	genKey := c.generationKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, c.key(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

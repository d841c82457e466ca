package quota

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed consume.lua
var consumeScript string

// RedisStore is a Redis-backed quota counter store for multi-instance
// deployments. The check-and-increment runs as a single Lua script, so
// concurrent consumes across gateway instances serialize inside Redis.
// Counters expire on their own shortly after the UTC day rolls over.
type RedisStore struct {
	client  *redis.Client
	consume *redis.Script
}

// NewRedisStore creates a Redis-backed quota store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		consume: redis.NewScript(consumeScript),
	}
}

func txKey(accountID, day string) string {
	return fmt.Sprintf("quota:%s:%s:tx", day, accountID)
}

func spentKey(accountID, day string) string {
	return fmt.Sprintf("quota:%s:%s:spent", day, accountID)
}

// Consume implements Store
func (s *RedisStore) Consume(ctx context.Context, accountID, day string, amountFen, maxTxPerDay, maxFenPerDay int64, ttl time.Duration) (bool, error) {
	keys := []string{txKey(accountID, day), spentKey(accountID, day)}
	args := []interface{}{amountFen, maxTxPerDay, maxFenPerDay, int64(ttl.Seconds())}

	result, err := s.consume.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: consume %s: %v", ErrStorage, accountID, err)
	}
	return result == 1, nil
}

// Usage implements Store
func (s *RedisStore) Usage(ctx context.Context, accountID, day string) (int64, int64, error) {
	values, err := s.client.MGet(ctx, txKey(accountID, day), spentKey(accountID, day)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: usage %s: %v", ErrStorage, accountID, err)
	}

	var txCount, spentFen int64
	if str, ok := values[0].(string); ok {
		txCount, _ = strconv.ParseInt(str, 10, 64)
	}
	if str, ok := values[1].(string); ok {
		spentFen, _ = strconv.ParseInt(str, 10, 64)
	}
	return txCount, spentFen, nil
}

// Ping verifies Redis connectivity for health checks
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

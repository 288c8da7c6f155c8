package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"boostnet/pkg/platform/sentinel"
)

// decrExistingScript decrements only when the key exists, so an expired or
// never-issued claim link cannot be resurrected at -1 by DECR's
// create-on-missing behavior. Runs atomically like any single Redis command.
var decrExistingScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('NOTFOUND')
end
return redis.call('DECR', KEYS[1])
`)

// RedisStore is the production Store. Every method is one Redis command (or
// one script), so single-key linearizability holds across horizontally
// scaled service instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed exchange store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("key %s: ttl is mandatory", key)
	}
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) ConsumeOnce(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getdel %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Decrement(ctx context.Context, key string) (int64, error) {
	n, err := decrExistingScript.Run(ctx, s.client, []string{key}).Int64()
	if err != nil {
		if err.Error() == "NOTFOUND" {
			return 0, fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("decr %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

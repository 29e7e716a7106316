package ephemeral

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint sent with every HSCAN call.
const scanCount = 256

// RedisStore implements HashStore with Redis hashes.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a go-redis client (single node, cluster or ring).
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Scan(ctx context.Context, hash string) Cursor {
	return &redisCursor{it: s.client.HScan(ctx, hash, 0, "", scanCount).Iterator()}
}

func (s *RedisStore) BulkDelete(ctx context.Context, hash string, fields []string) (int, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := s.client.HDel(ctx, hash, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ephemeral: hdel %s failed: %w", hash, err)
	}
	return int(n), nil
}

func (s *RedisStore) InsertIfAbsent(ctx context.Context, hash, field, value string) (bool, error) {
	ok, err := s.client.HSetNX(ctx, hash, field, value).Result()
	if err != nil {
		return false, fmt.Errorf("redis ephemeral: hsetnx %s failed: %w", hash, err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, hash, field string) (string, error) {
	v, err := s.client.HGet(ctx, hash, field).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis ephemeral: hget %s failed: %w", hash, err)
	}
	return v, nil
}

func (s *RedisStore) Delete(ctx context.Context, hash, field string) (bool, error) {
	n, err := s.client.HDel(ctx, hash, field).Result()
	if err != nil {
		return false, fmt.Errorf("redis ephemeral: hdel %s failed: %w", hash, err)
	}
	return n > 0, nil
}

// redisCursor pairs the flat field/value stream of HSCAN.
type redisCursor struct {
	it    *redis.ScanIterator
	field string
	value string
	err   error
}

func (c *redisCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.it.Next(ctx) {
		return false
	}
	c.field = c.it.Val()
	if !c.it.Next(ctx) {
		if c.it.Err() == nil {
			c.err = errors.New("redis ephemeral: hscan returned a field without value")
		}
		return false
	}
	c.value = c.it.Val()
	return true
}

func (c *redisCursor) Field() string { return c.field }
func (c *redisCursor) Value() string { return c.value }

func (c *redisCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.it.Err()
}

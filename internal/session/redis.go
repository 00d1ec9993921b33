package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

const DefaultRedisPrefix = "pixshop:"

// RedisSlot keeps slot values under prefixed string keys.
type RedisSlot struct {
	pool   *redis.Pool
	prefix string
}

func NewRedisSlot(addr, prefix string) *RedisSlot {
	pool := &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(10*time.Second),
				redis.DialWriteTimeout(10*time.Second),
			)
		},
	}
	return NewRedisSlotWithPool(pool, prefix)
}

func NewRedisSlotWithPool(pool *redis.Pool, prefix string) *RedisSlot {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSlot{pool: pool, prefix: prefix}
}

func (s *RedisSlot) key(k string) string {
	return s.prefix + k
}

func (s *RedisSlot) conn(ctx context.Context) (redis.Conn, error) {
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return c, nil
}

func (s *RedisSlot) Get(ctx context.Context, key string) ([]byte, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	value, err := redis.Bytes(c.Do("GET", s.key(key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisSlot) Put(ctx context.Context, key string, value []byte) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Do("SET", s.key(key), value); err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

func (s *RedisSlot) Delete(ctx context.Context, key string) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Do("DEL", s.key(key)); err != nil {
		return fmt.Errorf("failed to delete slot %q: %w", key, err)
	}
	return nil
}

func (s *RedisSlot) Close() error {
	return s.pool.Close()
}

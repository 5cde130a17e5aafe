package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "studyloop:cache:"

// Redis is a Cache backed by a Redis server, shared between service instances.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedis connects to addr and checks the connection.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+key.String()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return raw, true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key.String(), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, redisKeyPrefix+k.String())
	}
	if err := r.rdb.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

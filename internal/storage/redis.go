package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed store. Each area is a hash under a fixed key
// prefix, which keeps checkpoints alive across host-machine restarts when
// the service is deployed next to a Redis instance.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

// Area returns the key/value namespace with the given name.
func (r *Redis) Area(name string) Area {
	return &redisArea{client: r.client, hashKey: "resumewright:" + name}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

type redisArea struct {
	client  *redis.Client
	hashKey string
}

func (a *redisArea) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	items := make(map[string][]byte)

	if len(keys) == 0 {
		all, err := a.client.HGetAll(ctx, a.hashKey).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", a.hashKey, err)
		}
		for k, v := range all {
			items[k] = []byte(v)
		}
		return items, nil
	}

	values, err := a.client.HMGet(ctx, a.hashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget %s: %w", a.hashKey, err)
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			items[keys[i]] = []byte(s)
		}
	}
	return items, nil
}

func (a *redisArea) Set(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}
	fields := make(map[string]any, len(items))
	for k, v := range items {
		fields[k] = v
	}
	if err := a.client.HSet(ctx, a.hashKey, fields).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", a.hashKey, err)
	}
	return nil
}

func (a *redisArea) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := a.client.HDel(ctx, a.hashKey, keys...).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", a.hashKey, err)
	}
	return nil
}

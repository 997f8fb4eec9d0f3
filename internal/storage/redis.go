package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
)

// DefaultRedisKeyPrefix namespaces the keys written by the redis backend.
const DefaultRedisKeyPrefix = "tool-crawler:"

// redisBucket stores each keyed kind in a hash and the crawl history in a list.
type redisBucket struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, cfg.KeyPrefix), nil
}

// NewRedisStore returns a Store on an existing client.
func NewRedisStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return newStore(&redisBucket{client: client, prefix: prefix})
}

func (r *redisBucket) key(kind string) string {
	return r.prefix + kind
}

func (r *redisBucket) get(ctx context.Context, kind, id string) ([]byte, error) {
	data, err := r.client.HGet(ctx, r.key(kind), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s: %w", kind, err)
	}
	return data, nil
}

func (r *redisBucket) put(ctx context.Context, kind string, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]any, len(entries))
	for id, data := range entries {
		values[id] = data
	}
	if err := r.client.HSet(ctx, r.key(kind), values).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", kind, err)
	}
	return nil
}

func (r *redisBucket) all(ctx context.Context, kind string) (map[string][]byte, error) {
	values, err := r.client.HGetAll(ctx, r.key(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", kind, err)
	}
	out := make(map[string][]byte, len(values))
	for id, data := range values {
		out[id] = []byte(data)
	}
	return out, nil
}

func (r *redisBucket) appendEntry(ctx context.Context, kind string, data []byte) error {
	if err := r.client.RPush(ctx, r.key(kind), data).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", kind, err)
	}
	return nil
}

func (r *redisBucket) recent(ctx context.Context, kind string, limit int) ([][]byte, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	values, err := r.client.LRange(ctx, r.key(kind), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", kind, err)
	}
	out := make([][]byte, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		out = append(out, []byte(values[i]))
	}
	return out, nil
}

func (r *redisBucket) close() error {
	return r.client.Close()
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// Options — параметры подключения к Redis.
type Options struct {
	// URL вида redis://:pass@host:6379/0.
	URL string
	// Password перекрывает пароль из URL, если задан.
	Password string
	// Prefix добавляется ко всем ключам.
	Prefix string
}

// ClientOptions разбирает URL и возвращает готовые redis.Options.
func ClientOptions(opts Options) (*redis.Options, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	if opts.Password != "" {
		ro.Password = opts.Password
	}

	return ro, nil
}

// NewRedisStore создаёт клиент Redis и проверяет соединение (fail-fast на старте).
func NewRedisStore(ctx context.Context, opts Options) (Store, error) {
	const op = "cache.NewRedisStore"

	ro, err := ClientOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(ro)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &redisStore{rdb: rdb, prefix: opts.Prefix}, nil
}

func (c *redisStore) key(k string) string { return c.prefix + k }

func (c *redisStore) Get(ctx context.Context, kind Kind, key string) (any, bool, error) {
	const op = "cache.redis.Get"

	raw, err := c.rdb.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	v, err := decode(kind, raw)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return v, true, nil
}

func (c *redisStore) Set(ctx context.Context, kind Kind, key string, value any, ttl time.Duration) error {
	const op = "cache.redis.Set"

	s, err := encode(kind, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if ttl < 0 {
		ttl = 0
	}

	if err := c.rdb.Set(ctx, c.key(key), s, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisStore) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("cache.redis.Delete: %w", err)
	}

	return nil
}

func (c *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache.redis.Exists: %w", err)
	}

	return n == 1, nil
}

// MSet пишет все значения в одной транзакции (MULTI/EXEC).
func (c *redisStore) MSet(ctx context.Context, entries []Entry, ttl time.Duration) error {
	const op = "cache.redis.MSet"

	if len(entries) == 0 {
		return nil
	}

	if ttl < 0 {
		ttl = 0
	}

	pipe := c.rdb.TxPipeline()
	for _, e := range entries {
		s, err := encode(e.Kind, e.Value)
		if err != nil {
			return fmt.Errorf("%s: key %q: %w", op, e.Key, err)
		}
		pipe.Set(ctx, c.key(e.Key), s, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisStore) MGet(ctx context.Context, kind Kind, keys []string) ([]any, error) {
	const op = "cache.redis.MGet"

	if len(keys) == 0 {
		return nil, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}

	vals, err := c.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]any, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}

		d, err := decode(kind, s)
		if err != nil {
			return nil, fmt.Errorf("%s: key %q: %w", op, keys[i], err)
		}
		out[i] = d
	}

	return out, nil
}

func (c *redisStore) Close() error { return c.rdb.Close() }

// Проверка на соответствие интерфейсу Store.
var _ Store = (*redisStore)(nil)

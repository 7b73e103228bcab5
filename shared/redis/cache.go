package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ViewCache stores JSON projections of T under "<prefix><id>". Cache faults
// are logged and treated as misses; callers never fail because of Redis.
type ViewCache[T any] struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration // 0 keeps entries until deleted
	logger *zap.Logger
}

func NewViewCache[T any](client goredis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *ViewCache[T] {
	return &ViewCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("cache", prefix)),
	}
}

func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, bool) {
	raw, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Debug("cache read failed", zap.String("id", id), zap.Error(err))
		}
		return nil, false
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Debug("dropping undecodable entry", zap.String("id", id), zap.Error(err))
		return nil, false
	}
	return v, true
}

// GetOrLoad serves id from Redis, or calls load and caches what it returns.
// Errors from load are passed through and nothing is cached.
func (c *ViewCache[T]) GetOrLoad(ctx context.Context, id string, load func(context.Context) (*T, error)) (*T, error) {
	if v, ok := c.Get(ctx, id); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, id, v)
	return v, nil
}

func (c *ViewCache[T]) Set(ctx context.Context, id string, value *T) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("id", id), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+id, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("id", id), zap.Error(err))
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		c.logger.Warn("cache delete failed", zap.String("id", id), zap.Error(err))
	}
}

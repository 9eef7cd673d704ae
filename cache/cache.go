package cache

import (
	"context"
	"errors"
	"time"

	"github.com/chaos-io/avatarkit/util"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache is a best-effort byte cache: failures read as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Close() error
}

// New connects to redis, or returns Noop when the cache is disabled or the
// server does not answer a ping.
func New(ctx context.Context, cfg Config) Cache {
	if !cfg.Enabled {
		return Noop{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		util.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		_ = client.Close()
		return Noop{}
	}

	util.Logger.Info("redis connected successfully", zap.String("addr", cfg.Addr))
	return NewRedisCache(client, cfg.TTL)
}

type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			util.Logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		util.Logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte)        {}
func (Noop) Close() error                               { return nil }

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/olyamironova/peer-exchange/internal/domain"
	"github.com/olyamironova/peer-exchange/internal/port"
	"github.com/redis/go-redis/v9"
)

var _ port.Cache = (*RedisCache)(nil)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{
		client: rdb,
		ttl:    ttl,
		prefix: "ob:",
	}
}

// WithNodePrefix namespaces keys so nodes sharing one redis do not overwrite
// each other's books.
func (c *RedisCache) WithNodePrefix(nodeID string) *RedisCache {
	c.prefix = "ob:" + nodeID + ":"
	return c
}

func (c *RedisCache) key(symbol string) string { return c.prefix + symbol }

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) SetOrderbook(ctx context.Context, symbol string, ob *domain.OrderbookSnapshot) error {
	b, err := json.Marshal(ob)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(symbol), b, c.ttl).Err()
}

func (c *RedisCache) GetOrderbook(ctx context.Context, symbol string) (*domain.OrderbookSnapshot, error) {
	b, err := c.client.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ob domain.OrderbookSnapshot
	if err := json.Unmarshal(b, &ob); err != nil {
		return nil, err
	}
	return &ob, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, c.key(symbol)).Err()
}

package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/internal/utils"
)

// Deduper remembers event ids for a while so redelivered events run once.
type Deduper interface {
	// Seen records id and reports whether it had been recorded before.
	Seen(ctx context.Context, id string) (bool, error)
}

// LRUDeduper keeps recent ids in process memory.
type LRUDeduper struct {
	cache *utils.Cache
	ttl   time.Duration
}

func NewLRUDeduper(size int, ttl time.Duration) (*LRUDeduper, error) {
	c, err := utils.NewCache(size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &LRUDeduper{cache: c, ttl: ttl}, nil
}

func (d *LRUDeduper) Seen(ctx context.Context, id string) (bool, error) {
	return d.cache.SeenRecently(id, d.ttl), nil
}

// RedisDeduper shares seen ids between replicas.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func RedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func (d *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	set, err := d.client.SetNX(ctx, "pulse:event:"+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !set, nil
}

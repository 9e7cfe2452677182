package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	countsKey = "pharmacy:dashboard:counts"
	countsTTL = 30 * time.Second
)

// ErrMiss is returned when the key is not cached.
var ErrMiss = errors.New("cache miss")

// Counts caches the per-category drug counts shown on the dashboard.
type Counts interface {
	Get(ctx context.Context) (map[string]int64, error)
	Set(ctx context.Context, counts map[string]int64) error
	Invalidate(ctx context.Context) error
}

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisClient{client: client}, nil
}

// NewRedisClientFrom wraps an existing client.
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func (r *RedisClient) Get(ctx context.Context) (map[string]int64, error) {
	raw, err := r.client.Get(ctx, countsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var out map[string]int64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisClient) Set(ctx context.Context, counts map[string]int64) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, countsKey, raw, countsTTL).Err()
}

func (r *RedisClient) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, countsKey).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Nop never caches.
type Nop struct{}

func (Nop) Get(context.Context) (map[string]int64, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, map[string]int64) error   { return nil }
func (Nop) Invalidate(context.Context) error              { return nil }

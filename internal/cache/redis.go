package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 24 * time.Hour,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, email string) (string, error) {
	id, err := r.client.Get(ctx, cacheKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return id, nil
}

func (r RedisCache) Set(ctx context.Context, email, gatewayCustomerID string) error {
	jitter := time.Duration(rand.Intn(60)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, cacheKey(email), gatewayCustomerID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, cacheKey(email)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// emails are case-insensitive at the gateway
func cacheKey(email string) string {
	return fmt.Sprintf("gateway-customer:%s", strings.ToLower(strings.TrimSpace(email)))
}

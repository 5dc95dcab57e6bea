// Package cache provides a Redis read-through cache for the query
// surface: latest health scores and profile snapshots are hot reads for
// dashboards, while writes invalidate the affected keys.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(addr string, password string, db int, prefix string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		// Connection pool settings
		PoolSize:     100,
		MinIdleConns: 10,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    5 * time.Minute,
	}
}

func (rc *RedisCache) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	fullKey := rc.prefix + ":" + key

	data, err := rc.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	return true, nil
}

func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	fullKey := rc.prefix + ":" + key

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if ttl == 0 {
		ttl = rc.ttl
	}

	if err := rc.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	fullKey := rc.prefix + ":" + key
	return rc.client.Del(ctx, fullKey).Err()
}

// InvalidateTenant removes every cached entry for a tenant. Called
// after a sweep writes fresh records.
func (rc *RedisCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	pattern := fmt.Sprintf("%s:tenant:%s:*", rc.prefix, tenantID)

	keys, err := rc.client.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("redis keys scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return rc.client.Del(ctx, keys...).Err()
}

// Ping checks Redis connectivity
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Key helpers keep the cache layout in one place.

func LatestHealthKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:health:latest", tenantID)
}

func LatestChurnKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:churn:latest", tenantID)
}

func ProfileKey(verticalID string) string {
	return fmt.Sprintf("profile:%s", verticalID)
}

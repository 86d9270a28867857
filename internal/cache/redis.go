package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultHistoryTTL keeps a price-history response for roughly one chart refresh
const DefaultHistoryTTL = 2 * time.Minute

// RedisCache holds price-history responses so repeated runs within a few
// minutes do not hit the CLOB API again
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// HistoryKey is the cache key for one market series
func HistoryKey(token, interval string, fidelity int) string {
	return fmt.Sprintf("moneta:history:%s:%s:%d", token, interval, fidelity)
}

// GetPriceHistory returns a cached response body. A miss is (nil, false, nil).
func (rc *RedisCache) GetPriceHistory(ctx context.Context, token, interval string, fidelity int) ([]byte, bool, error) {
	body, err := rc.client.Get(ctx, HistoryKey(token, interval, fidelity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// SetPriceHistory stores a response body with the cache TTL
func (rc *RedisCache) SetPriceHistory(ctx context.Context, token, interval string, fidelity int, body []byte) error {
	return rc.client.Set(ctx, HistoryKey(token, interval, fidelity), body, rc.ttl).Err()
}

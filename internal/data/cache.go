package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache key prefixes. Keys are built as prefix:part:part so that one
// remediation pass can clear a whole family with a prefix scan.
const (
	// CacheKeySearch is the prefix for supplier search-result caches: search:{provider}:{hash}
	CacheKeySearch = "search"
	// CacheKeyPricing is the prefix for fare/rate quote caches: pricing:{provider}:{hash}
	CacheKeyPricing = "pricing"
	// CacheKeyRotation is the key for the provider rotation order
	CacheKeyRotation = "rotation"
	// CacheKeyHealth is the prefix for cached health rows: health:{provider}
	CacheKeyHealth = "health"
	// CacheKeyBackup is the hash where cleared entries are parked for rollback
	CacheKeyBackup = "cache_backup"
)

// Cache TTL durations.
const (
	// TTLSearch is the TTL for search-result caches (10 minutes)
	TTLSearch = 10 * time.Minute
	// TTLPricing is the TTL for fare quote caches (5 minutes)
	TTLPricing = 5 * time.Minute
	// TTLRotation is the TTL for the rotation order (no natural expiry, refreshed on write)
	TTLRotation = 24 * time.Hour
	// TTLHealth is the TTL for cached health rows (30 seconds, one monitor cycle)
	TTLHealth = 30 * time.Second
	// TTLBackup is how long a rollback snapshot is kept
	TTLBackup = 1 * time.Hour
)

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient defines the interface for cache operations.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)

	// DeleteByPrefix removes every key under prefix and returns how many
	// were deleted. Deleting an already-empty prefix is not an error, which
	// makes prefix clearing naturally idempotent.
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)

	// SnapshotByPrefix parks every key under prefix into the backup hash
	// (then deletes the originals) so a rollback can restore them.
	SnapshotByPrefix(ctx context.Context, prefix string) (int64, error)

	// RestoreSnapshot writes parked entries back and clears the backup hash.
	RestoreSnapshot(ctx context.Context) (int64, error)
}

// redisCache is the Redis-based implementation of CacheClient.
type redisCache struct {
	client *redis.Client
}

// NewCacheClient creates a new Redis-based cache client.
// If the Redis client is nil, cache operations will gracefully fail.
func NewCacheClient(rdb *redis.Client) CacheClient {
	return &redisCache{
		client: rdb,
	}
}

// Get retrieves a value from cache and deserializes it into dest.
// Returns ErrCacheNotFound if the key doesn't exist (redis.Nil).
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in cache with the specified TTL.
// The value is serialized to JSON before storage.
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, errors.New("cache: redis client is nil")
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

// DeleteByPrefix removes every key under prefix using SCAN, never KEYS.
func (c *redisCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	if c.client == nil {
		return 0, errors.New("cache: redis client is nil")
	}

	var deleted int64
	iter := c.client.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("cache: failed to delete key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache: scan failed for prefix %s: %w", prefix, err)
	}

	return deleted, nil
}

// SnapshotByPrefix parks matching entries into the backup hash, then deletes
// them. Values already expired between scan and read are skipped.
func (c *redisCache) SnapshotByPrefix(ctx context.Context, prefix string) (int64, error) {
	if c.client == nil {
		return 0, errors.New("cache: redis client is nil")
	}

	var moved int64
	iter := c.client.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return moved, fmt.Errorf("cache: failed to read key %s for snapshot: %w", key, err)
		}

		if err := c.client.HSet(ctx, CacheKeyBackup, key, val).Err(); err != nil {
			return moved, fmt.Errorf("cache: failed to park key %s: %w", key, err)
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return moved, fmt.Errorf("cache: failed to delete key %s after snapshot: %w", key, err)
		}
		moved++
	}
	if err := iter.Err(); err != nil {
		return moved, fmt.Errorf("cache: scan failed for prefix %s: %w", prefix, err)
	}

	if moved > 0 {
		c.client.Expire(ctx, CacheKeyBackup, TTLBackup)
	}

	return moved, nil
}

// RestoreSnapshot writes parked entries back with the pricing TTL and clears
// the backup hash. Restoring an empty snapshot is a no-op.
func (c *redisCache) RestoreSnapshot(ctx context.Context) (int64, error) {
	if c.client == nil {
		return 0, errors.New("cache: redis client is nil")
	}

	entries, err := c.client.HGetAll(ctx, CacheKeyBackup).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: failed to read backup hash: %w", err)
	}

	var restored int64
	for key, val := range entries {
		if err := c.client.Set(ctx, key, val, TTLPricing).Err(); err != nil {
			return restored, fmt.Errorf("cache: failed to restore key %s: %w", key, err)
		}
		restored++
	}

	if err := c.client.Del(ctx, CacheKeyBackup).Err(); err != nil {
		return restored, fmt.Errorf("cache: failed to clear backup hash: %w", err)
	}

	return restored, nil
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeySearch, "amadeus", "a1b2") -> "search:amadeus:a1b2"
//   - BuildCacheKey(CacheKeyHealth, "hotelbeds") -> "health:hotelbeds"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

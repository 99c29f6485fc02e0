package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return rdb, mr
}

// Test Set/Get roundtrip
func TestCacheClient_SetGet(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	type fare struct {
		Provider string  `json:"provider"`
		Price    float64 `json:"price"`
	}

	key := BuildCacheKey(CacheKeyPricing, "amadeus", "a1b2")
	err := cache.Set(ctx, key, &fare{Provider: "amadeus", Price: 129.99}, TTLPricing)
	require.NoError(t, err)

	var got fare
	err = cache.Get(ctx, key, &got)
	assert.NoError(t, err)
	assert.Equal(t, "amadeus", got.Provider)
	assert.Equal(t, 129.99, got.Price)
}

// Test Get - missing key
func TestCacheClient_GetNotFound(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	var dest string
	err := cache.Get(ctx, "missing", &dest)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

// Test DeleteByPrefix - only matching keys removed
func TestCacheClient_DeleteByPrefix(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "search:amadeus:q1", "r1", TTLSearch))
	require.NoError(t, cache.Set(ctx, "search:hotelbeds:q2", "r2", TTLSearch))
	require.NoError(t, cache.Set(ctx, "pricing:amadeus:q1", "p1", TTLPricing))

	deleted, err := cache.DeleteByPrefix(ctx, CacheKeySearch)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// Pricing entry survives
	exists, err := cache.Exists(ctx, "pricing:amadeus:q1")
	assert.NoError(t, err)
	assert.True(t, exists)
}

// Test DeleteByPrefix - empty prefix is not an error (idempotent)
func TestCacheClient_DeleteByPrefix_Empty(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	deleted, err := cache.DeleteByPrefix(ctx, CacheKeySearch)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	// Second run still succeeds
	deleted, err = cache.DeleteByPrefix(ctx, CacheKeySearch)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

// Test Snapshot + Restore roundtrip
func TestCacheClient_SnapshotRestore(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "pricing:amadeus:q1", "p1", TTLPricing))
	require.NoError(t, cache.Set(ctx, "pricing:hotelbeds:q2", "p2", TTLPricing))

	moved, err := cache.SnapshotByPrefix(ctx, CacheKeyPricing)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	// Originals are gone after snapshot
	exists, err := cache.Exists(ctx, "pricing:amadeus:q1")
	require.NoError(t, err)
	assert.False(t, exists)

	restored, err := cache.RestoreSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), restored)

	var got string
	err = cache.Get(ctx, "pricing:amadeus:q1", &got)
	assert.NoError(t, err)
	assert.Equal(t, "p1", got)

	// Backup hash is cleared
	exists, err = cache.Exists(ctx, CacheKeyBackup)
	assert.NoError(t, err)
	assert.False(t, exists)
}

// Test RestoreSnapshot - empty backup is a no-op
func TestCacheClient_RestoreSnapshot_Empty(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	restored, err := cache.RestoreSnapshot(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), restored)
}

// Test snapshot backup has a TTL
func TestCacheClient_SnapshotBackupTTL(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	cache := NewCacheClient(rdb)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "pricing:amadeus:q1", "p1", TTLPricing))

	_, err := cache.SnapshotByPrefix(ctx, CacheKeyPricing)
	require.NoError(t, err)

	ttl := rdb.TTL(ctx, CacheKeyBackup).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, TTLBackup)

	// After the TTL the snapshot is gone
	mr.FastForward(TTLBackup + time.Second)
	restored, err := cache.RestoreSnapshot(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), restored)
}

// Test BuildCacheKey
func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		prefix   string
		parts    []string
		expected string
	}{
		{CacheKeySearch, []string{"amadeus", "a1b2"}, "search:amadeus:a1b2"},
		{CacheKeyHealth, []string{"hotelbeds"}, "health:hotelbeds"},
		{CacheKeyRotation, nil, "rotation"},
	}

	for _, tt := range tests {
		result := BuildCacheKey(tt.prefix, tt.parts...)
		assert.Equal(t, tt.expected, result)
	}
}

// Test nil Redis client handling
func TestCacheClient_NilRedis(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	var dest string
	err := cache.Get(ctx, "key", &dest)
	assert.Error(t, err)

	err = cache.Set(ctx, "key", "value", time.Minute)
	assert.Error(t, err)

	_, err = cache.DeleteByPrefix(ctx, CacheKeySearch)
	assert.Error(t, err)

	_, err = cache.SnapshotByPrefix(ctx, CacheKeyPricing)
	assert.Error(t, err)

	_, err = cache.RestoreSnapshot(ctx)
	assert.Error(t, err)
}

package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test IncrementUsage - first increment sets the window TTL
func TestIncrementUsage_FirstIncrement(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewQuotaRepo(nil, rdb, logger)

	ctx := context.Background()

	count, err := repo.IncrementUsage(ctx, "amadeus", 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ttl := rdb.TTL(ctx, usageKey("amadeus")).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, usageWindow)
}

// Test IncrementUsage - counters accumulate within the window
func TestIncrementUsage_Accumulates(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewQuotaRepo(nil, rdb, logger)

	ctx := context.Background()

	count1, err := repo.IncrementUsage(ctx, "amadeus", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count1)

	count2, err := repo.IncrementUsage(ctx, "amadeus", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), count2)

	// Another provider's counter is independent
	other, err := repo.IncrementUsage(ctx, "hotelbeds", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), other)
}

// Test GetUsage - missing counter reads as zero
func TestGetUsage_NotExists(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewQuotaRepo(nil, rdb, logger)

	count, err := repo.GetUsage(context.Background(), "sabre")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// Test TrySetHalfOpen - only the first caller wins
func TestTrySetHalfOpen_SingleWinner(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewQuotaRepo(nil, rdb, logger)

	ctx := context.Background()

	ok, err := repo.TrySetHalfOpen(ctx, "amadeus")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second attempt loses
	ok, err = repo.TrySetHalfOpen(ctx, "amadeus")
	require.NoError(t, err)
	assert.False(t, ok)

	isHalfOpen, err := repo.IsHalfOpen(ctx, "amadeus")
	assert.NoError(t, err)
	assert.True(t, isHalfOpen)
}

// Test half-open marker expires
func TestTrySetHalfOpen_MarkerExpires(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	defer rdb.Close()

	logger := log.NewStdLogger(os.Stdout)
	repo := NewQuotaRepo(nil, rdb, logger)

	ctx := context.Background()

	ok, err := repo.TrySetHalfOpen(ctx, "amadeus")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(halfOpenTTL + time.Second)

	isHalfOpen, err := repo.IsHalfOpen(ctx, "amadeus")
	assert.NoError(t, err)
	assert.False(t, isHalfOpen)

	// Marker can be taken again after expiry
	ok, err = repo.TrySetHalfOpen(ctx, "amadeus")
	assert.NoError(t, err)
	assert.True(t, ok)
}

// Test usage key generation is hour-bucketed
func TestUsageKey(t *testing.T) {
	key := usageKey("amadeus")
	expected := "usage:amadeus:" + time.Now().UTC().Format("2006010215")
	assert.Equal(t, expected, key)
}

// Test nil Redis client handling
func TestQuotaRepo_NilRedis(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	repo := NewQuotaRepo(nil, nil, logger)

	ctx := context.Background()

	_, err := repo.IncrementUsage(ctx, "amadeus", 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")

	_, err = repo.GetUsage(ctx, "amadeus")
	assert.Error(t, err)

	_, err = repo.TrySetHalfOpen(ctx, "amadeus")
	assert.Error(t, err)

	_, err = repo.IsHalfOpen(ctx, "amadeus")
	assert.Error(t, err)
}

package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOwnership(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	key := "order:" + uuid.New().String()

	ok, err := client.AcquireLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.AcquireLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	require.NoError(t, client.ReleaseLock(ctx, key))

	ok, err = client.AcquireLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, client.ReleaseLock(ctx, key))
}

func TestClaimIdempotencyKey(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	key := uuid.New().String()

	first, err := client.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)
	second, err := client.ClaimIdempotencyKey(ctx, key, time.Minute)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreFirstHitArmsWindow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "rl")

	mock.ExpectIncr("rl:webhook:203.0.113.9").SetVal(1)
	mock.ExpectExpire("rl:webhook:203.0.113.9", time.Minute).SetVal(true)

	count, resetAt, err := store.Increment(context.Background(), "webhook:203.0.113.9", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSubsequentHitReadsTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "rl")

	mock.ExpectIncr("rl:k").SetVal(4)
	mock.ExpectPTTL("rl:k").SetVal(42 * time.Second)

	count, resetAt, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.WithinDuration(t, time.Now().Add(42*time.Second), resetAt, 2*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreReArmsMissingTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "rl")

	mock.ExpectIncr("rl:k").SetVal(2)
	mock.ExpectPTTL("rl:k").SetVal(-1)
	mock.ExpectExpire("rl:k", time.Minute).SetVal(true)

	count, resetAt, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreReset(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, "")

	mock.ExpectDel("ratelimit:k").SetVal(1)
	require.NoError(t, store.Reset(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

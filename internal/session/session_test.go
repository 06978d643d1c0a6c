package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/agrosense/internal/config"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	var store AuthContext = NewMemoryStore()

	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.SetSession(ctx, "abc.def", "admin"))
	token, _ = store.Token(ctx)
	role, _ := store.Role(ctx)
	assert.Equal(t, "abc.def", token)
	assert.Equal(t, "admin", role)

	require.NoError(t, store.ClearSession(ctx))
	token, _ = store.Token(ctx)
	role, _ = store.Role(ctx)
	assert.Empty(t, token)
	assert.Empty(t, role)
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	client := unreachableRedis()
	store := NewRedisStoreFromClient(client)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	_, err := store.Token(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read "+tokenKey)

	err = store.SetSession(ctx, "t", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store session")

	err = store.ClearSession(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear session")
}

func TestNewRedisStoreFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, config.SessionConfig{RedisAddr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping redis")
}

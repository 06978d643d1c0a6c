package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrosense/agrosense/internal/config"
)

const (
	tokenKey = "agrosense:session:token"
	roleKey  = "agrosense:session:role"
)

// RedisStore keeps the session in Redis so it survives restarts and is
// shared between replicas.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.SessionConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Token returns the stored token, empty when signed out.
func (s *RedisStore) Token(ctx context.Context) (string, error) {
	return s.get(ctx, tokenKey)
}

// Role returns the stored role, empty when signed out.
func (s *RedisStore) Role(ctx context.Context) (string, error) {
	return s.get(ctx, roleKey)
}

// SetSession writes token and role atomically.
func (s *RedisStore) SetSession(ctx context.Context, token, role string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey, token, 0)
		pipe.Set(ctx, roleKey, role, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// ClearSession removes both keys.
func (s *RedisStore) ClearSession(ctx context.Context) error {
	if err := s.client.Del(ctx, tokenKey, roleKey).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

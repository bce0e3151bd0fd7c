package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/types"
)

// RedisSessionStore implements SessionStore over redis. Sessions are stored
// as JSON under <prefix>session:<id> with no expiry; session lifecycle is
// the principal's concern.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisClient builds a client from config and verifies connectivity.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisSessionStore creates a session store over an existing client.
func NewRedisSessionStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_session_store")),
	}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, sess *types.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to encode session").WithCause(err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, 0).Err(); err != nil {
		return types.NewError(types.ErrInternal, "failed to save session").WithCause(err)
	}
	return nil
}

func (s *RedisSessionStore) LoadSession(ctx context.Context, id string) (*types.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewError(types.ErrNotFound, "session not found")
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to load session").WithCause(err)
	}

	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to decode session").WithCause(err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return types.NewError(types.ErrInternal, "failed to delete session").WithCause(err)
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

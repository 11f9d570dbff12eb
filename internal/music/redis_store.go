package music

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalredis "github.com/hxnx/spotmpd/internal/redis"
	redislib "github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redislib.Client
}

func NewRedisStore(client *redislib.Client) *RedisStore {
	return &RedisStore{client: client}
}

func NewRedisStoreFromDefault() *RedisStore {
	return &RedisStore{client: internalredis.Client()}
}

func (s *RedisStore) ensureClient() error {
	if s.client != nil {
		return nil
	}

	s.client = internalredis.Client()
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ensureClient(); err != nil {
		return nil, false, err
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redislib.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.ensureClient(); err != nil {
		return err
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

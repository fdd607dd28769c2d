package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RedisStore keeps sessions as expiring redis keys.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + HashID(id)
}

func (s *RedisStore) Get(ctx context.Context, id string) (string, error) {
	accountID, err := s.redis.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oops.Code("SESSION_LOOKUP_FAILED").With("store", "redis").Wrap(err)
	}
	return accountID, nil
}

func (s *RedisStore) Put(ctx context.Context, id, accountID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(id), accountID, ttl).Err(); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("store", "redis").Wrap(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("store", "redis").Wrap(err)
	}
	return nil
}

package credential

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token under a single redis key so several processes
// on different hosts share one login.
type RedisStore struct {
	client *redis.Client
	slot   string
}

// NewRedisStore uses slot as the key suffix; an empty slot means DefaultSlot.
func NewRedisStore(client *redis.Client, slot string) *RedisStore {
	if client == nil {
		panic("credential.NewRedisStore: redis client is nil")
	}
	if slot == "" {
		slot = DefaultSlot
	}
	return &RedisStore{client: client, slot: slot}
}

func (r *RedisStore) key() string {
	return "credential:" + r.slot
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	return r.client.Set(ctx, r.key(), token, 0).Err()
}

func (r *RedisStore) Read(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return token, token != "", nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key()).Err()
}

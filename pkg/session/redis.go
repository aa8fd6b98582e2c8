package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps one JSON document per session key and lets redis expire it.
// The key's PTTL is authoritative for ExpiresAt.
type redisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func newRedisStore(cfg *storeConfig) *redisStore {
	return &redisStore{
		client: cfg.redisClient,
		prefix: cfg.keyPrefix,
		ttl:    cfg.ttl,
		now:    cfg.now,
	}
}

func (s *redisStore) key(key string) string {
	return s.prefix + key
}

func (s *redisStore) Get(ctx context.Context, key string) (*State, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.key(key))
	ttlCmd := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, err
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		state.ExpiresAt = s.now().Add(ttl).UnixMilli()
	}
	return state, nil
}

func (s *redisStore) Set(ctx context.Context, key string, state *State) error {
	if key == "" {
		return ErrEmptyKey
	}
	state.Key = key
	state.Stamp(s.now(), s.ttl)

	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Touch(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.PExpire(ctx, s.key(key), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}
	return ok, nil
}

// Sweep is a no-op: redis expires keys itself.
func (s *redisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

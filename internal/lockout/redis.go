// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/biogate/biogate/internal/biometric"
)

// DefaultRedisPrefix namespaces keys in a shared Redis.
const DefaultRedisPrefix = "biogate:"

// RedisStore keeps flags in Redis so a fleet of devices sharing a user
// profile sees the same lockouts.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(t biometric.Type) string {
	return s.prefix + Key(t)
}

// SetPermanentlyLocked implements Store.
func (s *RedisStore) SetPermanentlyLocked(ctx context.Context, t biometric.Type) error {
	if err := s.client.Set(ctx, s.key(t), "1", 0).Err(); err != nil {
		return storeError("redis", "set", err)
	}
	return nil
}

// IsPermanentlyLocked implements Store.
func (s *RedisStore) IsPermanentlyLocked(ctx context.Context, t biometric.Type) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(t)).Result()
	if err != nil {
		return false, storeError("redis", "get", err)
	}
	return n > 0, nil
}

// Reset implements Store. Only keys under the store's prefix are removed.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+KeyPrefix+"-*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return storeError("redis", "scan", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return storeError("redis", "reset", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

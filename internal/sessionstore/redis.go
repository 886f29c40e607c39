// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultKeyPrefix namespaces session keys in Redis.
const DefaultKeyPrefix = "coursevoice:session:"

// RedisBackend stores sessions as Redis strings with a TTL.
type RedisBackend struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisBackend creates a RedisBackend. An empty prefix uses DefaultKeyPrefix.
func NewRedisBackend(rdb redis.Cmdable, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSIONSTORE_REDIS_FAILED").With("operation", "get").Wrap(err)
	}
	return data, nil
}

// Store implements Backend. A non-positive ttl stores without expiry.
func (b *RedisBackend) Store(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.rdb.Set(ctx, b.prefix+id, data, ttl).Err(); err != nil {
		return oops.Code("SESSIONSTORE_REDIS_FAILED").With("operation", "set").Wrap(err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := b.rdb.Del(ctx, b.prefix+id).Err(); err != nil {
		return oops.Code("SESSIONSTORE_REDIS_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}

var _ Backend = (*RedisBackend)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package sessionstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Config selects and configures the session backend.
type Config struct {
	// RedisURL enables the Redis backend. When empty, sessions live in
	// process memory and are lost on restart.
	RedisURL  string
	KeyPrefix string
	// Secret signs session cookies.
	Secret []byte
	// PreviousSecret still verifies cookies signed before a key rotation.
	PreviousSecret []byte
}

// Open builds the configured store. The returned close function releases the
// Redis client and is never nil.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (sessions.Store, func() error, error) {
	keyPairs := [][]byte{cfg.Secret}
	if len(cfg.PreviousSecret) > 0 {
		keyPairs = append(keyPairs, cfg.PreviousSecret)
	}

	if cfg.RedisURL == "" {
		store, err := NewStore(NewMemoryBackend(), logger, keyPairs...)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("no redis configured, sessions are kept in process memory")
		return store, func() error { return nil }, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, oops.Code("SESSIONSTORE_CONFIG_INVALID").
			With("operation", "parse redis url").
			Wrap(err)
	}
	rdb := redis.NewClient(opt)

	if err := pingRedis(ctx, rdb, logger); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}

	store, err := NewStore(NewRedisBackend(rdb, cfg.KeyPrefix), logger, keyPairs...)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	logger.Info("session store ready", "backend", "redis", "addr", opt.Addr)
	return store, rdb.Close, nil
}

func pingRedis(ctx context.Context, rdb *redis.Client, logger *slog.Logger) error {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSIONSTORE_CONNECT_FAILED").
			With("operation", "ping redis").
			Wrap(err)
	}
	return nil
}

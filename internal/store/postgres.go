// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectConfig bounds the startup connection attempts.
type ConnectConfig struct {
	URL         string
	MaxAttempts uint64
	BaseBackoff time.Duration
}

const (
	defaultConnectAttempts = 5
	defaultConnectBackoff  = 500 * time.Millisecond
)

// pinger is the part of pgxpool.Pool Connect waits on.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool and waits until the database answers a ping, retrying
// with exponential backoff. The pool is closed if every attempt fails.
func Connect(ctx context.Context, cfg ConnectConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").
			With("operation", "parse database url").
			Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "create pool").
			Wrap(err)
	}

	if err := waitReady(ctx, pool, cfg, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database)
	return pool, nil
}

func waitReady(ctx context.Context, p pinger, cfg ConnectConfig, logger *slog.Logger) error {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = defaultConnectAttempts
	}
	base := cfg.BaseBackoff
	if base <= 0 {
		base = defaultConnectBackoff
	}

	var tries uint64
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		if err := p.Ping(ctx); err != nil {
			logger.Warn("database not ready", "attempt", tries, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", tries).
			Wrap(err)
	}
	return nil
}

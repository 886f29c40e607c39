// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

//go:build integration

package sessionstore_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/coursevoice/coursevoice/internal/sessionstore"
)

func TestRedisBackend_Integration(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	t.Run("backend round trip with ttl", func(t *testing.T) {
		opt, err := redis.ParseURL(url)
		require.NoError(t, err)
		rdb := redis.NewClient(opt)
		t.Cleanup(func() { _ = rdb.Close() })

		backend := sessionstore.NewRedisBackend(rdb, "test:")
		require.NoError(t, backend.Store(ctx, "abc", []byte(`{"a":1}`), time.Minute))

		data, err := backend.Load(ctx, "abc")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(data))

		ttl, err := rdb.TTL(ctx, "test:abc").Result()
		require.NoError(t, err)
		assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 2)

		require.NoError(t, backend.Delete(ctx, "abc"))
		data, err = backend.Load(ctx, "abc")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("open serves sessions from redis", func(t *testing.T) {
		store, closeFn, err := sessionstore.Open(ctx, sessionstore.Config{RedisURL: url, Secret: signingKey}, discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = closeFn() })

		_, isServerSide := store.(*sessionstore.Store)
		assert.True(t, isServerSide)

		r := newRouter(store)
		cookie := sessionCookie(t, do(r, http.MethodPost, "/set"))
		w := do(r, http.MethodGet, "/get", cookie)
		assert.JSONEq(t, `{"user_id":42,"role":"lecturer"}`, w.Body.String())
	})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package sessionstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedMemory(start time.Time) (*MemoryBackend, *time.Time) {
	now := start
	b := NewMemoryBackend()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestMemoryBackend_StoreLoadDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	data, err := b.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	payload := []byte(`{"role":"student"}`)
	require.NoError(t, b.Store(ctx, "abc", payload, time.Hour))
	payload[0] = 'X'

	data, err = b.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, `{"role":"student"}`, string(data), "stored bytes are copied")

	require.NoError(t, b.Delete(ctx, "abc"))
	data, err = b.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMemoryBackend_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedMemory(time.Unix(1_000, 0))

	require.NoError(t, b.Store(ctx, "abc", []byte("v"), time.Minute))

	*now = now.Add(59 * time.Second)
	data, err := b.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	*now = now.Add(time.Second)
	data, err = b.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Zero(t, b.Len(), "expired entry is dropped on load")
}

func TestMemoryBackend_NonPositiveTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedMemory(time.Unix(1_000, 0))

	require.NoError(t, b.Store(ctx, "abc", []byte("v"), 0))
	*now = now.Add(24 * 365 * time.Hour)

	data, err := b.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestMemoryBackend_SweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	b, now := newClockedMemory(time.Unix(1_000, 0))

	for i := range sweepEvery - 1 {
		require.NoError(t, b.Store(ctx, fmt.Sprintf("old-%d", i), []byte("v"), time.Minute))
	}
	*now = now.Add(time.Hour)
	require.NoError(t, b.Store(ctx, "fresh", []byte("v"), time.Minute))

	assert.Equal(t, 1, b.Len())
}

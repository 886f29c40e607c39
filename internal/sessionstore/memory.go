// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package sessionstore

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many writes pass between sweeps of expired entries.
const sweepEvery = 256

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryBackend keeps sessions in process memory with a TTL. Sessions are
// lost on restart and not shared between replicas; it suits a single node.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	writes  int
	now     func() time.Time
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

// Load implements Backend.
func (b *MemoryBackend) Load(_ context.Context, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return nil, nil
	}
	if b.expired(e, b.now()) {
		delete(b.entries, id)
		return nil, nil
	}
	return append([]byte(nil), e.data...), nil
}

// Store implements Backend. A non-positive ttl stores without expiry.
func (b *MemoryBackend) Store(_ context.Context, id string, data []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	e := memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	b.entries[id] = e

	b.writes++
	if b.writes%sweepEvery == 0 {
		for k, v := range b.entries {
			if b.expired(v, now) {
				delete(b.entries, k)
			}
		}
	}
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *MemoryBackend) expired(e memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

var _ Backend = (*MemoryBackend)(nil)

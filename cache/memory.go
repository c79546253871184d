package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snap    *Snapshot
	hardTTL time.Time
}

// MemoryBackend is a process-local [Backend]: a mutex-guarded map with an
// optional janitor goroutine that sweeps hard-expired entries. Suitable
// for single-instance deployments; multi-instance deployments should use
// [RedisBackend] so evictions are visible everywhere.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates a memory backend. If janitorInterval > 0 a
// background sweep removes hard-expired entries on that cadence; call
// [MemoryBackend.Stop] during shutdown to clear it.
func NewMemoryBackend(janitorInterval time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if janitorInterval > 0 {
		go b.janitor(janitorInterval)
	}
	return b
}

func (b *MemoryBackend) Get(_ context.Context, principalID string) (*Snapshot, error) {
	b.mu.RLock()
	entry, ok := b.entries[principalID]
	b.mu.RUnlock()

	if !ok || !b.now().Before(entry.hardTTL) {
		return nil, ErrNotFound
	}
	return entry.snap.Clone(), nil
}

func (b *MemoryBackend) Set(_ context.Context, principalID string, snap *Snapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	entry := memoryEntry{snap: snap.Clone(), hardTTL: b.now().Add(ttl)}

	b.mu.Lock()
	b.entries[principalID] = entry
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, principalID string) error {
	b.mu.Lock()
	delete(b.entries, principalID)
	b.mu.Unlock()
	return nil
}

// Stop halts the janitor goroutine. Safe to call multiple times and on
// backends created without a janitor.
func (b *MemoryBackend) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *MemoryBackend) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *MemoryBackend) sweep() {
	now := b.now()
	b.mu.Lock()
	for key, entry := range b.entries {
		if !now.Before(entry.hardTTL) {
			delete(b.entries, key)
		}
	}
	b.mu.Unlock()
}

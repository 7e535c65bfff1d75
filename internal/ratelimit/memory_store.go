package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

type windowEntry struct {
	count       int64
	windowStart time.Time
	window      time.Duration
}

// MemoryStore is a process-local CounterStore backed by a mutex-guarded map.
// Stale windows are swept inline during Incr calls, bounding memory without
// a background goroutine; eviction never changes an admit/deny outcome
// because an evicted key would have started a fresh window anyway.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*windowEntry
	clock     func() time.Time
	lastSweep time.Time
}

// NewMemoryStore constructs an in-memory counter store. A nil clock falls
// back to time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		entries:   make(map[string]*windowEntry),
		clock:     clock,
		lastSweep: clock(),
	}
}

// Incr atomically counts a request for key within the current fixed window,
// starting a fresh window when none exists or the previous one elapsed.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now.Sub(s.lastSweep) > sweepInterval {
		for k, entry := range s.entries {
			if now.Sub(entry.windowStart) > entry.window {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	entry, exists := s.entries[key]
	if !exists || now.Sub(entry.windowStart) >= entry.window || entry.window != window {
		entry = &windowEntry{count: 0, windowStart: now, window: window}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, entry.windowStart.Add(entry.window), nil
}

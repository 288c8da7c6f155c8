package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"boostnet/pkg/platform/sentinel"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// InMemoryStore implements Store for tests and single-node development.
// A single mutex gives the same per-key atomicity the Redis implementation
// gets from its command processor. Expired entries are dropped lazily on
// access, so TTL behavior matches Redis without a janitor goroutine.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	// clock is injectable for TTL tests.
	clock func() time.Time
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *InMemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *InMemoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("key %s: ttl is mandatory", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if entry, ok := s.entries[key]; ok && !entry.expired(now) {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(s.clock()) {
		delete(s.entries, key)
		return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	return entry.value, nil
}

func (s *InMemoryStore) ConsumeOnce(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(s.clock()) {
		delete(s.entries, key)
		return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	delete(s.entries, key)
	return entry.value, nil
}

func (s *InMemoryStore) Decrement(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(s.clock()) {
		delete(s.entries, key)
		return 0, fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key %s holds non-integer value: %w", key, sentinel.ErrInvalidState)
	}
	n--
	entry.value = strconv.FormatInt(n, 10)
	s.entries[key] = entry
	return n, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

package exchange

import (
	"context"
	"time"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the key is absent or its TTL elapsed
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
//
// Every mutation is a single command against the backing store. The
// single-winner guarantees below hold because the backing store executes
// single-key commands atomically (Redis's single-threaded processor in
// production, one mutex in the in-memory version) — never because of
// read-then-write sequencing in this process.

// Store is the TTL-keyed cache backing claim links, VC-API exchange
// sessions, inbox claim tokens, and the did:web document cache. Keys always
// carry a TTL so exchange state is memory-bounded.
type Store interface {
	// SetIfAbsent stores the value only when the key does not exist.
	// Returns false when the key was already present.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get reads without consuming.
	Get(ctx context.Context, key string) (string, error)

	// ConsumeOnce atomically reads and invalidates the key. When N callers
	// race on the same key, exactly one receives the value; the rest get
	// sentinel.ErrNotFound.
	ConsumeOnce(ctx context.Context, key string) (string, error)

	// Decrement atomically decrements the counter stored at key and returns
	// the new value. Used for capped multi-use claim links: a result >= 0
	// means the caller won that use; a negative result means the link was
	// already exhausted. Decrementing a missing key returns ErrNotFound.
	Decrement(ctx context.Context, key string) (int64, error)

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

package inbox

import (
	"context"
	"time"

	"boostnet/internal/graph"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested record does not exist
// - Return sentinel.ErrInvalidState (wrapped) when a transition's precondition fails
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// Store persists inbox credentials. Status transitions are guarded in the
// store so two racing claims of the same record cannot both succeed.
type Store interface {
	Create(ctx context.Context, c *Credential) error
	Get(ctx context.Context, id string) (*Credential, error)

	// MarkClaimed moves PENDING -> CLAIMED, recording who claimed and when.
	// Any other starting status fails with ErrInvalidState.
	MarkClaimed(ctx context.Context, id, claimedBy string) (*Credential, error)

	// MarkExpired moves PENDING -> EXPIRED. Records in any other status are
	// left alone.
	MarkExpired(ctx context.Context, id string) error

	// ListPendingForRecipient returns every PENDING record staged for the
	// contact method, oldest first.
	ListPendingForRecipient(ctx context.Context, typ graph.ContactMethodType, value string) ([]Credential, error)

	// ListByIssuer returns the issuer's records, newest first.
	ListByIssuer(ctx context.Context, issuerProfileID string) ([]Credential, error)

	// ListExpiredPending returns PENDING records whose expiry passed.
	ListExpiredPending(ctx context.Context, now time.Time) ([]Credential, error)

	Close() error
}

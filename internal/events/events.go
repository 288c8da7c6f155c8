package events

import (
	"context"
	"sync"
	"time"
)

// Type enumerates lifecycle events published for downstream consumers
// (analytics, notification fan-out, compliance).
type Type string

const (
	TypeClaimLinkIssued   Type = "claim_link_issued"
	TypeClaimLinkConsumed Type = "claim_link_consumed"
	TypeExchangeInitiated Type = "exchange_initiated"
	TypeExchangeCompleted Type = "exchange_completed"
	TypeCredentialIssued  Type = "credential_issued"
	TypeInboxDelivered    Type = "inbox_delivered"
	TypeInboxStaged       Type = "inbox_staged"
	TypeInboxClaimed      Type = "inbox_claimed"
	TypeCredentialRevoked Type = "credential_revoked"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Type         Type              `json:"type"`
	Timestamp    time.Time         `json:"timestamp"`
	ProfileID    string            `json:"profileId,omitempty"`
	BoostID      string            `json:"boostId,omitempty"`
	CredentialID string            `json:"credentialId,omitempty"`
	InboxID      string            `json:"inboxId,omitempty"`
	Detail       map[string]string `json:"detail,omitempty"`
}

// Publisher delivers lifecycle events. Emit must never block domain logic
// for long and its failure must never fail the emitting operation.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close()
}

// MemoryPublisher records events for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// ByType filters the recorded events.
func (p *MemoryPublisher) ByType(t Type) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *MemoryPublisher) Close() {}

// Emitter is a nil-safe wrapper services embed so event publishing stays
// optional wiring, not a hard dependency.
type Emitter struct {
	publisher Publisher
}

func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

// Emit forwards to the publisher when one is configured. Errors are
// swallowed by design: lifecycle events are observability, not state.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = e.publisher.Emit(ctx, event)
}

package inbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"boostnet/internal/graph"
	"boostnet/pkg/platform/sentinel"
)

// InMemoryStore backs tests and single-node development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Credential)}
}

func (s *InMemoryStore) Create(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.records[c.ID]; ok {
		return fmt.Errorf("inbox credential %s: %w", c.ID, sentinel.ErrConflict)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	s.records[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("inbox credential %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) MarkClaimed(_ context.Context, id, claimedBy string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("inbox credential %s: %w", id, sentinel.ErrNotFound)
	}
	if c.Status != StatusPending {
		return nil, fmt.Errorf("inbox credential %s is %s: %w", id, c.Status, sentinel.ErrInvalidState)
	}
	now := time.Now()
	c.Status = StatusClaimed
	c.ClaimedAt = &now
	c.ClaimedBy = claimedBy
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) MarkExpired(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[id]
	if !ok {
		return fmt.Errorf("inbox credential %s: %w", id, sentinel.ErrNotFound)
	}
	if c.Status != StatusPending {
		return nil
	}
	c.Status = StatusExpired
	return nil
}

func (s *InMemoryStore) ListPendingForRecipient(_ context.Context, typ graph.ContactMethodType, value string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Credential
	for _, c := range s.records {
		if c.Status == StatusPending && c.Recipient.Type == typ && c.Recipient.Value == value {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListByIssuer(_ context.Context, issuerProfileID string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Credential
	for _, c := range s.records {
		if c.IssuerProfileID == issuerProfileID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListExpiredPending(_ context.Context, now time.Time) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Credential
	for _, c := range s.records {
		if c.Status == StatusPending && c.ExpiresAt.Before(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

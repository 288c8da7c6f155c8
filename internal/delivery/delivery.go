package delivery

import (
	"context"
	"sync"
)

// Channel is the transport a notification rides on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is one claim message to a recipient. TemplateModel carries
// the fields the provider template renders.
type Notification struct {
	Channel       Channel
	To            string
	TemplateID    string
	TemplateModel map[string]string
}

// Service sends notifications through an external provider (email/SMS).
// Implementations are expected to respect the context deadline.
type Service interface {
	Send(ctx context.Context, n Notification) error
}

// MemoryService records notifications for tests and local development.
type MemoryService struct {
	mu   sync.Mutex
	sent []Notification
	// Err, when set, is returned by Send to simulate provider outages.
	Err error
}

func NewMemoryService() *MemoryService {
	return &MemoryService{}
}

func (s *MemoryService) Send(_ context.Context, n Notification) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

// Sent returns a snapshot of everything delivered so far.
func (s *MemoryService) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.sent...)
}

// MergeTemplateModel overlays caller-supplied template data onto the
// reserved fields. Reserved keys always win: arbitrary caller data must
// never overwrite the recipient, issuer, or credential identity the claim
// message asserts.
func MergeTemplateModel(reserved, custom map[string]string) map[string]string {
	merged := make(map[string]string, len(reserved)+len(custom))
	for k, v := range custom {
		merged[k] = v
	}
	for k, v := range reserved {
		merged[k] = v
	}
	return merged
}

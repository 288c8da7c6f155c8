package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Payload is the body POSTed to an issuer-registered webhook URL. Inbox
// lifecycle transitions use the same shape regardless of how the credential
// reached the recipient.
type Payload struct {
	Event        string    `json:"event"`
	InboxID      string    `json:"inboxId"`
	Recipient    string    `json:"recipient"`
	CredentialID string    `json:"credentialId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	EventDelivered = "inbox.delivered"
	EventClaimed   = "inbox.claimed"
	EventExpired   = "inbox.expired"
)

// Notifier posts lifecycle payloads to issuer webhooks. Failures are logged
// and dropped; webhook delivery is best effort and never blocks or fails
// the transition that triggered it.
type Notifier struct {
	client *http.Client
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify fires the payload at url on a fresh goroutine. A non-2xx response
// counts as a failure.
func (n *Notifier) Notify(url string, payload Payload) {
	if url == "" {
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	go func() {
		if err := n.post(url, payload); err != nil {
			n.logger.Error("webhook notification failed",
				"url", url,
				"event", payload.Event,
				"error", err,
			)
		}
	}()
}

func (n *Notifier) post(url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

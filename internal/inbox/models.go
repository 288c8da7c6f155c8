package inbox

import (
	"encoding/json"
	"time"

	"boostnet/internal/graph"
)

// Status tracks an inbox credential through its lifecycle. PENDING entries
// wait for the recipient to claim; DELIVERED entries were handed straight to
// an existing profile; CLAIMED entries were redeemed via claim token;
// EXPIRED entries aged out unclaimed.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusClaimed   Status = "CLAIMED"
	StatusExpired   Status = "EXPIRED"
)

// Recipient addresses an inbox credential by contact method, not by
// profile. The contact method is the shared identity anchor: whoever proves
// control of it receives everything staged for it.
type Recipient struct {
	Type  graph.ContactMethodType `json:"type"`
	Value string                  `json:"value"`
}

// Credential is one entitlement staged in the universal inbox. The
// credential payload may be pre-signed or unsigned; unsigned payloads are
// signed at claim time through the issuer's signing authority.
type Credential struct {
	ID                string          `json:"id"`
	IssuerProfileID   string          `json:"issuerProfileId"`
	Recipient         Recipient       `json:"recipient"`
	Credential        json.RawMessage `json:"credential"`
	Signed            bool            `json:"signed"`
	AuthorityEndpoint string          `json:"authorityEndpoint,omitempty"`
	AuthorityName     string          `json:"authorityName,omitempty"`
	Encrypt           bool            `json:"encrypt,omitempty"`
	WebhookURL        string          `json:"webhookUrl,omitempty"`
	Status            Status          `json:"status"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	CreatedAt         time.Time       `json:"createdAt"`
	ClaimedAt         *time.Time      `json:"claimedAt,omitempty"`
	ClaimedBy         string          `json:"claimedBy,omitempty"`
}

package vcapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"boostnet/internal/credential"
)

// WorkflowDidAuth is the one workflow this service runs: DID-authenticated
// boost claiming.
const WorkflowDidAuth = "didAuth"

// ExchangeRef is the decoded form of an exchange id: which boost is being
// claimed and under which claim-link challenge. The id is the base64url
// encoding of this struct's JSON, so an exchange URL is self-describing and
// the server keeps no state beyond the claim link itself.
type ExchangeRef struct {
	BoostURI  string `json:"boostUri"`
	Challenge string `json:"challenge"`
}

// EncodeExchangeID packs the ref into a URL-safe exchange id.
func EncodeExchangeID(ref ExchangeRef) (string, error) {
	raw, err := json.Marshal(ref)
	if err != nil {
		return "", fmt.Errorf("encode exchange id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeExchangeID unpacks an exchange id. Padded and unpadded encodings are
// both accepted since wallets differ here.
func DecodeExchangeID(id string) (ExchangeRef, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(id, "="))
	if err != nil {
		return ExchangeRef{}, fmt.Errorf("decode exchange id: %w", err)
	}
	var ref ExchangeRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return ExchangeRef{}, fmt.Errorf("parse exchange id: %w", err)
	}
	if ref.BoostURI == "" || ref.Challenge == "" {
		return ExchangeRef{}, fmt.Errorf("exchange id missing boostUri or challenge")
	}
	return ref, nil
}

// BoostIDFromURI extracts the boost id from a boost URI. Bare ids pass
// through; prefixed URIs yield their final segment.
func BoostIDFromURI(uri string) string {
	if i := strings.LastIndex(uri, ":"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// VerifiablePresentationRequest is the VPR returned on exchange initiation,
// asking the wallet to authenticate its DID against the challenge.
type VerifiablePresentationRequest struct {
	Query     []Query   `json:"query"`
	Challenge string    `json:"challenge"`
	Domain    string    `json:"domain"`
	Interact  *Interact `json:"interact,omitempty"`
}

type Query struct {
	Type string `json:"type"`
}

type Interact struct {
	Service []InteractService `json:"service"`
}

type InteractService struct {
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// InitiationResponse wraps the VPR in the VC-API envelope.
type InitiationResponse struct {
	VerifiablePresentationRequest VerifiablePresentationRequest `json:"verifiablePresentationRequest"`
}

// PresentRequest is the wallet's second POST, carrying its DID-auth
// presentation.
type PresentRequest struct {
	VerifiablePresentation *credential.Presentation `json:"verifiablePresentation"`
}

// CompletionResponse delivers the issued credential wrapped in a
// presentation from the service.
type CompletionResponse struct {
	VerifiablePresentation credential.Presentation `json:"verifiablePresentation"`
}

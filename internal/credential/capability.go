package credential

import "context"

// The cryptographic machinery (DID keys, signing suites, resolution) lives
// in an external library and is consumed through these interfaces only.
// Nothing in this repo constructs or checks a signature itself.

// IssueOptions scope an issuance to a particular signer.
type IssueOptions struct {
	// SigningAuthorityEndpoint and SigningAuthorityName select the delegated
	// signer's key material. Empty values select the service identity.
	SigningAuthorityEndpoint string
	SigningAuthorityName     string
	// Encrypt requests an encrypted credential envelope where supported.
	Encrypt bool
}

// Issuer signs credentials and presentations.
type Issuer interface {
	IssueCredential(ctx context.Context, unsigned Credential, opts IssueOptions) (Credential, error)
	IssuePresentation(ctx context.Context, vp Presentation) (Presentation, error)
}

// VerifyOptions pin the challenge and domain a presentation must prove.
type VerifyOptions struct {
	Challenge string
	Domain    string
}

// VerificationResult mirrors the external library's report shape: a list of
// passed checks and a list of errors. A usable presentation has an empty
// Errors list and "proof" among Checks.
type VerificationResult struct {
	Checks   []string `json:"checks"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// HasProofCheck reports whether the proof check passed.
func (r VerificationResult) HasProofCheck() bool {
	for _, c := range r.Checks {
		if c == "proof" {
			return true
		}
	}
	return false
}

// Verifier checks presentations against an expected challenge and domain.
type Verifier interface {
	VerifyPresentation(ctx context.Context, vp Presentation, opts VerifyOptions) (VerificationResult, error)
}

// DidDocument is an opaque resolved DID document.
type DidDocument map[string]any

// Resolver resolves DIDs to their documents.
type Resolver interface {
	ResolveDid(ctx context.Context, did string) (DidDocument, error)
}

package credential

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StaticSigner is a deterministic stand-in for the external crypto library,
// used in tests and local development. Proofs it produces are well-formed
// but carry no cryptographic weight; its verifier accepts presentations
// whose proof matches the expected challenge and domain.
type StaticSigner struct {
	Did string
}

func NewStaticSigner(did string) *StaticSigner {
	if did == "" {
		did = "did:web:boostnet.local"
	}
	return &StaticSigner{Did: did}
}

func (s *StaticSigner) IssueCredential(_ context.Context, unsigned Credential, opts IssueOptions) (Credential, error) {
	signed := unsigned
	if signed.Issuer == "" {
		signed.Issuer = s.Did
	}
	if signed.ID == "" {
		signed.ID = "urn:uuid:" + uuid.NewString()
	}
	if signed.IssuanceDate == "" {
		signed.IssuanceDate = time.Now().UTC().Format(time.RFC3339)
	}
	signed.Proof = &ProofSet{Proofs: []Proof{{
		Type:               "Ed25519Signature2020",
		Created:            time.Now().UTC().Format(time.RFC3339),
		VerificationMethod: signed.Issuer + "#key-1",
		ProofPurpose:       "assertionMethod",
		ProofValue:         staticProofValue(signed.ID, opts.SigningAuthorityName),
	}}}
	return signed, nil
}

func (s *StaticSigner) IssuePresentation(_ context.Context, vp Presentation) (Presentation, error) {
	if len(vp.Context) == 0 {
		vp.Context = []string{ContextCredentialsV1, ContextEd25519V1}
	}
	if len(vp.Type) == 0 {
		vp.Type = []string{"VerifiablePresentation"}
	}
	if vp.Holder == "" {
		vp.Holder = s.Did
	}
	vp.Proof = &ProofSet{Proofs: []Proof{{
		Type:               "Ed25519Signature2020",
		Created:            time.Now().UTC().Format(time.RFC3339),
		VerificationMethod: vp.Holder + "#key-1",
		ProofPurpose:       "authentication",
		ProofValue:         staticProofValue(vp.Holder, ""),
	}}}
	return vp, nil
}

func (s *StaticSigner) VerifyPresentation(_ context.Context, vp Presentation, opts VerifyOptions) (VerificationResult, error) {
	result := VerificationResult{Checks: []string{}, Warnings: []string{}, Errors: []string{}}
	if vp.Proof == nil || len(vp.Proof.Proofs) == 0 {
		result.Errors = append(result.Errors, "presentation has no proof")
		return result, nil
	}
	proof := vp.Proof.Proofs[0]
	if opts.Challenge != "" && proof.Challenge != opts.Challenge {
		result.Errors = append(result.Errors, "challenge mismatch")
		return result, nil
	}
	if opts.Domain != "" && proof.Domain != opts.Domain {
		result.Errors = append(result.Errors, "domain mismatch")
		return result, nil
	}
	result.Checks = append(result.Checks, "proof")
	return result, nil
}

func (s *StaticSigner) ResolveDid(_ context.Context, did string) (DidDocument, error) {
	if did == "" {
		return nil, fmt.Errorf("empty did")
	}
	return DidDocument{
		"@context": "https://www.w3.org/ns/did/v1",
		"id":       did,
	}, nil
}

func staticProofValue(seed, scope string) string {
	return "z" + base64.RawURLEncoding.EncodeToString([]byte(seed+":"+scope))
}

package credential

import (
	"encoding/json"
	"fmt"
)

// W3C credential context URLs used when building presentations.
const (
	ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"
	ContextEd25519V1     = "https://w3id.org/security/suites/ed25519-2020/v1"
)

// Proof is a Linked Data proof attached to a credential or presentation.
// Only the fields this service inspects are named; everything else rides
// along in Extra.
type Proof struct {
	Type               string `json:"type,omitempty"`
	Created            string `json:"created,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
	Domain             string `json:"domain,omitempty"`
	ProofValue         string `json:"proofValue,omitempty"`
}

// ProofSet handles the wire-compat concession that a proof may arrive as a
// single object or as an array. It always marshals back in the shape it was
// parsed from.
type ProofSet struct {
	Proofs  []Proof
	wasList bool
}

func (p *ProofSet) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		p.wasList = true
		return json.Unmarshal(data, &p.Proofs)
	}
	var single Proof
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("parse proof: %w", err)
	}
	p.wasList = false
	p.Proofs = []Proof{single}
	return nil
}

func (p ProofSet) MarshalJSON() ([]byte, error) {
	if !p.wasList && len(p.Proofs) == 1 {
		return json.Marshal(p.Proofs[0])
	}
	return json.Marshal(p.Proofs)
}

// Challenge returns the challenge of the first proof, or "" when absent.
// Matches the original protocol's behavior of reading proof[0] for arrays.
func (p *ProofSet) Challenge() string {
	if p == nil || len(p.Proofs) == 0 {
		return ""
	}
	return p.Proofs[0].Challenge
}

// Subject is one credentialSubject entry.
type Subject map[string]any

// SubjectSet handles single-object and array credentialSubject shapes.
type SubjectSet struct {
	Subjects []Subject
	wasList  bool
}

func (s *SubjectSet) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		s.wasList = true
		return json.Unmarshal(data, &s.Subjects)
	}
	var single Subject
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("parse credentialSubject: %w", err)
	}
	s.wasList = false
	s.Subjects = []Subject{single}
	return nil
}

func (s SubjectSet) MarshalJSON() ([]byte, error) {
	if !s.wasList && len(s.Subjects) == 1 {
		return json.Marshal(s.Subjects[0])
	}
	return json.Marshal(s.Subjects)
}

// Credential is a W3C Verifiable Credential, signed or unsigned depending on
// whether Proof is set. Claim payload details are opaque to this service.
type Credential struct {
	Context           []string   `json:"@context,omitempty"`
	ID                string     `json:"id,omitempty"`
	Type              []string   `json:"type,omitempty"`
	Issuer            string     `json:"issuer,omitempty"`
	IssuanceDate      string     `json:"issuanceDate,omitempty"`
	ExpirationDate    string     `json:"expirationDate,omitempty"`
	Name              string     `json:"name,omitempty"`
	BoostID           string     `json:"boostId,omitempty"`
	CredentialSubject SubjectSet `json:"credentialSubject,omitempty"`
	Proof             *ProofSet  `json:"proof,omitempty"`
}

// IsSigned reports whether the credential carries at least one proof.
func (c *Credential) IsSigned() bool {
	return c.Proof != nil && len(c.Proof.Proofs) > 0
}

// RebindSubject points every credentialSubject at the holder. Existing
// did/id values win so pre-targeted subjects are not clobbered, matching the
// original issuance path.
func (c *Credential) RebindSubject(holderDid string) {
	if len(c.CredentialSubject.Subjects) == 0 {
		c.CredentialSubject.Subjects = []Subject{{}}
	}
	for _, subject := range c.CredentialSubject.Subjects {
		if did, ok := subject["did"].(string); ok && did != "" {
			subject["id"] = did
			continue
		}
		if id, ok := subject["id"].(string); ok && id != "" {
			continue
		}
		subject["id"] = holderDid
	}
}

// Presentation is a W3C Verifiable Presentation.
type Presentation struct {
	Context              []string     `json:"@context,omitempty"`
	Type                 []string     `json:"type,omitempty"`
	Holder               string       `json:"holder,omitempty"`
	VerifiableCredential []Credential `json:"verifiableCredential,omitempty"`
	Proof                *ProofSet    `json:"proof,omitempty"`
}

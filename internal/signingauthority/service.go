package signingauthority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"boostnet/internal/credential"
	"boostnet/internal/graph"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/sentinel"
)

// Service manages a profile's delegated signing authorities and issues
// credentials through them. An authority is identified by the
// (owner, endpoint, name) triple; the owner may mark one as primary.
type Service struct {
	store  graph.Store
	issuer credential.Issuer
	logger *slog.Logger
}

func NewService(store graph.Store, issuer credential.Issuer, logger *slog.Logger) *Service {
	return &Service{store: store, issuer: issuer, logger: logger}
}

// RegisterInput names a signing authority to attach to the caller.
type RegisterInput struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
	Did      string `json:"did"`
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Endpoint) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "endpoint is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if strings.TrimSpace(in.Did) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "did is required")
	}
	return nil
}

// Register attaches a signing authority to the owner profile. The first
// authority a profile registers becomes its primary.
func (s *Service) Register(ctx context.Context, ownerProfileID string, in RegisterInput) (*graph.SigningAuthorityRel, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	rel := &graph.SigningAuthorityRel{
		OwnerProfileID: ownerProfileID,
		Endpoint:       in.Endpoint,
		Name:           in.Name,
		Did:            in.Did,
	}
	if err := s.store.RegisterSigningAuthority(ctx, rel); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "signing authority already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register signing authority")
	}

	s.logger.Info("signing authority registered",
		"profile_id", ownerProfileID,
		"endpoint", in.Endpoint,
		"name", in.Name,
	)
	return rel, nil
}

// Get returns one of the owner's authorities by endpoint and name.
func (s *Service) Get(ctx context.Context, ownerProfileID, endpoint, name string) (*graph.SigningAuthorityRel, error) {
	rel, err := s.store.GetSigningAuthority(ctx, ownerProfileID, endpoint, name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "signing authority not found")
	}
	return rel, nil
}

// List returns every authority registered to the owner.
func (s *Service) List(ctx context.Context, ownerProfileID string) ([]graph.SigningAuthorityRel, error) {
	rels, err := s.store.ListSigningAuthorities(ctx, ownerProfileID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list signing authorities")
	}
	return rels, nil
}

// SetPrimary marks the named authority as the owner's default signer.
func (s *Service) SetPrimary(ctx context.Context, ownerProfileID, endpoint, name string) error {
	if err := s.store.SetPrimarySigningAuthority(ctx, ownerProfileID, endpoint, name); err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "signing authority not found")
	}
	return nil
}

// Resolve picks the authority an issuance should use. An explicit
// endpoint+name must match a registered authority of the owner; with no
// selection the owner's primary is used. No registered authority at all is
// a NOT_FOUND the caller turns into a preflight failure.
func (s *Service) Resolve(ctx context.Context, ownerProfileID, endpoint, name string) (*graph.SigningAuthorityRel, error) {
	if endpoint != "" || name != "" {
		rel, err := s.store.GetSigningAuthority(ctx, ownerProfileID, endpoint, name)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "signing authority is not registered to this profile")
		}
		return rel, nil
	}

	rel, err := s.store.PrimarySigningAuthority(ctx, ownerProfileID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "no signing authority registered")
	}
	return rel, nil
}

// Preflight verifies an issuance through the owner's authority could
// succeed, without delivering anything: the sample credential is trial-signed
// and the result discarded. Staging flows call this so an un-issuable
// credential fails fast at submission instead of at claim time.
func (s *Service) Preflight(ctx context.Context, ownerProfileID, endpoint, name string, sample credential.Credential) error {
	rel, err := s.Resolve(ctx, ownerProfileID, endpoint, name)
	if err != nil {
		return err
	}
	if _, err := s.issuer.IssueCredential(ctx, sample, credential.IssueOptions{
		SigningAuthorityEndpoint: rel.Endpoint,
		SigningAuthorityName:     rel.Name,
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "signing authority cannot issue this credential")
	}
	return nil
}

// IssueWithAuthority signs the unsigned credential with the resolved
// authority's key material, after rebinding the subject to the recipient.
func (s *Service) IssueWithAuthority(ctx context.Context, rel *graph.SigningAuthorityRel, unsigned credential.Credential, recipientDid string, encrypt bool) (credential.Credential, error) {
	unsigned.RebindSubject(recipientDid)

	signed, err := s.issuer.IssueCredential(ctx, unsigned, credential.IssueOptions{
		SigningAuthorityEndpoint: rel.Endpoint,
		SigningAuthorityName:     rel.Name,
		Encrypt:                  encrypt,
	})
	if err != nil {
		return credential.Credential{}, dErrors.Wrap(
			fmt.Errorf("issue via %s/%s: %w", rel.Endpoint, rel.Name, err),
			dErrors.CodeInternal, "failed to issue credential",
		)
	}
	return signed, nil
}

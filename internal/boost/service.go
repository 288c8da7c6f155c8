package boost

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"boostnet/internal/claimhook"
	"boostnet/internal/credential"
	"boostnet/internal/events"
	"boostnet/internal/graph"
	"boostnet/internal/signingauthority"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/sentinel"
)

// Service owns the boost lifecycle and the one shared issuance path every
// claim flow funnels through. Claim links, VC-API exchanges, and inbox
// claims differ only in how the recipient arrives; what happens once they
// do is SendCredential.
type Service struct {
	store       graph.Store
	authorities *signingauthority.Service
	hooks       *claimhook.Service
	emitter     *events.Emitter
	logger      *slog.Logger
}

func NewService(store graph.Store, authorities *signingauthority.Service, hooks *claimhook.Service, emitter *events.Emitter, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		authorities: authorities,
		hooks:       hooks,
		emitter:     emitter,
		logger:      logger,
	}
}

// CreateInput describes a new boost. Credential is the unsigned template
// issued on every claim; its claim payload is opaque here.
type CreateInput struct {
	Name       string            `json:"name"`
	Status     graph.BoostStatus `json:"status,omitempty"`
	Credential json.RawMessage   `json:"credential"`
}

// Create registers a boost owned by the caller. Boosts start as DRAFT
// unless explicitly created LIVE.
func (s *Service) Create(ctx context.Context, ownerProfileID string, in CreateInput) (*graph.Boost, error) {
	if len(in.Credential) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential template is required")
	}
	var template credential.Credential
	if err := json.Unmarshal(in.Credential, &template); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "credential template is not valid JSON")
	}
	if template.IsSigned() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential template must be unsigned")
	}

	status := in.Status
	switch status {
	case "":
		status = graph.BoostDraft
	case graph.BoostDraft, graph.BoostLive:
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "status must be DRAFT or LIVE")
	}

	b := &graph.Boost{
		OwnerProfileID: ownerProfileID,
		Name:           in.Name,
		Status:         status,
		Credential:     in.Credential,
	}
	if err := s.store.CreateBoost(ctx, b); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create boost")
	}
	return b, nil
}

// Get returns a boost by id.
func (s *Service) Get(ctx context.Context, boostID string) (*graph.Boost, error) {
	b, err := s.store.GetBoost(ctx, boostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "boost not found")
	}
	return b, nil
}

// Publish moves a boost from DRAFT to LIVE. Only a profile with edit
// permission may publish; LIVE is terminal.
func (s *Service) Publish(ctx context.Context, callerProfileID, boostID string) error {
	perms, err := s.store.ProfilePermissions(ctx, callerProfileID, boostID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "boost not found")
	}
	if !perms.CanEdit {
		return dErrors.New(dErrors.CodeForbidden, "insufficient permissions to publish boost")
	}
	if err := s.store.UpdateBoostStatus(ctx, boostID, graph.BoostLive); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish boost")
	}
	return nil
}

// SendInput carries everything the shared issuance path needs. Authority
// endpoint and name are optional; empty values fall back to the boost
// owner's primary signing authority.
type SendInput struct {
	BoostID            string
	RecipientProfileID string
	RecipientDid       string
	AuthorityEndpoint  string
	AuthorityName      string
}

// SendCredential issues the boost's credential to the recipient: resolve
// the owner's signing authority, sign the template rebound to the holder,
// persist the instance, fire claim hooks, emit the lifecycle event. Hook
// and event failures never undo an issuance that already persisted.
func (s *Service) SendCredential(ctx context.Context, in SendInput) (*graph.CredentialInstance, credential.Credential, error) {
	b, err := s.store.GetBoost(ctx, in.BoostID)
	if err != nil {
		return nil, credential.Credential{}, dErrors.Wrap(err, dErrors.CodeNotFound, "boost not found")
	}
	if b.Status != graph.BoostLive {
		return nil, credential.Credential{}, dErrors.New(dErrors.CodeBadRequest, "boost is not live")
	}

	rel, err := s.authorities.Resolve(ctx, b.OwnerProfileID, in.AuthorityEndpoint, in.AuthorityName)
	if err != nil {
		return nil, credential.Credential{}, err
	}

	var unsigned credential.Credential
	if err := json.Unmarshal(b.Credential, &unsigned); err != nil {
		return nil, credential.Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "boost credential template is corrupt")
	}
	unsigned.BoostID = b.ID
	if unsigned.Name == "" {
		unsigned.Name = b.Name
	}

	signed, err := s.authorities.IssueWithAuthority(ctx, rel, unsigned, in.RecipientDid, false)
	if err != nil {
		return nil, credential.Credential{}, err
	}

	raw, err := json.Marshal(signed)
	if err != nil {
		return nil, credential.Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential")
	}
	instance := &graph.CredentialInstance{
		BoostID:    b.ID,
		HolderID:   in.RecipientProfileID,
		IssuerID:   b.OwnerProfileID,
		Credential: raw,
	}
	if err := s.store.CreateCredentialInstance(ctx, instance); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, credential.Credential{}, dErrors.Wrap(err, dErrors.CodeConflict, "credential already issued")
		}
		return nil, credential.Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record credential")
	}

	s.hooks.ApplyOnClaim(ctx, b.ID, in.RecipientProfileID)

	s.emitter.Emit(ctx, events.Event{
		Type:         events.TypeCredentialIssued,
		ProfileID:    in.RecipientProfileID,
		BoostID:      b.ID,
		CredentialID: instance.ID,
	})

	s.logger.Info("credential issued",
		"boost_id", b.ID,
		"credential_id", instance.ID,
		"holder", in.RecipientProfileID,
	)
	return instance, signed, nil
}

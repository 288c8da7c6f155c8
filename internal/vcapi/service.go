package vcapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"boostnet/internal/boost"
	"boostnet/internal/claimlink"
	"boostnet/internal/credential"
	"boostnet/internal/events"
	"boostnet/internal/exchange"
	"boostnet/internal/graph"
	"boostnet/internal/platform/metrics"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/sentinel"
)

// Service runs the VC-API exchange state machine for boost claiming. An
// exchange has exactly two requests: initiation (empty body, answered with a
// presentation request) and presentation (DID-auth proof, answered with the
// issued credential). All interim state lives in the TTL exchange store.
type Service struct {
	sessions   exchange.Store
	links      *claimlink.Manager
	boosts     *boost.Service
	graphStore graph.Store
	verifier   credential.Verifier
	issuer     credential.Issuer
	resolver   credential.Resolver
	emitter    *events.Emitter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	domain     string
	sessionTTL time.Duration
}

func NewService(
	sessions exchange.Store,
	links *claimlink.Manager,
	boosts *boost.Service,
	graphStore graph.Store,
	verifier credential.Verifier,
	issuer credential.Issuer,
	resolver credential.Resolver,
	emitter *events.Emitter,
	m *metrics.Metrics,
	logger *slog.Logger,
	domain string,
	sessionTTL time.Duration,
) *Service {
	return &Service{
		sessions:   sessions,
		links:      links,
		boosts:     boosts,
		graphStore: graphStore,
		verifier:   verifier,
		issuer:     issuer,
		resolver:   resolver,
		emitter:    emitter,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("boostnet/vcapi"),
		domain:     domain,
		sessionTTL: sessionTTL,
	}
}

func sessionKey(boostID, challenge string) string {
	return "exchange:session:" + boostID + ":" + challenge
}

// SetupExchange mints a claim link bound to a pre-chosen challenge and
// returns the exchange URL path a wallet should POST to. Issuers call this
// to hand out deep links.
func (s *Service) SetupExchange(ctx context.Context, boostID string, ref claimlink.SigningAuthorityRef, opts claimlink.Options) (string, error) {
	challenge, err := claimlink.NewChallenge()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate challenge")
	}
	if err := s.links.IssueWithChallenge(ctx, boostID, challenge, ref, opts); err != nil {
		return "", err
	}
	id, err := EncodeExchangeID(ExchangeRef{BoostURI: boostID, Challenge: challenge})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode exchange id")
	}
	return s.exchangeEndpoint(id), nil
}

// Initiate answers the wallet's first POST with a DIDAuthentication
// presentation request. Initiation is idempotent: repeating it returns the
// same request and consumes nothing.
func (s *Service) Initiate(ctx context.Context, workflowID, exchangeID string) (*InitiationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "vcapi.Initiate")
	defer span.End()
	start := time.Now()

	if workflowID != WorkflowDidAuth {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown workflow")
	}
	ref, err := DecodeExchangeID(exchangeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed exchange id")
	}
	boostID := BoostIDFromURI(ref.BoostURI)

	b, err := s.graphStore.GetBoost(ctx, boostID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "boost not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up boost")
	}
	if b.Status == graph.BoostDraft {
		return nil, dErrors.New(dErrors.CodeForbidden, "draft boosts cannot be claimed")
	}

	// The claim link must exist; initiation never spends a use.
	if _, err := s.links.Validate(ctx, boostID, ref.Challenge); err != nil {
		return nil, err
	}

	// Session marks an in-flight exchange. Losing the SETNX race just means
	// a previous initiation already marked it, which is fine.
	if _, err := s.sessions.SetIfAbsent(ctx, sessionKey(boostID, ref.Challenge), boostID, s.sessionTTL); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store exchange session")
	}

	s.metrics.ExchangesInitiated.Inc()
	s.metrics.ExchangeDurationsMs.Observe(float64(time.Since(start).Milliseconds()))
	s.emitter.Emit(ctx, events.Event{
		Type:    events.TypeExchangeInitiated,
		BoostID: boostID,
	})

	return &InitiationResponse{
		VerifiablePresentationRequest: VerifiablePresentationRequest{
			Query:     []Query{{Type: "DIDAuthentication"}},
			Challenge: ref.Challenge,
			Domain:    s.domain,
			Interact: &Interact{Service: []InteractService{{
				Type:            "UnmediatedHttpPresentationService2021",
				ServiceEndpoint: s.exchangeEndpoint(exchangeID),
			}}},
		},
	}, nil
}

// Complete answers the wallet's second POST. It verifies the DID-auth
// presentation against the challenge and domain, spends the claim link, and
// issues the boost credential to the presenting holder. The session token is
// consumed first so a replayed presentation can never issue twice even if
// the claim link allows more uses.
func (s *Service) Complete(ctx context.Context, workflowID, exchangeID string, vp credential.Presentation) (*CompletionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "vcapi.Complete")
	defer span.End()
	start := time.Now()

	if workflowID != WorkflowDidAuth {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown workflow")
	}
	ref, err := DecodeExchangeID(exchangeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed exchange id")
	}
	boostID := BoostIDFromURI(ref.BoostURI)

	// The challenge travels in the proof, matching what the request asked
	// the wallet to sign over.
	challenge := vp.Proof.Challenge()
	if challenge == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "presentation proof carries no challenge")
	}
	if challenge != ref.Challenge {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge does not match this exchange")
	}

	result, err := s.verifier.VerifyPresentation(ctx, vp, credential.VerifyOptions{
		Challenge: challenge,
		Domain:    s.domain,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "presentation verification errored")
	}
	if len(result.Errors) > 0 || !result.HasProofCheck() {
		s.logger.WarnContext(ctx, "presentation rejected",
			"boost_id", boostID,
			"verification_errors", strings.Join(result.Errors, "; "),
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "presentation verification failed")
	}

	holderDid := holderDidOf(vp)
	if holderDid == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "presentation does not identify a holder")
	}
	// The DID must resolve before anything single-use is spent on it.
	if _, err := s.resolver.ResolveDid(ctx, holderDid); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "holder DID does not resolve")
	}

	// Consume the session before the claim link: exactly one presentation
	// per initiated exchange can proceed past this line.
	if _, err := s.sessions.ConsumeOnce(ctx, sessionKey(boostID, challenge)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "exchange not found or already completed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consume exchange session")
	}

	authority, err := s.links.Consume(ctx, boostID, challenge)
	if err != nil {
		return nil, err
	}
	s.metrics.ClaimLinksConsumed.Inc()

	profile, err := s.holderProfile(ctx, holderDid)
	if err != nil {
		return nil, err
	}

	_, signed, err := s.boosts.SendCredential(ctx, boost.SendInput{
		BoostID:            boostID,
		RecipientProfileID: profile.ProfileID,
		RecipientDid:       holderDid,
		AuthorityEndpoint:  authority.Endpoint,
		AuthorityName:      authority.Name,
	})
	if err != nil {
		return nil, err
	}

	response, err := s.issuer.IssuePresentation(ctx, credential.Presentation{
		Context:              []string{credential.ContextCredentialsV1, credential.ContextEd25519V1},
		Type:                 []string{"VerifiablePresentation"},
		VerifiableCredential: []credential.Credential{signed},
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "wrap issued credential")
	}

	s.metrics.ExchangesCompleted.Inc()
	s.metrics.ExchangeDurationsMs.Observe(float64(time.Since(start).Milliseconds()))
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeExchangeCompleted,
		ProfileID: profile.ProfileID,
		BoostID:   boostID,
	})

	return &CompletionResponse{VerifiablePresentation: response}, nil
}

// holderProfile resolves the presenting DID to an existing network profile.
// The exchange protocol never provisions identities: a wallet whose DID is
// unknown to the network must register a profile before it can claim.
func (s *Service) holderProfile(ctx context.Context, holderDid string) (*graph.Profile, error) {
	profile, err := s.graphStore.GetProfileByDid(ctx, holderDid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "holder has no profile")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up holder profile")
	}
	return profile, nil
}

// holderDidOf prefers the holder property, falling back to the controller
// of the proof's verification method.
func holderDidOf(vp credential.Presentation) string {
	if vp.Holder != "" {
		return vp.Holder
	}
	if vp.Proof == nil || len(vp.Proof.Proofs) == 0 {
		return ""
	}
	vm := vp.Proof.Proofs[0].VerificationMethod
	if i := strings.Index(vm, "#"); i > 0 {
		return vm[:i]
	}
	return vm
}

func (s *Service) exchangeEndpoint(exchangeID string) string {
	return fmt.Sprintf("https://%s/workflows/%s/exchanges/%s", s.domain, WorkflowDidAuth, exchangeID)
}

package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boostnet/internal/claimhook"
	"boostnet/internal/claimlink"
	"boostnet/internal/credential"
	"boostnet/internal/delivery"
	"boostnet/internal/events"
	"boostnet/internal/exchange"
	"boostnet/internal/graph"
	"boostnet/internal/platform/metrics"
	"boostnet/internal/signingauthority"
	"boostnet/internal/webhook"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/email"
	"boostnet/pkg/platform/sentinel"
)

const claimTokenPrefix = "inboxclaim:"

// Service is the universal inbox: issuers push credentials at a contact
// method, recipients pull them by proving control of it. Recipients with a
// verified profile get immediate delivery; everyone else gets a staged
// record and a claim message.
type Service struct {
	store       Store
	tokens      exchange.Store
	graphStore  graph.Store
	authorities *signingauthority.Service
	hooks       *claimhook.Service
	dispatcher  *delivery.Dispatcher
	webhooks    *webhook.Notifier
	emitter     *events.Emitter
	metrics     *metrics.Metrics
	logger      *slog.Logger

	claimBaseURL string
	defaultTTL   time.Duration
}

func NewService(
	store Store,
	tokens exchange.Store,
	graphStore graph.Store,
	authorities *signingauthority.Service,
	hooks *claimhook.Service,
	dispatcher *delivery.Dispatcher,
	webhooks *webhook.Notifier,
	emitter *events.Emitter,
	m *metrics.Metrics,
	logger *slog.Logger,
	claimBaseURL string,
	expiresInDays int,
) *Service {
	if expiresInDays <= 0 {
		expiresInDays = 30
	}
	return &Service{
		store:        store,
		tokens:       tokens,
		graphStore:   graphStore,
		authorities:  authorities,
		hooks:        hooks,
		dispatcher:   dispatcher,
		webhooks:     webhooks,
		emitter:      emitter,
		metrics:      m,
		logger:       logger,
		claimBaseURL: claimBaseURL,
		defaultTTL:   time.Duration(expiresInDays) * 24 * time.Hour,
	}
}

// AuthorityRef optionally pins the delegated signer for unsigned payloads.
type AuthorityRef struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
}

// DeliveryOptions tunes the claim notification for staged issuances.
type DeliveryOptions struct {
	// Suppress skips the claim message. The claim URL is still returned so
	// the issuer can hand it out through its own channel.
	Suppress bool `json:"suppress,omitempty"`
}

// IssueInput stages or delivers one credential.
type IssueInput struct {
	Recipient        Recipient         `json:"recipient"`
	Credential       json.RawMessage   `json:"credential"`
	SigningAuthority *AuthorityRef     `json:"signingAuthority,omitempty"`
	Encrypt          bool              `json:"encrypt,omitempty"`
	WebhookURL       string            `json:"webhookUrl,omitempty"`
	Delivery         *DeliveryOptions  `json:"delivery,omitempty"`
	Template         map[string]string `json:"template,omitempty"`
	ExpiresInDays    int               `json:"expiresInDays,omitempty"`
}

// IssueResult reports how the credential went out. ClaimURL is set only for
// staged deliveries; RecipientDid only when an existing profile received the
// credential immediately.
type IssueResult struct {
	InboxID      string `json:"inboxId"`
	Status       Status `json:"status"`
	ClaimURL     string `json:"claimUrl,omitempty"`
	RecipientDid string `json:"recipientDid,omitempty"`
}

// Issue accepts a credential for a contact method. Unsigned payloads
// require a resolvable signing authority up front, so a claim can never
// strand on a signer that was missing at issue time. Issuance is not
// deduplicated: issuing the same credential twice stages two records.
func (s *Service) Issue(ctx context.Context, issuerProfileID string, in IssueInput) (*IssueResult, error) {
	if in.Recipient.Type != graph.ContactEmail && in.Recipient.Type != graph.ContactPhone {
		return nil, dErrors.New(dErrors.CodeBadRequest, "recipient type must be email or phone")
	}
	if in.Recipient.Value == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "recipient value is required")
	}
	if len(in.Credential) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential is required")
	}

	var vc credential.Credential
	if err := json.Unmarshal(in.Credential, &vc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "credential is not valid JSON")
	}

	var authorityEndpoint, authorityName string
	if in.SigningAuthority != nil {
		authorityEndpoint = in.SigningAuthority.Endpoint
		authorityName = in.SigningAuthority.Name
	}

	if !vc.IsSigned() {
		// Trial-sign now so a record can never strand PENDING on an
		// authority that cannot actually issue it.
		if err := s.authorities.Preflight(ctx, issuerProfileID, authorityEndpoint, authorityName, vc); err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, dErrors.New(dErrors.CodeBadRequest, "Unsigned credentials require a signing authority")
			}
			return nil, err
		}
	}

	rec := &Credential{
		IssuerProfileID:   issuerProfileID,
		Recipient:         in.Recipient,
		Credential:        in.Credential,
		Signed:            vc.IsSigned(),
		AuthorityEndpoint: authorityEndpoint,
		AuthorityName:     authorityName,
		Encrypt:           in.Encrypt,
		WebhookURL:        in.WebhookURL,
	}

	// Verified contact method already bound to a profile: skip staging and
	// deliver straight into the recipient's wallet.
	if contact, err := s.graphStore.FindVerifiedContactMethod(ctx, in.Recipient.Type, in.Recipient.Value); err == nil {
		return s.deliverDirect(ctx, rec, vc, contact.ProfileID)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up contact method")
	}

	return s.stage(ctx, rec, vc, in)
}

func (s *Service) deliverDirect(ctx context.Context, rec *Credential, vc credential.Credential, recipientProfileID string) (*IssueResult, error) {
	profile, err := s.graphStore.GetProfile(ctx, recipientProfileID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load recipient profile")
	}

	signed := vc
	if !vc.IsSigned() {
		rel, err := s.authorities.Resolve(ctx, rec.IssuerProfileID, rec.AuthorityEndpoint, rec.AuthorityName)
		if err != nil {
			return nil, err
		}
		signed, err = s.authorities.IssueWithAuthority(ctx, rel, vc, profile.Did, rec.Encrypt)
		if err != nil {
			return nil, err
		}
	}

	rec.Status = StatusDelivered
	rec.ExpiresAt = time.Now().Add(s.defaultTTL)
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record inbox delivery")
	}
	if err := s.recordInstance(ctx, rec, signed, recipientProfileID); err != nil {
		return nil, err
	}

	s.metrics.InboxIssued.WithLabelValues("delivered").Inc()
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeInboxDelivered,
		ProfileID: recipientProfileID,
		InboxID:   rec.ID,
	})
	s.webhooks.Notify(rec.WebhookURL, webhook.Payload{
		Event:     webhook.EventDelivered,
		InboxID:   rec.ID,
		Recipient: rec.Recipient.Value,
	})

	s.logger.Info("inbox credential delivered directly",
		"inbox_id", rec.ID,
		"recipient", email.Mask(rec.Recipient.Value),
	)
	return &IssueResult{InboxID: rec.ID, Status: StatusDelivered, RecipientDid: profile.Did}, nil
}

func (s *Service) stage(ctx context.Context, rec *Credential, vc credential.Credential, in IssueInput) (*IssueResult, error) {
	ttl := s.defaultTTL
	if in.ExpiresInDays > 0 {
		ttl = time.Duration(in.ExpiresInDays) * 24 * time.Hour
	}
	rec.Status = StatusPending
	rec.ExpiresAt = time.Now().Add(ttl)

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stage inbox credential")
	}

	token, err := claimlink.NewChallenge()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate claim token")
	}
	if _, err := s.tokens.SetIfAbsent(ctx, claimTokenPrefix+token, rec.ID, ttl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store claim token")
	}

	claimURL := s.claimBaseURL + "/" + token

	// Suppressed delivery still stages the record and returns the claim URL;
	// the issuer distributes it through its own channel.
	if in.Delivery == nil || !in.Delivery.Suppress {
		channel := delivery.ChannelEmail
		if rec.Recipient.Type == graph.ContactPhone {
			channel = delivery.ChannelSMS
		}
		recipientName := ""
		if rec.Recipient.Type == graph.ContactEmail {
			first, _ := email.DeriveNameFromEmail(rec.Recipient.Value)
			recipientName = first
		}
		// Reserved fields win over caller-supplied template data.
		model := delivery.MergeTemplateModel(map[string]string{
			"claim_url":       claimURL,
			"recipient_name":  recipientName,
			"credential_name": vc.Name,
		}, in.Template)

		s.dispatcher.Dispatch(delivery.Notification{
			Channel:       channel,
			To:            rec.Recipient.Value,
			TemplateID:    "inbox-claim",
			TemplateModel: model,
		})
	}

	s.metrics.InboxIssued.WithLabelValues("pending").Inc()
	s.emitter.Emit(ctx, events.Event{
		Type:    events.TypeInboxStaged,
		InboxID: rec.ID,
	})

	s.logger.Info("inbox credential staged",
		"inbox_id", rec.ID,
		"recipient", email.Mask(rec.Recipient.Value),
		"expires_at", rec.ExpiresAt,
	)
	return &IssueResult{InboxID: rec.ID, Status: StatusPending, ClaimURL: claimURL}, nil
}

// ClaimResult is everything a first-time claim hands the recipient: the
// credential behind the token plus every other pending credential staged
// for the same contact method.
type ClaimResult struct {
	Credentials  []credential.Credential `json:"credentials"`
	RecipientDid string                  `json:"recipientDid"`
}

// Claim redeems a claim token. The token proves control of the contact
// method, so the claimant's profile is linked to it as verified and every
// pending credential addressed to it is released in the same call. The
// token is single use; racing claimers get exactly one winner.
func (s *Service) Claim(ctx context.Context, claimantProfileID, claimantDid, token string) (*ClaimResult, error) {
	inboxID, err := s.tokens.ConsumeOnce(ctx, claimTokenPrefix+token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invalid or expired claim token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consume claim token")
	}

	rec, err := s.store.MarkClaimed(ctx, inboxID, claimantProfileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "inbox credential was already processed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim inbox credential")
	}

	signed, err := s.finalize(ctx, rec, claimantProfileID, claimantDid)
	if err != nil {
		return nil, err
	}
	credentials := []credential.Credential{signed}

	// Control of the contact method is now proven; bind it to the claimant
	// so future issuances to this address deliver directly.
	if contact, err := s.graphStore.UpsertContactMethod(ctx, rec.Recipient.Type, rec.Recipient.Value); err == nil {
		if err := s.graphStore.LinkContactMethod(ctx, contact.ID, claimantProfileID, true); err != nil {
			s.logger.ErrorContext(ctx, "failed to link contact method", "error", err)
		}
	} else {
		s.logger.ErrorContext(ctx, "failed to upsert contact method", "error", err)
	}

	// Release everything else staged for the same address. A failing record
	// is skipped and stays pending rather than blocking the claim.
	pending, err := s.store.ListPendingForRecipient(ctx, rec.Recipient.Type, rec.Recipient.Value)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list pending inbox credentials", "error", err)
		pending = nil
	}
	for _, p := range pending {
		claimed, err := s.store.MarkClaimed(ctx, p.ID, claimantProfileID)
		if err != nil {
			continue
		}
		extra, err := s.finalize(ctx, claimed, claimantProfileID, claimantDid)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to finalize pending inbox credential",
				"inbox_id", p.ID, "error", err)
			continue
		}
		credentials = append(credentials, extra)
	}

	return &ClaimResult{Credentials: credentials, RecipientDid: claimantDid}, nil
}

// finalize signs an unsigned record for the claimant, persists the holder's
// credential instance, and fires the claimed notifications.
func (s *Service) finalize(ctx context.Context, rec *Credential, claimantProfileID, claimantDid string) (credential.Credential, error) {
	var vc credential.Credential
	if err := json.Unmarshal(rec.Credential, &vc); err != nil {
		return credential.Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "inbox credential payload is corrupt")
	}

	signed := vc
	if !rec.Signed {
		rel, err := s.authorities.Resolve(ctx, rec.IssuerProfileID, rec.AuthorityEndpoint, rec.AuthorityName)
		if err != nil {
			return credential.Credential{}, err
		}
		signed, err = s.authorities.IssueWithAuthority(ctx, rel, vc, claimantDid, rec.Encrypt)
		if err != nil {
			return credential.Credential{}, err
		}
	}

	if err := s.recordInstance(ctx, rec, signed, claimantProfileID); err != nil {
		return credential.Credential{}, err
	}

	s.metrics.InboxClaimed.Inc()
	s.emitter.Emit(ctx, events.Event{
		Type:      events.TypeInboxClaimed,
		ProfileID: claimantProfileID,
		InboxID:   rec.ID,
	})
	s.webhooks.Notify(rec.WebhookURL, webhook.Payload{
		Event:     webhook.EventClaimed,
		InboxID:   rec.ID,
		Recipient: rec.Recipient.Value,
	})
	return signed, nil
}

func (s *Service) recordInstance(ctx context.Context, rec *Credential, signed credential.Credential, holderProfileID string) error {
	raw, err := json.Marshal(signed)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode signed credential")
	}
	instance := &graph.CredentialInstance{
		BoostID:    signed.BoostID,
		HolderID:   holderProfileID,
		IssuerID:   rec.IssuerProfileID,
		Credential: raw,
	}
	if err := s.graphStore.CreateCredentialInstance(ctx, instance); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "record credential instance")
	}

	// A boost credential redeemed through the inbox fires the same claim
	// hooks as one redeemed through a claim link or exchange.
	if signed.BoostID != "" {
		s.hooks.ApplyOnClaim(ctx, signed.BoostID, holderProfileID)
	}
	return nil
}

// GetMyIssuedCredentials lists the caller's inbox issuances, newest first.
func (s *Service) GetMyIssuedCredentials(ctx context.Context, issuerProfileID string) ([]Credential, error) {
	out, err := s.store.ListByIssuer(ctx, issuerProfileID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list issued inbox credentials")
	}
	return out, nil
}

// ExpirePending sweeps PENDING records past their expiry into EXPIRED and
// fires the expiry webhooks. Returns how many records transitioned. Run
// periodically; the claim-token TTL already stops expired claims, this
// sweep keeps the records and webhooks honest.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredPending(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired inbox credentials: %w", err)
	}
	n := 0
	for _, rec := range expired {
		if err := s.store.MarkExpired(ctx, rec.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire inbox credential",
				"inbox_id", rec.ID, "error", err)
			continue
		}
		n++
		s.webhooks.Notify(rec.WebhookURL, webhook.Payload{
			Event:     webhook.EventExpired,
			InboxID:   rec.ID,
			Recipient: rec.Recipient.Value,
		})
	}
	if n > 0 {
		s.logger.Info("expired pending inbox credentials", "count", n)
	}
	return n, nil
}

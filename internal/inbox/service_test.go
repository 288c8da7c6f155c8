package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boostnet/internal/claimhook"
	"boostnet/internal/credential"
	"boostnet/internal/delivery"
	"boostnet/internal/events"
	"boostnet/internal/exchange"
	"boostnet/internal/graph"
	"boostnet/internal/platform/metrics"
	"boostnet/internal/signingauthority"
	"boostnet/internal/webhook"
	dErrors "boostnet/pkg/domain-errors"
)

var sharedMetrics = metrics.New()

type fixture struct {
	svc        *Service
	store      *InMemoryStore
	tokens     *exchange.InMemoryStore
	graphStore *graph.InMemoryStore
	hooks      *claimhook.Service
	mail       *delivery.MemoryService
	publisher  *events.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewInMemoryStore()
	tokens := exchange.NewInMemoryStore()
	graphStore := graph.NewInMemoryStore()
	authorities := signingauthority.NewService(graphStore, credential.NewStaticSigner(""), logger)
	hooks := claimhook.NewService(graphStore, logger)
	mail := delivery.NewMemoryService()
	dispatcher := delivery.NewDispatcher(mail, logger, time.Second)
	webhooks := webhook.NewNotifier(logger, time.Second)
	publisher := events.NewMemoryPublisher()

	svc := NewService(store, tokens, graphStore, authorities, hooks, dispatcher, webhooks,
		events.NewEmitter(publisher), sharedMetrics, logger,
		"https://network.example.com/inbox/claim", 30)
	return &fixture{svc: svc, store: store, tokens: tokens, graphStore: graphStore,
		hooks: hooks, mail: mail, publisher: publisher}
}

func (f *fixture) registerAuthority(t *testing.T, owner string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := signingauthority.NewService(f.graphStore, credential.NewStaticSigner(""), logger).
		Register(context.Background(), owner, signingauthority.RegisterInput{
			Endpoint: "https://sa.example.com", Name: "main", Did: "did:key:sa",
		})
	require.NoError(t, err)
}

func unsignedVC(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(credential.Credential{
		Context: []string{credential.ContextCredentialsV1},
		Type:    []string{"VerifiableCredential"},
		Name:    "Gold Star",
		CredentialSubject: credential.SubjectSet{Subjects: []credential.Subject{
			{"achievement": "Gold Star"},
		}},
	})
	require.NoError(t, err)
	return raw
}

func signedVC(t *testing.T) json.RawMessage {
	t.Helper()
	signed, err := credential.NewStaticSigner("").IssueCredential(context.Background(),
		credential.Credential{Type: []string{"VerifiableCredential"}}, credential.IssueOptions{})
	require.NoError(t, err)
	raw, err := json.Marshal(signed)
	require.NoError(t, err)
	return raw
}

func tokenFromClaimURL(t *testing.T, claimURL string) string {
	t.Helper()
	i := strings.LastIndex(claimURL, "/")
	require.Positive(t, i)
	return claimURL[i+1:]
}

func TestIssueUnsignedWithoutAuthorityRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	var domainErr *dErrors.Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "Unsigned credentials require a signing authority", domainErr.Message)
}

func TestIssueStagesForUnknownRecipient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.NotEmpty(t, result.ClaimURL)

	rec, err := f.store.Get(ctx, result.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.False(t, rec.Signed)

	// The claim message went out with the reserved fields intact.
	require.Eventually(t, func() bool { return len(f.mail.Sent()) == 1 },
		time.Second, 10*time.Millisecond)
	n := f.mail.Sent()[0]
	assert.Equal(t, delivery.ChannelEmail, n.Channel)
	assert.Equal(t, "alice@example.com", n.To)
	assert.Equal(t, result.ClaimURL, n.TemplateModel["claim_url"])
	assert.Equal(t, "Gold Star", n.TemplateModel["credential_name"])
}

func TestIssueDeliversDirectlyToVerifiedContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	require.NoError(t, f.graphStore.CreateProfile(ctx, &graph.Profile{
		ProfileID: "alice", Did: "did:key:alice",
	}))
	contact, err := f.graphStore.UpsertContactMethod(ctx, graph.ContactEmail, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, f.graphStore.LinkContactMethod(ctx, contact.ID, "alice", true))

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, result.Status)
	assert.Equal(t, "did:key:alice", result.RecipientDid)
	assert.Empty(t, result.ClaimURL, "direct delivery sends no claim message")

	delivered := f.publisher.ByType(events.TypeInboxDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, "alice", delivered[0].ProfileID)

	// No claim email for a direct delivery.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.mail.Sent())
}

func TestIssueDoesNotDeduplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	in := IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	}
	first, err := f.svc.Issue(ctx, "issuer-1", in)
	require.NoError(t, err)
	second, err := f.svc.Issue(ctx, "issuer-1", in)
	require.NoError(t, err)

	assert.NotEqual(t, first.InboxID, second.InboxID)

	pending, err := f.store.ListPendingForRecipient(ctx, graph.ContactEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestIssueSuppressedDeliverySendsNoMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
		Delivery:   &DeliveryOptions{Suppress: true},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.NotEmpty(t, result.ClaimURL, "the issuer distributes the URL itself")

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.mail.Sent(), "suppressed issuance sends no claim message")

	// The staged record claims like any other.
	claimed, err := f.svc.Claim(ctx, "alice", "did:key:alice",
		tokenFromClaimURL(t, result.ClaimURL))
	require.NoError(t, err)
	assert.Len(t, claimed.Credentials, 1)
}

// brokenIssuer resolves like a healthy authority but cannot sign.
type brokenIssuer struct{}

func (brokenIssuer) IssueCredential(context.Context, credential.Credential, credential.IssueOptions) (credential.Credential, error) {
	return credential.Credential{}, errors.New("signing capability unavailable")
}

func (brokenIssuer) IssuePresentation(context.Context, credential.Presentation) (credential.Presentation, error) {
	return credential.Presentation{}, errors.New("signing capability unavailable")
}

func TestIssueRejectsUnIssuableCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc.authorities = signingauthority.NewService(f.graphStore, brokenIssuer{}, logger)

	// The authority is registered but cannot sign: the trial issuance must
	// fail the submission instead of staging a record that can never claim.
	_, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	records, err := f.svc.GetMyIssuedCredentials(ctx, "issuer-1")
	require.NoError(t, err)
	assert.Empty(t, records, "nothing was staged")
}

func (f *fixture) createHookedBoosts(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.graphStore.CreateBoost(ctx, &graph.Boost{
		ID: "claim-b", OwnerProfileID: "owner-1", Status: graph.BoostLive,
	}))
	require.NoError(t, f.graphStore.CreateBoost(ctx, &graph.Boost{
		ID: "target-b", OwnerProfileID: "owner-1", Status: graph.BoostLive,
	}))
	_, err := f.hooks.Create(ctx, "owner-1", claimhook.CreateInput{
		Type: graph.HookAddAdmin, ClaimBoostID: "claim-b", TargetBoostID: "target-b",
	})
	require.NoError(t, err)
}

func boostVC(t *testing.T, signed bool) json.RawMessage {
	t.Helper()
	vc := credential.Credential{
		Context: []string{credential.ContextCredentialsV1},
		Type:    []string{"VerifiableCredential"},
		BoostID: "claim-b",
		CredentialSubject: credential.SubjectSet{Subjects: []credential.Subject{
			{"achievement": "Gold Star"},
		}},
	}
	if signed {
		var err error
		vc, err = credential.NewStaticSigner("").IssueCredential(context.Background(),
			vc, credential.IssueOptions{})
		require.NoError(t, err)
	}
	raw, err := json.Marshal(vc)
	require.NoError(t, err)
	return raw
}

func TestDirectDeliveryFiresClaimHooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")
	f.createHookedBoosts(t)

	require.NoError(t, f.graphStore.CreateProfile(ctx, &graph.Profile{
		ProfileID: "alice", Did: "did:key:alice",
	}))
	contact, err := f.graphStore.UpsertContactMethod(ctx, graph.ContactEmail, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, f.graphStore.LinkContactMethod(ctx, contact.ID, "alice", true))

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: boostVC(t, true),
	})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Status)

	perms, err := f.graphStore.ProfilePermissions(ctx, "alice", "target-b")
	require.NoError(t, err)
	assert.True(t, perms.CanManagePermissions, "hook side effects fire on direct delivery")
}

func TestClaimFiresClaimHooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")
	f.createHookedBoosts(t)

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: boostVC(t, false),
	})
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, "alice", "did:key:alice",
		tokenFromClaimURL(t, result.ClaimURL))
	require.NoError(t, err)

	perms, err := f.graphStore.ProfilePermissions(ctx, "alice", "target-b")
	require.NoError(t, err)
	assert.True(t, perms.CanManagePermissions, "hook side effects fire on inbox claim")
}

func TestIssueSurvivesNotificationOutage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")
	f.mail.Err = errors.New("provider down")

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err, "a provider outage must not fail issuance")

	rec, err := f.store.Get(ctx, result.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestClaimSignsAndLinksContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)
	token := tokenFromClaimURL(t, result.ClaimURL)

	claimed, err := f.svc.Claim(ctx, "alice", "did:key:alice", token)
	require.NoError(t, err)
	require.Len(t, claimed.Credentials, 1)
	assert.True(t, claimed.Credentials[0].IsSigned())
	assert.Equal(t, "did:key:alice", claimed.RecipientDid)
	assert.Equal(t, "did:key:alice", claimed.Credentials[0].CredentialSubject.Subjects[0]["id"])

	rec, err := f.store.Get(ctx, result.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StatusClaimed, rec.Status)
	assert.Equal(t, "alice", rec.ClaimedBy)

	// Claiming proved control: the contact method is now verified for alice.
	contact, err := f.graphStore.FindVerifiedContactMethod(ctx, graph.ContactEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", contact.ProfileID)
}

func TestClaimReleasesAllPendingForContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")
	f.registerAuthority(t, "issuer-2")

	first, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, "issuer-2", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: signedVC(t),
	})
	require.NoError(t, err)

	claimed, err := f.svc.Claim(ctx, "alice", "did:key:alice",
		tokenFromClaimURL(t, first.ClaimURL))
	require.NoError(t, err)
	assert.Len(t, claimed.Credentials, 2, "one token releases the whole inbox for the contact")

	pending, err := f.store.ListPendingForRecipient(ctx, graph.ContactEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClaimTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)
	token := tokenFromClaimURL(t, result.ClaimURL)

	_, err = f.svc.Claim(ctx, "alice", "did:key:alice", token)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, "bob", "did:key:bob", token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestClaimUnknownToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Claim(ctx, "alice", "did:key:alice", "no-such-token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestExpirePendingSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	result, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)

	// Nothing has expired yet.
	n, err := f.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Backdate the record past its expiry.
	f.store.records[result.InboxID].ExpiresAt = time.Now().Add(-time.Hour)

	n, err = f.svc.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.Get(ctx, result.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestGetMyIssuedCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.registerAuthority(t, "issuer-1")

	_, err := f.svc.Issue(ctx, "issuer-1", IssueInput{
		Recipient:  Recipient{Type: graph.ContactEmail, Value: "alice@example.com"},
		Credential: unsignedVC(t),
	})
	require.NoError(t, err)

	records, err := f.svc.GetMyIssuedCredentials(ctx, "issuer-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	other, err := f.svc.GetMyIssuedCredentials(ctx, "issuer-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

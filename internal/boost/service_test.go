package boost

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boostnet/internal/claimhook"
	"boostnet/internal/credential"
	"boostnet/internal/events"
	"boostnet/internal/graph"
	"boostnet/internal/signingauthority"
	dErrors "boostnet/pkg/domain-errors"
)

type fixture struct {
	svc       *Service
	store     *graph.InMemoryStore
	hooks     *claimhook.Service
	publisher *events.MemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := graph.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authorities := signingauthority.NewService(store, credential.NewStaticSigner(""), logger)
	hooks := claimhook.NewService(store, logger)
	publisher := events.NewMemoryPublisher()
	svc := NewService(store, authorities, hooks, events.NewEmitter(publisher), logger)
	return &fixture{svc: svc, store: store, hooks: hooks, publisher: publisher}
}

func (f *fixture) seedOwnerWithAuthority(t *testing.T, owner string) {
	t.Helper()
	_, err := signingauthority.NewService(f.store, credential.NewStaticSigner(""),
		slog.New(slog.NewTextHandler(io.Discard, nil))).
		Register(context.Background(), owner, signingauthority.RegisterInput{
			Endpoint: "https://sa.example.com", Name: "main", Did: "did:key:sa",
		})
	require.NoError(t, err)
}

func templateJSON(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(credential.Credential{
		Context: []string{credential.ContextCredentialsV1},
		Type:    []string{"VerifiableCredential"},
		CredentialSubject: credential.SubjectSet{Subjects: []credential.Subject{
			{"achievement": "Gold Star"},
		}},
	})
	require.NoError(t, err)
	return raw
}

func TestCreateDefaultsToDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.Create(ctx, "owner-1", CreateInput{Name: "Gold Star", Credential: templateJSON(t)})
	require.NoError(t, err)
	assert.Equal(t, graph.BoostDraft, b.Status)
}

func TestCreateRejectsSignedTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	signed, err := credential.NewStaticSigner("").IssueCredential(ctx, credential.Credential{
		Type: []string{"VerifiableCredential"},
	}, credential.IssueOptions{})
	require.NoError(t, err)
	raw, err := json.Marshal(signed)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "owner-1", CreateInput{Name: "x", Credential: raw})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestPublishRequiresEditPermission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.Create(ctx, "owner-1", CreateInput{Name: "x", Credential: templateJSON(t)})
	require.NoError(t, err)

	err = f.svc.Publish(ctx, "stranger", b.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, f.svc.Publish(ctx, "owner-1", b.ID))
	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.BoostLive, got.Status)
}

func TestSendCredentialRequiresLiveBoost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedOwnerWithAuthority(t, "owner-1")

	b, err := f.svc.Create(ctx, "owner-1", CreateInput{Name: "x", Credential: templateJSON(t)})
	require.NoError(t, err)

	_, _, err = f.svc.SendCredential(ctx, SendInput{
		BoostID: b.ID, RecipientProfileID: "holder-1", RecipientDid: "did:key:holder",
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestSendCredentialRequiresSigningAuthority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.Create(ctx, "owner-1", CreateInput{
		Name: "x", Status: graph.BoostLive, Credential: templateJSON(t),
	})
	require.NoError(t, err)

	_, _, err = f.svc.SendCredential(ctx, SendInput{
		BoostID: b.ID, RecipientProfileID: "holder-1", RecipientDid: "did:key:holder",
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSendCredentialHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedOwnerWithAuthority(t, "owner-1")

	b, err := f.svc.Create(ctx, "owner-1", CreateInput{
		Name: "Gold Star", Status: graph.BoostLive, Credential: templateJSON(t),
	})
	require.NoError(t, err)

	instance, signed, err := f.svc.SendCredential(ctx, SendInput{
		BoostID: b.ID, RecipientProfileID: "holder-1", RecipientDid: "did:key:holder",
	})
	require.NoError(t, err)

	assert.True(t, signed.IsSigned())
	assert.Equal(t, b.ID, signed.BoostID)
	assert.Equal(t, "did:key:holder", signed.CredentialSubject.Subjects[0]["id"])

	stored, err := f.store.GetCredentialInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "holder-1", stored.HolderID)
	assert.Equal(t, "owner-1", stored.IssuerID)
	assert.False(t, stored.Revoked)

	issued := f.publisher.ByType(events.TypeCredentialIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, instance.ID, issued[0].CredentialID)
}

func TestSendCredentialFiresClaimHooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedOwnerWithAuthority(t, "owner-1")

	b, err := f.svc.Create(ctx, "owner-1", CreateInput{
		Name: "Gold Star", Status: graph.BoostLive, Credential: templateJSON(t),
	})
	require.NoError(t, err)
	target, err := f.svc.Create(ctx, "owner-1", CreateInput{
		Name: "Issuer Pool", Status: graph.BoostLive, Credential: templateJSON(t),
	})
	require.NoError(t, err)

	_, err = f.hooks.Create(ctx, "owner-1", claimhook.CreateInput{
		Type:          graph.HookGrantPermissions,
		ClaimBoostID:  b.ID,
		TargetBoostID: target.ID,
		Permissions:   graph.Permissions{CanIssue: true},
	})
	require.NoError(t, err)

	_, _, err = f.svc.SendCredential(ctx, SendInput{
		BoostID: b.ID, RecipientProfileID: "holder-1", RecipientDid: "did:key:holder",
	})
	require.NoError(t, err)

	perms, err := f.store.ProfilePermissions(ctx, "holder-1", target.ID)
	require.NoError(t, err)
	assert.True(t, perms.CanIssue)
}

package revoke

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boostnet/internal/boost"
	"boostnet/internal/claimhook"
	"boostnet/internal/claimlink"
	"boostnet/internal/credential"
	"boostnet/internal/events"
	"boostnet/internal/exchange"
	"boostnet/internal/graph"
	"boostnet/internal/platform/metrics"
	"boostnet/internal/signingauthority"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/sentinel"
)

var sharedMetrics = metrics.New()

type fixture struct {
	svc        *Service
	boosts     *boost.Service
	hooks      *claimhook.Service
	links      *claimlink.Manager
	graphStore *graph.InMemoryStore
	cache      *exchange.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	graphStore := graph.NewInMemoryStore()
	cache := exchange.NewInMemoryStore()
	signer := credential.NewStaticSigner("")

	authorities := signingauthority.NewService(graphStore, signer, logger)
	hooks := claimhook.NewService(graphStore, logger)
	emitter := events.NewEmitter(events.NewMemoryPublisher())
	boosts := boost.NewService(graphStore, authorities, hooks, emitter, logger)
	links := claimlink.NewManager(cache, logger, time.Hour, 1, 3)
	svc := NewService(graphStore, cache, emitter, sharedMetrics, logger)

	_, err := authorities.Register(ctx, "owner-1", signingauthority.RegisterInput{
		Endpoint: "https://sa.example.com", Name: "main", Did: "did:key:sa",
	})
	require.NoError(t, err)

	return &fixture{svc: svc, boosts: boosts, hooks: hooks, links: links, graphStore: graphStore, cache: cache}
}

func (f *fixture) createLiveBoost(t *testing.T, name string) string {
	t.Helper()
	raw, err := json.Marshal(credential.Credential{
		Context: []string{credential.ContextCredentialsV1},
		Type:    []string{"VerifiableCredential"},
		CredentialSubject: credential.SubjectSet{Subjects: []credential.Subject{
			{"achievement": name},
		}},
	})
	require.NoError(t, err)
	b, err := f.boosts.Create(context.Background(), "owner-1", boost.CreateInput{
		Name: name, Status: graph.BoostLive, Credential: raw,
	})
	require.NoError(t, err)
	return b.ID
}

func (f *fixture) claim(t *testing.T, boostID, profileID string) string {
	t.Helper()
	instance, _, err := f.boosts.SendCredential(context.Background(), boost.SendInput{
		BoostID:            boostID,
		RecipientProfileID: profileID,
		RecipientDid:       "did:key:" + profileID,
	})
	require.NoError(t, err)
	return instance.ID
}

// The end-to-end grant/revoke symmetry: claiming boost X with a
// GRANT_PERMISSIONS hook grants canEdit on Y; a second consume of the same
// single-use link fails; revoking the credential removes exactly that
// grant.
func TestGrantRevokeSymmetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostX := f.createLiveBoost(t, "X")
	boostY := f.createLiveBoost(t, "Y")

	_, err := f.hooks.Create(ctx, "owner-1", claimhook.CreateInput{
		Type:          graph.HookGrantPermissions,
		ClaimBoostID:  boostX,
		TargetBoostID: boostY,
		Permissions:   graph.Permissions{CanEdit: true},
	})
	require.NoError(t, err)

	challenge, err := f.links.Issue(ctx, boostX, claimlink.SigningAuthorityRef{
		Endpoint: "https://sa.example.com", Name: "main",
	}, claimlink.Options{TotalUses: 1})
	require.NoError(t, err)

	_, err = f.links.Consume(ctx, boostX, challenge)
	require.NoError(t, err)
	credentialID := f.claim(t, boostX, "p")

	perms, err := f.graphStore.ProfilePermissions(ctx, "p", boostY)
	require.NoError(t, err)
	assert.True(t, perms.CanEdit)

	// The single-use link is spent.
	_, err = f.links.Consume(ctx, boostX, challenge)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = f.svc.Revoke(ctx, "owner-1", credentialID)
	require.NoError(t, err)

	perms, err = f.graphStore.ProfilePermissions(ctx, "p", boostY)
	require.NoError(t, err)
	assert.False(t, perms.CanEdit, "revocation removes the hook's grant")
}

func TestRevokeSparesManualGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostX := f.createLiveBoost(t, "X")
	boostY := f.createLiveBoost(t, "Y")

	hook, err := f.hooks.Create(ctx, "owner-1", claimhook.CreateInput{
		Type:          graph.HookGrantPermissions,
		ClaimBoostID:  boostX,
		TargetBoostID: boostY,
		Permissions:   graph.Permissions{CanEdit: true},
	})
	require.NoError(t, err)

	credentialID := f.claim(t, boostX, "p")

	// A manual grant of the same role: same shape, different provenance.
	require.NoError(t, f.graphStore.GrantRole(ctx, &graph.HasRole{
		ProfileID: "p", BoostID: boostY, RoleID: hook.RoleID, GrantedBy: "manual",
	}))

	_, err = f.svc.Revoke(ctx, "owner-1", credentialID)
	require.NoError(t, err)

	held, err := f.graphStore.RolesHeld(ctx, "p", boostY)
	require.NoError(t, err)
	require.Len(t, held, 1, "only the hook's grant is removed")
	assert.Equal(t, "manual", held[0].GrantedBy)
}

func TestConnectionProvenanceSurvivesPartialRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostA := f.createLiveBoost(t, "A")
	boostB := f.createLiveBoost(t, "B")

	for _, id := range []string{boostA, boostB} {
		_, err := f.hooks.Create(ctx, "owner-1", claimhook.CreateInput{
			Type: graph.HookAutoConnect, ClaimBoostID: id, TargetBoostID: id,
		})
		require.NoError(t, err)
	}

	credA := f.claim(t, boostA, "p")
	credB := f.claim(t, boostB, "p")

	conns, err := f.graphStore.Connections(ctx, "p")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.ElementsMatch(t, []string{graph.BoostSource(boostA), graph.BoostSource(boostB)}, conns[0].Sources)

	// Revoking A's credential drops only A's provenance token.
	_, err = f.svc.Revoke(ctx, "owner-1", credA)
	require.NoError(t, err)

	conns, err = f.graphStore.Connections(ctx, "p")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, []string{graph.BoostSource(boostB)}, conns[0].Sources)

	// Revoking B's credential empties the source list and kills the edge.
	_, err = f.svc.Revoke(ctx, "owner-1", credB)
	require.NoError(t, err)

	conns, err = f.graphStore.Connections(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestRevokeRemovesAutoConnectRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostA := f.createLiveBoost(t, "A")
	_, err := f.hooks.Create(ctx, "owner-1", claimhook.CreateInput{
		Type: graph.HookAutoConnect, ClaimBoostID: boostA, TargetBoostID: boostA,
	})
	require.NoError(t, err)

	credentialID := f.claim(t, boostA, "p")

	recipients, err := f.graphStore.AutoConnectsForBoost(ctx, boostA)
	require.NoError(t, err)
	require.Len(t, recipients, 1)

	_, err = f.svc.Revoke(ctx, "owner-1", credentialID)
	require.NoError(t, err)

	recipients, err = f.graphStore.AutoConnectsForBoost(ctx, boostA)
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestRevokeInvalidatesDidWebDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostA := f.createLiveBoost(t, "A")

	// Holder and a role-holding manager both have cached did:web documents.
	require.NoError(t, f.graphStore.CreateProfile(ctx, &graph.Profile{
		ProfileID: "p", Did: "did:web:network.example.com:users:p",
	}))
	require.NoError(t, f.graphStore.CreateProfile(ctx, &graph.Profile{
		ProfileID: "manager", Did: "did:web:network.example.com:users:manager",
	}))
	require.NoError(t, f.graphStore.CreateRole(ctx, &graph.Role{
		ID: "editors", Name: "editors", Permissions: graph.Permissions{CanEdit: true},
	}))
	require.NoError(t, f.graphStore.GrantRole(ctx, &graph.HasRole{
		ProfileID: "manager", BoostID: boostA, RoleID: "editors", GrantedBy: "manual",
	}))

	credentialID := f.claim(t, boostA, "p")

	dids := []string{
		"did:web:network.example.com:users:p",
		"did:web:network.example.com:users:manager",
	}
	for _, did := range dids {
		_, err := f.cache.SetIfAbsent(ctx, didWebCacheKey(did), "{}", time.Hour)
		require.NoError(t, err)
	}

	_, err := f.svc.Revoke(ctx, "owner-1", credentialID)
	require.NoError(t, err)

	for _, did := range dids {
		_, err := f.cache.Get(ctx, didWebCacheKey(did))
		assert.ErrorIs(t, err, sentinel.ErrNotFound, did)
	}
}

func TestRevokeRequiresPermission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostA := f.createLiveBoost(t, "A")
	credentialID := f.claim(t, boostA, "p")

	_, err := f.svc.Revoke(ctx, "stranger", credentialID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	// The holder cannot revoke their own credential without canRevoke.
	_, err = f.svc.Revoke(ctx, "p", credentialID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	boostA := f.createLiveBoost(t, "A")
	credentialID := f.claim(t, boostA, "p")

	first, err := f.svc.Revoke(ctx, "owner-1", credentialID)
	require.NoError(t, err)
	assert.True(t, first.Revoked)

	second, err := f.svc.Revoke(ctx, "owner-1", credentialID)
	require.NoError(t, err)
	assert.True(t, second.Revoked)
	assert.Equal(t, first.RevokedAt, second.RevokedAt)
}

func TestRevokeUnknownCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Revoke(ctx, "owner-1", "no-such-credential")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

package graph

import "context"

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return sentinel.ErrConflict (wrapped) when exclusive creation collides
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
//
// Each method is a single atomic statement against the backing store; the
// revoke reversal passes rely on per-call atomicity, not cross-call
// transactions.

// Store is the relationship-query capability over the boost network graph.
// The in-memory implementation backs tests and single-node development; a
// graph-database implementation fills the same seam in production.
type Store interface {
	// Profiles
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, profileID string) (*Profile, error)
	GetProfileByDid(ctx context.Context, did string) (*Profile, error)

	// Contact methods
	UpsertContactMethod(ctx context.Context, typ ContactMethodType, value string) (*ContactMethod, error)
	FindVerifiedContactMethod(ctx context.Context, typ ContactMethodType, value string) (*ContactMethod, error)
	LinkContactMethod(ctx context.Context, contactMethodID, profileID string, verified bool) error

	// Boosts
	CreateBoost(ctx context.Context, b *Boost) error
	GetBoost(ctx context.Context, boostID string) (*Boost, error)
	UpdateBoostStatus(ctx context.Context, boostID string, status BoostStatus) error

	// Roles and HAS_ROLE
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, roleID string) (*Role, error)
	GrantRole(ctx context.Context, rel *HasRole) error
	// RemoveRoleGrants deletes HAS_ROLE edges matching all non-empty
	// arguments and returns how many were removed. Provenance matching keeps
	// hook reversal from deleting coincidentally similar grants.
	RemoveRoleGrants(ctx context.Context, profileID, boostID, roleID, grantedBy string) (int, error)
	// ProfilePermissions aggregates the permissions a profile holds on a
	// boost: admin for the owner, otherwise the union of held roles.
	ProfilePermissions(ctx context.Context, profileID, boostID string) (Permissions, error)
	RolesHeld(ctx context.Context, profileID, boostID string) ([]HasRole, error)
	// ManagingProfiles returns the boost's owner plus every profile holding
	// a role on it, deduplicated.
	ManagingProfiles(ctx context.Context, boostID string) ([]string, error)

	// AUTO_CONNECT_RECIPIENT
	CreateAutoConnect(ctx context.Context, rel *AutoConnectRecipient) error
	RemoveAutoConnects(ctx context.Context, boostID, profileID, hookID string) (int, error)
	AutoConnectsForBoost(ctx context.Context, boostID string) ([]AutoConnectRecipient, error)

	// CONNECTED_WITH with provenance sources
	AddConnectionSource(ctx context.Context, profileA, profileB, source string) error
	// PruneConnectionSource removes the source token from every connection
	// touching the profile and deletes connections whose source list empties.
	PruneConnectionSource(ctx context.Context, profileID, source string) (int, error)
	Connections(ctx context.Context, profileID string) ([]Connection, error)

	// Claim hooks (adjacency-indexed by claim boost and by type+boost pair)
	CreateClaimHook(ctx context.Context, h *ClaimHook) error
	GetClaimHook(ctx context.Context, hookID string) (*ClaimHook, error)
	ListClaimHooks(ctx context.Context, claimBoostID string) ([]ClaimHook, error)
	// MatchClaimHooks finds hooks by (type, claimBoost) — the revoke
	// reversal scope.
	MatchClaimHooks(ctx context.Context, typ ClaimHookType, claimBoostID string) ([]ClaimHook, error)
	DeleteClaimHook(ctx context.Context, hookID string) error

	// Credential instances
	CreateCredentialInstance(ctx context.Context, c *CredentialInstance) error
	GetCredentialInstance(ctx context.Context, credentialID string) (*CredentialInstance, error)
	MarkCredentialRevoked(ctx context.Context, credentialID string) (*CredentialInstance, error)

	// Signing authorities
	RegisterSigningAuthority(ctx context.Context, rel *SigningAuthorityRel) error
	GetSigningAuthority(ctx context.Context, owner, endpoint, name string) (*SigningAuthorityRel, error)
	ListSigningAuthorities(ctx context.Context, owner string) ([]SigningAuthorityRel, error)
	PrimarySigningAuthority(ctx context.Context, owner string) (*SigningAuthorityRel, error)
	SetPrimarySigningAuthority(ctx context.Context, owner, endpoint, name string) error
}

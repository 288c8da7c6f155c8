package graph

import (
	"encoding/json"
	"time"
)

// Node and relationship models for the boost network graph. The production
// deployment keeps these in a graph database; this package is the
// relationship-query seam the rest of the service programs against.

// Profile is a network identity.
type Profile struct {
	ProfileID   string
	Did         string
	DisplayName string
	CreatedAt   time.Time
}

// ContactMethodType enumerates supported contact channels.
type ContactMethodType string

const (
	ContactEmail ContactMethodType = "email"
	ContactPhone ContactMethodType = "phone"
)

// ContactMethod is the shared identity anchor for inbox delivery. A verified
// contact method is linked 1:1 with a profile.
type ContactMethod struct {
	ID        string
	Type      ContactMethodType
	Value     string
	Verified  bool
	ProfileID string
	CreatedAt time.Time
}

// BoostStatus gates whether a boost can be claimed.
type BoostStatus string

const (
	BoostDraft BoostStatus = "DRAFT"
	BoostLive  BoostStatus = "LIVE"
)

// Boost is an issuable credential template owned by a profile.
type Boost struct {
	ID             string
	OwnerProfileID string
	Name           string
	Status         BoostStatus
	Credential     json.RawMessage
	CreatedAt      time.Time
}

// Permissions is the capability set a role grants on a boost.
type Permissions struct {
	CanEdit              bool `json:"canEdit"`
	CanIssue             bool `json:"canIssue"`
	CanRevoke            bool `json:"canRevoke"`
	CanManagePermissions bool `json:"canManagePermissions"`
	CanViewAnalytics     bool `json:"canViewAnalytics"`
}

// AdminPermissions is the full capability set.
func AdminPermissions() Permissions {
	return Permissions{
		CanEdit:              true,
		CanIssue:             true,
		CanRevoke:            true,
		CanManagePermissions: true,
		CanViewAnalytics:     true,
	}
}

// Includes reports whether p covers every permission other grants. Used to
// enforce that a hook creator cannot grant permissions they do not hold.
func (p Permissions) Includes(other Permissions) bool {
	if other.CanEdit && !p.CanEdit {
		return false
	}
	if other.CanIssue && !p.CanIssue {
		return false
	}
	if other.CanRevoke && !p.CanRevoke {
		return false
	}
	if other.CanManagePermissions && !p.CanManagePermissions {
		return false
	}
	if other.CanViewAnalytics && !p.CanViewAnalytics {
		return false
	}
	return true
}

// Union merges two permission sets.
func (p Permissions) Union(other Permissions) Permissions {
	return Permissions{
		CanEdit:              p.CanEdit || other.CanEdit,
		CanIssue:             p.CanIssue || other.CanIssue,
		CanRevoke:            p.CanRevoke || other.CanRevoke,
		CanManagePermissions: p.CanManagePermissions || other.CanManagePermissions,
		CanViewAnalytics:     p.CanViewAnalytics || other.CanViewAnalytics,
	}
}

// RoleAdmin names the role granted by ADD_ADMIN hooks and held implicitly by
// boost owners.
const RoleAdmin = "admin"

// Role is a named permission set grantable on a boost. GRANT_PERMISSIONS
// hooks materialize one Role node each so revocation can target exactly the
// grants that hook created.
type Role struct {
	ID          string
	Name        string
	Permissions Permissions
	CreatedAt   time.Time
}

// HasRole is the HAS_ROLE relationship: profile holds role on boost.
// GrantedBy records provenance ("claimhook:<id>" or "manual") so hook
// reversal never deletes a grant that merely looks alike.
type HasRole struct {
	ProfileID string
	BoostID   string
	RoleID    string
	GrantedBy string
	CreatedAt time.Time
}

// AutoConnectRecipient is the AUTO_CONNECT_RECIPIENT relationship from a
// target boost to a claiming profile.
type AutoConnectRecipient struct {
	BoostID   string
	ProfileID string
	HookID    string
	CreatedAt time.Time
}

// Connection is the CONNECTED_WITH relationship between two profiles with a
// provenance list. The edge survives as long as at least one source remains.
type Connection struct {
	ProfileA string
	ProfileB string
	Sources  []string
}

// ClaimHookType discriminates hook variants.
type ClaimHookType string

const (
	HookGrantPermissions ClaimHookType = "GRANT_PERMISSIONS"
	HookAddAdmin         ClaimHookType = "ADD_ADMIN"
	HookAutoConnect      ClaimHookType = "AUTO_CONNECT"
)

// ClaimHook is the stored hook node, related to the claim boost (whose
// claiming triggers it) and the target boost (which is affected). RoleID is
// set only for GRANT_PERMISSIONS.
type ClaimHook struct {
	ID            string
	Type          ClaimHookType
	ClaimBoostID  string
	TargetBoostID string
	RoleID        string
	CreatedAt     time.Time
}

// CredentialInstance is one issued credential of a boost held by a profile.
type CredentialInstance struct {
	ID         string
	BoostID    string
	HolderID   string
	IssuerID   string
	Credential json.RawMessage
	IssuedAt   time.Time
	Revoked    bool
	RevokedAt  time.Time
}

// SigningAuthorityRel is the relationship registering a delegated signer
// (endpoint + name) for an owner profile.
type SigningAuthorityRel struct {
	OwnerProfileID string
	Endpoint       string
	Name           string
	Did            string
	Primary        bool
	CreatedAt      time.Time
}

// BoostSource returns the provenance token connections carry for a boost.
func BoostSource(boostID string) string {
	return "boost:" + boostID
}

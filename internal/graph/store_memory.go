package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"boostnet/pkg/platform/sentinel"
)

// InMemoryStore keeps the whole graph under one mutex. Adjacency indexes
// (hooks by claim boost, connections by profile) stand in for the graph
// database's pattern matching so reversal passes never scan everything.
type InMemoryStore struct {
	mu sync.RWMutex

	profiles       map[string]*Profile
	profilesByDid  map[string]string
	contactMethods map[string]*ContactMethod // keyed by type|value
	boosts         map[string]*Boost
	roles          map[string]*Role
	hasRoles       []HasRole
	autoConnects   []AutoConnectRecipient
	connections    map[string]*Connection // keyed by sorted pair
	hooks          map[string]*ClaimHook
	hooksByClaim   map[string][]string
	credentials    map[string]*CredentialInstance
	authorities    []SigningAuthorityRel
}

// NewInMemoryStore constructs an empty graph store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:       make(map[string]*Profile),
		profilesByDid:  make(map[string]string),
		contactMethods: make(map[string]*ContactMethod),
		boosts:         make(map[string]*Boost),
		roles:          make(map[string]*Role),
		connections:    make(map[string]*Connection),
		hooks:          make(map[string]*ClaimHook),
		hooksByClaim:   make(map[string][]string),
		credentials:    make(map[string]*CredentialInstance),
	}
}

func (s *InMemoryStore) CreateProfile(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ProfileID]; ok {
		return fmt.Errorf("profile %s: %w", p.ProfileID, sentinel.ErrConflict)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.profiles[p.ProfileID] = &cp
	if p.Did != "" {
		s.profilesByDid[p.Did] = p.ProfileID
	}
	return nil
}

func (s *InMemoryStore) GetProfile(_ context.Context, profileID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", profileID, sentinel.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) GetProfileByDid(_ context.Context, did string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profileID, ok := s.profilesByDid[did]
	if !ok {
		return nil, fmt.Errorf("profile for did %s: %w", did, sentinel.ErrNotFound)
	}
	cp := *s.profiles[profileID]
	return &cp, nil
}

func contactKey(typ ContactMethodType, value string) string {
	return string(typ) + "|" + value
}

func (s *InMemoryStore) UpsertContactMethod(_ context.Context, typ ContactMethodType, value string) (*ContactMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contactKey(typ, value)
	if cm, ok := s.contactMethods[key]; ok {
		cp := *cm
		return &cp, nil
	}
	cm := &ContactMethod{
		ID:        uuid.NewString(),
		Type:      typ,
		Value:     value,
		CreatedAt: time.Now(),
	}
	s.contactMethods[key] = cm
	cp := *cm
	return &cp, nil
}

func (s *InMemoryStore) FindVerifiedContactMethod(_ context.Context, typ ContactMethodType, value string) (*ContactMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cm, ok := s.contactMethods[contactKey(typ, value)]
	if !ok || !cm.Verified || cm.ProfileID == "" {
		return nil, fmt.Errorf("verified contact method: %w", sentinel.ErrNotFound)
	}
	cp := *cm
	return &cp, nil
}

func (s *InMemoryStore) LinkContactMethod(_ context.Context, contactMethodID, profileID string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cm := range s.contactMethods {
		if cm.ID == contactMethodID {
			cm.ProfileID = profileID
			cm.Verified = verified
			return nil
		}
	}
	return fmt.Errorf("contact method %s: %w", contactMethodID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) CreateBoost(_ context.Context, b *Boost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if _, ok := s.boosts[b.ID]; ok {
		return fmt.Errorf("boost %s: %w", b.ID, sentinel.ErrConflict)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	cp := *b
	s.boosts[b.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetBoost(_ context.Context, boostID string) (*Boost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boosts[boostID]
	if !ok {
		return nil, fmt.Errorf("boost %s: %w", boostID, sentinel.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *InMemoryStore) UpdateBoostStatus(_ context.Context, boostID string, status BoostStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boosts[boostID]
	if !ok {
		return fmt.Errorf("boost %s: %w", boostID, sentinel.ErrNotFound)
	}
	b.Status = status
	return nil
}

func (s *InMemoryStore) CreateRole(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetRole(_ context.Context, roleID string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, sentinel.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) GrantRole(_ context.Context, rel *HasRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.hasRoles {
		if existing.ProfileID == rel.ProfileID && existing.BoostID == rel.BoostID &&
			existing.RoleID == rel.RoleID && existing.GrantedBy == rel.GrantedBy {
			// Idempotent: re-applying the same grant is a no-op.
			return nil
		}
	}
	cp := *rel
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.hasRoles = append(s.hasRoles, cp)
	return nil
}

func (s *InMemoryStore) RemoveRoleGrants(_ context.Context, profileID, boostID, roleID, grantedBy string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.hasRoles[:0]
	removed := 0
	for _, rel := range s.hasRoles {
		match := (profileID == "" || rel.ProfileID == profileID) &&
			(boostID == "" || rel.BoostID == boostID) &&
			(roleID == "" || rel.RoleID == roleID) &&
			(grantedBy == "" || rel.GrantedBy == grantedBy)
		if match {
			removed++
			continue
		}
		kept = append(kept, rel)
	}
	s.hasRoles = kept
	return removed, nil
}

func (s *InMemoryStore) ProfilePermissions(_ context.Context, profileID, boostID string) (Permissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boosts[boostID]
	if !ok {
		return Permissions{}, fmt.Errorf("boost %s: %w", boostID, sentinel.ErrNotFound)
	}
	if b.OwnerProfileID == profileID {
		return AdminPermissions(), nil
	}
	var perms Permissions
	for _, rel := range s.hasRoles {
		if rel.ProfileID != profileID || rel.BoostID != boostID {
			continue
		}
		role, ok := s.roles[rel.RoleID]
		if !ok {
			continue
		}
		perms = perms.Union(role.Permissions)
	}
	return perms, nil
}

func (s *InMemoryStore) RolesHeld(_ context.Context, profileID, boostID string) ([]HasRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []HasRole
	for _, rel := range s.hasRoles {
		if rel.ProfileID == profileID && rel.BoostID == boostID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ManagingProfiles(_ context.Context, boostID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boosts[boostID]
	if !ok {
		return nil, fmt.Errorf("boost %s: %w", boostID, sentinel.ErrNotFound)
	}
	seen := map[string]bool{b.OwnerProfileID: true}
	out := []string{b.OwnerProfileID}
	for _, rel := range s.hasRoles {
		if rel.BoostID != boostID || seen[rel.ProfileID] {
			continue
		}
		seen[rel.ProfileID] = true
		out = append(out, rel.ProfileID)
	}
	return out, nil
}

func (s *InMemoryStore) CreateAutoConnect(_ context.Context, rel *AutoConnectRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.autoConnects {
		if existing.BoostID == rel.BoostID && existing.ProfileID == rel.ProfileID && existing.HookID == rel.HookID {
			return nil
		}
	}
	cp := *rel
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.autoConnects = append(s.autoConnects, cp)
	return nil
}

func (s *InMemoryStore) RemoveAutoConnects(_ context.Context, boostID, profileID, hookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.autoConnects[:0]
	removed := 0
	for _, rel := range s.autoConnects {
		match := (boostID == "" || rel.BoostID == boostID) &&
			(profileID == "" || rel.ProfileID == profileID) &&
			(hookID == "" || rel.HookID == hookID)
		if match {
			removed++
			continue
		}
		kept = append(kept, rel)
	}
	s.autoConnects = kept
	return removed, nil
}

func (s *InMemoryStore) AutoConnectsForBoost(_ context.Context, boostID string) ([]AutoConnectRecipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AutoConnectRecipient
	for _, rel := range s.autoConnects {
		if rel.BoostID == boostID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *InMemoryStore) AddConnectionSource(_ context.Context, profileA, profileB, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(profileA, profileB)
	conn, ok := s.connections[key]
	if !ok {
		conn = &Connection{ProfileA: profileA, ProfileB: profileB}
		s.connections[key] = conn
	}
	for _, existing := range conn.Sources {
		if existing == source {
			return nil
		}
	}
	conn.Sources = append(conn.Sources, source)
	return nil
}

func (s *InMemoryStore) PruneConnectionSource(_ context.Context, profileID, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for key, conn := range s.connections {
		if conn.ProfileA != profileID && conn.ProfileB != profileID {
			continue
		}
		kept := conn.Sources[:0]
		for _, existing := range conn.Sources {
			if existing == source {
				pruned++
				continue
			}
			kept = append(kept, existing)
		}
		conn.Sources = kept
		// The edge only dies with its last source.
		if len(conn.Sources) == 0 {
			delete(s.connections, key)
		}
	}
	return pruned, nil
}

func (s *InMemoryStore) Connections(_ context.Context, profileID string) ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Connection
	for _, conn := range s.connections {
		if conn.ProfileA == profileID || conn.ProfileB == profileID {
			cp := *conn
			cp.Sources = append([]string(nil), conn.Sources...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CreateClaimHook(_ context.Context, h *ClaimHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if _, ok := s.hooks[h.ID]; ok {
		return fmt.Errorf("claim hook %s: %w", h.ID, sentinel.ErrConflict)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	cp := *h
	s.hooks[h.ID] = &cp
	s.hooksByClaim[h.ClaimBoostID] = append(s.hooksByClaim[h.ClaimBoostID], h.ID)
	return nil
}

func (s *InMemoryStore) GetClaimHook(_ context.Context, hookID string) (*ClaimHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hooks[hookID]
	if !ok {
		return nil, fmt.Errorf("claim hook %s: %w", hookID, sentinel.ErrNotFound)
	}
	cp := *h
	return &cp, nil
}

func (s *InMemoryStore) ListClaimHooks(_ context.Context, claimBoostID string) ([]ClaimHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ClaimHook
	for _, hookID := range s.hooksByClaim[claimBoostID] {
		if h, ok := s.hooks[hookID]; ok {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s *InMemoryStore) MatchClaimHooks(_ context.Context, typ ClaimHookType, claimBoostID string) ([]ClaimHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ClaimHook
	for _, hookID := range s.hooksByClaim[claimBoostID] {
		h, ok := s.hooks[hookID]
		if ok && h.Type == typ {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteClaimHook(_ context.Context, hookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hooks[hookID]
	if !ok {
		return fmt.Errorf("claim hook %s: %w", hookID, sentinel.ErrNotFound)
	}
	delete(s.hooks, hookID)
	ids := s.hooksByClaim[h.ClaimBoostID]
	kept := ids[:0]
	for _, id := range ids {
		if id != hookID {
			kept = append(kept, id)
		}
	}
	s.hooksByClaim[h.ClaimBoostID] = kept
	return nil
}

func (s *InMemoryStore) CreateCredentialInstance(_ context.Context, c *CredentialInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.credentials[c.ID]; ok {
		return fmt.Errorf("credential %s: %w", c.ID, sentinel.ErrConflict)
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now()
	}
	cp := *c
	s.credentials[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetCredentialInstance(_ context.Context, credentialID string) (*CredentialInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", credentialID, sentinel.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) MarkCredentialRevoked(_ context.Context, credentialID string) (*CredentialInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", credentialID, sentinel.ErrNotFound)
	}
	if !c.Revoked {
		c.Revoked = true
		c.RevokedAt = time.Now()
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) RegisterSigningAuthority(_ context.Context, rel *SigningAuthorityRel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.authorities {
		if existing.OwnerProfileID == rel.OwnerProfileID &&
			existing.Endpoint == rel.Endpoint && existing.Name == rel.Name {
			return fmt.Errorf("signing authority %s/%s: %w", rel.Endpoint, rel.Name, sentinel.ErrConflict)
		}
	}
	cp := *rel
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	// First registered authority becomes primary.
	hasPrimary := false
	for _, existing := range s.authorities {
		if existing.OwnerProfileID == rel.OwnerProfileID && existing.Primary {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		cp.Primary = true
	}
	s.authorities = append(s.authorities, cp)
	return nil
}

func (s *InMemoryStore) GetSigningAuthority(_ context.Context, owner, endpoint, name string) (*SigningAuthorityRel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rel := range s.authorities {
		if rel.OwnerProfileID == owner && rel.Endpoint == endpoint && rel.Name == name {
			cp := rel
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("signing authority %s/%s: %w", endpoint, name, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListSigningAuthorities(_ context.Context, owner string) ([]SigningAuthorityRel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SigningAuthorityRel
	for _, rel := range s.authorities {
		if rel.OwnerProfileID == owner {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (s *InMemoryStore) PrimarySigningAuthority(_ context.Context, owner string) (*SigningAuthorityRel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rel := range s.authorities {
		if rel.OwnerProfileID == owner && rel.Primary {
			cp := rel
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("primary signing authority for %s: %w", owner, sentinel.ErrNotFound)
}

func (s *InMemoryStore) SetPrimarySigningAuthority(_ context.Context, owner, endpoint, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.authorities {
		rel := &s.authorities[i]
		if rel.OwnerProfileID != owner {
			continue
		}
		if rel.Endpoint == endpoint && rel.Name == name {
			rel.Primary = true
			found = true
		} else {
			rel.Primary = false
		}
	}
	if !found {
		return fmt.Errorf("signing authority %s/%s: %w", endpoint, name, sentinel.ErrNotFound)
	}
	return nil
}

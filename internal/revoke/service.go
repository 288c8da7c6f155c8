package revoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"boostnet/internal/claimhook"
	"boostnet/internal/events"
	"boostnet/internal/exchange"
	"boostnet/internal/graph"
	"boostnet/internal/platform/metrics"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/sentinel"
)

// Service revokes issued credentials and reverses exactly the graph side
// effects the claim's hooks applied. Reversal is scoped by hook provenance,
// never by shape: a grant or connection that merely looks like one a hook
// made is left alone.
type Service struct {
	store   graph.Store
	cache   exchange.Store
	emitter *events.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(store graph.Store, cache exchange.Store, emitter *events.Emitter, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, emitter: emitter, metrics: m, logger: logger}
}

func didWebCacheKey(did string) string {
	return "didweb:doc:" + did
}

// Revoke marks the credential revoked and runs the four reversal passes
// concurrently, each scoped to hooks attached to the revoked credential's
// boost. Revoking an already revoked credential is a no-op: the reversal
// already ran.
func (s *Service) Revoke(ctx context.Context, callerProfileID, credentialID string) (*graph.CredentialInstance, error) {
	instance, err := s.store.GetCredentialInstance(ctx, credentialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "credential not found")
	}

	perms, err := s.store.ProfilePermissions(ctx, callerProfileID, instance.BoostID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	if !perms.CanRevoke {
		return nil, dErrors.New(dErrors.CodeForbidden, "insufficient permissions to revoke credential")
	}

	if instance.Revoked {
		return instance, nil
	}

	instance, err = s.store.MarkCredentialRevoked(ctx, credentialID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark credential revoked")
	}

	if err := s.reverse(ctx, instance.BoostID, instance.HolderID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reverse claim side effects")
	}

	s.invalidateDidWebCache(ctx, instance)

	s.metrics.CredentialsRevoked.Inc()
	s.emitter.Emit(ctx, events.Event{
		Type:         events.TypeCredentialRevoked,
		ProfileID:    instance.HolderID,
		BoostID:      instance.BoostID,
		CredentialID: instance.ID,
	})

	s.logger.Info("credential revoked",
		"credential_id", instance.ID,
		"boost_id", instance.BoostID,
		"holder", instance.HolderID,
	)
	return instance, nil
}

// reverse runs the four reversal passes concurrently. Each pass matches
// hooks by (type, claim boost) and deletes only edges carrying that hook's
// provenance for this holder.
func (s *Service) reverse(ctx context.Context, boostID, holderID string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.reverseGrantPermissions(ctx, boostID, holderID) })
	g.Go(func() error { return s.reverseAddAdmin(ctx, boostID, holderID) })
	g.Go(func() error { return s.reverseAutoConnects(ctx, boostID, holderID) })
	g.Go(func() error { return s.pruneConnections(ctx, boostID, holderID) })

	return g.Wait()
}

func (s *Service) reverseGrantPermissions(ctx context.Context, boostID, holderID string) error {
	hooks, err := s.store.MatchClaimHooks(ctx, graph.HookGrantPermissions, boostID)
	if err != nil {
		return fmt.Errorf("match grant-permissions hooks: %w", err)
	}
	for _, hook := range hooks {
		// The role node is unique to this hook, so matching roleId plus
		// provenance removes exactly what the hook granted.
		removed, err := s.store.RemoveRoleGrants(ctx, holderID, hook.TargetBoostID, hook.RoleID, claimhook.GrantedBy(hook.ID))
		if err != nil {
			return fmt.Errorf("remove granted roles for hook %s: %w", hook.ID, err)
		}
		if removed > 0 {
			s.logger.Debug("reversed permission grant",
				"hook_id", hook.ID, "holder", holderID, "removed", removed)
		}
	}
	return nil
}

func (s *Service) reverseAddAdmin(ctx context.Context, boostID, holderID string) error {
	hooks, err := s.store.MatchClaimHooks(ctx, graph.HookAddAdmin, boostID)
	if err != nil {
		return fmt.Errorf("match add-admin hooks: %w", err)
	}
	for _, hook := range hooks {
		if _, err := s.store.RemoveRoleGrants(ctx, holderID, hook.TargetBoostID, graph.RoleAdmin, claimhook.GrantedBy(hook.ID)); err != nil {
			return fmt.Errorf("remove admin grant for hook %s: %w", hook.ID, err)
		}
	}
	return nil
}

func (s *Service) reverseAutoConnects(ctx context.Context, boostID, holderID string) error {
	hooks, err := s.store.MatchClaimHooks(ctx, graph.HookAutoConnect, boostID)
	if err != nil {
		return fmt.Errorf("match auto-connect hooks: %w", err)
	}
	for _, hook := range hooks {
		if _, err := s.store.RemoveAutoConnects(ctx, hook.TargetBoostID, holderID, hook.ID); err != nil {
			return fmt.Errorf("remove auto-connect for hook %s: %w", hook.ID, err)
		}
	}
	return nil
}

func (s *Service) pruneConnections(ctx context.Context, boostID, holderID string) error {
	hooks, err := s.store.MatchClaimHooks(ctx, graph.HookAutoConnect, boostID)
	if err != nil {
		return fmt.Errorf("match auto-connect hooks: %w", err)
	}
	for _, hook := range hooks {
		// Drops only this boost's provenance token; the edge survives while
		// any other source remains.
		if _, err := s.store.PruneConnectionSource(ctx, holderID, graph.BoostSource(hook.TargetBoostID)); err != nil {
			return fmt.Errorf("prune connection source for hook %s: %w", hook.ID, err)
		}
	}
	return nil
}

// invalidateDidWebCache drops cached identity documents for every profile
// whose role graph the reversal may have touched: the holder, the issuer,
// and each profile managing the boost. The document server repopulates keys
// on the next resolution. Failures are logged, never fatal: revocation of
// access must not block on a cache.
func (s *Service) invalidateDidWebCache(ctx context.Context, instance *graph.CredentialInstance) {
	profileIDs := []string{instance.HolderID, instance.IssuerID}
	if managers, err := s.store.ManagingProfiles(ctx, instance.BoostID); err == nil {
		profileIDs = append(profileIDs, managers...)
	} else {
		s.logger.WarnContext(ctx, "failed to list managing profiles",
			"boost_id", instance.BoostID, "error", err)
	}

	seen := make(map[string]bool, len(profileIDs))
	for _, profileID := range profileIDs {
		if seen[profileID] {
			continue
		}
		seen[profileID] = true
		profile, err := s.store.GetProfile(ctx, profileID)
		if err != nil || profile.Did == "" {
			continue
		}
		if err := s.cache.Delete(ctx, didWebCacheKey(profile.Did)); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate did:web cache",
				"did", profile.Did, "error", err)
		}
	}
}

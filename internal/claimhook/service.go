package claimhook

import (
	"context"
	"fmt"
	"log/slog"

	"boostnet/internal/graph"
	dErrors "boostnet/pkg/domain-errors"
)

// GrantedByPrefix tags HAS_ROLE provenance so reversal passes can find
// exactly the grants a hook created.
const GrantedByPrefix = "claimhook:"

// GrantedBy returns the provenance token for grants made by the hook.
func GrantedBy(hookID string) string {
	return GrantedByPrefix + hookID
}

// Service manages claim hooks: side effects attached to a boost that fire
// each time the boost is claimed.
type Service struct {
	store  graph.Store
	logger *slog.Logger
}

func NewService(store graph.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateInput describes a hook to attach. Permissions is read only for
// GRANT_PERMISSIONS hooks.
type CreateInput struct {
	Type          graph.ClaimHookType `json:"type"`
	ClaimBoostID  string              `json:"claimBoostId"`
	TargetBoostID string              `json:"targetBoostId"`
	Permissions   graph.Permissions   `json:"permissions,omitempty"`
}

// Create attaches a hook. The creator must be able to manage permissions on
// both boosts, and a GRANT_PERMISSIONS hook may only grant permissions the
// creator holds on the target. Each GRANT_PERMISSIONS hook materializes its
// own role node so reversal can remove exactly what it granted.
func (s *Service) Create(ctx context.Context, creatorProfileID string, in CreateInput) (*graph.ClaimHook, error) {
	switch in.Type {
	case graph.HookGrantPermissions, graph.HookAddAdmin, graph.HookAutoConnect:
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown claim hook type %q", in.Type))
	}
	if in.ClaimBoostID == "" || in.TargetBoostID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "claimBoostId and targetBoostId are required")
	}

	if _, err := s.store.GetBoost(ctx, in.ClaimBoostID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "claim boost not found")
	}
	if _, err := s.store.GetBoost(ctx, in.TargetBoostID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "target boost not found")
	}

	claimPerms, err := s.store.ProfilePermissions(ctx, creatorProfileID, in.ClaimBoostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	targetPerms, err := s.store.ProfilePermissions(ctx, creatorProfileID, in.TargetBoostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	if !claimPerms.CanManagePermissions || !targetPerms.CanManagePermissions {
		return nil, dErrors.New(dErrors.CodeForbidden, "insufficient permissions to create claim hook")
	}
	if in.Type == graph.HookGrantPermissions && !targetPerms.Includes(in.Permissions) {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot grant permissions you do not hold")
	}

	hook := &graph.ClaimHook{
		Type:          in.Type,
		ClaimBoostID:  in.ClaimBoostID,
		TargetBoostID: in.TargetBoostID,
	}

	if in.Type == graph.HookGrantPermissions {
		role := &graph.Role{
			Name:        "claim-hook-grant",
			Permissions: in.Permissions,
		}
		if err := s.store.CreateRole(ctx, role); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role")
		}
		hook.RoleID = role.ID
	}

	if err := s.store.CreateClaimHook(ctx, hook); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create claim hook")
	}

	s.logger.Info("claim hook created",
		"hook_id", hook.ID,
		"type", string(hook.Type),
		"claim_boost", hook.ClaimBoostID,
		"target_boost", hook.TargetBoostID,
	)
	return hook, nil
}

// List returns the hooks attached to a boost. The caller must be able to
// manage permissions on it.
func (s *Service) List(ctx context.Context, callerProfileID, claimBoostID string) ([]graph.ClaimHook, error) {
	perms, err := s.store.ProfilePermissions(ctx, callerProfileID, claimBoostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "boost not found")
	}
	if !perms.CanManagePermissions {
		return nil, dErrors.New(dErrors.CodeForbidden, "insufficient permissions to list claim hooks")
	}
	hooks, err := s.store.ListClaimHooks(ctx, claimBoostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claim hooks")
	}
	return hooks, nil
}

// Delete removes a hook. Deleting a hook stops future side effects but never
// retracts those already applied; reversal is the revocation flow's job.
func (s *Service) Delete(ctx context.Context, callerProfileID, hookID string) error {
	hook, err := s.store.GetClaimHook(ctx, hookID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "claim hook not found")
	}
	perms, err := s.store.ProfilePermissions(ctx, callerProfileID, hook.ClaimBoostID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check permissions")
	}
	if !perms.CanManagePermissions {
		return dErrors.New(dErrors.CodeForbidden, "insufficient permissions to delete claim hook")
	}
	if err := s.store.DeleteClaimHook(ctx, hookID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete claim hook")
	}
	return nil
}

// ApplyOnClaim fires every hook attached to the claimed boost for the
// recipient. Hook application is best effort: a failing hook is logged and
// skipped so side effects never block or lose a claim.
func (s *Service) ApplyOnClaim(ctx context.Context, claimBoostID, recipientProfileID string) {
	hooks, err := s.store.ListClaimHooks(ctx, claimBoostID)
	if err != nil {
		s.logger.Error("failed to load claim hooks", "boost_id", claimBoostID, "error", err)
		return
	}
	for _, hook := range hooks {
		if err := s.apply(ctx, hook, recipientProfileID); err != nil {
			s.logger.Error("claim hook application failed",
				"hook_id", hook.ID,
				"type", string(hook.Type),
				"profile_id", recipientProfileID,
				"error", err,
			)
		}
	}
}

func (s *Service) apply(ctx context.Context, hook graph.ClaimHook, recipientProfileID string) error {
	switch hook.Type {
	case graph.HookGrantPermissions:
		return s.store.GrantRole(ctx, &graph.HasRole{
			ProfileID: recipientProfileID,
			BoostID:   hook.TargetBoostID,
			RoleID:    hook.RoleID,
			GrantedBy: GrantedBy(hook.ID),
		})

	case graph.HookAddAdmin:
		if err := s.ensureAdminRole(ctx); err != nil {
			return err
		}
		return s.store.GrantRole(ctx, &graph.HasRole{
			ProfileID: recipientProfileID,
			BoostID:   hook.TargetBoostID,
			RoleID:    graph.RoleAdmin,
			GrantedBy: GrantedBy(hook.ID),
		})

	case graph.HookAutoConnect:
		target, err := s.store.GetBoost(ctx, hook.TargetBoostID)
		if err != nil {
			return fmt.Errorf("load target boost: %w", err)
		}
		if target.OwnerProfileID == recipientProfileID {
			// Claiming your own boost never self-connects.
			return nil
		}
		if err := s.store.CreateAutoConnect(ctx, &graph.AutoConnectRecipient{
			BoostID:   hook.TargetBoostID,
			ProfileID: recipientProfileID,
			HookID:    hook.ID,
		}); err != nil {
			return fmt.Errorf("record auto-connect: %w", err)
		}
		if err := s.store.AddConnectionSource(ctx, recipientProfileID, target.OwnerProfileID,
			graph.BoostSource(hook.TargetBoostID)); err != nil {
			return fmt.Errorf("connect profiles: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown claim hook type %q", hook.Type)
	}
}

// ensureAdminRole lazily materializes the shared admin role granted by
// ADD_ADMIN hooks.
func (s *Service) ensureAdminRole(ctx context.Context) error {
	if _, err := s.store.GetRole(ctx, graph.RoleAdmin); err == nil {
		return nil
	}
	return s.store.CreateRole(ctx, &graph.Role{
		ID:          graph.RoleAdmin,
		Name:        graph.RoleAdmin,
		Permissions: graph.AdminPermissions(),
	})
}

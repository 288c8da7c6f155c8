package claimlink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"boostnet/internal/exchange"
	dErrors "boostnet/pkg/domain-errors"
	"boostnet/pkg/platform/sentinel"
)

// SigningAuthorityRef names the delegated signer a claim link is bound to.
type SigningAuthorityRef struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
}

// record is the stored claim-link payload.
type record struct {
	SigningAuthority SigningAuthorityRef `json:"signingAuthority"`
	TotalUses        int                 `json:"totalUses"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// Options bound a claim link's lifetime and redemption count. Zero values
// take the configured defaults.
type Options struct {
	TTL       time.Duration
	TotalUses int
}

// Manager issues, validates, and consumes claim links on top of the
// exchange store. Redemption atomicity comes from the store's single-command
// decrement, never from locking here.
type Manager struct {
	store            exchange.Store
	logger           *slog.Logger
	defaultTTL       time.Duration
	defaultTotalUses int
	collisionRetries int
}

func NewManager(store exchange.Store, logger *slog.Logger, defaultTTL time.Duration, defaultTotalUses, collisionRetries int) *Manager {
	if defaultTotalUses <= 0 {
		defaultTotalUses = 1
	}
	if collisionRetries <= 0 {
		collisionRetries = 3
	}
	return &Manager{
		store:            store,
		logger:           logger,
		defaultTTL:       defaultTTL,
		defaultTotalUses: defaultTotalUses,
		collisionRetries: collisionRetries,
	}
}

func infoKey(boostID, challenge string) string {
	return "claimlink:info:" + boostID + ":" + challenge
}

func usesKey(boostID, challenge string) string {
	return "claimlink:uses:" + boostID + ":" + challenge
}

// NewChallenge returns a fresh 128-bit random challenge, base64url encoded.
func NewChallenge() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue stores a new claim link for the boost and returns its challenge.
// A challenge is unique per boost at any instant; collisions (vanishingly
// rare with 128-bit challenges) are retried with a fresh challenge.
func (m *Manager) Issue(ctx context.Context, boostID string, ref SigningAuthorityRef, opts Options) (string, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	totalUses := opts.TotalUses
	if totalUses <= 0 {
		totalUses = m.defaultTotalUses
	}

	payload, err := json.Marshal(record{
		SigningAuthority: ref,
		TotalUses:        totalUses,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode claim link")
	}

	for attempt := 0; attempt < m.collisionRetries; attempt++ {
		challenge, err := NewChallenge()
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate challenge")
		}

		ok, err := m.store.SetIfAbsent(ctx, infoKey(boostID, challenge), string(payload), ttl)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "store claim link")
		}
		if !ok {
			m.logger.WarnContext(ctx, "claim link challenge collision, retrying",
				"boost_id", boostID)
			continue
		}

		if _, err := m.store.SetIfAbsent(ctx, usesKey(boostID, challenge), strconv.Itoa(totalUses), ttl); err != nil {
			// Roll back the info key so a half-created link never validates.
			_ = m.store.Delete(ctx, infoKey(boostID, challenge))
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "store claim link uses")
		}
		return challenge, nil
	}
	return "", dErrors.New(dErrors.CodeConflict, "could not allocate a unique challenge")
}

// IssueWithChallenge stores a claim link under a caller-provided challenge.
// The VC-API exchange setup path uses this when the challenge is minted
// ahead of link creation. Fails CONFLICT when the challenge is taken.
func (m *Manager) IssueWithChallenge(ctx context.Context, boostID, challenge string, ref SigningAuthorityRef, opts Options) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	totalUses := opts.TotalUses
	if totalUses <= 0 {
		totalUses = m.defaultTotalUses
	}

	payload, err := json.Marshal(record{
		SigningAuthority: ref,
		TotalUses:        totalUses,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode claim link")
	}

	ok, err := m.store.SetIfAbsent(ctx, infoKey(boostID, challenge), string(payload), ttl)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store claim link")
	}
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "challenge already in use for this boost")
	}
	if _, err := m.store.SetIfAbsent(ctx, usesKey(boostID, challenge), strconv.Itoa(totalUses), ttl); err != nil {
		_ = m.store.Delete(ctx, infoKey(boostID, challenge))
		return dErrors.Wrap(err, dErrors.CodeInternal, "store claim link uses")
	}
	return nil
}

// Validate looks up a claim link without consuming a use.
//
// Absent and expired links both report not_found: callers cannot tell a link
// that never existed from one that expired, which keeps claim URLs
// unenumerable.
func (m *Manager) Validate(ctx context.Context, boostID, challenge string) (SigningAuthorityRef, error) {
	raw, err := m.store.Get(ctx, infoKey(boostID, challenge))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return SigningAuthorityRef{}, dErrors.New(dErrors.CodeNotFound, "claim link not found")
		}
		return SigningAuthorityRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "read claim link")
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return SigningAuthorityRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode claim link")
	}
	return rec.SigningAuthority, nil
}

// Consume atomically spends one use of the claim link. Exactly one of N
// concurrent callers wins the final use; exhausted and absent links are both
// reported as not_found (deliberate anti-enumeration, see Validate).
func (m *Manager) Consume(ctx context.Context, boostID, challenge string) (SigningAuthorityRef, error) {
	ref, err := m.Validate(ctx, boostID, challenge)
	if err != nil {
		return SigningAuthorityRef{}, err
	}

	remaining, err := m.store.Decrement(ctx, usesKey(boostID, challenge))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return SigningAuthorityRef{}, dErrors.New(dErrors.CodeNotFound, "claim link not found")
		}
		return SigningAuthorityRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume claim link")
	}
	if remaining < 0 {
		// Exhausted. Reported identically to absent so redeemed links are
		// not distinguishable from dead ones.
		return SigningAuthorityRef{}, dErrors.Wrap(sentinel.ErrAlreadyUsed, dErrors.CodeNotFound, "claim link not found")
	}
	if remaining == 0 {
		// Last use spent: drop both keys so later reads report not_found
		// rather than stale data. Best effort, TTL is the backstop.
		if err := m.store.Delete(ctx, infoKey(boostID, challenge)); err != nil {
			m.logger.WarnContext(ctx, "failed to delete exhausted claim link", "error", err)
		}
		if err := m.store.Delete(ctx, usesKey(boostID, challenge)); err != nil {
			m.logger.WarnContext(ctx, "failed to delete exhausted claim link uses", "error", err)
		}
	}
	return ref, nil
}

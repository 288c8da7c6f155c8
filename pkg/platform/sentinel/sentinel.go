package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the exchange cache
// return these (optionally wrapped) so services can translate them into
// domain errors at the boundary.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store (or its TTL elapsed)
// - ErrConflict: key already present when exclusive creation was requested
// - ErrExpired: record exists but is past its expiry
// - ErrAlreadyUsed: single-use resource (claim link, exchange challenge,
//   inbox claim token) already consumed
// - ErrInvalidState: entity in wrong state for the requested transition
// - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored entities, not validation
// failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: uniqueness constraint hit (e.g. duplicate plot number)
// - ErrInvalidState: entity in the wrong state for the requested transition
// - ErrTerminal: entity already reached a terminal status
// - ErrUnavailable: store temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrTerminal     = errors.New("terminal state")
	ErrUnavailable  = errors.New("unavailable")
)

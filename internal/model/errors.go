package model

import "errors"

// Structural errors abort an operation before any continuity entry is
// written. Policy denials are not errors; they are AdmissionResults with
// Decision == Denied and always produce a recorded entry.
var (
	// ErrNotFound means the relationship identifier is unknown.
	ErrNotFound = errors.New("relationship not found")

	// ErrInvalidState means the operation is illegal for the
	// relationship's current lifecycle state.
	ErrInvalidState = errors.New("invalid relationship state")

	// ErrInvalidBinding means a binding hash or public key is malformed.
	ErrInvalidBinding = errors.New("invalid identity binding")

	// ErrBindingMismatch means a binding hash does not match the
	// public key and declared roles it claims to commit to.
	ErrBindingMismatch = errors.New("identity binding mismatch")

	// ErrInvalidWindow means appointment window data is malformed.
	ErrInvalidWindow = errors.New("invalid appointment window")

	// ErrUnknownLevel means a trust level outside 0-5.
	ErrUnknownLevel = errors.New("unknown trust level")

	// ErrChainIntegrity means a recomputed continuity hash does not match
	// the stored hash. Fatal for trust purposes; never repaired silently.
	ErrChainIntegrity = errors.New("continuity chain integrity violation")
)

// Package common defines shared constants and sentinel errors used across
// client and server layers of Plateful. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrStaleWrite is returned by the local store when a caller mutates a
	// record from an outdated base version. The caller must re-read and
	// retry its mutation.
	ErrStaleWrite = errors.New("stale write: base version mismatch")

	// ErrVersionConflict signals an optimistic-concurrency failure on the
	// server: the asserted version no longer matches the stored one.
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists is returned when creating a record or user whose
	// identifier is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrSyncInProgress is returned when a sync cycle is triggered while
	// another one is still running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

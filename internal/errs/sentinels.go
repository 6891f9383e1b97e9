// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across transport/session/store layers.
var (
	// ErrNotFound indicates the requested entity does not exist on the server.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoBody indicates the server answered without a usable payload.
	ErrNoBody = errors.New("empty response body")

	// ErrStorageUnavailable indicates the durable key-value store cannot be
	// reached; session state degrades to memory-only in that case.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStaleResponse indicates a response superseded by a newer request
	// for the same resource and therefore not applied to store state.
	ErrStaleResponse = errors.New("stale response")

	// ErrRateLimited indicates a login attempt was throttled locally before
	// reaching the server.
	ErrRateLimited = errors.New("rate limited")
)

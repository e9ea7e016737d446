// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or unverifiable caller identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller is sending requests faster than allowed.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates a malformed request (missing fields, bad key format).
	ErrValidation = errors.New("validation")

	// ErrConfiguration indicates the service lacks something it needs to serve the request,
	// e.g. no provider credential at all or an absent master key.
	ErrConfiguration = errors.New("configuration")

	// ErrDecryption indicates ciphertext that fails authentication or cannot be decoded.
	ErrDecryption = errors.New("decryption failed")

	// ErrQuotaExceeded indicates the plan's daily or monthly limit was reached.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUpstream indicates an AI provider call failed.
	ErrUpstream = errors.New("upstream failure")
)

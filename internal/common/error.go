// Package common defines shared constants and sentinel errors used across
// the authkeeper server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth outcomes. Unauthenticated means no usable identity, Forbidden
	// means a valid identity without the required role.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired             = errors.New("token expired")
	ErrTokenCollision           = errors.New("token collision")
	ErrTokenGenerationExhausted = errors.New("token generation exhausted")

	// ErrStoreUnavailable marks a failure of the backing store, as opposed to
	// a negative lookup.
	ErrStoreUnavailable = errors.New("store unavailable")
)

package security

import (
	"errors"
)

// Authentication errors. These map onto the HTTP contract: header problems
// are Unauthorized (401), token verification problems are Forbidden (403).
var (
	ErrMissingAuthHeader   = errors.New("missing authorization header")
	ErrMalformedAuthHeader = errors.New("malformed authorization header")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenInvalid        = errors.New("invalid token")

	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
	ErrSecretNotConfigured     = errors.New("jwt secret not configured")
)

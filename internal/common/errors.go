// Package common defines shared constants and sentinel errors used across
// the server, the upload core and the client. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Upload validation errors. These are rejected before any file is touched.
	ErrInvalidIdentifier  = errors.New("invalid submission identifier")
	ErrInvalidChunk       = errors.New("invalid chunk index")
	ErrChunkCountMismatch = errors.New("chunk count does not match the declared total")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

package sentinel

import "errors"

// Sentinel dependency errors. Stores and clients should return these (optionally
// wrapped) so services can translate them into domain errors exactly once.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrExpired       = errors.New("expired")
	ErrUnavailable   = errors.New("unavailable")
	ErrNotConfigured = errors.New("not configured")
)

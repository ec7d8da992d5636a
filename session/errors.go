package session

import "errors"

var (
	ErrInvalidToken      = errors.New("invalid session token")
	ErrTokenExpired      = errors.New("session token expired")
	ErrSessionNotFound   = errors.New("session not found")
	ErrDuplicateSession  = errors.New("session already exists")
	ErrSecurityRevoked   = errors.New("session revoked after identity mismatch")
	ErrSessionInactive   = errors.New("session is not active")
	ErrStaleVersion      = errors.New("session minted under an older version")
	ErrSessionExpired    = errors.New("session idle for longer than its lifetime")
	ErrStoreUnavailable  = errors.New("session store unavailable")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrUnknownEvent      = errors.New("unknown session event")
	ErrConcurrentUpdate  = errors.New("session changed concurrently")
	ErrInvalidIdentity   = errors.New("identity is required")
)

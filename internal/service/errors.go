package service

import "errors"

// Error taxonomy of the login handshake. Token-state errors are terminal
// for that token: the client restarts with a fresh one, never retries.
var (
	ErrInvalidToken       = errors.New("invalid token format")
	ErrTokenNotFound      = errors.New("invalid or expired token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenAlreadyUsed   = errors.New("token already used")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

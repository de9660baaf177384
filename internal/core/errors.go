package core

import "errors"

// Sentinel errors shared across packages.
var (
	ErrNotFound       = errors.New("not found")
	ErrUserExists     = errors.New("username already taken")
	ErrEmailExists    = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid username or password")
	ErrBadSession     = errors.New("invalid or expired session")
	ErrNoAPIKey       = errors.New("no OpenAI API key configured")
)

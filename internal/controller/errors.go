package controller

import (
	"errors"

	"flowSwap/internal/pool"
)

var (
	ErrUnauthorized       = errors.New("controller: caller is not authorized")
	ErrAlreadyInitialized = errors.New("controller: pool already initialized")
	ErrNotInitialized     = errors.New("controller: pool not initialized")
	ErrInvalidPayload     = errors.New("controller: invalid callback payload")

	// ErrUnsupportedToken is returned for tokens outside the pair.
	ErrUnsupportedToken = pool.ErrUnsupportedToken
)

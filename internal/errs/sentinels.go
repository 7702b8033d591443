// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/cache layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken, like already recorded).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication/authorization or a missing session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary sign-in lock due to repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation indicates input rejected before any gateway round trip.
	ErrValidation = errors.New("validation")

	// ErrEmptyMessage indicates a message consisting only of whitespace.
	ErrEmptyMessage = errors.New("empty message")

	// ErrPasswordMismatch indicates password and its confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrMalformedEvent indicates a change-feed payload that failed boundary validation.
	ErrMalformedEvent = errors.New("malformed change event")

	// ErrClosed indicates use of a torn-down session or subscription.
	ErrClosed = errors.New("closed")
)

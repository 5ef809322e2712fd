package domain

import "errors"

var (
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateIdentity is returned when a phone or secondary id is already registered.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrAuthFailure is returned when phone and secret do not match a user.
	ErrAuthFailure = errors.New("invalid phone or password")
	// ErrNotFound is returned when a referenced user or conversation does not exist.
	ErrNotFound = errors.New("not found")
)

package auth

import "errors"

// Authentication and authorization error types
var (
	ErrMissingCredential  = errors.New("missing bearer credential")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnsupportedSigning = errors.New("unexpected token signing method")
	ErrNotEnrolled        = errors.New("student not enrolled in this class")
	ErrNotSessionOwner    = errors.New("teacher does not own this session")
)

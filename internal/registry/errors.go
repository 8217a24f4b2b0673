package registry

import "errors"

// Registry-specific error types
var (
	ErrNilConnection   = errors.New("connection cannot be nil")
	ErrNilIdentity     = errors.New("identity cannot be nil")
	ErrAlreadyAdmitted = errors.New("connection already admitted to a room")
)

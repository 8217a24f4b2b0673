package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSessionNotFound      = errors.New("session not found")
	ErrUnauthorized         = errors.New("unauthorized access")
	ErrUserNotFound         = errors.New("user not found")
	ErrClassNotFound        = errors.New("class not found")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrAlreadyEnrolled      = errors.New("student already enrolled in class")
)

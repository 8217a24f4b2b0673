package types

import "errors"

// Validation error types shared across components
var (
	ErrInvalidSessionTitle = errors.New("session title must be 1-200 characters")
	ErrInvalidSessionType  = errors.New("invalid session type: must be 'live', 'quiz' or 'whiteboard'")
	ErrInvalidClassName    = errors.New("class name must be 1-200 characters")
	ErrMessageTooLarge     = errors.New("chat message exceeds 4096 bytes")
	ErrEmptyMessage        = errors.New("chat message cannot be empty")
)

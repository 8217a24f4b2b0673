package websocket

import "errors"

// Package-specific error definitions
var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrWriteTimeout     = errors.New("write operation timed out")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

package router

import "errors"

// Router-specific error types
var (
	// ErrMalformedEvent marks a well-formed JSON object missing a field the
	// event type requires; the lifecycle controller treats it as a protocol
	// violation and terminates the connection
	ErrMalformedEvent = errors.New("malformed event payload")
)

package interfaces

// Connection represents a live participant connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and the hub;
// registry and router only ever see this interface
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Thread-safety requirement documented at interface
	// level so all implementations use a single-writer pattern
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// CloseWithCode closes the connection with a distinct close code and reason
	// FUNCTIONAL DISCOVERY: Close codes distinguish auth failure, missing
	// session, denied access and internal errors for client observability
	CloseWithCode(code int, reason string) error

	// GetUserID returns the connected user's ID
	GetUserID() int64

	// GetUserName returns the connected user's display name
	GetUserName() string

	// GetRole returns the user's role ("teacher" or "student")
	GetRole() string

	// GetSessionID returns the session this connection is attached to
	// ARCHITECTURAL DISCOVERY: Session scoping at connection level enables
	// efficient routing and session-based cleanup
	GetSessionID() int64
}

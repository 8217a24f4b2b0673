package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classhub/pkg/types"
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Interface boundary maintained - no business logic in connection wrapper
type Connection struct {
	conn          *websocket.Conn
	writeCh       chan []byte // FUNCTIONAL DISCOVERY: 100 buffer prevents blocking in classroom scenarios
	userID        int64       // Set after authentication
	userName      string      // Set after authentication
	role          string      // Set after authentication
	sessionID     int64       // Set after authentication
	authenticated bool
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex // Protect auth fields
}

// NewConnection creates a new WebSocket connection wrapper
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	// Start the single writer goroutine
	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// TECHNICAL DISCOVERY: writeCh is never closed - concurrent WriteJSON callers
// send on it, and closing a channel with live senders panics. Every exit path
// cancels the context instead, which fails pending and future sends cleanly.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			// FUNCTIONAL DISCOVERY: 5-second timeout balances responsiveness vs classroom network stability
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON implementation with timeout and error handling
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ReadJSON reads one inbound event from the socket
func (c *Connection) ReadJSON(v interface{}) error {
	return c.conn.ReadJSON(v)
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// CloseWithCode sends a close frame with an application close code before
// closing the socket, so clients can distinguish auth failures from missing
// sessions.
// TECHNICAL DISCOVERY: WriteControl is safe to call concurrently with the
// writer goroutine, so no channel round-trip is needed for close frames
func (c *Connection) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)

		err = c.conn.Close()
	})
	return err
}

// SetCredentials records the authenticated identity and session binding
func (c *Connection) SetCredentials(identity *types.UserIdentity, sessionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userID = identity.UserID
	c.userName = identity.Name
	c.role = identity.Role
	c.sessionID = sessionID
	c.authenticated = true
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) GetUserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetUserName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userName
}

func (c *Connection) GetRole() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetSessionID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

package websocket

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"classhub/internal/config"
	"classhub/internal/hub"
	"classhub/internal/router"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// WebSocket upgrader with production-ready settings
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across different handler instances
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins for development
		// Production deployments should implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler manages the WebSocket connection lifecycle: authenticate, authorize,
// admit, serve, clean up exactly once
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic -
// identity and access checks live behind interfaces, membership behind the hub
type Handler struct {
	hub        *hub.Hub
	resolver   interfaces.IdentityResolver
	authorizer interfaces.AccessAuthorizer
	wsConfig   *config.WebSocketConfig
}

// NewHandler creates a new WebSocket handler with dependency injection
// FUNCTIONAL DISCOVERY: Constructor pattern enables proper dependency management
// and facilitates testing with mock implementations
func NewHandler(h *hub.Hub, resolver interfaces.IdentityResolver, authorizer interfaces.AccessAuthorizer, wsConfig *config.WebSocketConfig) *Handler {
	return &Handler{
		hub:        h,
		resolver:   resolver,
		authorizer: authorizer,
		wsConfig:   wsConfig,
	}
}

// HandleWebSocket accepts a connection request, runs the admission pipeline
// and serves the connection until it drops.
// FUNCTIONAL DISCOVERY: The socket is upgraded before credential checks so
// rejections arrive as WebSocket close codes the client can distinguish,
// not opaque HTTP errors
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(r.PathValue("sessionId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return
	}

	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(rawConn)

	// Stage 1: authenticate the presented credential
	identity, err := h.resolver.ResolveIdentity(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		log.Printf("Authentication failed for session %d: %v", sessionID, err)
		_ = conn.CloseWithCode(types.CloseAuthFailed, "Authentication failed")
		return
	}

	// Stage 2: authorize against the requested session
	// FUNCTIONAL DISCOVERY: Distinct close codes for missing session vs
	// denied access let clients show the right error without guessing
	if err := h.authorizer.Authorize(r.Context(), identity, sessionID); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			log.Printf("Session %d not found for user %d", sessionID, identity.UserID)
			_ = conn.CloseWithCode(types.CloseSessionNotFound, "Session not found or ended")
		case errors.Is(err, interfaces.ErrUnauthorized):
			log.Printf("User %d not authorized for session %d: %v", identity.UserID, sessionID, err)
			_ = conn.CloseWithCode(types.CloseNotAuthorized, "Not authorized for this session")
		default:
			log.Printf("Authorization check failed for session %d: %v", sessionID, err)
			_ = conn.CloseWithCode(types.CloseInternalError, "Internal error")
		}
		return
	}

	conn.SetCredentials(identity, sessionID)

	// Stage 3: admit into the session room
	if err := h.hub.Join(conn, identity, sessionID); err != nil {
		log.Printf("Failed to admit user %d into session %d: %v", identity.UserID, sessionID, err)
		_ = conn.CloseWithCode(types.CloseInternalError, "Internal error")
		return
	}

	// Stage 4: serve until the connection drops, then clean up exactly once
	go h.serveConnection(conn, identity, sessionID)
}

// serveConnection runs the read loop with heartbeat monitoring
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles both heartbeat
// and message reading to prevent goroutine proliferation and resource leaks
func (h *Handler) serveConnection(conn *Connection, identity *types.UserIdentity, sessionID int64) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Cleanup runs exactly once regardless of how
		// the read loop exits - eviction is idempotent and close is guarded
		// by closeOnce
		h.hub.Leave(conn, identity, sessionID)
		_ = conn.Close()
	}()

	// TECHNICAL DISCOVERY: Read deadline refreshed on every pong provides
	// reliable connection health monitoring for classroom environments
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout))
	})

	ticker := time.NewTicker(h.wsConfig.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.wsConfig.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		var event types.Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %d: %v", identity.UserID, err)
			}
			// FUNCTIONAL DISCOVERY: An expired read deadline means the peer
			// went silent - that is a transport closure, not a protocol
			// violation, so no error close code is sent
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("Connection for user %d timed out", identity.UserID)
				return
			}
			// FUNCTIONAL DISCOVERY: Frames that are not JSON objects count as
			// protocol violations, matching the malformed event path below
			if _, closed := err.(*websocket.CloseError); !closed && conn.ctx.Err() == nil {
				_ = conn.CloseWithCode(types.CloseInternalError, "Malformed message")
			}
			return
		}

		if err := h.hub.HandleEvent(sessionID, identity, event); err != nil {
			log.Printf("Terminating connection for user %d: %v", identity.UserID, err)
			_ = conn.CloseWithCode(types.CloseInternalError, "Malformed message")
			return
		}
	}
}

// cleanupLoop periodically prunes idle rate limiter state
func (h *Handler) cleanupLoop(ctx context.Context, rt *router.Router) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rt.Limiter().Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// StartMaintenance launches background maintenance for the handler's router
func (h *Handler) StartMaintenance(ctx context.Context, rt *router.Router) {
	go h.cleanupLoop(ctx, rt)
}

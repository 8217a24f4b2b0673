package router

import (
	"context"
	"log"
	"time"

	"classhub/internal/registry"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// sinkTimeout bounds fire-and-forget persistence calls
const sinkTimeout = 5 * time.Second

// Router classifies inbound events and dispatches them to one target
// connection (signaling) or to every connection in a session (chat,
// whiteboard, roster updates)
// ARCHITECTURAL DISCOVERY: Pure routing logic without membership management
// or transport handling; the registry is consulted only through snapshot reads
type Router struct {
	registry *registry.Registry
	sink     interfaces.EventSink // Optional persistence hooks, may be nil
	limiter  *RateLimiter
}

// NewRouter creates a new message router
// FUNCTIONAL DISCOVERY: Dependency injection enables testing with mock
// connections and a nil sink
func NewRouter(reg *registry.Registry, sink interfaces.EventSink) *Router {
	return &Router{
		registry: reg,
		sink:     sink,
		limiter:  NewRateLimiter(),
	}
}

// Route dispatches one inbound event from a session participant.
// Unknown event types are ignored for forward compatibility; a non-nil error
// means the event was a protocol violation and the connection must close.
func (r *Router) Route(sessionID int64, sender *types.UserIdentity, event types.Event) error {
	switch event.Type() {
	case types.EventTypeOffer, types.EventTypeAnswer, types.EventTypeICECandidate:
		r.routeSignaling(sessionID, sender, event)
		return nil

	case types.EventTypeChatMessage:
		return r.routeChat(sessionID, sender, event)

	case types.EventTypeWhiteboardDraw:
		return r.routeWhiteboardDraw(sessionID, sender, event)

	case types.EventTypeWhiteboardClear:
		r.Broadcast(sessionID, &types.WhiteboardClearEvent{Type: types.EventTypeWhiteboardClear}, nil)
		return nil

	case types.EventTypeJoin:
		// Join is handled at admission; the explicit event is a no-op
		return nil

	case types.EventTypeUserJoined, types.EventTypeUserLeft, types.EventTypeParticipantsList:
		// FUNCTIONAL DISCOVERY: Roster events are server-generated only; a
		// client sending one is dropped without terminating the connection
		log.Printf("Dropped client-sent roster event %q from user %d", event.Type(), sender.UserID)
		return nil

	default:
		// Unrecognized types are ignored, not errors (forward compatibility)
		return nil
	}
}

// routeSignaling forwards a WebRTC signaling event to its target connection
// FUNCTIONAL DISCOVERY: A missing or departed target is silently dropped -
// the peer may have already left and the sender gets no error
func (r *Router) routeSignaling(sessionID int64, sender *types.UserIdentity, event types.Event) {
	targetUserID, ok := event.Int64Field("targetUserId")
	if !ok {
		return
	}

	target, found := r.registry.FindConnectionByUser(sessionID, targetUserID)
	if !found {
		return
	}

	// Forward verbatim with the sender injected so the peer knows who to
	// answer
	event["fromUserId"] = sender.UserID

	if err := target.WriteJSON(event); err != nil {
		r.reportFailure(target, err)
	}
}

// routeChat wraps and broadcasts a chat message to the whole session,
// including the sender
func (r *Router) routeChat(sessionID int64, sender *types.UserIdentity, event types.Event) error {
	text, ok := event.StringField("message")
	if !ok {
		return ErrMalformedEvent
	}

	if err := types.ValidateChatText(text); err != nil {
		// Oversized or empty messages are dropped, not protocol violations
		log.Printf("Dropped chat message from user %d: %v", sender.UserID, err)
		return nil
	}

	if !r.limiter.Allow(sender.UserID) {
		log.Printf("Rate limit exceeded for user %d in session %d", sender.UserID, sessionID)
		return nil
	}

	timestamp, ok := event.StringField("timestamp")
	if !ok || timestamp == "" {
		timestamp = time.Now().Format(time.RFC3339)
	}

	broadcast := &types.ChatBroadcast{
		Type:      types.EventTypeChatMessage,
		UserID:    sender.UserID,
		UserName:  sender.Name,
		Message:   text,
		Timestamp: timestamp,
	}
	r.Broadcast(sessionID, broadcast, nil)

	// ARCHITECTURAL DISCOVERY: Persistence is fire-and-forget; a sink failure
	// must never block or break live fan-out
	if r.sink != nil {
		parsed, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			parsed = time.Now()
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := r.sink.OnChatMessage(ctx, sessionID, sender.UserID, text, parsed); err != nil {
				log.Printf("Chat persistence failed for session %d: %v", sessionID, err)
			}
		}()
	}

	return nil
}

// routeWhiteboardDraw broadcasts a whiteboard stroke with defaulted style
// fields
func (r *Router) routeWhiteboardDraw(sessionID int64, sender *types.UserIdentity, event types.Event) error {
	// FUNCTIONAL DISCOVERY: Coordinates are required; a draw event without
	// them is a protocol violation, matching the chat message contract
	for _, key := range []string{"x0", "y0", "x1", "y1"} {
		if _, present := event[key]; !present {
			return ErrMalformedEvent
		}
	}

	if !r.limiter.Allow(sender.UserID) {
		log.Printf("Rate limit exceeded for user %d in session %d", sender.UserID, sessionID)
		return nil
	}

	color, ok := event.StringField("color")
	if !ok || color == "" {
		color = types.DefaultStrokeColor
	}
	width, present := event["width"]
	if !present || width == nil {
		width = types.DefaultStrokeWidth
	}

	broadcast := &types.WhiteboardDrawEvent{
		Type:  types.EventTypeWhiteboardDraw,
		X0:    event["x0"],
		Y0:    event["y0"],
		X1:    event["x1"],
		Y1:    event["y1"],
		Color: color,
		Width: width,
	}
	r.Broadcast(sessionID, broadcast, nil)

	if r.sink != nil {
		payload := map[string]interface{}{
			"type":  types.EventTypeWhiteboardDraw,
			"x0":    broadcast.X0,
			"y0":    broadcast.Y0,
			"x1":    broadcast.X1,
			"y1":    broadcast.Y1,
			"color": broadcast.Color,
			"width": broadcast.Width,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := r.sink.OnWhiteboardEvent(ctx, sessionID, payload); err != nil {
				log.Printf("Whiteboard persistence failed for session %d: %v", sessionID, err)
			}
		}()
	}

	return nil
}

// Broadcast delivers a payload to every connection in a session except the
// excluded one.
// FUNCTIONAL DISCOVERY: Delivery is best-effort per recipient - one failed
// send never aborts delivery to the rest, and the failed connection is
// closed so its own lifecycle controller evicts it
func (r *Router) Broadcast(sessionID int64, payload interface{}, exclude interfaces.Connection) {
	r.Deliver(payload, r.registry.ConnectionsInRoom(sessionID), exclude)
}

// Deliver fans a payload out to a fixed connection set.
// The hub calls this from registry announce callbacks that hold the room
// lock, so Deliver must never consult the registry - sends only enqueue onto
// per-connection write channels and failures close the transport locally.
func (r *Router) Deliver(payload interface{}, conns []interfaces.Connection, exclude interfaces.Connection) {
	for _, conn := range conns {
		if conn == exclude {
			continue
		}
		if err := conn.WriteJSON(payload); err != nil {
			r.reportFailure(conn, err)
		}
	}
}

// SendTo delivers a payload to a single connection
func (r *Router) SendTo(conn interfaces.Connection, payload interface{}) {
	if err := conn.WriteJSON(payload); err != nil {
		r.reportFailure(conn, err)
	}
}

// Limiter exposes the rate limiter for periodic cleanup
func (r *Router) Limiter() *RateLimiter {
	return r.limiter
}

// reportFailure closes a connection whose send failed
// ARCHITECTURAL DISCOVERY: Closing the transport wakes the connection's own
// read loop, which runs the one-shot eviction path; the router never mutates
// registry state directly
func (r *Router) reportFailure(conn interfaces.Connection, err error) {
	log.Printf("Failed to deliver message to user %d: %v", conn.GetUserID(), err)
	_ = conn.Close()
}

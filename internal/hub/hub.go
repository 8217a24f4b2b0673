package hub

import (
	"log"

	"classhub/internal/registry"
	"classhub/internal/router"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Hub orchestrates session membership changes and the roster broadcasts they
// trigger. It owns no goroutines and no locks of its own; all serialization
// happens inside the per-room registry state.
// ARCHITECTURAL DISCOVERY: Keeping the hub passive means two sessions never
// contend on a shared dispatch loop - each room's admissions and evictions
// serialize independently
type Hub struct {
	registry *registry.Registry
	router   *router.Router
}

// NewHub creates a new hub over a registry and router
func NewHub(reg *registry.Registry, rt *router.Router) *Hub {
	return &Hub{
		registry: reg,
		router:   rt,
	}
}

// Join admits an authenticated connection into a session room and announces
// the arrival.
// FUNCTIONAL DISCOVERY: user_joined goes to the existing participants only,
// while the fresh participants_list goes to everyone including the newcomer -
// the newcomer learns the full roster, the room learns the delta
// TECHNICAL DISCOVERY: The announcements are emitted inside the registry's
// announce callback, under the room's serialization, so every observer sees
// roster snapshots in the single order the room mutated in. Broadcasting
// after Admit returns would let two concurrent joins cross their snapshots.
func (h *Hub) Join(conn interfaces.Connection, identity *types.UserIdentity, sessionID int64) error {
	_, err := h.registry.Admit(sessionID, conn, identity, func(roster []types.Participant, conns []interfaces.Connection) {
		h.router.Deliver(types.NewUserJoined(identity), conns, conn)
		h.router.Deliver(types.NewParticipantsList(roster), conns, nil)
	})
	if err != nil {
		return err
	}

	log.Printf("User %d (%s) joined session %d", identity.UserID, identity.Name, sessionID)
	return nil
}

// Leave removes a connection from its session room and announces the
// departure to whoever remains. Safe to call for connections that were never
// admitted or were already evicted.
func (h *Hub) Leave(conn interfaces.Connection, identity *types.UserIdentity, sessionID int64) {
	_, roomRemains := h.registry.Evict(sessionID, conn, func(roster []types.Participant, conns []interfaces.Connection) {
		// FUNCTIONAL DISCOVERY: A user with a second live connection stays on
		// the roster, so user_left fires only when their last connection
		// departs
		if !rosterContains(roster, identity.UserID) {
			h.router.Deliver(types.NewUserLeft(identity), conns, nil)
		}
		h.router.Deliver(types.NewParticipantsList(roster), conns, nil)
	})
	if !roomRemains {
		// Room is empty and gone; nobody is left to notify
		log.Printf("User %d left session %d (room closed)", identity.UserID, sessionID)
		return
	}

	log.Printf("User %d left session %d", identity.UserID, sessionID)
}

// HandleEvent routes one inbound event from an admitted participant
func (h *Hub) HandleEvent(sessionID int64, sender *types.UserIdentity, event types.Event) error {
	return h.router.Route(sessionID, sender, event)
}

func rosterContains(roster []types.Participant, userID int64) bool {
	for _, p := range roster {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

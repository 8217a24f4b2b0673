package registry

import (
	"sync"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Registry maps session IDs to rooms of live connections with thread-safe
// operations
// ARCHITECTURAL DISCOVERY: Pure membership tracking without business logic;
// broadcast decisions stay in the router, lifecycle decisions in the handler
type Registry struct {
	mu    sync.RWMutex // Guards the rooms map only
	rooms map[int64]*room
}

// room holds the live state of one session
// FUNCTIONAL DISCOVERY: Per-room mutex serializes membership mutation for a
// single session without making independent classrooms contend
type room struct {
	mu          sync.Mutex
	connections map[interfaces.Connection]types.UserIdentity
	roster      []types.Participant // Ordered by first admission
	closed      bool                // Set when the room is removed from the registry
}

// NewRegistry creates a new session registry
// FUNCTIONAL DISCOVERY: Initialize the map to prevent nil access during
// concurrent operations
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[int64]*room),
	}
}

// Admit adds a connection to a session's room, creating the room lazily,
// and returns the resulting roster snapshot.
// A user joining with a second connection reuses the existing roster entry.
// Admitting the same connection twice is a programming error.
// A non-nil announce runs with the room lock still held, receiving the roster
// and connection snapshots for this admission.
// TECHNICAL DISCOVERY: Roster broadcasts emitted after the lock is released
// can cross - two concurrent joins may enqueue their snapshots to the same
// observer in inverted order. Announcing under the lock keeps the snapshots
// every observer sees consistent with the room's single mutation order.
func (r *Registry) Admit(sessionID int64, conn interfaces.Connection, identity *types.UserIdentity, announce func(roster []types.Participant, conns []interfaces.Connection)) ([]types.Participant, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}
	if identity == nil {
		return nil, ErrNilIdentity
	}

	for {
		r.mu.Lock()
		rm, exists := r.rooms[sessionID]
		if !exists {
			rm = &room{connections: make(map[interfaces.Connection]types.UserIdentity)}
			r.rooms[sessionID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.closed {
			// TECHNICAL DISCOVERY: The room was deleted between the map lookup
			// and acquiring its lock (last member left); retry against a fresh
			// room rather than admitting into a dangling one
			rm.mu.Unlock()
			continue
		}

		if _, present := rm.connections[conn]; present {
			rm.mu.Unlock()
			return nil, ErrAlreadyAdmitted
		}

		rm.connections[conn] = *identity

		// FUNCTIONAL DISCOVERY: One roster entry per distinct userId even when
		// the same user holds multiple live connections
		if !rm.hasParticipant(identity.UserID) {
			rm.roster = append(rm.roster, types.Participant{
				UserID:   identity.UserID,
				UserName: identity.Name,
				Role:     identity.Role,
			})
		}

		snapshot := rm.rosterSnapshot()
		if announce != nil {
			announce(snapshot, rm.connectionSnapshot())
		}
		rm.mu.Unlock()
		return snapshot, nil
	}
}

// Evict removes a connection from a session's room. The roster entry for the
// connection's user is removed only when no other connection for that user
// remains. The returned snapshot is nil (ok false) when the room no longer
// exists afterwards - no further broadcast is needed.
// FUNCTIONAL DISCOVERY: Idempotent - evicting an untracked connection is a
// no-op so racing cleanup paths never corrupt other rooms
// A non-nil announce runs with the room lock still held when the room
// survives the eviction, mirroring the Admit ordering guarantee.
func (r *Registry) Evict(sessionID int64, conn interfaces.Connection, announce func(roster []types.Participant, conns []interfaces.Connection)) ([]types.Participant, bool) {
	if conn == nil {
		return nil, false
	}

	r.mu.RLock()
	rm, exists := r.rooms[sessionID]
	r.mu.RUnlock()
	if !exists {
		return nil, false
	}

	rm.mu.Lock()

	identity, present := rm.connections[conn]
	if !present {
		rm.mu.Unlock()
		return nil, false
	}
	delete(rm.connections, conn)

	// Drop the roster entry only when the user's last connection left
	if !rm.hasConnectionForUser(identity.UserID) {
		kept := rm.roster[:0]
		for _, p := range rm.roster {
			if p.UserID != identity.UserID {
				kept = append(kept, p)
			}
		}
		rm.roster = kept
	}

	if len(rm.connections) == 0 {
		// ARCHITECTURAL DISCOVERY: Rooms exist iff they hold at least one live
		// connection; eager deletion prevents dangling empty rooms
		rm.closed = true
		rm.mu.Unlock()

		r.mu.Lock()
		if r.rooms[sessionID] == rm {
			delete(r.rooms, sessionID)
		}
		r.mu.Unlock()
		return nil, false
	}

	snapshot := rm.rosterSnapshot()
	if announce != nil {
		announce(snapshot, rm.connectionSnapshot())
	}
	rm.mu.Unlock()
	return snapshot, true
}

// ConnectionsInRoom returns a snapshot of all live connections in a session
// FUNCTIONAL DISCOVERY: Snapshot semantics let the router fan out without
// holding room locks; connections evicted mid-iteration just fail their send
func (r *Registry) ConnectionsInRoom(sessionID int64) []interfaces.Connection {
	r.mu.RLock()
	rm, exists := r.rooms[sessionID]
	r.mu.RUnlock()
	if !exists {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	connections := make([]interfaces.Connection, 0, len(rm.connections))
	for conn := range rm.connections {
		connections = append(connections, conn)
	}
	return connections
}

// FindConnectionByUser returns the first live connection for a user in a
// session, used for targeted signaling delivery
// TECHNICAL DISCOVERY: O(participants) scan is acceptable at classroom scale
func (r *Registry) FindConnectionByUser(sessionID, userID int64) (interfaces.Connection, bool) {
	r.mu.RLock()
	rm, exists := r.rooms[sessionID]
	r.mu.RUnlock()
	if !exists {
		return nil, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for conn, identity := range rm.connections {
		if identity.UserID == userID {
			return conn, true
		}
	}
	return nil, false
}

// Roster returns the current roster snapshot for a session
func (r *Registry) Roster(sessionID int64) []types.Participant {
	r.mu.RLock()
	rm, exists := r.rooms[sessionID]
	r.mu.RUnlock()
	if !exists {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.rosterSnapshot()
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, rm := range r.rooms {
		rm.mu.Lock()
		total += len(rm.connections)
		rm.mu.Unlock()
	}

	return map[string]int{
		"total_connections": total,
		"active_rooms":      len(r.rooms),
	}
}

// hasParticipant reports whether the roster already carries a userId.
// Caller must hold the room lock.
func (rm *room) hasParticipant(userID int64) bool {
	for _, p := range rm.roster {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// hasConnectionForUser reports whether any live connection belongs to a user.
// Caller must hold the room lock.
func (rm *room) hasConnectionForUser(userID int64) bool {
	for _, identity := range rm.connections {
		if identity.UserID == userID {
			return true
		}
	}
	return false
}

// rosterSnapshot copies the roster so callers never share the backing array.
// Caller must hold the room lock.
func (rm *room) rosterSnapshot() []types.Participant {
	snapshot := make([]types.Participant, len(rm.roster))
	copy(snapshot, rm.roster)
	return snapshot
}

// connectionSnapshot copies the live connection set for announce callbacks.
// Caller must hold the room lock.
func (rm *room) connectionSnapshot() []interfaces.Connection {
	conns := make([]interfaces.Connection, 0, len(rm.connections))
	for conn := range rm.connections {
		conns = append(conns, conn)
	}
	return conns
}

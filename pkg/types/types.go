package types

import (
	"time"
)

// ARCHITECTURAL DISCOVERY: Event type constants defined exactly as the wire
// protocol names them so routing decisions and client payloads never diverge
const (
	EventTypeOffer           = "offer"
	EventTypeAnswer          = "answer"
	EventTypeICECandidate    = "ice_candidate"
	EventTypeChatMessage     = "chat_message"
	EventTypeWhiteboardDraw  = "whiteboard_draw"
	EventTypeWhiteboardClear = "whiteboard_clear"
	EventTypeJoin            = "join"
)

// Server-generated event types - never accepted from clients
// FUNCTIONAL DISCOVERY: Roster events originate from the hub only; a client
// payload carrying one of these types is treated as unrecognized and dropped
const (
	EventTypeUserJoined       = "user_joined"
	EventTypeUserLeft         = "user_left"
	EventTypeParticipantsList = "participants_list"
)

// Role constants for session participants
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Session type constants
const (
	SessionTypeLive       = "live"
	SessionTypeQuiz       = "quiz"
	SessionTypeWhiteboard = "whiteboard"
)

// WebSocket close codes, one per termination cause
// FUNCTIONAL DISCOVERY: Distinct codes per cause enable client-side handling
// without parsing reason strings
const (
	CloseInternalError   = 4000
	CloseAuthFailed      = 4001
	CloseNotAuthorized   = 4003
	CloseSessionNotFound = 4004
)

// Whiteboard stroke defaults applied when the client omits the fields
const (
	DefaultStrokeColor = "#000000"
	DefaultStrokeWidth = 2
)

// UserIdentity is the authenticated identity bound to a connection
// FUNCTIONAL DISCOVERY: Immutable for the connection's lifetime; supplied
// once at admission and never re-resolved mid-connection
type UserIdentity struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Participant is a roster entry as broadcast to clients
type Participant struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

// Event is an inbound tagged payload
// ARCHITECTURAL DISCOVERY: Raw map representation allows signaling payloads
// (SDP/ICE) to be forwarded verbatim while still supporting typed field access
type Event map[string]interface{}

// Type returns the event's type discriminator, or "" when absent
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Int64Field extracts a numeric field as int64
// TECHNICAL DISCOVERY: encoding/json decodes all numbers to float64, so
// integer fields need explicit conversion before registry lookups
func (e Event) Int64Field(key string) (int64, bool) {
	switch v := e[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// StringField extracts a string field, reporting presence
func (e Event) StringField(key string) (string, bool) {
	s, ok := e[key].(string)
	return s, ok
}

// User represents a registered account
type User struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	HashedPassword string `json:"-"` // Never serialized
	Role           string `json:"role"`
}

// Identity returns the user's identity as bound to live connections
func (u *User) Identity() *UserIdentity {
	return &UserIdentity{UserID: u.ID, Name: u.Name, Role: u.Role}
}

// Class represents a teacher-owned class that students enroll in
type Class struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	TeacherID   int64     `json:"teacherId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Session represents a scheduled collaboration session
// FUNCTIONAL DISCOVERY: Immutable after creation except for end_time; the hub
// only attaches connections to existing sessions, it never creates them
type Session struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	TeacherID   int64      `json:"teacherId"`
	ClassID     *int64     `json:"classId,omitempty"` // nil: standalone session, open to any student
	SessionType string     `json:"sessionType"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// Active reports whether the session is still joinable
func (s *Session) Active() bool {
	return s.EndTime == nil
}

// ChatMessage is a persisted chat message row
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID int64     `json:"sessionId"`
	SenderID  int64     `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Outbound event shapes, server to client

// UserJoinedEvent notifies existing participants about a new arrival
type UserJoinedEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

// UserLeftEvent notifies remaining participants about a departure
type UserLeftEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// ParticipantsListEvent carries the full roster snapshot
// ARCHITECTURAL DISCOVERY: Full-snapshot convergence after every membership
// change is simpler than incremental diffs at classroom scale
type ParticipantsListEvent struct {
	Type         string        `json:"type"`
	Participants []Participant `json:"participants"`
}

// ChatBroadcast is the fan-out shape for chat messages
type ChatBroadcast struct {
	Type      string `json:"type"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// WhiteboardDrawEvent is the fan-out shape for a whiteboard stroke
// TECHNICAL DISCOVERY: Coordinates pass through untyped since clients send
// both integral and fractional pixel values
type WhiteboardDrawEvent struct {
	Type  string      `json:"type"`
	X0    interface{} `json:"x0"`
	Y0    interface{} `json:"y0"`
	X1    interface{} `json:"x1"`
	Y1    interface{} `json:"y1"`
	Color string      `json:"color"`
	Width interface{} `json:"width"`
}

// WhiteboardClearEvent is the fan-out shape for a whiteboard clear
type WhiteboardClearEvent struct {
	Type string `json:"type"`
}

// NewUserJoined builds a user_joined event for an identity
func NewUserJoined(identity *UserIdentity) *UserJoinedEvent {
	return &UserJoinedEvent{
		Type:     EventTypeUserJoined,
		UserID:   identity.UserID,
		UserName: identity.Name,
		Role:     identity.Role,
	}
}

// NewUserLeft builds a user_left event for an identity
func NewUserLeft(identity *UserIdentity) *UserLeftEvent {
	return &UserLeftEvent{
		Type:     EventTypeUserLeft,
		UserID:   identity.UserID,
		UserName: identity.Name,
	}
}

// NewParticipantsList builds a participants_list snapshot event
func NewParticipantsList(roster []Participant) *ParticipantsListEvent {
	return &ParticipantsListEvent{
		Type:         EventTypeParticipantsList,
		Participants: roster,
	}
}

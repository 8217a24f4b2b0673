package interfaces

import (
	"context"
	"time"

	"classhub/pkg/types"
)

// DatabaseManager handles all persistence operations
// ARCHITECTURAL DISCOVERY: Context-first design pattern ensures proper
// cancellation and timeout handling across all database operations
type DatabaseManager interface {
	// User accounts
	CreateUser(ctx context.Context, user *types.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetUserByID(ctx context.Context, userID int64) (*types.User, error)

	// Classes and enrollment
	CreateClass(ctx context.Context, class *types.Class) (int64, error)
	GetClass(ctx context.Context, classID int64) (*types.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID int64) ([]*types.Class, error)
	ListClassesByStudent(ctx context.Context, studentID int64) ([]*types.Class, error)
	EnrollStudent(ctx context.Context, classID, studentID int64) error
	IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error)

	// Sessions
	CreateSession(ctx context.Context, session *types.Session) (int64, error)
	GetSession(ctx context.Context, sessionID int64) (*types.Session, error)
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
	EndSession(ctx context.Context, sessionID int64, endTime time.Time) error

	// Chat history
	GetSessionMessages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error)

	// Operational
	HealthCheck(ctx context.Context) error
	Close() error
}

// EventSink receives live events for optional persistence
// FUNCTIONAL DISCOVERY: Fire-and-forget contract; the router never blocks
// fan-out on sink failures and sink errors are logged, not propagated
type EventSink interface {
	// OnChatMessage records a chat message that was broadcast to a session
	OnChatMessage(ctx context.Context, sessionID, senderID int64, text string, timestamp time.Time) error

	// OnWhiteboardEvent records a whiteboard event that was broadcast
	OnWhiteboardEvent(ctx context.Context, sessionID int64, payload map[string]interface{}) error
}

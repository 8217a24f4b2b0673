package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Authorizer implements the AccessAuthorizer interface against the database
// ARCHITECTURAL DISCOVERY: Ownership and enrollment checks live here, not in
// the hub - the hub only consumes an allow/deny decision
type Authorizer struct {
	db            interfaces.DatabaseManager
	lookupTimeout time.Duration
}

// NewAuthorizer creates a new session access authorizer
func NewAuthorizer(db interfaces.DatabaseManager, lookupTimeout time.Duration) *Authorizer {
	return &Authorizer{
		db:            db,
		lookupTimeout: lookupTimeout,
	}
}

// Authorize decides whether an identity may attach to a session.
// Teachers are authorized iff they own the session. Students are authorized
// iff the session has no class attached or they are enrolled in its class.
// FUNCTIONAL DISCOVERY: Ended sessions report ErrSessionNotFound so late
// joiners see the same close code as joins to never-existing sessions
func (a *Authorizer) Authorize(ctx context.Context, identity *types.UserIdentity, sessionID int64) error {
	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()

	session, err := a.db.GetSession(lookupCtx, sessionID)
	if err != nil {
		if err == interfaces.ErrSessionNotFound {
			return interfaces.ErrSessionNotFound
		}
		// FUNCTIONAL DISCOVERY: Store failures and timeouts are denial, never
		// retried - a broken database must not admit unvetted connections
		log.Printf("Session lookup failed for session %d: %v", sessionID, err)
		return interfaces.ErrSessionNotFound
	}

	if !session.Active() {
		return interfaces.ErrSessionNotFound
	}

	switch identity.Role {
	case types.RoleTeacher:
		if session.TeacherID != identity.UserID {
			return fmt.Errorf("%w: %s", interfaces.ErrUnauthorized, ErrNotSessionOwner)
		}
		return nil

	case types.RoleStudent:
		// Standalone sessions (no class) are open to any authenticated student
		if session.ClassID == nil {
			return nil
		}
		enrolled, err := a.db.IsEnrolled(lookupCtx, *session.ClassID, identity.UserID)
		if err != nil {
			log.Printf("Enrollment lookup failed for user %d class %d: %v", identity.UserID, *session.ClassID, err)
			return fmt.Errorf("%w: %s", interfaces.ErrUnauthorized, ErrNotEnrolled)
		}
		if !enrolled {
			return fmt.Errorf("%w: %s", interfaces.ErrUnauthorized, ErrNotEnrolled)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown role %q", interfaces.ErrUnauthorized, identity.Role)
	}
}

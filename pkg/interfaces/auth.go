package interfaces

import (
	"context"

	"classhub/pkg/types"
)

// IdentityResolver turns a bearer credential into a user identity
// ARCHITECTURAL DISCOVERY: The hub consumes identity resolution as an
// external collaborator; any failure is denial, never retried
type IdentityResolver interface {
	// ResolveIdentity validates the credential and returns the identity.
	// Returns ErrAuthenticationFailed for missing, malformed, expired or
	// unknown credentials.
	ResolveIdentity(ctx context.Context, credential string) (*types.UserIdentity, error)
}

// AccessAuthorizer decides whether an identity may join a session
// FUNCTIONAL DISCOVERY: Session-absent and access-denied are distinguished
// (ErrSessionNotFound vs ErrUnauthorized) because they map to different
// close codes, though both terminate the connection
type AccessAuthorizer interface {
	// Authorize returns nil when the identity may attach to the session.
	// Teachers are authorized iff they own the session; students iff the
	// session has no class or they are enrolled in the session's class.
	Authorize(ctx context.Context, identity *types.UserIdentity, sessionID int64) error
}

// TokenIssuer mints bearer credentials for authenticated users
type TokenIssuer interface {
	// IssueToken returns a signed credential for the given account email
	IssueToken(email string) (string, error)
}

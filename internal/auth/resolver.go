package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Resolver implements the IdentityResolver and TokenIssuer interfaces
// ARCHITECTURAL DISCOVERY: Token verification and account lookup combined in
// one component so a credential always resolves to a live account, not just
// a structurally valid token
type Resolver struct {
	db            interfaces.DatabaseManager
	secret        []byte
	tokenTTL      time.Duration
	lookupTimeout time.Duration
}

// NewResolver creates a new identity resolver
func NewResolver(db interfaces.DatabaseManager, secret string, tokenTTL, lookupTimeout time.Duration) *Resolver {
	return &Resolver{
		db:            db,
		secret:        []byte(secret),
		tokenTTL:      tokenTTL,
		lookupTimeout: lookupTimeout,
	}
}

// ResolveIdentity validates a bearer token and returns the user identity
// FUNCTIONAL DISCOVERY: Every failure mode (missing, malformed, expired,
// unknown subject, store error) maps to ErrAuthenticationFailed - callers
// treat resolution failure as denial, never as retryable
func (r *Resolver) ResolveIdentity(ctx context.Context, credential string) (*types.UserIdentity, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrAuthenticationFailed, ErrMissingCredential)
	}

	email, err := r.parseSubject(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrAuthenticationFailed, err)
	}

	// FUNCTIONAL DISCOVERY: Bounded lookup so a slow database degrades to
	// denial instead of a hung connection handshake
	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	user, err := r.db.GetUserByEmail(lookupCtx, email)
	if err != nil {
		log.Printf("Identity lookup failed for token subject: %v", err)
		return nil, fmt.Errorf("%w: unknown identity", interfaces.ErrAuthenticationFailed)
	}

	return user.Identity(), nil
}

// parseSubject verifies the token signature and extracts the subject claim
func (r *Resolver) parseSubject(credential string) (string, error) {
	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		// TECHNICAL DISCOVERY: Restricting the signing method prevents
		// algorithm-confusion attacks against HMAC verification
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnsupportedSigning
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}

// IssueToken mints a signed HS256 token with the account email as subject
func (r *Resolver) IssueToken(email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": email,
		"iat": now.Unix(),
		"exp": now.Add(r.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// HashPassword hashes a plaintext password for storage
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword compares a plaintext password against a stored hash
func VerifyPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

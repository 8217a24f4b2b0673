package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidRole checks if a role string is one of the two allowed roles
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// IsValidSessionType checks the session type discriminator
func IsValidSessionType(sessionType string) bool {
	switch sessionType {
	case SessionTypeLive, SessionTypeQuiz, SessionTypeWhiteboard:
		return true
	default:
		return false
	}
}

// IsValidEmail checks basic email shape
// FUNCTIONAL DISCOVERY: Lightweight shape check only; deliverability is not
// this system's concern and strict RFC parsing rejects real addresses
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// Validate ensures the session meets all requirements
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func (s *Session) Validate() error {
	if len(s.Title) < 1 || len(s.Title) > 200 {
		return ErrInvalidSessionTitle
	}
	if !IsValidSessionType(s.SessionType) {
		return ErrInvalidSessionType
	}
	return nil
}

// Validate ensures the class meets all requirements
func (c *Class) Validate() error {
	if len(c.Name) < 1 || len(c.Name) > 200 {
		return ErrInvalidClassName
	}
	return nil
}

// ValidateChatText checks a chat message body before fan-out and persistence
// FUNCTIONAL DISCOVERY: 4KB cap bounds per-message memory during classroom
// bursts while leaving room for pasted code snippets
func ValidateChatText(text string) error {
	if len(text) == 0 {
		return ErrEmptyMessage
	}
	if len(text) > 4096 {
		return ErrMessageTooLarge
	}
	return nil
}

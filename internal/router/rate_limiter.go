package router

import (
	"sync"
	"time"
)

// RateLimiter implements per-user rate limiting
// ARCHITECTURAL DISCOVERY: Per-user state tracking with periodic cleanup prevents memory leaks
type RateLimiter struct {
	mu    sync.Mutex
	users map[int64]*userLimit
}

// userLimit tracks rate limiting for a single user
// FUNCTIONAL DISCOVERY: Minute-based window provides an exact 100 events/minute limit
type userLimit struct {
	eventCount  int
	windowStart time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		users: make(map[int64]*userLimit),
	}
}

// Allow checks if a user can send another event (100 per minute limit)
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.users[userID]
	if !exists {
		// FUNCTIONAL DISCOVERY: First event always allowed, initialize tracking
		rl.users[userID] = &userLimit{
			eventCount:  1,
			windowStart: now,
		}
		return true
	}

	// Reset the window when a full minute has elapsed
	if now.Sub(limit.windowStart) >= time.Minute {
		limit.eventCount = 1
		limit.windowStart = now
		return true
	}

	if limit.eventCount >= 100 {
		return false
	}

	limit.eventCount++
	return true
}

// Cleanup removes stale user entries (call periodically)
// ARCHITECTURAL DISCOVERY: Entries idle for 5 minutes (5x the window) carry
// no rate information and are safe to drop
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, limit := range rl.users {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.users, userID)
		}
	}
}

package core

import "time"

// Challenge represents a one-time authentication challenge. A user has at
// most one active challenge; issuing a new one supersedes the previous.
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	UserID    string    // Identity the challenge was issued for
	Bytes     []byte    // Random bytes the client must sign
	CreatedAt time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// Expired reports whether the challenge is no longer valid at now. The
// challenge is valid strictly before ExpiresAt; the expiry instant itself
// is already expired. Callers evaluate this at verification time, not at
// issuance time.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Session represents an authenticated user session
type Session struct {
	ID        string    // Unique session identifier
	UserID    string    // Identity the session belongs to
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session expires
}

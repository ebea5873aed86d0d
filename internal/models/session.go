package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a user's authenticated session as reported by the
// identity provider.
type Session struct {
	SessionID   uuid.UUID
	PrincipalID uuid.UUID

	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	// Optional audit metadata
	UserAgent string
	IPAddress string
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session has expired at now. A zero
// ExpiresAt means the provider did not report an expiry.
func (s *Session) IsExpiredAt(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// SessionEventType is the lifecycle event emitted by the identity provider.
type SessionEventType string

const (
	SessionSignedIn       SessionEventType = "signed_in"
	SessionSignedOut      SessionEventType = "signed_out"
	SessionTokenRefreshed SessionEventType = "token_refreshed"
)

// SessionEvent is a single identity provider notification.
type SessionEvent struct {
	Type       SessionEventType
	Principal  Principal
	OccurredAt time.Time
}

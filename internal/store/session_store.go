package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
)

// Sentinel errors for session store operations
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore records the identity provider sessions seen on the event
// stream.
type SessionStore interface {
	// Save creates the session or refreshes its expiry and last used time.
	Save(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound if it doesn't exist and ErrSessionExpired
	// if it has expired.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// Delete removes a session (sign out).
	// Returns ErrSessionNotFound if it doesn't exist.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteByPrincipal removes every session of a principal and returns
	// how many were removed.
	DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) (int, error)

	// DeleteExpired removes sessions which expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated identity handle handed to the resolver.
// It says nothing about which organization the identity belongs to.
type Principal struct {
	PrincipalID uuid.UUID
	Email       string
	Session     *Session // optional session metadata
}

// Profile is the stored record linking a principal to its organization
// and/or workshop. Either link may be missing.
type Profile struct {
	PrincipalID    uuid.UUID
	OrganizationID *uuid.UUID
	WorkshopID     *uuid.UUID
	FullName       string
	Role           string // "owner", "admin", "mechanic", ...
	Active         bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // Soft delete
}

// IsRevoked returns true if the profile has been soft-deleted.
func (p *Profile) IsRevoked() bool {
	return p.DeletedAt != nil
}

// Association is the directory's answer for a principal.
type Association struct {
	OrganizationID *uuid.UUID
	WorkshopID     *uuid.UUID
}

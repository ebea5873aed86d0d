package models

import (
	"time"

	"github.com/google/uuid"
)

// Workshop is a sub-entity of an organization. A principal linked only to a
// workshop is resolved to the workshop's owning organization.
type Workshop struct {
	WorkshopID     uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

package models

import "github.com/google/uuid"

// TenantIdentity scopes every tenant-scoped read and write.
type TenantIdentity struct {
	OrganizationID uuid.UUID
	WorkshopID     *uuid.UUID
}

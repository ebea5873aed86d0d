package models

import (
	"fmt"
	"time"
)

// ResourceKind is a category of object whose creation is limited by plan.
type ResourceKind string

const (
	ResourceCustomer             ResourceKind = "customer"
	ResourceWorkOrder            ResourceKind = "work_order"
	ResourceInventoryItem        ResourceKind = "inventory_item"
	ResourceUser                 ResourceKind = "user"
	ResourceWhatsAppConversation ResourceKind = "whatsapp_conversation"
)

// ResourceKinds lists every known kind.
var ResourceKinds = []ResourceKind{
	ResourceCustomer,
	ResourceWorkOrder,
	ResourceInventoryItem,
	ResourceUser,
	ResourceWhatsAppConversation,
}

// ParseResourceKind validates s against the known kinds.
func ParseResourceKind(s string) (ResourceKind, error) {
	for _, k := range ResourceKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind: %q", s)
}

// Quota is the maximum count of a resource kind for a tier. A nil Limit
// means unlimited.
type Quota struct {
	Limit *int64
}

// Unlimited reports whether the quota has no limit.
func (q Quota) Unlimited() bool {
	return q.Limit == nil
}

// LimitOf returns a quota capped at n.
func LimitOf(n int64) Quota {
	return Quota{Limit: &n}
}

// FeatureFlags are boolean capability gates attached to a tier.
type FeatureFlags struct {
	WhatsApp bool
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

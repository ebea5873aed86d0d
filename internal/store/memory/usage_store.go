package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
)

type usageRecord struct {
	kind      models.ResourceKind
	createdAt time.Time
	active    bool
}

// UsageStore implements store.UsageStore over records added with Record.
// This implementation is for testing only - data is lost on restart.
type UsageStore struct {
	mu sync.RWMutex

	records map[uuid.UUID][]usageRecord // org_id -> records
}

var _ store.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		records: make(map[uuid.UUID][]usageRecord),
	}
}

// Record registers a resource owned by orgID. active only matters for users.
func (s *UsageStore) Record(orgID uuid.UUID, kind models.ResourceKind, createdAt time.Time, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[orgID] = append(s.records[orgID], usageRecord{
		kind:      kind,
		createdAt: createdAt,
		active:    active,
	})
}

// Count returns the number of matching records.
func (s *UsageStore) Count(ctx context.Context, orgID uuid.UUID, kind models.ResourceKind, window *models.TimeWindow) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records[orgID] {
		if r.kind != kind {
			continue
		}
		if kind == models.ResourceUser && !r.active {
			continue
		}
		if window != nil && !window.Contains(r.createdAt) {
			continue
		}
		n++
	}

	return n, nil
}

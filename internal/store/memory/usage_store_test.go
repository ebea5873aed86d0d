package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
)

func TestMemoryUsageStore_Count(t *testing.T) {
	orgID := uuid.New()
	other := uuid.New()
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	st := NewUsageStore()
	st.Record(orgID, models.ResourceCustomer, march, true)
	st.Record(orgID, models.ResourceCustomer, march, true)
	st.Record(other, models.ResourceCustomer, march, true)
	st.Record(orgID, models.ResourceUser, march, true)
	st.Record(orgID, models.ResourceUser, march, false)
	st.Record(orgID, models.ResourceWorkOrder, march, true)
	st.Record(orgID, models.ResourceWorkOrder, march.AddDate(0, -1, 0), true)

	marchWindow := &models.TimeWindow{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		kind     models.ResourceKind
		window   *models.TimeWindow
		expected int64
	}{
		{name: "customers scoped to organization", kind: models.ResourceCustomer, expected: 2},
		{name: "only active users", kind: models.ResourceUser, expected: 1},
		{name: "work orders without window", kind: models.ResourceWorkOrder, expected: 2},
		{name: "work orders inside window", kind: models.ResourceWorkOrder, window: marchWindow, expected: 1},
		{name: "no inventory", kind: models.ResourceInventoryItem, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := st.Count(context.Background(), orgID, tt.kind, tt.window)
			require.NoError(t, err)
			require.Equal(t, tt.expected, n)
		})
	}
}

package limits

import (
	"time"

	"github.com/wolfeidau/tenantgate/internal/models"
)

// MonthWindow returns the calendar month containing now in loc, from the
// first instant of the month up to the first instant of the next.
func MonthWindow(now time.Time, loc *time.Location) models.TimeWindow {
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)

	return models.TimeWindow{
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// monthly reports whether usage of kind is counted per calendar month.
func monthly(kind models.ResourceKind) bool {
	return kind == models.ResourceWorkOrder
}

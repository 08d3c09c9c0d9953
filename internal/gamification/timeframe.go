package gamification

import (
	"fmt"
	"time"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/models"
)

// windowStart returns the inclusive lower bound for a timeframe, or nil for
// ALL_TIME. Weekly and monthly windows roll back from now.
func windowStart(tf models.Timeframe, now time.Time) (*time.Time, error) {
	now = now.UTC()
	var since time.Time
	switch tf {
	case "", models.TimeframeAllTime:
		return nil, nil
	case models.TimeframeDaily:
		since = now.Truncate(24 * time.Hour)
	case models.TimeframeWeekly:
		since = now.AddDate(0, 0, -7)
	case models.TimeframeMonthly:
		since = now.AddDate(0, -1, 0)
	default:
		return nil, fmt.Errorf("unknown timeframe %q: %w", tf, apperror.ErrBadRequest)
	}
	return &since, nil
}

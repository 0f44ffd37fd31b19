package promotion

import (
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// ComputeStatus derives a promotion's status from the calendar date of today
// against the inclusive range [start, end]. Only the date parts are compared,
// so end stays ACTIVE through its last instant.
func ComputeStatus(today, start, end time.Time) domain.PromotionStatus {
	d := domain.DateOf(today)
	switch {
	case d.After(domain.DateOf(end)):
		return domain.PromotionExpired
	case d.Before(domain.DateOf(start)):
		return domain.PromotionScheduled
	default:
		return domain.PromotionActive
	}
}

// resolveStatus picks the status to store. An explicit status wins; otherwise
// the status is recomputed when recompute is set and carried over when not.
func resolveStatus(explicit *string, recompute bool, prev domain.PromotionStatus, today time.Time, p *domain.Promotion) (domain.PromotionStatus, error) {
	if explicit != nil {
		st, ok := domain.ParseStatus(*explicit)
		if !ok {
			return "", ErrInvalidStatus
		}
		return st, nil
	}
	if recompute || prev == "" {
		return ComputeStatus(today, p.StartDate, p.EndDate), nil
	}
	return prev, nil
}

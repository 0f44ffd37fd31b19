package domain

import (
	"strings"
	"time"
)

// PromotionStatus enumerates the date-derived lifecycle states of a promotion.
type PromotionStatus string

const (
	PromotionScheduled PromotionStatus = "SCHEDULED"
	PromotionActive    PromotionStatus = "ACTIVE"
	PromotionExpired   PromotionStatus = "EXPIRED"
)

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(s string) (PromotionStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(PromotionScheduled):
		return PromotionScheduled, true
	case string(PromotionActive):
		return PromotionActive, true
	case string(PromotionExpired):
		return PromotionExpired, true
	}
	return "", false
}

// Is compares two status names ignoring case. Rows written by older tooling
// store lowercase names.
func (s PromotionStatus) Is(other PromotionStatus) bool {
	return strings.EqualFold(string(s), string(other))
}

// Promotion is a time-bounded discount campaign. StartDate and EndDate are
// calendar dates (midnight UTC); EndDate is inclusive.
type Promotion struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Discount    float64         `json:"discount" db:"discount"`
	StartDate   time.Time       `json:"start_date" db:"start_date"`
	EndDate     time.Time       `json:"end_date" db:"end_date"`
	Status      PromotionStatus `json:"status" db:"status"`
	CategoryID  *string         `json:"category_id,omitempty" db:"category_id"`
	CreatedBy   *string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy   *string         `json:"deleted_by,omitempty" db:"deleted_by"`
}

// Deleted reports whether the promotion sits in the trash.
func (p *Promotion) Deleted() bool { return p.DeletedAt != nil }

// HasValidRange reports whether the end date is on or after the start date.
func (p *Promotion) HasValidRange() bool {
	return !DateOf(p.EndDate).Before(DateOf(p.StartDate))
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (p Promotion) Snapshot() Promotion {
	cp := p
	if p.CategoryID != nil {
		v := *p.CategoryID
		cp.CategoryID = &v
	}
	if p.CreatedBy != nil {
		v := *p.CreatedBy
		cp.CreatedBy = &v
	}
	if p.DeletedAt != nil {
		v := *p.DeletedAt
		cp.DeletedAt = &v
	}
	if p.DeletedBy != nil {
		v := *p.DeletedBy
		cp.DeletedBy = &v
	}
	return cp
}

// DateOf truncates t to its calendar date in t's own location and returns it
// as midnight UTC, so dates from different zones compare by day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Package ratelimit enforces a fixed-window ceiling on notifications per
// (user, channel). A window opens on the first attempt and resets once its
// full duration has elapsed since it opened.
//
// Dispatch goes through Acquire, which checks and consumes quota in one
// atomic step. Allowed and RecordAttempt remain for callers that only need
// to inspect or force-count.
package ratelimit

import (
	"context"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// Policy is the ceiling N per window W.
type Policy struct {
	Max    int
	Window time.Duration
}

// DefaultPolicy is ten promotional emails per hour.
var DefaultPolicy = Policy{Max: 10, Window: time.Hour}

// Decision is the result of one Acquire.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Count       int       `json:"count"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

// Limiter is implemented by every backend.
type Limiter interface {
	// Allowed reports whether an attempt would be admitted now. It consumes
	// nothing.
	Allowed(ctx context.Context, userID string, ch domain.Channel) (bool, error)

	// RecordAttempt counts an attempt unconditionally, opening or resetting
	// the window as needed.
	RecordAttempt(ctx context.Context, userID string, ch domain.Channel) error

	// Acquire admits and counts an attempt if the window has room.
	Acquire(ctx context.Context, userID string, ch domain.Channel) (Decision, error)

	// Usage returns the stored window, or nil when none exists.
	Usage(ctx context.Context, userID string, ch domain.Channel) (*domain.RateLimitWindow, error)

	Policy() Policy
}

func decide(p Policy, allowed bool, count int, start time.Time) Decision {
	rem := p.Max - count
	if rem < 0 {
		rem = 0
	}
	return Decision{
		Allowed:     allowed,
		Count:       count,
		Remaining:   rem,
		WindowStart: start,
		ResetAt:     start.Add(p.Window),
	}
}

// admits applies the window rule to a stored window, nil meaning none.
func admits(p Policy, w *domain.RateLimitWindow, now time.Time) bool {
	if w == nil || w.Expired(now, p.Window) {
		return true
	}
	return w.Count < p.Max
}

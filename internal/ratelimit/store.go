package ratelimit

import (
	"context"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// Store persists windows in a table keyed by (user, channel). Each method is
// a single statement so the row is never read and written in separate steps.
type Store interface {
	// GetWindow returns the stored window or nil.
	GetWindow(ctx context.Context, userID string, ch domain.Channel) (*domain.RateLimitWindow, error)

	// IncrementWindow opens, resets or increments the window. A window whose
	// start is at or before cutoff is reset to now. When max > 0 the row is
	// left alone if it is live and already at max, and ok is false.
	IncrementWindow(ctx context.Context, userID string, ch domain.Channel, now, cutoff time.Time, max int) (w domain.RateLimitWindow, ok bool, err error)
}

// StoreLimiter enforces the policy against a Store, typically PostgreSQL.
type StoreLimiter struct {
	store  Store
	policy Policy
	now    func() time.Time
}

func NewStoreLimiter(store Store, policy Policy) *StoreLimiter {
	return &StoreLimiter{store: store, policy: policy, now: time.Now}
}

// WithClock replaces time.Now.
func (l *StoreLimiter) WithClock(now func() time.Time) *StoreLimiter {
	l.now = now
	return l
}

func (l *StoreLimiter) Policy() Policy { return l.policy }

func (l *StoreLimiter) Acquire(ctx context.Context, userID string, ch domain.Channel) (Decision, error) {
	now := l.now()
	w, ok, err := l.store.IncrementWindow(ctx, userID, ch, now, now.Add(-l.policy.Window), l.policy.Max)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return decide(l.policy, true, w.Count, w.WindowStart), nil
	}
	cur, err := l.store.GetWindow(ctx, userID, ch)
	if err != nil {
		return Decision{}, err
	}
	if cur == nil {
		return decide(l.policy, false, l.policy.Max, now), nil
	}
	return decide(l.policy, false, cur.Count, cur.WindowStart), nil
}

func (l *StoreLimiter) RecordAttempt(ctx context.Context, userID string, ch domain.Channel) error {
	now := l.now()
	_, _, err := l.store.IncrementWindow(ctx, userID, ch, now, now.Add(-l.policy.Window), 0)
	return err
}

func (l *StoreLimiter) Allowed(ctx context.Context, userID string, ch domain.Channel) (bool, error) {
	w, err := l.store.GetWindow(ctx, userID, ch)
	if err != nil {
		return false, err
	}
	return admits(l.policy, w, l.now()), nil
}

func (l *StoreLimiter) Usage(ctx context.Context, userID string, ch domain.Channel) (*domain.RateLimitWindow, error) {
	return l.store.GetWindow(ctx, userID, ch)
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// RateLimitRepo stores fixed windows in notification_rate_limits. It
// implements ratelimit.Store.
type RateLimitRepo struct{ db *sql.DB }

func NewRateLimitRepo(db *sql.DB) *RateLimitRepo { return &RateLimitRepo{db: db} }

func (r *RateLimitRepo) GetWindow(ctx context.Context, userID string, ch domain.Channel) (*domain.RateLimitWindow, error) {
	w := domain.RateLimitWindow{UserID: userID, Channel: ch}
	err := r.db.QueryRowContext(ctx, `
		SELECT window_start, count FROM notification_rate_limits
		WHERE user_id = $1 AND channel = $2
	`, userID, string(ch)).Scan(&w.WindowStart, &w.Count)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit window: %w", err)
	}
	return &w, nil
}

// IncrementWindow is one INSERT ... ON CONFLICT statement, so concurrent
// dispatchers serialize on the row. With max > 0 the conflict update is
// guarded and yields no row when the live window is full.
func (r *RateLimitRepo) IncrementWindow(ctx context.Context, userID string, ch domain.Channel, now, cutoff time.Time, max int) (domain.RateLimitWindow, bool, error) {
	w := domain.RateLimitWindow{UserID: userID, Channel: ch}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notification_rate_limits AS rl (user_id, channel, window_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, channel) DO UPDATE
		SET window_start = CASE WHEN rl.window_start <= $4 THEN $3 ELSE rl.window_start END,
		    count        = CASE WHEN rl.window_start <= $4 THEN 1 ELSE rl.count + 1 END
		WHERE $5 <= 0 OR rl.window_start <= $4 OR rl.count < $5
		RETURNING window_start, count
	`, userID, string(ch), now, cutoff, max).Scan(&w.WindowStart, &w.Count)
	if err == sql.ErrNoRows {
		return domain.RateLimitWindow{}, false, nil
	}
	if err != nil {
		return domain.RateLimitWindow{}, false, fmt.Errorf("increment rate limit window: %w", err)
	}
	return w, true, nil
}

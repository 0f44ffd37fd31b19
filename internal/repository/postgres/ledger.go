package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// LedgerRepo is the append-only notification_log. It implements
// notification.LedgerStore; rows are never updated.
type LedgerRepo struct{ db *sql.DB }

func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

func (r *LedgerRepo) Append(ctx context.Context, rec *domain.DispatchRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_log (id, user_id, recipient, channel, promotion_id, subject,
		                              outcome, error_message, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10)
	`, rec.ID, rec.UserID, rec.Recipient, string(rec.Channel), nullString(rec.PromotionID),
		rec.Subject, string(rec.Outcome), rec.Error, rec.ExternalID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

const ledgerColumns = `id, user_id, recipient, channel, promotion_id, COALESCE(subject, ''),
	outcome, COALESCE(error_message, ''), COALESCE(external_id, ''), created_at`

func (r *LedgerRepo) list(ctx context.Context, q string, args ...interface{}) ([]domain.DispatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.DispatchRecord
	for rows.Next() {
		var (
			rec   domain.DispatchRecord
			promo sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Recipient, &rec.Channel, &promo, &rec.Subject,
			&rec.Outcome, &rec.Error, &rec.ExternalID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		rec.PromotionID = stringPtr(promo)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *LedgerRepo) ListByPromotion(ctx context.Context, promotionID string, limit int) ([]domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+ledgerColumns+` FROM notification_log
		WHERE promotion_id = $1 ORDER BY created_at DESC LIMIT $2`, promotionID, limit)
}

func (r *LedgerRepo) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+ledgerColumns+` FROM notification_log
		WHERE outcome = 'FAILED' AND created_at >= $1 ORDER BY created_at DESC LIMIT $2`, since, limit)
}

// attemptOutcomeList renders domain.AttemptOutcomes as an SQL literal list.
var attemptOutcomeList = func() string {
	quoted := make([]string, len(domain.AttemptOutcomes))
	for i, o := range domain.AttemptOutcomes {
		quoted[i] = "'" + string(o) + "'"
	}
	return strings.Join(quoted, ", ")
}()

// CountSince counts sends and failed sends since the given time. It is an
// audit view and can disagree with the rate limiter's own counter.
func (r *LedgerRepo) CountSince(ctx context.Context, userID string, ch domain.Channel, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_log
		WHERE user_id = $1 AND channel = $2 AND created_at >= $3
		  AND outcome IN (`+attemptOutcomeList+`)
	`, userID, string(ch), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}

func (r *LedgerRepo) CountUniqueRecipients(ctx context.Context, promotionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM notification_log
		WHERE promotion_id = $1 AND outcome = 'SENT'
	`, promotionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

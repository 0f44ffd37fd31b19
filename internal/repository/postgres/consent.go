package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/service/consent"
)

// ConsentRepo implements consent.Repository against PostgreSQL.
type ConsentRepo struct{ db *sql.DB }

// NewConsentRepo creates a Postgres-backed consent repository.
func NewConsentRepo(db *sql.DB) *ConsentRepo { return &ConsentRepo{db: db} }

func (r *ConsentRepo) ConsentedRecipients(ctx context.Context, ch domain.Channel) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, COALESCE(u.name, '')
		FROM notification_consents c
		JOIN users u ON u.id = c.user_id
		WHERE c.channel = $1 AND c.granted = true
		ORDER BY u.id
	`, string(ch))
	if err != nil {
		return nil, fmt.Errorf("consented recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rc domain.Recipient
		if err := rows.Scan(&rc.UserID, &rc.Email, &rc.Name); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *ConsentRepo) HasActiveConsent(ctx context.Context, userID string, ch domain.Channel) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notification_consents
			WHERE user_id = $1 AND channel = $2 AND granted = true
		)`, userID, string(ch)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check consent: %w", err)
	}
	return ok, nil
}

func (r *ConsentRepo) Get(ctx context.Context, userID string, ch domain.Channel) (*domain.ConsentRecord, error) {
	var rec domain.ConsentRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel, granted, consented_at, last_modified,
		       COALESCE(origin_ip, ''), COALESCE(user_agent, '')
		FROM notification_consents
		WHERE user_id = $1 AND channel = $2
	`, userID, string(ch)).Scan(&rec.ID, &rec.UserID, &rec.Channel, &rec.Granted,
		&rec.ConsentedAt, &rec.LastModified, &rec.OriginIP, &rec.UserAgent)
	if err == sql.ErrNoRows {
		return nil, consent.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get consent: %w", err)
	}
	return &rec, nil
}

// Upsert keeps the original row id and consented_at on conflict.
func (r *ConsentRepo) Upsert(ctx context.Context, rec *domain.ConsentRecord) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notification_consents (id, user_id, channel, granted, consented_at, last_modified, origin_ip, user_agent)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (user_id, channel) DO UPDATE
		SET granted = EXCLUDED.granted,
		    last_modified = NOW(),
		    origin_ip = EXCLUDED.origin_ip,
		    user_agent = EXCLUDED.user_agent
		RETURNING id, consented_at, last_modified
	`, rec.ID, rec.UserID, string(rec.Channel), rec.Granted, rec.OriginIP, rec.UserAgent).
		Scan(&rec.ID, &rec.ConsentedAt, &rec.LastModified)
	if isForeignKeyViolation(err) {
		return consent.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert consent: %w", err)
	}
	return nil
}

package consent

import (
	"context"

	"github.com/ignite/promo-notifier/internal/domain"
)

// Repository defines the data access contract for consent records. There is
// at most one record per (user, channel).
type Repository interface {
	// ConsentedRecipients returns every user with a granted record for ch,
	// joined with the contact details needed for delivery.
	ConsentedRecipients(ctx context.Context, ch domain.Channel) ([]domain.Recipient, error)

	// HasActiveConsent reports whether a granted record exists.
	HasActiveConsent(ctx context.Context, userID string, ch domain.Channel) (bool, error)

	// Get returns the record. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, userID string, ch domain.Channel) (*domain.ConsentRecord, error)

	// Upsert inserts the record or overwrites granted, audit fields and
	// last_modified on the existing row, filling rec's stored ID and times.
	// Returns ErrUserNotFound when the user does not exist.
	Upsert(ctx context.Context, rec *domain.ConsentRecord) error
}

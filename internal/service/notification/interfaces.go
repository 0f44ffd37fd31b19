package notification

import (
	"context"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// Gateway delivers one rendered message. A nil error with Success=false and
// a returned error are both failures. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// ConsentChecker resolves and re-checks consent.
type ConsentChecker interface {
	ConsentedRecipients(ctx context.Context, ch domain.Channel) ([]domain.Recipient, error)
	HasActiveConsent(ctx context.Context, userID string, ch domain.Channel) (bool, error)
}

// LedgerStore is the append-only dispatch log. The read methods are audit
// views; the rate limiter never consults them.
type LedgerStore interface {
	Append(ctx context.Context, rec *domain.DispatchRecord) error
	ListByPromotion(ctx context.Context, promotionID string, limit int) ([]domain.DispatchRecord, error)
	CountSince(ctx context.Context, userID string, ch domain.Channel, since time.Time) (int, error)
	CountUniqueRecipients(ctx context.Context, promotionID string) (int, error)
	ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.DispatchRecord, error)
}

// ReportSink archives the summary of a finished dispatch.
type ReportSink interface {
	StoreDispatchReport(ctx context.Context, s domain.DispatchSummary) error
}

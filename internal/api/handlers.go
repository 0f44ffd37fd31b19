package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/httputil"
	"github.com/ignite/promo-notifier/internal/ratelimit"
	"github.com/ignite/promo-notifier/internal/service/consent"
	"github.com/ignite/promo-notifier/internal/service/promotion"
	"github.com/ignite/promo-notifier/internal/worker"
)

// PromotionService is the subset of promotion.Service the handlers use.
type PromotionService interface {
	Get(ctx context.Context, id string) (*domain.Promotion, error)
	List(ctx context.Context, f promotion.ListFilter) ([]domain.Promotion, error)
	Create(ctx context.Context, in promotion.CreateInput) (*domain.Promotion, error)
	Update(ctx context.Context, id string, in promotion.UpdateInput) (*domain.Promotion, error)
	Delete(ctx context.Context, id string, deletedBy *string) error
	ListDeleted(ctx context.Context, deletedBy string) ([]domain.Promotion, error)
	Restore(ctx context.Context, id string) (*domain.Promotion, error)
	PurgeDeleted(ctx context.Context, id string) error
}

// SweepRunner runs the sweep under the cluster lock.
type SweepRunner interface {
	RunOnce(ctx context.Context) (int, error)
	Status() worker.SweepStatus
}

// ConsentService is the subset of consent.Service the handlers use.
type ConsentService interface {
	Upsert(ctx context.Context, userID, channel string, granted bool, meta domain.AuditMeta) (*domain.ConsentRecord, error)
	Get(ctx context.Context, userID string, ch domain.Channel) (*domain.ConsentRecord, error)
}

// LedgerReader exposes the audit views of the dispatch ledger.
type LedgerReader interface {
	ListByPromotion(ctx context.Context, promotionID string, limit int) ([]domain.DispatchRecord, error)
	CountUniqueRecipients(ctx context.Context, promotionID string) (int, error)
	ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.DispatchRecord, error)
}

// UsageReader reads the rate-limit window of one (user, channel).
type UsageReader interface {
	Usage(ctx context.Context, userID string, ch domain.Channel) (*domain.RateLimitWindow, error)
}

// QueueStats reports activation queue counters.
type QueueStats interface {
	Stats() worker.QueueStats
}

// Deps collects the services behind the handlers. Sweep, Queue and Limiter
// may be nil.
type Deps struct {
	Promotions PromotionService
	Sweep      SweepRunner
	Consent    ConsentService
	Ledger     LedgerReader
	Queue      QueueStats
	Limiter    UsageReader
	Policy     ratelimit.Policy
	Channel    domain.Channel
}

// Handlers contains the HTTP handlers
type Handlers struct {
	promotions PromotionService
	sweep      SweepRunner
	consent    ConsentService
	ledger     LedgerReader
	queue      QueueStats
	limiter    UsageReader
	policy     ratelimit.Policy
	channel    domain.Channel
	now        func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	ch := d.Channel
	if ch == "" {
		ch = domain.ChannelEmailPromotion
	}
	return &Handlers{
		promotions: d.Promotions,
		sweep:      d.Sweep,
		consent:    d.Consent,
		ledger:     d.Ledger,
		queue:      d.Queue,
		limiter:    d.Limiter,
		policy:     d.Policy,
		channel:    ch,
		now:        time.Now,
	}
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, promotion.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "promotion_not_found", err.Error())
	case errors.Is(err, consent.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "consent_not_found", err.Error())
	case errors.Is(err, promotion.ErrInvalidDateRange),
		errors.Is(err, promotion.ErrInvalidStatus),
		errors.Is(err, promotion.ErrNameRequired),
		errors.Is(err, promotion.ErrNegativeDiscount),
		errors.Is(err, consent.ErrUserRequired),
		errors.Is(err, consent.ErrUnknownChannel):
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, promotion.ErrReferenceNotFound),
		errors.Is(err, consent.ErrUserNotFound):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "reference_not_found", err.Error())
	case errors.Is(err, promotion.ErrRestoreExpired):
		httputil.ErrorCode(w, http.StatusConflict, "restore_window_expired", err.Error())
	case errors.Is(err, worker.ErrSweepInProgress):
		httputil.ErrorCode(w, http.StatusConflict, "sweep_in_progress", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

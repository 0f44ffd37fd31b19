package promotion

import (
	"context"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

// Repository defines the data access contract for promotions.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single live promotion. Returns ErrNotFound if it doesn't
	// exist or has been deleted.
	Get(ctx context.Context, id string) (*domain.Promotion, error)

	// List returns live promotions matching the filter ordered by start date.
	// An empty filter returns every promotion not in the trash.
	List(ctx context.Context, filter ListFilter) ([]domain.Promotion, error)

	// Create inserts a promotion. Returns ErrReferenceNotFound when the
	// category or creating user does not exist.
	Create(ctx context.Context, p *domain.Promotion) error

	// Update overwrites every mutable field of an existing promotion.
	Update(ctx context.Context, p *domain.Promotion) error

	// UpdateStatus writes only the status column.
	UpdateStatus(ctx context.Context, id string, status domain.PromotionStatus) error

	// SoftDelete moves a live promotion to the trash. Returns ErrNotFound
	// if no live promotion has that id.
	SoftDelete(ctx context.Context, id string, deletedBy *string, at time.Time) error

	// GetDeleted returns a promotion from the trash.
	GetDeleted(ctx context.Context, id string) (*domain.Promotion, error)

	// ListDeleted returns trashed promotions, most recently deleted first.
	ListDeleted(ctx context.Context, filter DeletedFilter) ([]domain.Promotion, error)

	// Restore takes a promotion out of the trash.
	Restore(ctx context.Context, id string, at time.Time) error

	// Purge removes a trashed promotion permanently. Ledger entries that
	// reference it are kept.
	Purge(ctx context.Context, id string) error
}

// SignalPublisher accepts activation signals for asynchronous dispatch.
// Publish must not block; an error means the publisher has shut down.
type SignalPublisher interface {
	Publish(sig domain.ActivationSignal) error
}

// ListFilter controls filtering and pagination for promotion lists.
type ListFilter struct {
	Status     string
	CategoryID string
	Limit      int
	Offset     int
}

// DeletedFilter narrows a trash listing. Zero values match everything.
type DeletedFilter struct {
	DeletedBy string
	Since     time.Time
}

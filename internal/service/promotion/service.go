package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
)

// Service implements promotion business logic and activation detection.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo      Repository
	publisher SignalPublisher
	now       func() time.Time
	loc       *time.Location
	log       *logger.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone whose calendar date counts as today.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a promotion service. publisher may be nil, in which
// case activations are detected and logged but not dispatched.
func NewService(repo Repository, publisher SignalPublisher, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		loc:       time.Local,
		log:       logger.With("component", "promotion"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns the current instant in the service's location.
func (s *Service) Today() time.Time {
	return s.now().In(s.loc)
}

// Get returns a single promotion.
func (s *Service) Get(ctx context.Context, id string) (*domain.Promotion, error) {
	return s.repo.Get(ctx, id)
}

// List returns promotions matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Promotion, error) {
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for creating a promotion. Status is optional;
// when nil it is computed from the dates.
type CreateInput struct {
	Name        string
	Description string
	Discount    float64
	StartDate   time.Time
	EndDate     time.Time
	Status      *string
	CategoryID  *string
	CreatedBy   *string
}

// UpdateInput holds the mutable fields of a promotion. Nil fields are kept.
type UpdateInput struct {
	Name        *string
	Description *string
	Discount    *float64
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *string
	CategoryID  *string
}

// Create validates and stores a new promotion. A promotion created ACTIVE,
// computed or explicit, emits an activation signal.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Promotion, error) {
	now := s.now()
	p := &domain.Promotion{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Discount:    in.Discount,
		StartDate:   domain.DateOf(in.StartDate),
		EndDate:     domain.DateOf(in.EndDate),
		CategoryID:  in.CategoryID,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	st, err := resolveStatus(in.Status, true, "", s.Today(), p)
	if err != nil {
		return nil, err
	}
	p.Status = st

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	s.log.Info("promotion created", "promotion_id", p.ID, "status", p.Status)
	if p.Status.Is(domain.PromotionActive) {
		s.emit(*p, domain.SourceCreate)
	}
	return p, nil
}

// Update applies the supplied fields. The status is recomputed only when a
// date changed and no explicit status was given; otherwise the stored status
// is kept. Moving into ACTIVE from any other status emits a signal.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Promotion, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := p.Status

	datesChanged := false
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Discount != nil {
		p.Discount = *in.Discount
	}
	if in.StartDate != nil {
		d := domain.DateOf(*in.StartDate)
		datesChanged = datesChanged || !d.Equal(p.StartDate)
		p.StartDate = d
	}
	if in.EndDate != nil {
		d := domain.DateOf(*in.EndDate)
		datesChanged = datesChanged || !d.Equal(p.EndDate)
		p.EndDate = d
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			p.CategoryID = nil
		} else {
			p.CategoryID = in.CategoryID
		}
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	st, err := resolveStatus(in.Status, datesChanged, prev, s.Today(), p)
	if err != nil {
		return nil, err
	}
	p.Status = st
	p.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update promotion %s: %w", id, err)
	}

	if p.Status.Is(domain.PromotionActive) && !prev.Is(domain.PromotionActive) {
		s.emit(*p, domain.SourceUpdate)
	}
	return p, nil
}

// RestoreWindow is how long a deleted promotion can be restored.
const RestoreWindow = 30 * 24 * time.Hour

// Delete moves a promotion to the trash. The sweep ignores it from then on.
// deletedBy may be nil.
func (s *Service) Delete(ctx context.Context, id string, deletedBy *string) error {
	if err := s.repo.SoftDelete(ctx, id, deletedBy, s.now()); err != nil {
		return fmt.Errorf("delete promotion %s: %w", id, err)
	}
	s.log.Info("promotion deleted", "promotion_id", id, "deleted_by", deref(deletedBy))
	return nil
}

// ListDeleted returns the trash. Without a user it lists only promotions
// still inside the restore window; with one it lists everything that user
// deleted.
func (s *Service) ListDeleted(ctx context.Context, deletedBy string) ([]domain.Promotion, error) {
	f := DeletedFilter{DeletedBy: deletedBy}
	if deletedBy == "" {
		f.Since = s.now().Add(-RestoreWindow)
	}
	return s.repo.ListDeleted(ctx, f)
}

// Restore brings a promotion back from the trash with its stored status.
// The next sweep recomputes that status, and emits a signal if the
// promotion became active while it was deleted.
func (s *Service) Restore(ctx context.Context, id string) (*domain.Promotion, error) {
	p, err := s.repo.GetDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if p.DeletedAt.Before(now.Add(-RestoreWindow)) {
		return nil, ErrRestoreExpired
	}
	if err := s.repo.Restore(ctx, id, now); err != nil {
		return nil, fmt.Errorf("restore promotion %s: %w", id, err)
	}
	s.log.Info("promotion restored", "promotion_id", id)
	return s.repo.Get(ctx, id)
}

// PurgeDeleted permanently removes a promotion from the trash.
func (s *Service) PurgeDeleted(ctx context.Context, id string) error {
	if err := s.repo.Purge(ctx, id); err != nil {
		return fmt.Errorf("purge promotion %s: %w", id, err)
	}
	s.log.Info("promotion purged", "promotion_id", id)
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Sweep recomputes the status of every promotion not in the trash from its
// dates, overwriting any explicit status, and writes only those that differ. It returns the number
// of promotions written. A failure on one promotion is logged and the sweep
// moves on.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	all, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return 0, fmt.Errorf("list promotions: %w", err)
	}

	today := s.Today()
	updated := 0
	for i := range all {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		p := all[i]
		next := ComputeStatus(today, p.StartDate, p.EndDate)
		if p.Status.Is(next) {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, p.ID, next); err != nil {
			s.log.Error("sweep: status update failed", "promotion_id", p.ID, "error", err)
			continue
		}
		updated++
		s.log.Info("sweep: status replaced", "promotion_id", p.ID, "from", p.Status, "to", next)

		if next == domain.PromotionActive {
			p.Status = next
			s.emit(p, domain.SourceSweep)
		}
	}

	s.log.Info("sweep complete", "promotions", len(all), "updated", updated)
	return updated, nil
}

func (s *Service) emit(p domain.Promotion, src domain.SignalSource) {
	if s.publisher == nil {
		s.log.Warn("activation not dispatched: no publisher", "promotion_id", p.ID)
		return
	}
	sig := domain.ActivationSignal{
		Promotion: p.Snapshot(),
		Source:    src,
		EmittedAt: s.now(),
	}
	if err := s.publisher.Publish(sig); err != nil {
		s.log.Error("activation signal not queued", "promotion_id", p.ID, "source", src, "error", err)
		return
	}
	s.log.Info("activation signal emitted", "promotion_id", p.ID, "source", src)
}

func validate(p *domain.Promotion) error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.Discount < 0 {
		return ErrNegativeDiscount
	}
	if !p.HasValidRange() {
		return ErrInvalidDateRange
	}
	return nil
}

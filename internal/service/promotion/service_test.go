package promotion_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/service/promotion"
)

// memRepo is an in-memory promotion repository for unit testing.
type memRepo struct {
	mu         sync.Mutex
	promotions map[string]*domain.Promotion
	failStatus map[string]bool // ids whose UpdateStatus fails
	writes     int
}

func newMemRepo() *memRepo {
	return &memRepo{
		promotions: make(map[string]*domain.Promotion),
		failStatus: make(map[string]bool),
	}
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok || p.Deleted() {
		return nil, promotion.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f promotion.ListFilter) ([]domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Promotion
	for _, p := range m.promotions {
		if p.Deleted() {
			continue
		}
		if f.Status != "" && !p.Status.Is(domain.PromotionStatus(f.Status)) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Create(_ context.Context, p *domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.promotions[p.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, p *domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.promotions[p.ID]; !ok || cur.Deleted() {
		return promotion.ErrNotFound
	}
	cp := *p
	m.promotions[p.ID] = &cp
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id string, st domain.PromotionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatus[id] {
		return errors.New("connection reset")
	}
	p, ok := m.promotions[id]
	if !ok || p.Deleted() {
		return promotion.ErrNotFound
	}
	p.Status = st
	m.writes++
	return nil
}

func (m *memRepo) SoftDelete(_ context.Context, id string, by *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok || p.Deleted() {
		return promotion.ErrNotFound
	}
	p.DeletedAt, p.DeletedBy = &at, by
	return nil
}

func (m *memRepo) GetDeleted(_ context.Context, id string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok || !p.Deleted() {
		return nil, promotion.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) ListDeleted(_ context.Context, f promotion.DeletedFilter) ([]domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Promotion
	for _, p := range m.promotions {
		if !p.Deleted() || p.DeletedAt.Before(f.Since) {
			continue
		}
		if f.DeletedBy != "" && (p.DeletedBy == nil || *p.DeletedBy != f.DeletedBy) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Restore(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok || !p.Deleted() {
		return promotion.ErrNotFound
	}
	p.DeletedAt, p.DeletedBy = nil, nil
	return nil
}

func (m *memRepo) Purge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promotions[id]
	if !ok || !p.Deleted() {
		return promotion.ErrNotFound
	}
	delete(m.promotions, id)
	return nil
}

func (m *memRepo) put(p domain.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions[p.ID] = &p
}

func (m *memRepo) status(id string) domain.PromotionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promotions[id].Status
}

// recorder captures published signals.
type recorder struct {
	mu      sync.Mutex
	signals []domain.ActivationSignal
	err     error
}

func (r *recorder) Publish(sig domain.ActivationSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.signals = append(r.signals, sig)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock(s string) promotion.Option {
	t := day(s).Add(9 * time.Hour)
	return promotion.WithClock(func() time.Time { return t })
}

func newService(repo *memRepo, pub *recorder, today string) *promotion.Service {
	return promotion.NewService(repo, pub, fixedClock(today), promotion.WithLocation(time.UTC))
}

func TestComputeStatus(t *testing.T) {
	start, end := day("2024-01-10"), day("2024-01-20")

	tests := []struct {
		today string
		want  domain.PromotionStatus
	}{
		{"2024-01-09", domain.PromotionScheduled},
		{"2024-01-10", domain.PromotionActive},
		{"2024-01-15", domain.PromotionActive},
		{"2024-01-20", domain.PromotionActive},
		{"2024-01-21", domain.PromotionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.today, func(t *testing.T) {
			assert.Equal(t, tt.want, promotion.ComputeStatus(day(tt.today), start, end))
		})
	}
}

func TestComputeStatusEndDateInclusiveThroughLastInstant(t *testing.T) {
	start, end := day("2024-01-10"), day("2024-01-20")
	lastInstant := day("2024-01-20").Add(24*time.Hour - time.Nanosecond)
	assert.Equal(t, domain.PromotionActive, promotion.ComputeStatus(lastInstant, start, end))
}

func TestCreateComputesStatus(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	svc := newService(repo, pub, "2024-01-15")

	p, err := svc.Create(context.Background(), promotion.CreateInput{
		Name: "Black Friday", Discount: 25,
		StartDate: day("2024-01-10"), EndDate: day("2024-01-20"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PromotionActive, p.Status)
	assert.NotEmpty(t, p.ID)

	// created directly into ACTIVE counts as an activation
	require.Equal(t, 1, pub.count())
	assert.Equal(t, domain.SourceCreate, pub.signals[0].Source)
	assert.Equal(t, p.ID, pub.signals[0].Promotion.ID)

	p, err = svc.Create(context.Background(), promotion.CreateInput{
		Name: "Spring", StartDate: day("2024-03-01"), EndDate: day("2024-03-10"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PromotionScheduled, p.Status)
	assert.Equal(t, 1, pub.count())
}

func TestCreateExplicitStatusStoredVerbatim(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	svc := newService(repo, pub, "2024-01-15")

	st := "expired"
	p, err := svc.Create(context.Background(), promotion.CreateInput{
		Name: "Override", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: &st,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PromotionExpired, p.Status)
	assert.Equal(t, 0, pub.count())

	bad := "paused"
	_, err = svc.Create(context.Background(), promotion.CreateInput{
		Name: "Bad", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: &bad,
	})
	assert.ErrorIs(t, err, promotion.ErrInvalidStatus)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(newMemRepo(), &recorder{}, "2024-01-15")
	ctx := context.Background()

	_, err := svc.Create(ctx, promotion.CreateInput{Name: "X", StartDate: day("2024-01-20"), EndDate: day("2024-01-10")})
	assert.ErrorIs(t, err, promotion.ErrInvalidDateRange)

	_, err = svc.Create(ctx, promotion.CreateInput{Name: "  ", StartDate: day("2024-01-10"), EndDate: day("2024-01-10")})
	assert.ErrorIs(t, err, promotion.ErrNameRequired)

	_, err = svc.Create(ctx, promotion.CreateInput{Name: "X", Discount: -5, StartDate: day("2024-01-10"), EndDate: day("2024-01-10")})
	assert.ErrorIs(t, err, promotion.ErrNegativeDiscount)
}

func TestUpdateKeepsStatusWhenDatesUnchanged(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "p1", Name: "Old", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionExpired})
	svc := newService(repo, pub, "2024-01-15")

	name := "New name"
	p, err := svc.Update(context.Background(), "p1", promotion.UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New name", p.Name)
	assert.Equal(t, domain.PromotionExpired, p.Status)
	assert.Equal(t, 0, pub.count())
}

func TestUpdateDateChangeRecomputesAndEmits(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "p1", Name: "P", StartDate: day("2024-02-01"), EndDate: day("2024-02-10"), Status: domain.PromotionScheduled})
	svc := newService(repo, pub, "2024-01-15")

	start := day("2024-01-14")
	p, err := svc.Update(context.Background(), "p1", promotion.UpdateInput{StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, domain.PromotionActive, p.Status)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, domain.SourceUpdate, pub.signals[0].Source)

	// already ACTIVE, an edit that keeps it ACTIVE emits nothing more
	end := day("2024-02-20")
	_, err = svc.Update(context.Background(), "p1", promotion.UpdateInput{EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count())
}

func TestUpdateRejectsInvertedRange(t *testing.T) {
	repo := newMemRepo()
	repo.put(domain.Promotion{ID: "p1", Name: "P", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionActive})
	svc := newService(repo, &recorder{}, "2024-01-15")

	end := day("2024-01-01")
	_, err := svc.Update(context.Background(), "p1", promotion.UpdateInput{EndDate: &end})
	assert.ErrorIs(t, err, promotion.ErrInvalidDateRange)
	assert.Equal(t, day("2024-01-20"), repo.promotions["p1"].EndDate)
}

func TestUpdateNotFound(t *testing.T) {
	svc := newService(newMemRepo(), &recorder{}, "2024-01-15")
	_, err := svc.Update(context.Background(), "missing", promotion.UpdateInput{})
	assert.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestSweepActivatesOnceAndIsIdempotent(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "bf", Name: "Black Friday", Discount: 25, StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	repo.put(domain.Promotion{ID: "live", Name: "Live", StartDate: day("2024-01-01"), EndDate: day("2024-01-31"), Status: domain.PromotionActive})
	repo.put(domain.Promotion{ID: "old", Name: "Old", StartDate: day("2023-12-01"), EndDate: day("2023-12-31"), Status: domain.PromotionActive})
	svc := newService(repo, pub, "2024-01-10")
	ctx := context.Background()

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, domain.PromotionActive, repo.status("bf"))
	assert.Equal(t, domain.PromotionExpired, repo.status("old"))

	require.Equal(t, 1, pub.count())
	sig := pub.signals[0]
	assert.Equal(t, "bf", sig.Promotion.ID)
	assert.Equal(t, domain.PromotionActive, sig.Promotion.Status)
	assert.Equal(t, domain.SourceSweep, sig.Source)

	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, 2, repo.writes)
}

func TestSweepComparesStatusCaseInsensitively(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "p1", Name: "P", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: "active"})
	svc := newService(repo, pub, "2024-01-15")

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, pub.count())
}

func TestSweepOverwritesManualOverride(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	svc := newService(repo, pub, "2024-01-15")

	st := "EXPIRED"
	p, err := svc.Create(context.Background(), promotion.CreateInput{
		Name: "Forced", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: &st,
	})
	require.NoError(t, err)

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PromotionActive, repo.status(p.ID))
	assert.Equal(t, 1, pub.count())
}

func TestSweepIsolatesPerItemFailures(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "a", Name: "A", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	repo.put(domain.Promotion{ID: "b", Name: "B", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	repo.put(domain.Promotion{ID: "c", Name: "C", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	repo.failStatus["b"] = true
	svc := newService(repo, pub, "2024-01-12")

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, domain.PromotionActive, repo.status("a"))
	assert.Equal(t, domain.PromotionScheduled, repo.status("b"))
	assert.Equal(t, domain.PromotionActive, repo.status("c"))
	assert.Equal(t, 2, pub.count())

	// the failed one is picked up by the next sweep
	repo.failStatus["b"] = false
	n, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, pub.count())
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	repo := newMemRepo()
	repo.put(domain.Promotion{ID: "a", Name: "A", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	pub := &recorder{err: errors.New("queue full")}
	svc := newService(repo, pub, "2024-01-12")

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PromotionActive, repo.status("a"))
}

func TestSignalCarriesSnapshot(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	cat := "cat-1"
	svc := newService(repo, pub, "2024-01-15")

	p, err := svc.Create(context.Background(), promotion.CreateInput{
		Name: "Snap", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), CategoryID: &cat,
	})
	require.NoError(t, err)
	require.Equal(t, 1, pub.count())

	*p.CategoryID = "mutated"
	assert.Equal(t, "cat-1", *pub.signals[0].Promotion.CategoryID)
}

func TestDeletedPromotionIsNeitherSweptNorSignalled(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "bf", Name: "Black Friday", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	repo.put(domain.Promotion{ID: "spring", Name: "Spring", StartDate: day("2024-01-10"), EndDate: day("2024-01-31"), Status: domain.PromotionScheduled})
	svc := newService(repo, pub, "2024-01-10")
	ctx := context.Background()

	by := "admin-1"
	require.NoError(t, svc.Delete(ctx, "bf", &by))

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "spring", pub.signals[0].Promotion.ID)
	assert.Equal(t, domain.PromotionScheduled, repo.status("bf"))

	_, err = svc.Get(ctx, "bf")
	assert.ErrorIs(t, err, promotion.ErrNotFound)
	renamed := "Renamed"
	_, err = svc.Update(ctx, "bf", promotion.UpdateInput{Name: &renamed})
	assert.ErrorIs(t, err, promotion.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "bf", nil), promotion.ErrNotFound)
}

func TestRestoreReturnsPromotionToSweep(t *testing.T) {
	repo, pub := newMemRepo(), &recorder{}
	repo.put(domain.Promotion{ID: "bf", Name: "Black Friday", StartDate: day("2024-01-10"), EndDate: day("2024-01-20"), Status: domain.PromotionScheduled})
	svc := newService(repo, pub, "2024-01-10")
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "bf", nil))
	deleted, err := svc.ListDeleted(ctx, "")
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	p, err := svc.Restore(ctx, "bf")
	require.NoError(t, err)
	assert.False(t, p.Deleted())
	assert.Equal(t, domain.PromotionScheduled, p.Status)
	assert.Equal(t, 0, pub.count())

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, pub.count())

	_, err = svc.Restore(ctx, "bf")
	assert.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestRestoreWindowAndListing(t *testing.T) {
	repo := newMemRepo()
	old := day("2023-11-01")
	recent := day("2024-01-05")
	alice, bob := "alice", "bob"
	repo.put(domain.Promotion{ID: "old", Name: "Old", StartDate: old, EndDate: old, DeletedAt: &old, DeletedBy: &alice})
	repo.put(domain.Promotion{ID: "new", Name: "New", StartDate: recent, EndDate: recent, DeletedAt: &recent, DeletedBy: &bob})
	svc := newService(repo, &recorder{}, "2024-01-10")
	ctx := context.Background()

	restorable, err := svc.ListDeleted(ctx, "")
	require.NoError(t, err)
	require.Len(t, restorable, 1)
	assert.Equal(t, "new", restorable[0].ID)

	byAlice, err := svc.ListDeleted(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byAlice, 1)
	assert.Equal(t, "old", byAlice[0].ID)

	_, err = svc.Restore(ctx, "old")
	assert.ErrorIs(t, err, promotion.ErrRestoreExpired)

	require.NoError(t, svc.PurgeDeleted(ctx, "old"))
	assert.ErrorIs(t, svc.PurgeDeleted(ctx, "old"), promotion.ErrNotFound)
}

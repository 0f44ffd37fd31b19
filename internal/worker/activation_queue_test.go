package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	seen  []string
	delay time.Duration
	panic bool
	done  chan string
}

func (f *fakeDispatcher) DispatchForPromotion(ctx context.Context, p domain.Promotion) domain.DispatchSummary {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	f.seen = append(f.seen, p.ID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- p.ID
	}
	return domain.DispatchSummary{PromotionID: p.ID, Sent: 1}
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func signal(id string) domain.ActivationSignal {
	return domain.ActivationSignal{
		Promotion: domain.Promotion{ID: id, Status: domain.PromotionActive},
		Source:    domain.SourceCreate,
		EmittedAt: time.Now(),
	}
}

func TestActivationQueue_PublishDispatches(t *testing.T) {
	d := &fakeDispatcher{done: make(chan string, 4)}
	q := NewActivationQueue(d, 2, 4)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.Publish(signal("promo-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-d.done:
		if id != "promo-1" {
			t.Errorf("dispatched %q, want promo-1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not dispatched")
	}
}

func TestActivationQueue_StartTwice(t *testing.T) {
	q := NewActivationQueue(&fakeDispatcher{}, 1, 1)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.Start(); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestActivationQueue_BurstBeyondWarnDepthIsFullyDispatched(t *testing.T) {
	d := &fakeDispatcher{delay: 5 * time.Millisecond}
	q := NewActivationQueue(d, 4, 8)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const burst = 100
	for i := 0; i < burst; i++ {
		if err := q.Publish(signal(fmt.Sprintf("promo-%d", i))); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	stats := q.Stats()
	if stats.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", stats.Dropped)
	}
	if stats.MaxDepth <= 8 {
		t.Errorf("max depth = %d, want the backlog to exceed the warn depth", stats.MaxDepth)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := d.count(); got != burst {
		t.Errorf("dispatched %d signals, want %d", got, burst)
	}
	if got := q.Stats().Published; got != burst {
		t.Errorf("published = %d, want %d", got, burst)
	}
}

func TestActivationQueue_PublishBeforeStartIsKept(t *testing.T) {
	q := NewActivationQueue(&fakeDispatcher{}, 1, 1)

	for _, id := range []string{"a", "b"} {
		if err := q.Publish(signal(id)); err != nil {
			t.Fatalf("Publish %s: %v", id, err)
		}
	}

	stats := q.Stats()
	if stats.Published != 2 || stats.Dropped != 0 {
		t.Errorf("stats = %+v, want 2 published and 0 dropped", stats)
	}
	if stats.Depth != 2 || stats.WarnDepth != 1 {
		t.Errorf("depth/warn depth = %d/%d, want 2/1", stats.Depth, stats.WarnDepth)
	}
}

func TestActivationQueue_StopDrainsQueued(t *testing.T) {
	d := &fakeDispatcher{delay: 10 * time.Millisecond}
	q := NewActivationQueue(d, 1, 8)

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(signal(id)); err != nil {
			t.Fatalf("Publish %s: %v", id, err)
		}
	}
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := d.count(); got != 3 {
		t.Errorf("dispatched %d signals, want 3", got)
	}
	if err := q.Publish(signal("late")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Publish after Stop = %v, want ErrQueueClosed", err)
	}
	if err := q.Start(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Start after Stop = %v, want ErrQueueClosed", err)
	}
}

func TestActivationQueue_StopTimeout(t *testing.T) {
	d := &fakeDispatcher{delay: 500 * time.Millisecond}
	q := NewActivationQueue(d, 1, 1)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Publish(signal("slow")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop = %v, want deadline exceeded", err)
	}
}

func TestActivationQueue_RecoversPanic(t *testing.T) {
	d := &fakeDispatcher{panic: true}
	q := NewActivationQueue(d, 1, 2)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = q.Publish(signal("a"))
	_ = q.Publish(signal("b"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := q.Stats().Dispatched; got != 2 {
		t.Errorf("dispatched = %d, want 2 after panics", got)
	}
}

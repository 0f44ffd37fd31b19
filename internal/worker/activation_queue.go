package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
	"github.com/ignite/promo-notifier/internal/pkg/metrics"
)

// Dispatcher consumes activations.
type Dispatcher interface {
	DispatchForPromotion(ctx context.Context, p domain.Promotion) domain.DispatchSummary
}

// ActivationQueue is an in-process queue of activation signals drained by a
// fixed pool of workers. The backlog is unbounded, so Publish never blocks
// and never drops a signal while the queue is open. Each signal is
// dispatched at most once; queued signals are lost if the process dies.
type ActivationQueue struct {
	dispatcher Dispatcher
	workers    int
	warnDepth  int

	pending []domain.ActivationSignal
	ready   *sync.Cond

	// Stats
	published  int64
	dropped    int64
	dispatched int64
	inFlight   int64
	maxDepth   int

	// Control
	wg      sync.WaitGroup
	running bool
	closed  bool
	mu      sync.Mutex
	log     *logger.Logger
}

// QueueStats is a point-in-time view of the queue. Dropped counts signals
// refused after Stop.
type QueueStats struct {
	Running    bool  `json:"running"`
	Workers    int   `json:"workers"`
	WarnDepth  int   `json:"warn_depth"`
	Depth      int   `json:"depth"`
	MaxDepth   int   `json:"max_depth"`
	InFlight   int64 `json:"in_flight"`
	Published  int64 `json:"published"`
	Dropped    int64 `json:"dropped"`
	Dispatched int64 `json:"dispatched"`
}

// NewActivationQueue creates a queue with the given pool size. warnDepth is
// the backlog at which Publish starts logging warnings; it does not limit
// the backlog.
func NewActivationQueue(d Dispatcher, workers, warnDepth int) *ActivationQueue {
	if workers <= 0 {
		workers = 1
	}
	if warnDepth <= 0 {
		warnDepth = 1
	}
	q := &ActivationQueue{
		dispatcher: d,
		workers:    workers,
		warnDepth:  warnDepth,
		pending:    make([]domain.ActivationSignal, 0, warnDepth),
		log:        logger.With("component", "activation-queue"),
	}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *ActivationQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.running {
		return fmt.Errorf("activation queue already running")
	}
	q.running = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info("started", "workers", q.workers, "backlog", len(q.pending))
	return nil
}

// Publish appends sig to the backlog and returns immediately. It fails only
// once Stop has been called.
func (q *ActivationQueue) Publish(sig domain.ActivationSignal) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		atomic.AddInt64(&q.dropped, 1)
		metrics.ActivationSignals.WithLabelValues("closed").Inc()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, sig)
	depth := len(q.pending)
	if depth > q.maxDepth {
		q.maxDepth = depth
	}
	q.ready.Signal()
	q.mu.Unlock()

	atomic.AddInt64(&q.published, 1)
	metrics.ActivationSignals.WithLabelValues("accepted").Inc()
	if depth >= q.warnDepth {
		q.log.Warn("activation backlog growing", "depth", depth, "warn_depth", q.warnDepth)
	}
	return nil
}

// next blocks until a signal is queued or the queue is closed and empty.
func (q *ActivationQueue) next() (domain.ActivationSignal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.ready.Wait()
	}
	if len(q.pending) == 0 {
		return domain.ActivationSignal{}, false
	}
	sig := q.pending[0]
	q.pending[0] = domain.ActivationSignal{}
	q.pending = q.pending[1:]
	return sig, true
}

// Stop refuses new signals and waits for queued and in-flight dispatches.
// If ctx ends first Stop returns its error; the workers keep draining.
func (q *ActivationQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.ready.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		q.log.Info("stopped",
			"published", atomic.LoadInt64(&q.published),
			"dispatched", atomic.LoadInt64(&q.dispatched),
			"dropped", atomic.LoadInt64(&q.dropped))
		return nil
	case <-ctx.Done():
		q.log.Warn("stop timed out with dispatches outstanding", "in_flight", atomic.LoadInt64(&q.inFlight))
		return ctx.Err()
	}
}

func (q *ActivationQueue) Stats() QueueStats {
	q.mu.Lock()
	running := q.running && !q.closed
	depth, maxDepth := len(q.pending), q.maxDepth
	q.mu.Unlock()
	return QueueStats{
		Running:    running,
		Workers:    q.workers,
		WarnDepth:  q.warnDepth,
		Depth:      depth,
		MaxDepth:   maxDepth,
		InFlight:   atomic.LoadInt64(&q.inFlight),
		Published:  atomic.LoadInt64(&q.published),
		Dropped:    atomic.LoadInt64(&q.dropped),
		Dispatched: atomic.LoadInt64(&q.dispatched),
	}
}

func (q *ActivationQueue) worker(id int) {
	defer q.wg.Done()
	for {
		sig, ok := q.next()
		if !ok {
			return
		}
		q.handle(id, sig)
	}
}

// handle runs one dispatch. Dispatches are not bounded by a timeout.
func (q *ActivationQueue) handle(id int, sig domain.ActivationSignal) {
	atomic.AddInt64(&q.inFlight, 1)
	defer atomic.AddInt64(&q.inFlight, -1)
	defer atomic.AddInt64(&q.dispatched, 1)

	log := q.log.With("worker", id, "promotion_id", sig.Promotion.ID, "source", sig.Source)
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", "panic", r)
		}
	}()

	log.Debug("dispatching", "queued_for_ms", time.Since(sig.EmittedAt).Milliseconds())
	sum := q.dispatcher.DispatchForPromotion(context.Background(), sig.Promotion)
	metrics.ObserveDispatch(sum)
	log.Info("dispatch complete",
		"sent", sum.Sent, "failed", sum.Failed,
		"rate_limited", sum.RateLimited, "skipped", sum.Skipped)
}

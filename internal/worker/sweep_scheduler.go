package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/promo-notifier/internal/pkg/distlock"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
	"github.com/ignite/promo-notifier/internal/pkg/metrics"
)

// Sweeper recomputes every promotion's status.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// LockFactory returns a fresh lock for one sweep run.
type LockFactory func() distlock.Lock

// SweepScheduler triggers the promotion sweep once a day at a wall-clock time
// in a configured zone. Each run holds a distributed lock so only one replica
// sweeps at a time; manual runs share the same lock.
type SweepScheduler struct {
	sweeper Sweeper
	newLock LockFactory
	hour    int
	minute  int
	loc     *time.Location
	now     func() time.Time

	// Stats
	runs    int64
	skipped int64

	lastMu      sync.RWMutex
	lastRun     time.Time
	lastUpdated int
	lastErr     error

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
	log     *logger.Logger
}

// SweepStatus reports the most recent run.
type SweepStatus struct {
	Running     bool      `json:"running"`
	Runs        int64     `json:"runs"`
	Skipped     int64     `json:"skipped"`
	LastRun     time.Time `json:"last_run,omitempty"`
	LastUpdated int       `json:"last_updated"`
	LastError   string    `json:"last_error,omitempty"`
	NextRun     time.Time `json:"next_run"`
}

// NewSweepScheduler parses at as "HH:MM" in loc.
func NewSweepScheduler(sweeper Sweeper, newLock LockFactory, at string, loc *time.Location) (*SweepScheduler, error) {
	h, m, err := parseClock(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SweepScheduler{
		sweeper: sweeper,
		newLock: newLock,
		hour:    h,
		minute:  m,
		loc:     loc,
		now:     time.Now,
		log:     logger.With("component", "sweep-scheduler"),
	}, nil
}

func parseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid sweep time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid sweep hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid sweep minute in %q", s)
	}
	return h, m, nil
}

// NextRun returns the first trigger time strictly after now.
func (s *SweepScheduler) NextRun(now time.Time) time.Time {
	t := now.In(s.loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// RunOnce sweeps under the lock. It returns ErrSweepInProgress when another
// run holds the lock.
func (s *SweepScheduler) RunOnce(ctx context.Context) (int, error) {
	var updated int
	err := distlock.TryRun(ctx, s.newLock(), func(ctx context.Context) error {
		n, err := s.sweeper.Sweep(ctx)
		updated = n
		return err
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		atomic.AddInt64(&s.skipped, 1)
		metrics.SweepRuns.WithLabelValues("in_progress").Inc()
		return 0, ErrSweepInProgress
	}
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
	} else {
		metrics.SweepRuns.WithLabelValues("ok").Inc()
	}
	metrics.SweepUpdated.Add(float64(updated))

	atomic.AddInt64(&s.runs, 1)
	s.lastMu.Lock()
	s.lastRun = s.now()
	s.lastUpdated = updated
	s.lastErr = err
	s.lastMu.Unlock()

	return updated, err
}

// Start launches the daily trigger loop.
func (s *SweepScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweep scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.loop()

	s.log.Info("started", "at", fmt.Sprintf("%02d:%02d", s.hour, s.minute), "timezone", s.loc.String())
	return nil
}

// Stop ends the loop and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("stopped", "runs", atomic.LoadInt64(&s.runs), "skipped", atomic.LoadInt64(&s.skipped))
}

func (s *SweepScheduler) Status() SweepStatus {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	st := SweepStatus{
		Running:     running,
		Runs:        atomic.LoadInt64(&s.runs),
		Skipped:     atomic.LoadInt64(&s.skipped),
		LastRun:     s.lastRun,
		LastUpdated: s.lastUpdated,
		NextRun:     s.NextRun(s.now()),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *SweepScheduler) loop() {
	defer s.wg.Done()
	for {
		next := s.NextRun(s.now())
		timer := time.NewTimer(time.Until(next))
		s.log.Debug("next sweep scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.trigger()
		}
	}
}

func (s *SweepScheduler) trigger() {
	start := time.Now()
	n, err := s.RunOnce(s.ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		s.log.Info("sweep skipped, held by another instance")
	case err != nil:
		s.log.Error("sweep failed", "error", err, "updated", n)
	default:
		s.log.Info("sweep complete", "updated", n, "duration_ms", time.Since(start).Milliseconds())
	}
}

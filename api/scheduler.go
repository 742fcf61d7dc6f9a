/*
scheduler.go - Subscription expiry scheduler

PURPOSE:
  Periodically marks active subscriptions whose expiry date has passed as
  expired, so that listings show the real status. Booking re-checks expiry
  on its own; the sweep only keeps stored status in line with time.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once immediately on start, then on every tick
  - Keeps the result of the last sweep for the status endpoint and tests

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewExpiryScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - walks/subscription.go: ExpireSubscriptions
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/walk-engine/walks"
)

// SweepResult records one expiry sweep.
type SweepResult struct {
	At      time.Time
	Expired int
	Err     error
}

// ExpiryScheduler runs walks.Engine.ExpireSubscriptions on a ticker.
type ExpiryScheduler struct {
	Engine        *walks.Engine
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	last    SweepResult
	started bool
}

// NewExpiryScheduler creates a new scheduler.
func NewExpiryScheduler(engine *walks.Engine, logger *slog.Logger) *ExpiryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryScheduler{
		Engine:        engine,
		Logger:        logger,
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *ExpiryScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("expiry scheduler disabled")
		return
	}
	if s.started {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.started = true
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("expiry scheduler started", slog.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("expiry scheduler stopped")
}

func (s *ExpiryScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (s *ExpiryScheduler) RunNow(ctx context.Context) SweepResult {
	n, err := s.Engine.ExpireSubscriptions(ctx)
	result := SweepResult{At: s.Engine.Options().Now(), Expired: n, Err: err}

	if err != nil {
		s.Logger.Error("expiry sweep failed", slog.Int("expired", n), slog.String("error", err.Error()))
	} else if n > 0 {
		s.Logger.Info("expiry sweep", slog.Int("expired", n))
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return result
}

// LastRun returns the most recent sweep result.
func (s *ExpiryScheduler) LastRun() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

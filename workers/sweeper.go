// Package workers runs the circulation sweeps on a timer.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"library_circulation/circulation"
)

const defaultInterval = time.Hour

// ErrSweepRunning is returned by TriggerNow while another run is in progress.
var ErrSweepRunning = errors.New("sweep already running")

type Runner interface {
	RunOnce(ctx context.Context) (circulation.SweepReport, error)
}

// Sweeper calls Runner.RunOnce at startup and then once per interval. Runs
// never overlap: a tick that lands on a running sweep is skipped.
type Sweeper struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSweeper(r Runner, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{runner: r, interval: interval, logger: logger}
}

// Start launches the loop. Calling it twice has no effect.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	s.logger.Info("sweeper started", "interval", s.interval.String())
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// TriggerNow runs one sweep synchronously, for the admin endpoint.
func (s *Sweeper) TriggerNow(ctx context.Context) (circulation.SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return circulation.SweepReport{}, ErrSweepRunning
	}
	defer s.running.Store(false)
	return s.runner.RunOnce(ctx)
}

func (s *Sweeper) tick(ctx context.Context) {
	rep, err := s.TriggerNow(ctx)
	switch {
	case errors.Is(err, ErrSweepRunning):
		s.logger.DebugContext(ctx, "sweep skipped, previous run still going")
	case err != nil:
		s.logger.ErrorContext(ctx, "sweep failed", "error", err, "expired", rep.Expired)
	default:
		s.logger.InfoContext(ctx, "sweep done",
			"expired", rep.Expired,
			"warnings", rep.Overdue.Warnings,
			"reminders", rep.Overdue.Reminders,
			"emails", rep.Overdue.EmailsSent,
			"took", rep.FinishedAt.Sub(rep.StartedAt).String(),
		)
	}
}

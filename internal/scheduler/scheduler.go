// Package scheduler drives the recurring ingestion pass on a ticker.
package scheduler

import (
	"context"
	"errors"
	"time"

	"geopulse/internal/logger"
	"geopulse/internal/rss"
)

type Scheduler struct {
	interval time.Duration
	job      func(context.Context) error
	stop     chan struct{}
}

func New(interval time.Duration, job func(context.Context) error) *Scheduler {
	return &Scheduler{interval: interval, job: job}
}

// Start runs the job once immediately and then on every tick until ctx
// is cancelled or Stop is called. An overlapping run reported through
// rss.ErrFetchInProgress is expected and skipped quietly.
func (s *Scheduler) Start(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.job(ctx); err != nil {
		if errors.Is(err, rss.ErrFetchInProgress) {
			logger.Debug("scheduled fetch skipped, pass already running")
			return
		}
		logger.Error("scheduled fetch failed", "error", err)
	}
}

// Stop halts the ticker goroutine.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

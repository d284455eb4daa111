package scheduler

import (
	"context"
	"time"

	"inboxstats-backend/internal/stats/repository"

	log "github.com/sirupsen/logrus"
)

const staleRunReason = "run did not finish, server stopped or timed out"

// RunReaper fails load runs left in the running state, e.g. after a crash.
type RunReaper struct {
	runRepo  repository.LoadRunRepository
	maxAge   time.Duration
	interval time.Duration
	stopChan chan struct{}
	now      func() time.Time
}

// NewRunReaper fails runs older than maxAge. maxAge should exceed the
// longest a load is allowed to take.
func NewRunReaper(runRepo repository.LoadRunRepository, maxAge time.Duration) *RunReaper {
	return &RunReaper{
		runRepo:  runRepo,
		maxAge:   maxAge,
		interval: 1 * time.Minute,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the reaper loop
func (s *RunReaper) Start() {
	log.Infof("[RunReaper] Starting (interval: %s, max age: %s)", s.interval, s.maxAge)

	go func() {
		// Run immediately on start
		s.reap()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.reap()
			case <-s.stopChan:
				log.Info("[RunReaper] Stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the reaper
func (s *RunReaper) Stop() {
	close(s.stopChan)
}

func (s *RunReaper) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.runRepo.FailStale(ctx, s.now().Add(-s.maxAge), staleRunReason)
	if err != nil {
		log.WithError(err).Error("[RunReaper] Error failing stale runs")
		return
	}
	if n > 0 {
		log.Infof("[RunReaper] Marked %d stale runs as failed", n)
	}
}

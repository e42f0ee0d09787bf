package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepResult counts what one maintenance pass removed
type SweepResult struct {
	LocksReaped    int64 `json:"locksReaped"`
	HistoryTrimmed int64 `json:"historyTrimmed"`
}

// Sweeper periodically reaps expired leases and applies history retention.
// Both passes are idempotent, so several instances may sweep at once.
type Sweeper struct {
	locks    *LockManager
	history  *HistoryLedger
	interval time.Duration
	log      *logrus.Logger
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(lockManager *LockManager, history *HistoryLedger, interval time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{locks: lockManager, history: history, interval: interval, log: log}
}

// SweepOnce runs one maintenance pass
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var err error

	if result.LocksReaped, err = s.locks.ReapExpired(ctx); err != nil {
		return result, err
	}
	if result.HistoryTrimmed, err = s.history.SweepAll(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Run sweeps until ctx is cancelled. A non-positive interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("background sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("background sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("background sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("sweep failed")
			}
		}
	}
}

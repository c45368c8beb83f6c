package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sync_engine/internal/domain"
)

// Syncer is the scheduled bulk-pull operation.
type Syncer interface {
	Sync(ctx context.Context, opts domain.SyncOptions) (*domain.SyncResult, error)
}

// Sweeper re-dispatches unprocessed webhook events.
type Sweeper interface {
	RetrySweep(ctx context.Context) (int, error)
}

// Scheduler drives the two periodic operations: a full engine sync on the
// sync interval and a webhook retry sweep on its own, usually much shorter,
// interval.
type Scheduler struct {
	syncer        Syncer
	sweeper       Sweeper
	syncInterval  time.Duration
	sweepInterval time.Duration
	runTimeout    time.Duration
	logger        *slog.Logger
}

func NewScheduler(
	syncer Syncer,
	sweeper Sweeper,
	syncInterval, sweepInterval, runTimeout time.Duration,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		syncer:        syncer,
		sweeper:       sweeper,
		syncInterval:  syncInterval,
		sweepInterval: sweepInterval,
		runTimeout:    runTimeout,
		logger:        logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"sync_interval", s.syncInterval,
		"sweep_interval", s.sweepInterval,
	)

	s.runSync(ctx)

	syncTicker := time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()
	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-syncTicker.C:
			s.runSync(ctx)
		case <-sweepTicker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.syncer.Sync(syncCtx, domain.SyncOptions{}); err != nil {
		// An overlapping manual sync is not a scheduler failure.
		if errors.Is(err, domain.ErrSyncInProgress) {
			s.logger.Info("skipping scheduled sync, one already running")
			return
		}
		s.logger.Error("sync failed", "error", err)
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.sweeper.RetrySweep(sweepCtx); err != nil {
		s.logger.Error("retry sweep failed", "error", err)
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobOverdueSweep = "overdue_sweep"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Reconciler reconciliationdomain.Service
	Clock      clock.Clock
	Config     Config                       `optional:"true"`
	Locker     JobLocker                    `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	reconciler reconciliationdomain.Service
	locker     JobLocker
	metrics    *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Reconciler == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		reconciler: p.Reconciler,
		locker:     p.Locker,
		metrics:    metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	log := s.logger(ctx).With(zap.String("job", name))

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			s.metrics.IncJobError(name, err)
			return fmt.Errorf("%s: acquire lock: %w", name, err)
		}
		if !ok {
			s.metrics.IncJobSkipped(name, obsmetrics.SchedulerJobReasonLockHeld)
			log.Debug("job skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			// The job context may already be done; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, s.cfg.LockKey, token); err != nil {
				log.Warn("release job lock failed", zap.Error(err))
			}
		}()
	}

	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobOverdueSweep, s.cfg.JobTimeout, s.OverdueSweepJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

// OverdueSweepJob marks every past-due UNPAID or PARTIAL document OVERDUE.
func (s *Scheduler) OverdueSweepJob(ctx context.Context, run *jobRun) error {
	marked, err := s.reconciler.SweepOverdue(ctx)
	run.AddProcessed(marked)
	s.metrics.AddBatchProcessed(jobOverdueSweep, "ledger_documents", marked)
	return err
}

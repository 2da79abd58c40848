package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tribewave/tribewave/internal/ambassador"
	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/locking"
	"github.com/tribewave/tribewave/internal/message/dispatcher"
	"github.com/tribewave/tribewave/internal/network/snapshot"
	obsmetrics "github.com/tribewave/tribewave/internal/observability/metrics"
)

const (
	jobPromote  = "promote_ambassadors"
	jobRecount  = "recompute_network"
	jobDispatch = "dispatch_messages"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Promoter   *ambassador.Promoter
	Recomputer *snapshot.Recomputer
	Dispatcher *dispatcher.Dispatcher
	Locker     *locking.Locker `optional:"true"`
	Config     Config          `optional:"true"`
}

// Scheduler drives the three periodic sweeps: ambassador promotion,
// network recount, and message dispatch.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	genID      *snowflake.Node
	promoter   *ambassador.Promoter
	recomputer *snapshot.Recomputer
	dispatcher *dispatcher.Dispatcher
	locker     *locking.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Promoter == nil || p.Recomputer == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		genID:      p.GenID,
		promoter:   p.Promoter,
		recomputer: p.Recomputer,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	runID := s.genID.Generate().String()
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)
	log.Info("scheduler.job.start")

	sweepMetrics := obsmetrics.Sweep()
	sweepMetrics.IncJobRun(name)

	processed, err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, time.Since(start))
	sweepMetrics.AddBatchProcessed(name, "user", processed)

	fields := []zap.Field{
		zap.Int("processed_count", processed),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if err == nil {
		log.Info("scheduler.job.finish", fields...)
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		sweepMetrics.IncJobTimeout(name)
	}
	sweepMetrics.IncJobError(name, err)
	if isTimeout {
		// Soft timeout: the next run picks up where this one stopped.
		log.Warn("scheduler.job.timeout", append(fields,
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)...)
		return nil
	}

	log.Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", name, err)
}

// withAdvisoryLock wraps fn so only one instance runs the job at a time
// when redis is configured. Without redis the job runs unguarded.
func (s *Scheduler) withAdvisoryLock(name string, ttl time.Duration, fn func(ctx context.Context) (int, error)) func(ctx context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		if s.locker == nil {
			return fn(ctx)
		}
		key := "sweep:" + name
		token, ok, err := s.locker.TryLock(ctx, key, ttl)
		if err != nil {
			s.log.Warn("advisory lock unavailable, running unguarded",
				zap.String("job", name),
				zap.Error(err),
			)
			return fn(ctx)
		}
		if !ok {
			s.log.Debug("sweep already running elsewhere", zap.String("job", name))
			return 0, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("advisory lock release failed",
					zap.String("job", name),
					zap.Error(err),
				)
			}
		}()
		return fn(ctx)
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{jobPromote, s.isJobEnabled(jobPromote), func(ctx context.Context) error {
			return s.runJob(ctx, jobPromote, s.cfg.PromoteTimeout,
				s.withAdvisoryLock(jobPromote, s.cfg.PromoteTimeout, s.promoter.PromoteEligible))
		}},
		{jobRecount, s.isJobEnabled(jobRecount), func(ctx context.Context) error {
			return s.runJob(ctx, jobRecount, s.cfg.RecountTimeout,
				s.withAdvisoryLock(jobRecount, s.cfg.RecountTimeout, s.recomputer.RecomputeAll))
		}},
		{jobDispatch, s.isJobEnabled(jobDispatch), func(ctx context.Context) error {
			return s.runJob(ctx, jobDispatch, s.cfg.DispatchTimeout,
				s.withAdvisoryLock(jobDispatch, s.cfg.DispatchTimeout, s.dispatcher.DispatchDue))
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	sweepMetrics := obsmetrics.Sweep()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			sweepMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

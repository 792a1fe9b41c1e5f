package processor

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/redis"
)

// RunLockKey names the run lock shared by every batch command.
const RunLockKey = "batch-run"

// RunLocker serializes runs across processes; *redis.Locker satisfies it.
type RunLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// RunnerConfig controls the batch loop.
type RunnerConfig struct {
	ScanInterval time.Duration // time between merge scans (default: 1h)
	IdleWait     time.Duration // pause after an empty batch (default: 5s)
	MaxBackoff   time.Duration // cap on retry waits after store failures (default: 1m)
	LockTTL      time.Duration // run lock lease (default: 30m)
}

// Runner drives the ingest and merge processors.
type Runner struct {
	logger  ectologger.Logger
	ingest  *Processor
	merges  *MergeProcessor
	locker  RunLocker
	clock   clockwork.Clock
	cfg     RunnerConfig
	lastRun time.Time
}

// NewRunner creates a runner. locker may be nil when Redis is disabled.
func NewRunner(
	logger ectologger.Logger,
	ingest *Processor,
	merges *MergeProcessor,
	locker RunLocker,
	clock clockwork.Clock,
	cfg RunnerConfig,
) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Runner{
		logger: logger,
		ingest: ingest,
		merges: merges,
		locker: locker,
		clock:  clock,
		cfg:    cfg,
	}
}

func (r *Runner) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.locker == nil {
		return fn(ctx)
	}
	return r.locker.WithLock(ctx, RunLockKey, r.cfg.LockTTL, fn)
}

// Scan runs one merge scan under the run lock.
func (r *Runner) Scan(ctx context.Context, filter models.TeamFilter) ([]models.MergeSuggestion, ScanStats, error) {
	var (
		suggestions []models.MergeSuggestion
		stats       ScanStats
	)
	err := r.locked(ctx, func(ctx context.Context) error {
		if err := r.ingest.RefreshResolver(ctx); err != nil {
			return err
		}
		var err error
		suggestions, stats, err = r.merges.Run(ctx, filter)
		return err
	})
	return suggestions, stats, err
}

// RunOnce processes one ingest batch and, when due, a merge scan.
func (r *Runner) RunOnce(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	err := r.locked(ctx, func(ctx context.Context) error {
		var err error
		stats, err = r.ingest.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if r.merges == nil || r.clock.Since(r.lastRun) < r.cfg.ScanInterval {
			return nil
		}
		if _, _, err := r.merges.Run(ctx, models.TeamFilter{}); err != nil {
			return err
		}
		r.lastRun = r.clock.Now()
		return nil
	})
	return stats, err
}

// Run loops until ctx is done. Failed runs back off with a Fibonacci
// sequence capped at MaxBackoff; the batch is redelivered on the next run.
func (r *Runner) Run(ctx context.Context) error {
	log := r.logger.WithContext(ctx)
	log.WithFields(map[string]any{
		"scan_interval": r.cfg.ScanInterval.String(),
		"idle_wait":     r.cfg.IdleWait.String(),
	}).Info("Starting batch runner")

	a, b := time.Second, time.Second
	for {
		if err := ctx.Err(); err != nil {
			log.Info("Batch runner stopped")
			return nil
		}

		stats, err := r.RunOnce(ctx)
		wait := time.Duration(0)
		switch {
		case err == nil:
			a, b = time.Second, time.Second
			if stats.Fetched == 0 {
				wait = r.cfg.IdleWait
			}
		case errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, redis.ErrLockNotAcquired):
			wait = min(a, r.cfg.MaxBackoff)
			a, b = b, a+b
			log.WithError(err).Warnf("Batch run failed, retrying in %s", wait)
		default:
			wait = min(a, r.cfg.MaxBackoff)
			a, b = b, a+b
			log.WithError(err).Errorf("Batch run failed, retrying in %s", wait)
		}

		if wait == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info("Batch runner stopped")
			return nil
		case <-r.clock.After(wait):
		}
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/swstarter/core/internal/metrics"
	pkgcron "github.com/swstarter/core/internal/pkg/cron"
	"github.com/swstarter/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	JobRecoverStalled = "recover-stalled"
	JobPruneIndex     = "prune-index"
)

// registerCronJobs registers the maintenance jobs that keep the queues and the
// event index healthy.
func (a *App) registerCronJobs() error {
	jobs := []pkgcron.Job{
		{
			Name:        JobRecoverStalled,
			Description: "Requeue jobs whose worker lease expired and sample queue depth",
			Spec:        "@every 30s",
			Fn:          a.recoverStalled,
		},
		{
			Name:        JobPruneIndex,
			Description: "Drop event index entries older than the event TTL",
			Spec:        "@every 10m",
			Fn: func(ctx context.Context) error {
				n, err := a.analytics.Store().PruneIndex(ctx)
				if err != nil {
					return fmt.Errorf("prune event index: %w", err)
				}
				if n > 0 {
					a.logger.Info("pruned event index", zap.Int64("removed", n))
				}
				return nil
			},
		},
	}
	for _, job := range jobs {
		if err := a.sched.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) recoverStalled(ctx context.Context) error {
	for lane, q := range a.analytics.Queues() {
		n, err := q.RecoverStalled(ctx)
		if err != nil {
			return fmt.Errorf("recover %s: %w", lane, err)
		}
		if n > 0 {
			metrics.StalledRecovered.WithLabelValues(lane).Add(float64(n))
			a.logger.Warn("recovered stalled jobs", zap.String("lane", lane), zap.Int("count", n))
		}

		counts, err := q.Counts(ctx)
		if err != nil {
			return fmt.Errorf("count %s: %w", lane, err)
		}
		for _, state := range []taskqueue.JobState{
			taskqueue.StateWaiting, taskqueue.StateDelayed, taskqueue.StateActive,
			taskqueue.StateCompleted, taskqueue.StateFailed,
		} {
			metrics.QueueDepth.WithLabelValues(lane, string(state)).Set(float64(counts.Of(state)))
		}
	}
	return nil
}

func (a *App) cronResult(name string, took time.Duration, err error) {
	metrics.RecordCronRun(name, err)
	if err != nil {
		a.logger.Error("cron job failed", zap.String("job", name), zap.Duration("took", took), zap.Error(err))
		return
	}
	a.logger.Debug("cron job finished", zap.String("job", name), zap.Duration("took", took))
}

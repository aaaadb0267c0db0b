package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/swstarter/core/internal/metrics"
	redisc "github.com/swstarter/core/internal/pkg/redis"
	"github.com/swstarter/core/internal/pkg/supervisor"
	"github.com/swstarter/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const (
	QueryLane       = "query-queue"
	StatsLane       = "stats-queue"
	JobProcessQuery = "process-query"
	JobComputeStats = "compute-stats"

	queryPriority  = 1
	statsPriority  = 10
	enqueueTimeout = 5 * time.Second
)

// Retention caps a lane's finished-job history.
type Retention struct {
	Completed int
	Failed    int
}

// Config wires the pipeline.
type Config struct {
	EventTTL         time.Duration
	HourCounterTTL   time.Duration
	QueryCounterTTL  time.Duration
	StatsCacheTTL    time.Duration
	StatsCron        string
	QueryConcurrency int
	Attempts         int
	QueryRetention   Retention
	StatsRetention   Retention
	Location         *time.Location
}

// Service owns the analytics pipeline: the two job lanes, the event store, the
// aggregator and the stats cache.
type Service struct {
	cfg     Config
	store   *Store
	agg     *Aggregator
	cache   *Cache
	queries *taskqueue.Queue
	stats   *taskqueue.Queue
	spawner *supervisor.Spawner
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for event timestamps and aggregation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the pipeline on rc. Nothing runs until Start and the workers are served.
func NewService(rc *redisc.Client, cfg Config, opts ...Option) *Service {
	if cfg.QueryConcurrency <= 0 {
		cfg.QueryConcurrency = 10
	}
	if cfg.StatsCron == "" {
		cfg.StatsCron = "*/5 * * * *"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Service{cfg: cfg, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("queue-service")

	s.store = NewStore(rc, StoreConfig{
		EventTTL:        cfg.EventTTL,
		HourCounterTTL:  cfg.HourCounterTTL,
		QueryCounterTTL: cfg.QueryCounterTTL,
		Location:        cfg.Location,
	})
	s.store.now = s.now
	s.agg = NewAggregator(s.store, cfg.Location)
	s.agg.now = s.now
	s.cache = NewCache(rc, cfg.StatsCacheTTL)

	s.queries = taskqueue.New(rc, QueryLane,
		taskqueue.WithAttempts(cfg.Attempts, time.Second),
		taskqueue.WithRetention(cfg.QueryRetention.Completed, cfg.QueryRetention.Failed),
		taskqueue.WithClock(s.now),
	)
	s.stats = taskqueue.New(rc, StatsLane,
		taskqueue.WithAttempts(cfg.Attempts, time.Second),
		taskqueue.WithRetention(cfg.StatsRetention.Completed, cfg.StatsRetention.Failed),
		taskqueue.WithClock(s.now),
	)
	s.spawner = supervisor.NewSpawner(s.logger, enqueueTimeout)
	return s
}

// Start registers the repeatable stats job. Registration is idempotent across restarts
// and replicas; an error here means the pipeline cannot run.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.stats.AddRepeatable(ctx, JobComputeStats, struct{}{}, s.cfg.StatsCron, taskqueue.JobOptions{
		Priority: statsPriority,
	}); err != nil {
		return fmt.Errorf("schedule stats computation: %w", err)
	}
	s.logger.Info("stats computation scheduled", zap.String("pattern", s.cfg.StatsCron))
	return nil
}

// Workers returns the lane consumers, to be run under a supervisor.
func (s *Service) Workers() []*taskqueue.Worker {
	return []*taskqueue.Worker{
		s.queries.NewWorker(s.processQuery,
			taskqueue.WithConcurrency(s.cfg.QueryConcurrency),
			taskqueue.OnCompleted(func(job *taskqueue.Job) {
				metrics.RecordJob(QueryLane, jobDuration(job), nil)
				s.logger.Debug("query job completed", zap.String("job", job.ID))
			}),
			taskqueue.OnFailed(func(job *taskqueue.Job, err error) {
				metrics.RecordJob(QueryLane, jobDuration(job), err)
				s.logger.Error("query job failed", zap.String("job", job.ID), zap.Int("attempt", job.AttemptsMade), zap.Error(err))
			}),
			taskqueue.OnError(s.queueError(QueryLane)),
		),
		s.stats.NewWorker(s.computeStats,
			taskqueue.WithConcurrency(1),
			taskqueue.OnCompleted(func(job *taskqueue.Job) {
				metrics.RecordJob(StatsLane, jobDuration(job), nil)
				s.logger.Info("stats computation job completed", zap.String("job", job.ID))
			}),
			taskqueue.OnFailed(func(job *taskqueue.Job, err error) {
				metrics.RecordJob(StatsLane, jobDuration(job), err)
				s.logger.Error("stats computation job failed", zap.String("job", job.ID), zap.Error(err))
			}),
			taskqueue.OnError(s.queueError(StatsLane)),
		),
	}
}

func (s *Service) queueError(lane string) func(error) {
	return func(err error) {
		s.logger.Error("queue error", zap.String("lane", lane), zap.Error(err))
	}
}

// RecordQueryEvent hands a served search to the event lane and returns immediately.
// The enqueue runs detached from the caller; a failure is logged and never surfaces.
func (s *Service) RecordQueryEvent(query, category string, responseTime time.Duration, resultsCount int) {
	event := QueryEvent{
		Query:        strings.TrimSpace(query),
		Category:     category,
		Timestamp:    s.now().UnixMilli(),
		ResponseTime: float64(responseTime) / float64(time.Millisecond),
		ResultsCount: resultsCount,
	}
	s.spawner.Go("enqueue-query-event", func(ctx context.Context) error {
		if _, err := s.queries.Add(ctx, JobProcessQuery, event, taskqueue.JobOptions{Priority: queryPriority}); err != nil {
			metrics.EnqueueFailures.WithLabelValues(QueryLane).Inc()
			return fmt.Errorf("add query to queue: %w", err)
		}
		return nil
	})
}

// GetLatestStats returns the cached snapshot, or nil if there is none or the cache
// cannot be read.
func (s *Service) GetLatestStats(ctx context.Context) *StatsSnapshot {
	snap, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Error("failed to get computed stats", zap.Error(err))
		return nil
	}
	return snap
}

// ComputeNow recomputes the snapshot and caches it. On failure the previous snapshot
// stays in place.
func (s *Service) ComputeNow(ctx context.Context) (*StatsSnapshot, error) {
	start := time.Now()
	snap, err := s.agg.ComputeStats(ctx)
	if err != nil {
		metrics.AggregationFailures.Inc()
		return nil, err
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		metrics.AggregationFailures.Inc()
		return nil, fmt.Errorf("store computed stats: %w", err)
	}
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	metrics.RecordSnapshot(snap.TotalQueries, time.UnixMilli(snap.LastComputed))
	return snap, nil
}

// Store exposes the event store for counters and maintenance.
func (s *Service) Store() *Store { return s.store }

// Queues returns both lanes keyed by name.
func (s *Service) Queues() map[string]*taskqueue.Queue {
	return map[string]*taskqueue.Queue{QueryLane: s.queries, StatsLane: s.stats}
}

// Close waits for detached enqueues to drain; whatever is left when ctx ends is cancelled.
func (s *Service) Close(ctx context.Context) error {
	return s.spawner.Wait(ctx)
}

func (s *Service) processQuery(ctx context.Context, job *taskqueue.Job) (interface{}, error) {
	var event QueryEvent
	if err := job.Decode(&event); err != nil {
		return nil, taskqueue.Unrecoverable(fmt.Errorf("decode query event: %w", err))
	}
	s.logger.Info("processing query", zap.String("query", event.Query), zap.String("category", event.storedCategory()))
	if err := s.store.Put(ctx, event); err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			return nil, taskqueue.Unrecoverable(err)
		}
		return nil, err
	}
	return map[string]bool{"success": true}, nil
}

func (s *Service) computeStats(ctx context.Context, _ *taskqueue.Job) (interface{}, error) {
	s.logger.Info("computing statistics")
	snap, err := s.ComputeNow(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("statistics computed", zap.Int("totalQueries", snap.TotalQueries))
	return map[string]interface{}{"success": true, "totalQueries": snap.TotalQueries}, nil
}

func jobDuration(job *taskqueue.Job) time.Duration {
	if job.ProcessedOn == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(job.ProcessedOn))
}

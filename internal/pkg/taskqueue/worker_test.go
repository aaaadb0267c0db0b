package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisc "github.com/swstarter/core/internal/pkg/redis"
)

func openRealtimeQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(redisc.Wrap(rdb), "worker-queue", opts...)
}

func startWorker(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWorkerRespectsConcurrency(t *testing.T) {
	q := openRealtimeQueue(t)
	ctx := context.Background()

	var (
		inFlight  atomic.Int32
		maxSeen   atomic.Int32
		completed atomic.Int32
	)
	handler := func(ctx context.Context, job *Job) (interface{}, error) {
		n := inFlight.Add(1)
		for {
			seen := maxSeen.Load()
			if n <= seen || maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}

	for i := 0; i < 6; i++ {
		_, err := q.Add(ctx, "work", i, JobOptions{})
		require.NoError(t, err)
	}

	w := q.NewWorker(handler,
		WithConcurrency(2),
		WithPollInterval(10*time.Millisecond),
		OnCompleted(func(*Job) { completed.Add(1) }),
	)
	startWorker(t, w)

	require.Eventually(t, func() bool { return completed.Load() == 6 }, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), counts.Completed)
}

func TestWorkerRecordsPanicsAsFailures(t *testing.T) {
	q := openRealtimeQueue(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		reasons []string
	)
	w := q.NewWorker(func(ctx context.Context, job *Job) (interface{}, error) {
		panic("handler exploded")
	},
		WithPollInterval(10*time.Millisecond),
		OnFailed(func(job *Job, err error) {
			mu.Lock()
			reasons = append(reasons, err.Error())
			mu.Unlock()
		}),
	)

	added, err := q.Add(ctx, "explode", nil, JobOptions{})
	require.NoError(t, err)
	startWorker(t, w)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) == 1
	}, 5*time.Second, 10*time.Millisecond)

	job, err := q.GetJob(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, job.State)
	assert.Contains(t, job.FailedReason, "handler exploded")
}

func TestWorkerPicksUpJobsAddedWhileIdle(t *testing.T) {
	q := openRealtimeQueue(t)
	ctx := context.Background()

	got := make(chan string, 1)
	w := q.NewWorker(func(ctx context.Context, job *Job) (interface{}, error) {
		var payload string
		if err := job.Decode(&payload); err != nil {
			return nil, err
		}
		got <- payload
		return nil, nil
	}, WithPollInterval(time.Second))
	startWorker(t, w)

	_, err := q.Add(ctx, "echo", "hello", JobOptions{})
	require.NoError(t, err)

	select {
	case payload := <-got:
		assert.Equal(t, "hello", payload)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not processed")
	}
}

func TestWorkerReleasesJobOnShutdown(t *testing.T) {
	q := openRealtimeQueue(t)
	ctx := context.Background()

	started := make(chan struct{})
	w := q.NewWorker(func(ctx context.Context, job *Job) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithPollInterval(10*time.Millisecond))

	added, err := q.Add(ctx, "long", nil, JobOptions{})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Serve(runCtx) }()

	<-started
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))

	job, err := q.GetJob(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
	assert.Zero(t, job.AttemptsMade)
}

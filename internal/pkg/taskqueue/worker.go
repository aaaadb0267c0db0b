package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Handler processes one job. The returned value is stored as the job's return value.
type Handler func(ctx context.Context, job *Job) (interface{}, error)

const (
	defaultPollInterval = 250 * time.Millisecond
	ackTimeout          = 5 * time.Second
)

// Worker consumes a Queue with a fixed number of concurrent slots. It implements
// suture.Service so it can run under a supervisor.
type Worker struct {
	q            *Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	onCompleted  func(*Job)
	onFailed     func(*Job, error)
	onError      func(error)
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets how many jobs run at the same time.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollInterval sets how often an idle slot re-checks the lane.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// OnCompleted is called after a job is acknowledged as completed.
func OnCompleted(fn func(*Job)) WorkerOption {
	return func(w *Worker) { w.onCompleted = fn }
}

// OnFailed is called after every failed attempt, including those that will be retried.
func OnFailed(fn func(*Job, error)) WorkerOption {
	return func(w *Worker) { w.onFailed = fn }
}

// OnError receives queue-level errors (claim or acknowledgement failures).
func OnError(fn func(error)) WorkerOption {
	return func(w *Worker) { w.onError = fn }
}

// NewWorker creates a worker for q. Nothing runs until Serve is called.
func (q *Queue) NewWorker(handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		q:            q,
		handler:      handler,
		concurrency:  1,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// String names the worker for supervisor logs.
func (w *Worker) String() string {
	return fmt.Sprintf("worker(%s)", w.q.name)
}

// Serve runs the worker slots until ctx is cancelled. Jobs in flight at shutdown are
// handed back to the wait set.
func (w *Worker) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.q.claim(ctx)
		if err != nil && ctx.Err() == nil {
			w.reportError(err)
		}
		if job == nil {
			if !w.idle(ctx) {
				return
			}
			continue
		}
		w.process(ctx, job)
	}
}

// idle blocks until a job is announced, the poll interval passes, or ctx ends.
func (w *Worker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.q.notify:
		return true
	case <-timer.C:
		return true
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	lockDone := make(chan struct{})
	go func() {
		defer close(lockDone)
		w.keepLock(jobCtx, job, cancel)
	}()

	result, err := w.run(jobCtx, job)
	cancel()
	<-lockDone

	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer ackCancel()

	if err != nil && ctx.Err() != nil {
		if relErr := w.q.release(ackCtx, job); relErr != nil {
			w.reportError(relErr)
		}
		return
	}

	if err != nil {
		if ackErr := w.q.fail(ackCtx, job, err); ackErr != nil {
			w.reportError(ackErr)
			if errors.Is(ackErr, ErrLockLost) {
				return
			}
		}
		if w.onFailed != nil {
			w.onFailed(job, err)
		}
		return
	}

	if ackErr := w.q.complete(ackCtx, job, result); ackErr != nil {
		w.reportError(ackErr)
		return
	}
	if w.onCompleted != nil {
		w.onCompleted(job)
	}
}

func (w *Worker) run(ctx context.Context, job *Job) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.ID, r, debug.Stack())
		}
	}()
	return w.handler(ctx, job)
}

// keepLock extends the lease while the handler runs. Losing the lease cancels the handler.
func (w *Worker) keepLock(ctx context.Context, job *Job, cancel context.CancelFunc) {
	ticker := time.NewTicker(w.q.lockDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.q.extendLock(ctx, job)
			switch {
			case errors.Is(err, ErrLockLost):
				w.reportError(err)
				cancel()
				return
			case err != nil && !errors.Is(err, context.Canceled):
				w.reportError(fmt.Errorf("extend lock %s: %w", job.ID, err))
			}
		}
	}
}

func (w *Worker) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

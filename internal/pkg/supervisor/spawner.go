package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Spawner runs detached fire-and-forget tasks. Each task gets its own context derived
// from the spawner (never from a request), bounded by a timeout. Errors and panics are
// logged and never reach the caller.
type Spawner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewSpawner creates a spawner whose tasks are bounded by timeout.
func NewSpawner(logger *zap.Logger, timeout time.Duration) *Spawner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Spawner{ctx: ctx, cancel: cancel, logger: logger, timeout: timeout}
}

// Go starts fn on a new goroutine and returns immediately.
func (s *Spawner) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("detached task panicked", zap.String("task", name), zap.String("panic", fmt.Sprint(r)))
			}
		}()

		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error("detached task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight tasks finish or ctx expires; remaining tasks are cancelled.
func (s *Spawner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

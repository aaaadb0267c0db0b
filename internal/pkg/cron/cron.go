package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// JobStatus represents the last known state of a job.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
	StatusFulfill JobStatus = "fulfill"
	StatusReject  JobStatus = "reject"
)

// ErrJobNotFound is returned for an unknown job name.
var ErrJobNotFound = errors.New("cron job not found")

// Job defines a scheduled background task. Spec accepts standard five-field cron
// expressions and descriptors such as "@every 30s".
type Job struct {
	Name        string
	Description string
	Spec        string
	Fn          func(ctx context.Context) error
}

// JobState holds runtime state for a registered job.
type JobState struct {
	Job
	schedule  robfig.Schedule
	Status    JobStatus
	Message   string
	LastRunAt *time.Time
	NextRunAt time.Time
	mu        sync.Mutex
}

// ListItem is the serializable representation of a job for the API.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Spec        string     `json:"spec"`
	Status      JobStatus  `json:"status"`
	NextDate    *time.Time `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// TaskResult is returned when polling task execution status.
type TaskResult struct {
	Status  JobStatus `json:"status"` // "fulfill" | "reject" | "running" | "idle"
	Message string    `json:"message,omitempty"`
}

// Scheduler manages a collection of named cron jobs.
type Scheduler struct {
	mu       sync.RWMutex
	jobs     map[string]*JobState
	now      func() time.Time
	onResult func(name string, took time.Duration, err error)
	runs     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now for next-run calculation.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithResultHook is called after every run with its duration and error.
func WithResultHook(fn func(name string, took time.Duration, err error)) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

// New creates an empty Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs: make(map[string]*JobState),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job to the scheduler. Must be called before Serve.
func (s *Scheduler) Register(job Job) error {
	schedule, err := robfig.ParseStandard(job.Spec)
	if err != nil {
		return fmt.Errorf("cron job %q: invalid spec %q: %w", job.Name, job.Spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &JobState{
		Job:       job,
		schedule:  schedule,
		Status:    StatusIdle,
		NextRunAt: schedule.Next(s.now()),
	}
	return nil
}

// Serve runs every registered job on its schedule until ctx is cancelled, then waits
// for runs in progress. It satisfies suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.RLock()
	var wg sync.WaitGroup
	for _, js := range s.jobs {
		wg.Add(1)
		go func(js *JobState) {
			defer wg.Done()
			s.runLoop(ctx, js)
		}(js)
	}
	s.mu.RUnlock()

	wg.Wait()
	s.runs.Wait()
	return ctx.Err()
}

func (s *Scheduler) String() string { return "cron-scheduler" }

func (s *Scheduler) runLoop(ctx context.Context, js *JobState) {
	for {
		js.mu.Lock()
		wait := js.NextRunAt.Sub(s.now())
		js.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(ctx, js)
			js.mu.Lock()
			js.NextRunAt = js.schedule.Next(s.now())
			js.mu.Unlock()
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, js *JobState) {
	js.mu.Lock()
	if js.Status == StatusRunning {
		js.mu.Unlock()
		return
	}
	js.Status = StatusRunning
	js.mu.Unlock()

	now := s.now()
	start := time.Now()
	err := js.Fn(ctx)
	took := time.Since(start)

	js.mu.Lock()
	js.LastRunAt = &now
	if err != nil {
		js.Status = StatusReject
		js.Message = err.Error()
	} else {
		js.Status = StatusFulfill
		js.Message = ""
	}
	js.mu.Unlock()

	if s.onResult != nil {
		s.onResult(js.Name, took, err)
	}
}

// Run manually triggers a job by name (non-blocking). A job already running is skipped.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	js, err := s.lookup(name)
	if err != nil {
		return err
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(ctx, js)
	}()
	return nil
}

// RunSync triggers a job and waits for it to finish.
func (s *Scheduler) RunSync(ctx context.Context, name string) (*TaskResult, error) {
	js, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, js)
	return s.GetTask(name)
}

// GetTask returns the current execution state of a job.
func (s *Scheduler) GetTask(name string) (*TaskResult, error) {
	js, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return &TaskResult{Status: js.Status, Message: js.Message}, nil
}

func (s *Scheduler) lookup(name string) (*JobState, error) {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	return js, nil
}

// List returns a summary of all registered jobs, sorted by name.
func (s *Scheduler) List() []ListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ListItem, 0, len(s.jobs))
	for _, js := range s.jobs {
		js.mu.Lock()
		next := js.NextRunAt
		items = append(items, ListItem{
			Name:        js.Name,
			Description: js.Description,
			Spec:        js.Spec,
			Status:      js.Status,
			NextDate:    &next,
			LastRunAt:   js.LastRunAt,
			Message:     js.Message,
		})
		js.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

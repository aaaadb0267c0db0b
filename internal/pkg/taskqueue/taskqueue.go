package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	redisc "github.com/swstarter/core/internal/pkg/redis"
)

// JobState represents the lifecycle state of a job.
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateDelayed   JobState = "delayed"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// ErrJobNotFound is returned when a job record does not exist (or was trimmed from history).
var ErrJobNotFound = errors.New("job not found")

type unrecoverableError struct{ err error }

func (e *unrecoverableError) Error() string { return e.err.Error() }
func (e *unrecoverableError) Unwrap() error { return e.err }

// Unrecoverable marks a handler error that no retry can fix; the job goes straight to failed.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &unrecoverableError{err: err}
}

// IsUnrecoverable reports whether err was marked with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var u *unrecoverableError
	return errors.As(err, &u)
}

// Job is a unit of background work stored in Redis.
type Job struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Data         json.RawMessage `json:"data"`
	Priority     int             `json:"priority"`
	State        JobState        `json:"state"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	Timestamp    int64           `json:"timestamp"`
	ScheduledAt  int64           `json:"scheduledAt,omitempty"`
	ProcessedOn  int64           `json:"processedOn,omitempty"`
	FinishedOn   int64           `json:"finishedOn,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	ReturnValue  json.RawMessage `json:"returnValue,omitempty"`
	RepeatKey    string          `json:"repeatKey,omitempty"`
	Seq          int64           `json:"seq"`

	lockToken string
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if len(j.Data) == 0 {
		return nil
	}
	return json.Unmarshal(j.Data, v)
}

// JobOptions tune a single Add call. Zero values fall back to the queue defaults.
type JobOptions struct {
	// Priority orders waiting jobs; lower runs first, 0 is the highest.
	Priority int
	// Delay postpones the job until now+Delay.
	Delay time.Duration
	// JobID makes Add idempotent: a second Add with the same id returns the stored job.
	JobID string
	// Attempts overrides the queue's attempt budget.
	Attempts int
}

const (
	defaultPrefix       = "bull"
	defaultAttempts     = 1
	defaultBackoff      = time.Second
	defaultLockDuration = 30 * time.Second
	maxPriority         = 1<<21 - 1
	promoteBatch        = 100
)

// Queue is one lane of Redis-backed work: jobs are added here and consumed by Workers.
type Queue struct {
	name             string
	rc               *redisc.Client
	keys             keys
	attempts         int
	backoff          time.Duration
	removeOnComplete int
	removeOnFail     int
	lockDuration     time.Duration
	now              func() time.Time
	notify           chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithAttempts sets how many times a job runs before it is moved to failed, and the
// base of the exponential retry backoff.
func WithAttempts(attempts int, backoff time.Duration) Option {
	return func(q *Queue) {
		if attempts > 0 {
			q.attempts = attempts
		}
		if backoff > 0 {
			q.backoff = backoff
		}
	}
}

// WithRetention caps the completed and failed histories. 0 removes finished jobs immediately,
// a negative value keeps everything.
func WithRetention(completed, failed int) Option {
	return func(q *Queue) {
		q.removeOnComplete = completed
		q.removeOnFail = failed
	}
}

// WithLockDuration sets how long a claimed job stays leased before it counts as stalled.
func WithLockDuration(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lockDuration = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a queue named name on rc.
func New(rc *redisc.Client, name string, opts ...Option) *Queue {
	q := &Queue{
		name:             name,
		rc:               rc,
		keys:             newKeys(defaultPrefix, name),
		attempts:         defaultAttempts,
		backoff:          defaultBackoff,
		removeOnComplete: -1,
		removeOnFail:     -1,
		lockDuration:     defaultLockDuration,
		now:              time.Now,
		notify:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the lane name.
func (q *Queue) Name() string { return q.name }

type keys struct {
	wait, delayed, active, completed, failed, prio, locks, repeat, seq, jobPrefix string
}

func newKeys(prefix, name string) keys {
	base := prefix + ":" + name + ":"
	return keys{
		wait:      base + "wait",
		delayed:   base + "delayed",
		active:    base + "active",
		completed: base + "completed",
		failed:    base + "failed",
		prio:      base + "prio",
		locks:     base + "locks",
		repeat:    base + "repeat",
		seq:       base + "seq",
		jobPrefix: base + "job:",
	}
}

func (k keys) job(id string) string { return k.jobPrefix + id }

// Add enqueues a job. With opts.JobID set, an existing job with that id is returned untouched.
func (q *Queue) Add(ctx context.Context, name string, data interface{}, opts JobOptions) (*Job, error) {
	return q.add(ctx, name, data, opts, "")
}

func (q *Queue) add(ctx context.Context, name string, data interface{}, opts JobOptions, repeatKey string) (*Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job data: %w", err)
	}

	seq, err := q.rc.Raw().Incr(ctx, q.keys.seq).Result()
	if err != nil {
		return nil, err
	}

	now := q.now()
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = q.attempts
	}
	job := &Job{
		ID:          opts.JobID,
		Name:        name,
		Data:        payload,
		Priority:    clampPriority(opts.Priority),
		State:       StateWaiting,
		MaxAttempts: attempts,
		Timestamp:   now.UnixMilli(),
		RepeatKey:   repeatKey,
		Seq:         seq,
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	var readyAt int64
	if opts.Delay > 0 {
		readyAt = now.Add(opts.Delay).UnixMilli()
		job.State = StateDelayed
		job.ScheduledAt = readyAt
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	created, err := addScript.Run(ctx, q.rc.Raw(),
		[]string{q.keys.job(job.ID), q.keys.prio, q.keys.wait, q.keys.delayed},
		encoded, scoreString(job.Priority, seq), readyAt, job.ID,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("add job: %w", err)
	}
	if created == 0 {
		return q.GetJob(ctx, job.ID)
	}
	if readyAt == 0 {
		q.wake()
	}
	return job, nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// GetJob loads a job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.rc.GetBytes(ctx, q.keys.job(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrJobNotFound
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

// scoreString orders the wait set by priority first, then insertion order.
func scoreString(priority int, seq int64) string {
	score := uint64(priority)<<32 | uint64(seq)&0xffffffff
	return strconv.FormatUint(score, 10)
}

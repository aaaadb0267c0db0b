package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Counts is a per-state job tally.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Of returns the tally for one state.
func (c Counts) Of(state JobState) int64 {
	switch state {
	case StateWaiting:
		return c.Waiting
	case StateDelayed:
		return c.Delayed
	case StateActive:
		return c.Active
	case StateCompleted:
		return c.Completed
	case StateFailed:
		return c.Failed
	}
	return 0
}

// ErrInvalidState is returned for a state name that is not a JobState.
var ErrInvalidState = errors.New("invalid job state")

// ParseState validates a state name.
func ParseState(s string) (JobState, error) {
	switch JobState(s) {
	case StateWaiting, StateDelayed, StateActive, StateCompleted, StateFailed:
		return JobState(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// Counts returns how many jobs are in each state.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var (
		waiting, delayed, active *redis.IntCmd
		completed, failed        *redis.IntCmd
	)
	_, err := q.rc.Raw().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.ZCard(ctx, q.keys.wait)
		delayed = pipe.ZCard(ctx, q.keys.delayed)
		active = pipe.ZCard(ctx, q.keys.active)
		completed = pipe.LLen(ctx, q.keys.completed)
		failed = pipe.LLen(ctx, q.keys.failed)
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	return Counts{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// ListJobs returns jobs in state, indexed like ZRANGE/LRANGE (inclusive stop, -1 = last).
// Histories are newest first.
func (q *Queue) ListJobs(ctx context.Context, state JobState, start, stop int64) ([]*Job, error) {
	rdb := q.rc.Raw()
	var (
		ids []string
		err error
	)
	switch state {
	case StateWaiting:
		ids, err = rdb.ZRange(ctx, q.keys.wait, start, stop).Result()
	case StateDelayed:
		ids, err = rdb.ZRange(ctx, q.keys.delayed, start, stop).Result()
	case StateActive:
		ids, err = rdb.ZRange(ctx, q.keys.active, start, stop).Result()
	case StateCompleted:
		ids, err = rdb.LRange(ctx, q.keys.completed, start, stop).Result()
	case StateFailed:
		ids, err = rdb.LRange(ctx, q.keys.failed, start, stop).Result()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	if err != nil {
		return nil, err
	}
	return q.loadJobs(ctx, ids)
}

func (q *Queue) loadJobs(ctx context.Context, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return []*Job{}, nil
	}
	jobKeys := make([]string, len(ids))
	for i, id := range ids {
		jobKeys[i] = q.keys.job(id)
	}
	values, err := q.rc.Raw().MGet(ctx, jobKeys...).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Retry moves a failed job back to the wait set with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, id string) (*Job, error) {
	job, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := q.rc.Raw().LRem(ctx, q.keys.failed, 1, id).Result()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, fmt.Errorf("%w: job %s is %s, not failed", ErrInvalidState, id, job.State)
	}

	seq, err := q.rc.Raw().Incr(ctx, q.keys.seq).Result()
	if err != nil {
		return nil, err
	}
	job.Seq = seq
	job.State = StateWaiting
	job.AttemptsMade = 0
	job.FailedReason = ""
	job.FinishedOn = 0
	job.ScheduledAt = 0
	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	score := waitScore(job)
	err = q.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.keys.job(job.ID), encoded, 0)
		pipe.HSet(ctx, q.keys.prio, job.ID, scoreString(job.Priority, seq))
		pipe.ZAdd(ctx, q.keys.wait, redis.Z{Score: score, Member: job.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.wake()
	return job, nil
}

// Clean empties a finished history (completed or failed) and returns how many jobs were removed.
func (q *Queue) Clean(ctx context.Context, state JobState) (int, error) {
	var listKey string
	switch state {
	case StateCompleted:
		listKey = q.keys.completed
	case StateFailed:
		listKey = q.keys.failed
	default:
		return 0, fmt.Errorf("%w: only completed and failed can be cleaned", ErrInvalidState)
	}
	return q.trim(ctx, listKey, 0)
}

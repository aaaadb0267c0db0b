package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockLost is returned when a job is acknowledged or extended by a worker whose lease
// expired and was taken over. The stale result is dropped.
var ErrLockLost = errors.New("job lock lost")

// stalledReason is recorded on jobs whose lease ran out.
const stalledReason = "job stalled: lease expired before the worker finished"

const (
	finishHistory = "history"
	finishRequeue = "requeue"

	recoverRetries = 3
)

// claim leases the next runnable job, promoting due delayed jobs first.
// It returns (nil, nil) when the lane is empty.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	for {
		now := q.now()
		token := uuid.NewString()
		id, err := claimScript.Run(ctx, q.rc.Raw(),
			[]string{q.keys.wait, q.keys.delayed, q.keys.active, q.keys.prio, q.keys.locks},
			now.UnixMilli(), now.Add(q.lockDuration).UnixMilli(), promoteBatch, token,
		).Text()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}

		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// Record vanished (cleaned while queued); drop the orphan id.
			err = q.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, q.keys.active, id)
				pipe.HDel(ctx, q.keys.locks, id)
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		job.lockToken = token
		job.State = StateActive
		job.ProcessedOn = now.UnixMilli()
		if err := q.save(ctx, job); err != nil {
			return nil, err
		}

		if job.RepeatKey != "" {
			from := now
			if scheduled := time.UnixMilli(job.ScheduledAt); job.ScheduledAt > 0 && scheduled.After(from) {
				from = scheduled
			}
			if err := q.scheduleNextOccurrence(ctx, job.RepeatKey, from); err != nil {
				return job, fmt.Errorf("schedule next %s: %w", job.RepeatKey, err)
			}
		}
		return job, nil
	}
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rc.Raw().Set(ctx, q.keys.job(job.ID), encoded, 0).Err()
}

// finish runs finishScript for job under its lease token.
func (q *Queue) finish(ctx context.Context, job *Job, mode, target string, arg interface{}) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := finishScript.Run(ctx, q.rc.Raw(),
		[]string{q.keys.active, q.keys.locks, q.keys.prio, q.keys.job(job.ID), target},
		job.ID, job.lockToken, encoded, mode, arg, q.keys.jobPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("settle job %s: %w", job.ID, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, job.ID)
	}
	return nil
}

func (q *Queue) complete(ctx context.Context, job *Job, result interface{}) error {
	job.State = StateCompleted
	job.FinishedOn = q.now().UnixMilli()
	job.FailedReason = ""
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		job.ReturnValue = encoded
	}
	return q.finish(ctx, job, finishHistory, q.keys.completed, q.removeOnComplete)
}

// fail records a failed attempt. The job is retried with exponential backoff until its
// attempt budget is spent, then it moves to the failed history. Unrecoverable errors
// skip the remaining attempts.
func (q *Queue) fail(ctx context.Context, job *Job, cause error) error {
	now := q.now()
	job.AttemptsMade++
	job.FailedReason = cause.Error()

	if job.AttemptsMade < job.MaxAttempts && !IsUnrecoverable(cause) {
		readyAt := now.Add(q.backoffFor(job.AttemptsMade)).UnixMilli()
		job.State = StateDelayed
		job.ScheduledAt = readyAt
		return q.finish(ctx, job, finishRequeue, q.keys.delayed, readyAt)
	}

	job.State = StateFailed
	job.FinishedOn = now.UnixMilli()
	return q.finish(ctx, job, finishHistory, q.keys.failed, q.removeOnFail)
}

// release hands an unfinished job back to the wait set without spending an attempt.
func (q *Queue) release(ctx context.Context, job *Job) error {
	job.State = StateWaiting
	if err := q.finish(ctx, job, finishRequeue, q.keys.wait, scoreString(job.Priority, job.Seq)); err != nil {
		return err
	}
	q.wake()
	return nil
}

// extendLock pushes the lease deadline of an active job forward. It returns ErrLockLost
// once the lease has been recovered and handed to another worker.
func (q *Queue) extendLock(ctx context.Context, job *Job) error {
	deadline := q.now().Add(q.lockDuration).UnixMilli()
	ok, err := extendScript.Run(ctx, q.rc.Raw(),
		[]string{q.keys.active, q.keys.locks},
		job.ID, job.lockToken, deadline,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, job.ID)
	}
	return nil
}

// RecoverStalled settles active jobs whose lease expired. Each stall spends an attempt:
// the job goes back to the wait set while attempts remain, otherwise to the failed history.
// It reports how many jobs were settled.
func (q *Queue) RecoverStalled(ctx context.Context) (int, error) {
	now := q.now()
	ids, err := q.rc.Raw().ZRangeByScore(ctx, q.keys.active, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprint(now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("recover stalled: %w", err)
	}

	var recovered, failed int
	for _, id := range ids {
		outcome, err := q.recoverOne(ctx, id, now)
		if err != nil {
			return recovered + failed, fmt.Errorf("recover stalled %s: %w", id, err)
		}
		switch outcome {
		case StateWaiting:
			recovered++
		case StateFailed:
			failed++
		}
	}
	if failed > 0 {
		if err := q.trimHistory(ctx, q.keys.failed, q.removeOnFail); err != nil {
			return recovered + failed, err
		}
	}
	if recovered > 0 {
		q.wake()
	}
	return recovered + failed, nil
}

// recoverOne moves a single stalled job under WATCH so a concurrent ack or lease extension
// wins. It returns the state the job ended in, or "" when nothing was moved.
func (q *Queue) recoverOne(ctx context.Context, id string, now time.Time) (JobState, error) {
	jobKey := q.keys.job(id)
	for i := 0; i < recoverRetries; i++ {
		var outcome JobState
		err := q.rc.Raw().Watch(ctx, func(tx *redis.Tx) error {
			outcome = ""
			deadline, err := tx.ZScore(ctx, q.keys.active, id).Result()
			if errors.Is(err, redis.Nil) || (err == nil && int64(deadline) > now.UnixMilli()) {
				return nil
			}
			if err != nil {
				return err
			}

			raw, err := tx.Get(ctx, jobKey).Bytes()
			if errors.Is(err, redis.Nil) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.ZRem(ctx, q.keys.active, id)
					pipe.HDel(ctx, q.keys.locks, id)
					return nil
				})
				return err
			}
			if err != nil {
				return err
			}
			var job Job
			if err := json.Unmarshal(raw, &job); err != nil {
				return fmt.Errorf("decode job %s: %w", id, err)
			}

			job.AttemptsMade++
			job.FailedReason = stalledReason
			if job.AttemptsMade >= job.MaxAttempts {
				job.State = StateFailed
				job.FinishedOn = now.UnixMilli()
			} else {
				job.State = StateWaiting
			}
			encoded, err := json.Marshal(&job)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRem(ctx, q.keys.active, id)
				pipe.HDel(ctx, q.keys.locks, id)
				pipe.Set(ctx, jobKey, encoded, 0)
				if job.State == StateFailed {
					pipe.HDel(ctx, q.keys.prio, id)
					pipe.LPush(ctx, q.keys.failed, id)
				} else {
					pipe.ZAdd(ctx, q.keys.wait, redis.Z{Score: waitScore(&job), Member: id})
				}
				return nil
			})
			if err == nil {
				outcome = job.State
			}
			return err
		}, q.keys.active, q.keys.locks, jobKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return outcome, err
	}
	return "", nil
}

func (q *Queue) backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	return q.backoff * time.Duration(1<<(attempt-1))
}

// trimHistory keeps the newest keep ids of a history list and deletes the records of the
// rest, in one step so an id pushed meanwhile is never separated from its record.
func (q *Queue) trimHistory(ctx context.Context, listKey string, keep int) error {
	_, err := q.trim(ctx, listKey, keep)
	return err
}

func (q *Queue) trim(ctx context.Context, listKey string, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}
	return trimScript.Run(ctx, q.rc.Raw(), []string{listKey}, keep, q.keys.jobPrefix).Int()
}

func waitScore(job *Job) float64 {
	return float64(uint64(job.Priority)<<32 | uint64(job.Seq)&0xffffffff)
}

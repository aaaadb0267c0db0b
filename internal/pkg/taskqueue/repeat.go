package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

type repeatSpec struct {
	Name     string          `json:"name"`
	Pattern  string          `json:"pattern"`
	Data     json.RawMessage `json:"data"`
	Priority int             `json:"priority"`
	Attempts int             `json:"attempts,omitempty"`
}

// RepeatableJob describes a registered cron schedule.
type RepeatableJob struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Next    int64  `json:"next"`
}

// AddRepeatable registers a cron-driven job under name and enqueues its next occurrence.
// Registering the same name again replaces the pattern; occurrences are keyed by
// name and fire time, so concurrent registrations never duplicate a run.
func (q *Queue) AddRepeatable(ctx context.Context, name string, data interface{}, pattern string, opts JobOptions) (*Job, error) {
	if _, err := cron.ParseStandard(pattern); err != nil {
		return nil, fmt.Errorf("invalid repeat pattern %q: %w", pattern, err)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode job data: %w", err)
	}
	spec := repeatSpec{Name: name, Pattern: pattern, Data: payload, Priority: opts.Priority, Attempts: opts.Attempts}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	if err := q.rc.Raw().HSet(ctx, q.keys.repeat, name, encoded).Err(); err != nil {
		return nil, err
	}
	return q.enqueueOccurrence(ctx, name, spec, q.now())
}

// RemoveRepeatable unregisters a schedule. An occurrence already queued still runs once.
func (q *Queue) RemoveRepeatable(ctx context.Context, name string) (bool, error) {
	n, err := q.rc.Raw().HDel(ctx, q.keys.repeat, name).Result()
	return n > 0, err
}

// Repeatables lists the registered schedules with their next fire time.
func (q *Queue) Repeatables(ctx context.Context) ([]RepeatableJob, error) {
	raw, err := q.rc.Raw().HGetAll(ctx, q.keys.repeat).Result()
	if err != nil {
		return nil, err
	}
	now := q.now()
	out := make([]RepeatableJob, 0, len(raw))
	for key, value := range raw {
		var spec repeatSpec
		if err := json.Unmarshal([]byte(value), &spec); err != nil {
			return nil, fmt.Errorf("decode repeat %s: %w", key, err)
		}
		item := RepeatableJob{Key: key, Name: spec.Name, Pattern: spec.Pattern}
		if sched, err := cron.ParseStandard(spec.Pattern); err == nil {
			item.Next = sched.Next(now).UnixMilli()
		}
		out = append(out, item)
	}
	return out, nil
}

func (q *Queue) scheduleNextOccurrence(ctx context.Context, key string, from time.Time) error {
	value, err := q.rc.Raw().HGet(ctx, q.keys.repeat, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var spec repeatSpec
	if err := json.Unmarshal([]byte(value), &spec); err != nil {
		return fmt.Errorf("decode repeat %s: %w", key, err)
	}
	_, err = q.enqueueOccurrence(ctx, key, spec, from)
	return err
}

func (q *Queue) enqueueOccurrence(ctx context.Context, key string, spec repeatSpec, from time.Time) (*Job, error) {
	sched, err := cron.ParseStandard(spec.Pattern)
	if err != nil {
		return nil, err
	}
	next := sched.Next(from)
	delay := next.Sub(q.now())
	if delay <= 0 {
		delay = time.Millisecond
	}
	return q.add(ctx, spec.Name, spec.Data, JobOptions{
		Priority: spec.Priority,
		Delay:    delay,
		JobID:    fmt.Sprintf("repeat:%s:%d", key, next.UnixMilli()),
		Attempts: spec.Attempts,
	}, key)
}

package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	redisc "github.com/swstarter/core/internal/pkg/redis"
)

const (
	eventKeyPrefix   = "query:"
	indexKey         = "queries:index"
	hourKeyPrefix    = "queries:hour:"
	queryKeyPrefix   = "queries:text:"
	hoursPerDay      = 24
	defaultRetention = 24 * time.Hour
)

// StoreConfig sets the retention of events and rolling counters.
type StoreConfig struct {
	EventTTL        time.Duration
	HourCounterTTL  time.Duration
	QueryCounterTTL time.Duration
	Location        *time.Location
}

// Store persists query events in Redis and keeps the rolling counters.
type Store struct {
	rc  *redisc.Client
	cfg StoreConfig
	now func() time.Time
}

// NewStore creates a Store. Zero TTLs fall back to 24h, a nil location to time.Local.
func NewStore(rc *redisc.Client, cfg StoreConfig) *Store {
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = defaultRetention
	}
	if cfg.HourCounterTTL <= 0 {
		cfg.HourCounterTTL = defaultRetention
	}
	if cfg.QueryCounterTTL <= 0 {
		cfg.QueryCounterTTL = defaultRetention
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Store{rc: rc, cfg: cfg, now: time.Now}
}

// Put stores the event and bumps its hour and query counters in a single MULTI/EXEC.
func (s *Store) Put(ctx context.Context, e QueryEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	key := eventKeyPrefix + strconv.FormatInt(e.Timestamp, 10) + ":" + uuid.NewString()[:8]
	hourKey := hourKeyPrefix + strconv.Itoa(s.hourOf(e.Timestamp))
	queryKey := queryKeyPrefix + e.NormalizedQuery()
	cutoff := s.now().Add(-s.cfg.EventTTL).UnixMilli()

	err := s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, e.toHash())
		pipe.Expire(ctx, key, s.cfg.EventTTL)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(e.Timestamp), Member: key})
		pipe.ZRemRangeByScore(ctx, indexKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, indexKey, s.cfg.EventTTL)
		pipe.Incr(ctx, hourKey)
		pipe.Expire(ctx, hourKey, s.cfg.HourCounterTTL)
		pipe.Incr(ctx, queryKey)
		pipe.Expire(ctx, queryKey, s.cfg.QueryCounterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store query event: %w", err)
	}
	return nil
}

// ScanWindow returns every live event with timestamp >= since, oldest first.
// since is clamped to the retention horizon.
func (s *Store) ScanWindow(ctx context.Context, since time.Time) ([]QueryEvent, error) {
	floor := s.now().Add(-s.cfg.EventTTL)
	if since.After(floor) {
		floor = since
	}

	keys, err := s.rc.Raw().ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(floor.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan event index: %w", err)
	}
	if len(keys) == 0 {
		return []QueryEvent{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.rc.Raw().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	events := make([]QueryEvent, 0, len(keys))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			// expired between index read and load
			continue
		}
		e, err := eventFromHash(h)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", keys[i], err)
		}
		events = append(events, e)
	}
	return events, nil
}

// PruneIndex drops index entries older than the event TTL and reports how many went.
func (s *Store) PruneIndex(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.EventTTL).UnixMilli()
	return s.rc.Raw().ZRemRangeByScore(ctx, indexKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Result()
}

// HourCounters returns the rolling per-hour counters; hours without traffic are omitted.
func (s *Store) HourCounters(ctx context.Context) (map[int]int64, error) {
	keys := make([]string, hoursPerDay)
	for h := 0; h < hoursPerDay; h++ {
		keys[h] = hourKeyPrefix + strconv.Itoa(h)
	}
	values, err := s.rc.Raw().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int]int64)
	for h, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("hour counter %d: %w", h, err)
		}
		out[h] = n
	}
	return out, nil
}

// QueryCount returns the rolling counter for a query text (case and surrounding space ignored).
func (s *Store) QueryCount(ctx context.Context, query string) (int64, error) {
	v, err := s.rc.Get(ctx, queryKeyPrefix+QueryEvent{Query: query}.NormalizedQuery())
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *Store) hourOf(ts int64) int {
	return time.UnixMilli(ts).In(s.cfg.Location).Hour()
}

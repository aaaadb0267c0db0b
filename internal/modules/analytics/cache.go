package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	redisc "github.com/swstarter/core/internal/pkg/redis"
)

const (
	statsCacheKey        = "computed:stats"
	defaultStatsCacheTTL = 10 * time.Minute
)

// Cache holds the single current snapshot. It never computes.
type Cache struct {
	rc  *redisc.Client
	ttl time.Duration
}

// NewCache creates a Cache whose entry expires after ttl (zero = 10 minutes).
func NewCache(rc *redisc.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultStatsCacheTTL
	}
	return &Cache{rc: rc, ttl: ttl}
}

// Set replaces the snapshot and restarts its TTL.
func (c *Cache) Set(ctx context.Context, snap *StatsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.rc.Set(ctx, statsCacheKey, data, c.ttl)
}

// Get returns the snapshot, or nil when none is cached.
func (c *Cache) Get(ctx context.Context) (*StatsSnapshot, error) {
	data, err := c.rc.GetBytes(ctx, statsCacheKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var snap StatsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

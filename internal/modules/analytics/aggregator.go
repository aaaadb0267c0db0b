package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	// Window is how far back a snapshot looks.
	Window        = 24 * time.Hour
	topQueryLimit = 5
)

// TopQuery is one entry of topQueries.
type TopQuery struct {
	Query      string  `json:"query"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// PopularHour is one entry of popularHours.
type PopularHour struct {
	Hour       int     `json:"hour"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// StatsSnapshot is the computed summary served to clients.
type StatsSnapshot struct {
	TopQueries          []TopQuery    `json:"topQueries"`
	AverageResponseTime float64       `json:"averageResponseTime"`
	PopularHours        []PopularHour `json:"popularHours"`
	TotalQueries        int           `json:"totalQueries"`
	LastComputed        int64         `json:"lastComputed"`
}

// Aggregator recomputes snapshots from the event store.
type Aggregator struct {
	store *Store
	loc   *time.Location
	now   func() time.Time
}

// NewAggregator creates an Aggregator bucketing hours in loc (nil = time.Local).
func NewAggregator(store *Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{store: store, loc: loc, now: time.Now}
}

// ComputeStats scans the trailing window and summarizes it.
func (a *Aggregator) ComputeStats(ctx context.Context) (*StatsSnapshot, error) {
	now := a.now()
	events, err := a.store.ScanWindow(ctx, now.Add(-Window))
	if err != nil {
		return nil, fmt.Errorf("compute stats: %w", err)
	}
	return Compute(events, now, a.loc), nil
}

// Compute summarizes events (expected oldest first). Top queries group by lowercased,
// trimmed text; ties keep the order in which each query was first seen. Popular hours
// are sorted by count, ties by hour. Percentages are relative to len(events).
func Compute(events []QueryEvent, now time.Time, loc *time.Location) *StatsSnapshot {
	if loc == nil {
		loc = time.Local
	}
	total := len(events)
	snap := &StatsSnapshot{
		TopQueries:   []TopQuery{},
		PopularHours: []PopularHour{},
		TotalQueries: total,
		LastComputed: now.UnixMilli(),
	}
	if total == 0 {
		return snap
	}

	var (
		order      []string
		byQuery    = make(map[string]int)
		byHour     = make(map[int]int)
		responseMs float64
	)
	for _, e := range events {
		q := e.NormalizedQuery()
		if _, seen := byQuery[q]; !seen {
			order = append(order, q)
		}
		byQuery[q]++
		byHour[time.UnixMilli(e.Timestamp).In(loc).Hour()]++
		responseMs += e.ResponseTime
	}

	for _, q := range order {
		snap.TopQueries = append(snap.TopQueries, TopQuery{
			Query:      q,
			Count:      byQuery[q],
			Percentage: percentage(byQuery[q], total),
		})
	}
	sort.SliceStable(snap.TopQueries, func(i, j int) bool {
		return snap.TopQueries[i].Count > snap.TopQueries[j].Count
	})
	if len(snap.TopQueries) > topQueryLimit {
		snap.TopQueries = snap.TopQueries[:topQueryLimit]
	}

	for hour, count := range byHour {
		snap.PopularHours = append(snap.PopularHours, PopularHour{
			Hour:       hour,
			Count:      count,
			Percentage: percentage(count, total),
		})
	}
	sort.Slice(snap.PopularHours, func(i, j int) bool {
		a, b := snap.PopularHours[i], snap.PopularHours[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Hour < b.Hour
	})

	snap.AverageResponseTime = responseMs / float64(total)
	return snap
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

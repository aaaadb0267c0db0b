package overview

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/modules/analytics"
	"github.com/swstarter/core/internal/pkg/response"
	"github.com/swstarter/core/internal/pkg/swapi"
	"go.uber.org/zap"
)

// Counter reports how many resources a category holds.
type Counter interface {
	Count(ctx context.Context, cat swapi.Category) (int, error)
}

// SnapshotSource returns the latest cached query statistics, or nil.
type SnapshotSource interface {
	GetLatestStats(ctx context.Context) *analytics.StatsSnapshot
}

type PopulatedCategory struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type MemoryUsage struct {
	Sys       uint64 `json:"sys"`
	HeapSys   uint64 `json:"heapSys"`
	HeapAlloc uint64 `json:"heapAlloc"`
	StackSys  uint64 `json:"stackSys"`
	NumGC     uint32 `json:"numGC"`
}

type SystemInfo struct {
	Uptime      float64     `json:"uptime"`
	MemoryUsage MemoryUsage `json:"memoryUsage"`
	GoVersion   string      `json:"goVersion"`
	Platform    string      `json:"platform"`
	Goroutines  int         `json:"goroutines"`
}

// QueryStats is the snapshot as served: lastComputed is an ISO string, or null
// before the first aggregation.
type QueryStats struct {
	TopQueries          []analytics.TopQuery    `json:"topQueries"`
	AverageResponseTime float64                 `json:"averageResponseTime"`
	PopularHours        []analytics.PopularHour `json:"popularHours"`
	TotalQueries        int                     `json:"totalQueries"`
	LastComputed        *string                 `json:"lastComputed"`
}

type Data struct {
	TotalResources        int               `json:"totalResources"`
	CategoryCounts        map[string]int    `json:"categoryCounts"`
	MostPopulatedCategory PopulatedCategory `json:"mostPopulatedCategory"`
	SystemInfo            SystemInfo        `json:"systemInfo"`
	QueryStats            QueryStats        `json:"queryStats"`
	LastUpdated           string            `json:"lastUpdated"`
}

type Response struct {
	Success   bool   `json:"success"`
	Data      Data   `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Handler serves /stats.
type Handler struct {
	counter Counter
	stats   SnapshotSource
	logger  *zap.Logger
	started time.Time
	now     func() time.Time
}

func NewHandler(counter Counter, stats SnapshotSource, logger *zap.Logger) *Handler {
	return &Handler{
		counter: counter,
		stats:   stats,
		logger:  logger.Named("stats-service"),
		started: time.Now(),
		now:     time.Now,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.get)
}

func (h *Handler) get(c *gin.Context) {
	h.logger.Info("stats endpoint accessed")
	data := h.Build(c.Request.Context())
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: response.ISOTime(h.now()),
	})
}

// Build assembles the stats payload. Category counts that fail are reported as 0.
func (h *Handler) Build(ctx context.Context) Data {
	counts := h.categoryCounts(ctx)
	total := 0
	for _, n := range counts {
		total += n
	}
	return Data{
		TotalResources:        total,
		CategoryCounts:        counts,
		MostPopulatedCategory: mostPopulated(counts),
		SystemInfo:            h.systemInfo(),
		QueryStats:            queryStats(h.stats.GetLatestStats(ctx)),
		LastUpdated:           response.ISOTime(h.now()),
	}
}

func (h *Handler) categoryCounts(ctx context.Context) map[string]int {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		counts = make(map[string]int, len(swapi.Categories))
	)
	for _, cat := range swapi.Categories {
		wg.Add(1)
		go func(cat swapi.Category) {
			defer wg.Done()
			n, err := h.counter.Count(ctx, cat)
			if err != nil {
				h.logger.Error("error getting category count", zap.String("category", cat.String()), zap.Error(err))
				n = 0
			}
			mu.Lock()
			counts[cat.String()] = n
			mu.Unlock()
		}(cat)
	}
	wg.Wait()
	return counts
}

// mostPopulated walks categories in their canonical order so the first of equal
// counts wins; all-zero counts yield "unknown".
func mostPopulated(counts map[string]int) PopulatedCategory {
	best := PopulatedCategory{Category: "unknown"}
	for _, cat := range swapi.Categories {
		if n := counts[cat.String()]; n > best.Count {
			best = PopulatedCategory{Category: cat.String(), Count: n}
		}
	}
	return best
}

func (h *Handler) systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		Uptime: h.now().Sub(h.started).Seconds(),
		MemoryUsage: MemoryUsage{
			Sys:       m.Sys,
			HeapSys:   m.HeapSys,
			HeapAlloc: m.HeapAlloc,
			StackSys:  m.StackSys,
			NumGC:     m.NumGC,
		},
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS,
		Goroutines: runtime.NumGoroutine(),
	}
}

func queryStats(snap *analytics.StatsSnapshot) QueryStats {
	if snap == nil {
		return QueryStats{
			TopQueries:   []analytics.TopQuery{},
			PopularHours: []analytics.PopularHour{},
		}
	}
	computed := response.ISOTime(time.UnixMilli(snap.LastComputed))
	return QueryStats{
		TopQueries:          snap.TopQueries,
		AverageResponseTime: snap.AverageResponseTime,
		PopularHours:        snap.PopularHours,
		TotalQueries:        snap.TotalQueries,
		LastComputed:        &computed,
	}
}

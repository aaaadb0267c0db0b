package counters

import (
	"context"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/pkg/response"
)

// Source exposes the rolling counters kept next to the event store.
type Source interface {
	HourCounters(ctx context.Context) (map[int]int64, error)
	QueryCount(ctx context.Context, query string) (int64, error)
}

type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Result struct {
	Hours []HourCount `json:"hours"`
	Total int64       `json:"total"`
	Query *QueryCount `json:"query,omitempty"`
}

func RegisterRoutes(rg *gin.RouterGroup, src Source) {
	// GET /stats/counters?query=
	rg.GET("/stats/counters", func(c *gin.Context) {
		ctx := c.Request.Context()
		byHour, err := src.HourCounters(ctx)
		if err != nil {
			response.InternalError(c, err)
			return
		}

		out := Result{Hours: make([]HourCount, 0, len(byHour))}
		for h, n := range byHour {
			out.Hours = append(out.Hours, HourCount{Hour: h, Count: n})
			out.Total += n
		}
		sort.Slice(out.Hours, func(i, j int) bool { return out.Hours[i].Hour < out.Hours[j].Hour })

		if q := strings.TrimSpace(c.Query("query")); q != "" {
			n, err := src.QueryCount(ctx, q)
			if err != nil {
				response.InternalError(c, err)
				return
			}
			out.Query = &QueryCount{Query: strings.ToLower(q), Count: n}
		}
		response.OK(c, out)
	})
}

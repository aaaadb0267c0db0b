package search

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/pkg/response"
	"github.com/swstarter/core/internal/pkg/swapi"
	"go.uber.org/zap"
)

const (
	msgQueryRequired = "Query parameter is required"
	msgQueryString   = "Query parameter must be a string"
	msgQueryNotBlank = "Query parameter must be a non-empty string"
)

// Searcher is the upstream lookup the handler fans out to.
type Searcher interface {
	Search(ctx context.Context, cat swapi.Category, query string) ([]swapi.Record, error)
	SearchAll(ctx context.Context, query string) swapi.Results
}

// Recorder receives every served search for analytics. It must not block.
type Recorder interface {
	RecordQueryEvent(query, category string, responseTime time.Duration, resultsCount int)
}

// Handler serves /search.
type Handler struct {
	swapi    Searcher
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewHandler(s Searcher, r Recorder, logger *zap.Logger) *Handler {
	return &Handler{swapi: s, recorder: r, logger: logger.Named("search-controller"), now: time.Now}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("/search", mw...)
	g.GET("", h.searchAll)
	g.GET("/:category", h.searchCategory)
}

type allResponse struct {
	Query        string        `json:"query"`
	TotalResults int           `json:"totalResults"`
	Results      swapi.Results `json:"results"`
	Timestamp    string        `json:"timestamp"`
}

type categoryResponse struct {
	Category     swapi.Category `json:"category"`
	Query        string         `json:"query"`
	TotalResults int            `json:"totalResults"`
	Results      []swapi.Record `json:"results"`
	Timestamp    string         `json:"timestamp"`
}

// GET /search?query=
func (h *Handler) searchAll(c *gin.Context) {
	start := h.now()
	query, ok := h.queryParam(c)
	if !ok {
		return
	}

	h.logger.Info("processing search request", zap.String("query", query))
	results := h.swapi.SearchAll(c.Request.Context(), query)
	total := results.Total()
	elapsed := h.now().Sub(start)
	h.logger.Info("search completed", zap.Int("totalResults", total), zap.Duration("took", elapsed))

	h.recorder.RecordQueryEvent(query, "", elapsed, total)

	c.JSON(http.StatusOK, allResponse{
		Query:        query,
		TotalResults: total,
		Results:      results,
		Timestamp:    response.ISOTime(h.now()),
	})
}

// GET /search/:category?query=
func (h *Handler) searchCategory(c *gin.Context) {
	start := h.now()
	query, ok := h.queryParam(c)
	if !ok {
		return
	}
	cat, err := swapi.ParseCategory(c.Param("category"))
	if err != nil {
		h.logger.Warn("invalid category requested", zap.String("category", c.Param("category")))
		response.Problem(c, http.StatusBadRequest, "", swapi.ValidCategoriesMessage())
		return
	}

	h.logger.Info("processing category search", zap.String("category", cat.String()), zap.String("query", query))
	results, err := h.swapi.Search(c.Request.Context(), cat, query)
	if err != nil {
		h.logger.Error("category search failed", zap.String("category", cat.String()), zap.Error(err))
		_ = c.Error(err)
		c.Abort()
		return
	}
	elapsed := h.now().Sub(start)
	h.logger.Info("search completed", zap.String("category", cat.String()), zap.Int("totalResults", len(results)), zap.Duration("took", elapsed))

	h.recorder.RecordQueryEvent(query, cat.String(), elapsed, len(results))

	c.JSON(http.StatusOK, categoryResponse{
		Category:     cat,
		Query:        query,
		TotalResults: len(results),
		Results:      results,
		Timestamp:    response.ISOTime(h.now()),
	})
}

// queryParam returns the trimmed query or writes the 400 and reports false.
func (h *Handler) queryParam(c *gin.Context) (string, bool) {
	values := c.QueryArray("query")
	var msg string
	switch {
	case len(values) == 0 || values[0] == "":
		msg = msgQueryRequired
	case len(values) > 1:
		msg = msgQueryString
	case strings.TrimSpace(values[0]) == "":
		msg = msgQueryNotBlank
	default:
		return strings.TrimSpace(values[0]), true
	}
	h.logger.Warn("rejected search request", zap.String("reason", msg))
	response.Problem(c, http.StatusBadRequest, "", msg)
	return "", false
}

package queues

import (
	"errors"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/pkg/pagination"
	"github.com/swstarter/core/internal/pkg/response"
	"github.com/swstarter/core/internal/pkg/taskqueue"
)

// Handler exposes the job lanes for inspection and manual repair.
type Handler struct {
	lanes map[string]*taskqueue.Queue
}

func NewHandler(lanes map[string]*taskqueue.Queue) *Handler {
	return &Handler{lanes: lanes}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("/queues", mw...)
	g.GET("", h.list)

	jobs := g.Group("/:lane/jobs")
	jobs.GET("", h.listJobs)
	jobs.GET("/:id", h.getJob)
	jobs.POST("/:id/retry", h.retryJob)
	jobs.DELETE("", h.clean)
}

type laneSummary struct {
	Name        string                    `json:"name"`
	Counts      taskqueue.Counts          `json:"counts"`
	Repeatables []taskqueue.RepeatableJob `json:"repeatables"`
}

// GET /queues
func (h *Handler) list(c *gin.Context) {
	ctx := c.Request.Context()
	names := make([]string, 0, len(h.lanes))
	for name := range h.lanes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]laneSummary, 0, len(names))
	for _, name := range names {
		q := h.lanes[name]
		counts, err := q.Counts(ctx)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		repeatables, err := q.Repeatables(ctx)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		out = append(out, laneSummary{Name: name, Counts: counts, Repeatables: repeatables})
	}
	response.OK(c, out)
}

// GET /queues/:lane/jobs?state=waiting&page=1&size=10
func (h *Handler) listJobs(c *gin.Context) {
	q, ok := h.lane(c)
	if !ok {
		return
	}
	state, err := taskqueue.ParseState(c.DefaultQuery("state", string(taskqueue.StateWaiting)))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	counts, err := q.Counts(ctx)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	page := pagination.FromContext(c)
	start, stop := page.Range()
	jobs, err := q.ListJobs(ctx, state, start, stop)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, jobs, page.Meta(counts.Of(state)))
}

// GET /queues/:lane/jobs/:id
func (h *Handler) getJob(c *gin.Context) {
	q, ok := h.lane(c)
	if !ok {
		return
	}
	job, err := q.GetJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskqueue.ErrJobNotFound) {
		response.NotFoundMsg(c, "job not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, job)
}

// POST /queues/:lane/jobs/:id/retry
func (h *Handler) retryJob(c *gin.Context) {
	q, ok := h.lane(c)
	if !ok {
		return
	}
	job, err := q.Retry(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, taskqueue.ErrJobNotFound):
		response.NotFoundMsg(c, "job not found")
	case errors.Is(err, taskqueue.ErrInvalidState):
		response.Conflict(c, err.Error())
	case err != nil:
		response.InternalError(c, err)
	default:
		response.OK(c, job)
	}
}

// DELETE /queues/:lane/jobs?state=completed|failed
func (h *Handler) clean(c *gin.Context) {
	q, ok := h.lane(c)
	if !ok {
		return
	}
	state, err := taskqueue.ParseState(c.Query("state"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	removed, err := q.Clean(c.Request.Context(), state)
	if errors.Is(err, taskqueue.ErrInvalidState) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

func (h *Handler) lane(c *gin.Context) (*taskqueue.Queue, bool) {
	q, ok := h.lanes[c.Param("lane")]
	if !ok {
		response.NotFoundMsg(c, "queue not found")
	}
	return q, ok
}

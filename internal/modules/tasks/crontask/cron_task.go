package crontask

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	pkgcron "github.com/swstarter/core/internal/pkg/cron"
	"github.com/swstarter/core/internal/pkg/response"
)

// Handler wraps the maintenance scheduler for HTTP access.
type Handler struct {
	sched *pkgcron.Scheduler
}

func NewHandler(sched *pkgcron.Scheduler) *Handler {
	return &Handler{sched: sched}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("/cron-task", mw...)
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)
}

// GET /cron-task: list all jobs
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// GET /cron-task/:name: last run status
func (h *Handler) get(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, result)
}

// POST /cron-task/:name/run?wait=true: trigger a job; with wait, block until it finishes
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	// the run outlives the request unless the caller waits for it
	ctx := context.WithoutCancel(c.Request.Context())

	if c.Query("wait") == "true" {
		result, err := h.sched.RunSync(c.Request.Context(), name)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.OK(c, result)
		return
	}

	if err := h.sched.Run(ctx, name); err != nil {
		h.fail(c, err)
		return
	}
	response.Accepted(c, gin.H{"message": "job triggered"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, pkgcron.ErrJobNotFound) {
		response.NotFoundMsg(c, "cron job not found")
		return
	}
	response.InternalError(c, err)
}

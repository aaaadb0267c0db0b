package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swstarter/core/internal/middleware"
	"github.com/swstarter/core/internal/modules/catalog/resource"
	"github.com/swstarter/core/internal/modules/catalog/search"
	"github.com/swstarter/core/internal/modules/stats/counters"
	"github.com/swstarter/core/internal/modules/stats/overview"
	"github.com/swstarter/core/internal/modules/system/core/health"
	"github.com/swstarter/core/internal/modules/tasks/crontask"
	"github.com/swstarter/core/internal/modules/tasks/queues"
	"github.com/swstarter/core/internal/pkg/response"
)

const apiPrefix = "/api"

func (a *App) registerRoutes() {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.Problem(c, http.StatusNotFound, "", "Route "+c.Request.URL.Path+" not found")
	})
	r.NoMethod(func(c *gin.Context) {
		response.Problem(c, http.StatusMethodNotAllowed, "", "Method "+c.Request.Method+" not allowed")
	})

	r.GET("/", func(c *gin.Context) {
		a.logger.Info("root endpoint accessed")
		c.Redirect(http.StatusFound, apiPrefix)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(apiPrefix)
	api.GET("", a.appInfo)

	var searchMW []gin.HandlerFunc
	if a.cfg.RateLimit.PerSecond > 0 {
		searchMW = append(searchMW, middleware.RateLimit(a.rc.Raw(), a.cfg.RateLimit.PerSecond, a.logger.Named("rate-limit")))
	}
	search.NewHandler(a.swapi, a.analytics, a.logger).RegisterRoutes(api, searchMW...)
	resource.NewHandler(a.swapi, a.logger).RegisterRoutes(api)

	overview.NewHandler(a.swapi, a.analytics, a.logger).RegisterRoutes(api)
	counters.RegisterRoutes(api, a.analytics.Store())

	queues.NewHandler(a.analytics.Queues()).RegisterRoutes(api)
	crontask.NewHandler(a.sched).RegisterRoutes(api)
	health.RegisterRoutes(api, a.rc, a.started)
}

func (a *App) appInfo(c *gin.Context) {
	uptime := time.Since(a.started)
	c.JSON(http.StatusOK, gin.H{
		"name":    "swstarter-core",
		"version": "1.0.0",
		"endpoints": []string{
			apiPrefix + "/search?query=",
			apiPrefix + "/search/:category?query=",
			apiPrefix + "/people/:id",
			apiPrefix + "/films/:id",
			apiPrefix + "/stats",
		},
		"uptime": gin.H{
			"seconds":  int64(uptime.Seconds()),
			"humanize": humanizeDuration(uptime),
		},
	})
}

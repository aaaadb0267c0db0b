package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/config"
	"github.com/swstarter/core/internal/middleware"
	"github.com/swstarter/core/internal/modules/analytics"
	pkgcron "github.com/swstarter/core/internal/pkg/cron"
	pkgredis "github.com/swstarter/core/internal/pkg/redis"
	"github.com/swstarter/core/internal/pkg/supervisor"
	"github.com/swstarter/core/internal/pkg/swapi"
	"go.uber.org/zap"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App holds all application dependencies.
type App struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	rc        *pkgredis.Client
	router    *gin.Engine
	swapi     *swapi.Client
	analytics *analytics.Service
	sched     *pkgcron.Scheduler
	started   time.Time
}

// New initializes the application: config → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	loc, err := applyRuntimeSettings(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		rc:      rc,
		started: time.Now(),
	}
	a.swapi = swapi.New(swapi.Config{
		BaseURL:           cfg.Swapi.BaseURL,
		Timeout:           cfg.Swapi.Timeout(),
		RequestsPerSecond: cfg.Swapi.RequestsPerSecond,
	}, logger)
	a.analytics = analytics.NewService(rc, analyticsConfig(cfg, loc), analytics.WithLogger(logger))

	a.sched = pkgcron.New(pkgcron.WithResultHook(a.cronResult))
	if err := a.registerCronJobs(); err != nil {
		_ = rc.Close()
		return nil, err
	}

	a.router = a.newRouter()
	a.registerRoutes()
	return a, nil
}

func analyticsConfig(cfg *config.AppConfig, loc *time.Location) analytics.Config {
	ac := cfg.Analytics
	return analytics.Config{
		EventTTL:         ac.EventTTL(),
		HourCounterTTL:   ac.HourCounterTTL(),
		QueryCounterTTL:  ac.QueryCounterTTL(),
		StatsCacheTTL:    ac.StatsCacheTTL(),
		StatsCron:        ac.StatsCron,
		QueryConcurrency: ac.QueryConcurrency,
		Attempts:         ac.JobAttempts,
		QueryRetention:   analytics.Retention{Completed: ac.QueryKeepCompleted, Failed: ac.QueryKeepFailed},
		StatsRetention:   analytics.Retention{Completed: ac.StatsKeepCompleted, Failed: ac.StatsKeepFailed},
		Location:         loc,
	}
}

func (a *App) newRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
		gin.DebugPrintRouteFunc = func(method, path, handler string, _ int) {
			a.logger.Debug("route", zap.String("method", method), zap.String("path", path), zap.String("handler", handler))
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Errors(a.logger.Named("error-handler"), a.cfg.IsDev()))
	router.Use(middleware.Logger(a.logger.Named("http")))
	router.Use(corsMiddleware(a.cfg))
	return router
}

// Run starts the pipeline and serves HTTP until ctx is cancelled. The stats schedule
// must register before anything is served; failing that is fatal.
func (a *App) Run(ctx context.Context) error {
	if err := a.analytics.Start(ctx); err != nil {
		return err
	}

	tree := supervisor.NewTree(a.logger, supervisor.TreeConfig{ShutdownTimeout: shutdownTimeout})
	for _, w := range a.analytics.Workers() {
		tree.AddWorker(w)
	}
	tree.AddWorker(a.sched)

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPI(supervisor.NewHTTPService(srv, shutdownTimeout))

	a.logger.Info("server starting",
		zap.String("addr", srv.Addr),
		zap.String("env", a.cfg.Env),
		zap.String("logLevel", a.cfg.LogLevel),
	)
	err := tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		a.logger.Warn("services did not stop in time", zap.Int("count", len(report)))
	}
	return err
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Analytics exposes the pipeline for the CLI.
func (a *App) Analytics() *analytics.Service { return a.analytics }

// Scheduler exposes the maintenance jobs for the CLI.
func (a *App) Scheduler() *pkgcron.Scheduler { return a.sched }

// Close drains detached enqueues and closes Redis.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.analytics.Close(ctx); err != nil {
		a.logger.Warn("detached tasks cancelled on shutdown", zap.Error(err))
	}
	return a.rc.Close()
}

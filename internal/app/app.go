// Package app wires configuration, storage and logging together for the
// queuectl binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/executor"
	"github.com/joshu-sajeev/queuectl/internal/job"
	"github.com/joshu-sajeev/queuectl/internal/logging"
	"github.com/joshu-sajeev/queuectl/internal/pool"
	"github.com/joshu-sajeev/queuectl/internal/storage"
	"github.com/joshu-sajeev/queuectl/internal/worker"
	"github.com/joshu-sajeev/queuectl/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Log      *logrus.Logger
	DB       *gorm.DB
	Repo     *storage.JobRepository
	Service  *job.JobService
	Registry *prometheus.Registry
	Metrics  *worker.Metrics
}

// Bootstrap loads configuration from the environment, connects to and
// migrates the store, then applies settings persisted by config-set.
func Bootstrap(ctx context.Context) (*App, error) {
	cfg, err := config.LoadFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	logrus.SetLevel(log.GetLevel())

	dbCfg, err := storage.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	db, err := storage.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		closeDB(db)
		return nil, err
	}

	repo := storage.NewJobRepository(db,
		storage.WithClaimRetries(cfg.ClaimRetries),
		storage.WithLogger(log),
	)

	settings, err := repo.LoadSettings(ctx)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	if err := cfg.Apply(settings); err != nil {
		log.WithError(err).Warn("ignoring invalid persisted setting")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Repo:     repo,
		Service:  job.NewJobService(repo, cfg, log),
		Registry: reg,
		Metrics:  worker.NewMetrics(reg),
	}, nil
}

func (a *App) Close() {
	closeDB(a.DB)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// NewPool builds a worker pool of n workers from the current configuration.
func (a *App) NewPool(n int) *pool.WorkerPool {
	exec := executor.New(a.Repo, a.Config.Snapshot().Shell, a.Log)
	return pool.NewWorkerPool(n, a.Repo, exec, a.Config,
		pool.WithLogger(a.Log),
		pool.WithMetrics(a.Metrics),
	)
}

// strandedAfter is how long a FAILED job may wait for its worker before
// startup recovery treats it as abandoned.
const strandedAfter = time.Minute

// startPool finishes failure handling left over by earlier processes, then
// starts a pool of n workers.
func (a *App) startPool(ctx context.Context, n int) *pool.WorkerPool {
	repaired, err := a.Repo.RecoverStranded(ctx, strandedAfter)
	if err != nil {
		a.Log.WithError(err).Warn("could not recover stranded jobs")
	} else if repaired > 0 {
		a.Log.WithField("jobs", repaired).Warn("recovered stranded jobs")
	}

	p := a.NewPool(n)
	p.Start()
	return p
}

// RunWorkers starts n workers and blocks until ctx is done, then drains the
// pool for at most shutdown_timeout before canceling running jobs.
func (a *App) RunWorkers(ctx context.Context, n int) error {
	p := a.startPool(ctx, n)

	<-ctx.Done()
	return a.drain(p)
}

func (a *App) drain(p *pool.WorkerPool) error {
	timeout := a.Config.Snapshot().ShutdownTimeout
	a.Log.WithField("timeout", timeout).Info("stopping workers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Router builds the HTTP API with health and metrics endpoints.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.TimeoutMiddleware(10*time.Second), middleware.ErrorHandler(a.Log))

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	job.NewJobHandler(a.Service).RegisterRoutes(r)
	return r
}

// Serve runs the HTTP API on addr until ctx is done. When workers > 0 a
// worker pool runs in the same process.
func (a *App) Serve(ctx context.Context, addr string, workers int) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var p *pool.WorkerPool
	if workers > 0 {
		p = a.startPool(ctx, workers)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", addr).Info("server started")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Snapshot().ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown: %w", err)
	}

	if p != nil {
		if err := a.drain(p); err != nil && runErr == nil {
			runErr = err
		}
	}
	a.Log.Info("server stopped")
	return runErr
}

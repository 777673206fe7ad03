package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/config"
	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/backend"
	"github.com/canopy-network/payoutx/pkg/indexer/activity"
	"github.com/canopy-network/payoutx/pkg/indexer/handler"
	"github.com/canopy-network/payoutx/pkg/indexer/workflow"
	"github.com/canopy-network/payoutx/pkg/metrics"
	"github.com/canopy-network/payoutx/pkg/redis"
	"github.com/canopy-network/payoutx/pkg/rpc"
	"github.com/canopy-network/payoutx/pkg/temporal"
)

type App struct {
	Config         config.Config
	Logger         *zap.Logger
	Store          db.Store
	Redis          *redis.Client
	Handler        *handler.Context
	Metrics        *metrics.IndexerMetrics
	TemporalClient *temporal.Client
	Worker         worker.Worker

	// Cron periodically makes sure the chain workflow is running.
	Cron *cron.Cron
	// Server serves /metrics, /healthz and /readyz.
	Server *http.Server
}

// Initialize connects every backing service and registers the workflow and its activities.
func Initialize(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	store, err := backend.Open(ctx, logger, cfg.Store, "indexer")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New(cfg.Chain.Name)
	factory := rpc.NewHTTPFactory(rpc.Opts{
		Timeout:         cfg.RPC.Timeout,
		RPS:             cfg.RPC.RPS,
		Burst:           cfg.RPC.Burst,
		BreakerFailures: cfg.RPC.BreakerFailures,
		BreakerCooldown: cfg.RPC.BreakerCooldown,
	})
	cached := rpc.NewCachedClient(factory.NewClient(cfg.Chain.Endpoints), cfg.RPC.CacheSizeMB, logger)
	registerCacheGauges(m, cached)

	var publisher redis.Publisher = redis.NopPublisher{}
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, logger, cfg.Redis)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		publisher = redis.NewChannelPublisher(redisClient, cfg.Redis.ChannelPrefix)
	}

	hc := &handler.Context{
		Logger:    logger.Named("handler"),
		Chain:     cfg.Chain.Name,
		Store:     store,
		RPC:       cached,
		Publisher: publisher,
		Metrics:   m,
		Rewards:   cfg.Rewards,
	}

	temporalClient, err := temporal.NewClient(ctx, logger, cfg.Temporal)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("unable to establish temporal connection: %w", err)
	}

	activityContext := &activity.Context{
		Logger:  logger.Named("activity"),
		Chain:   cfg.Chain.Name,
		Handler: hc,
		RPC:     cached,
		Store:   store,
		Metrics: m,
	}
	workflowContext := &workflow.Context{ActivityContext: activityContext}

	// One workflow per chain runs blocks one at a time, so small pools are enough.
	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.GetIndexerQueue(cfg.Chain.Name),
		worker.Options{
			MaxConcurrentWorkflowTaskPollers:       2,
			MaxConcurrentActivityTaskPollers:       4,
			MaxConcurrentActivityExecutionSize:     16,
			MaxConcurrentWorkflowTaskExecutionSize: 16,
			WorkerStopTimeout:                      1 * time.Minute,
		},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.IndexChainWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.IndexChainWorkflowName},
	)
	wkr.RegisterActivity(activityContext.IndexBlock)
	wkr.RegisterActivity(activityContext.GetChainHead)
	wkr.RegisterActivity(activityContext.GetLastIndexed)

	app := &App{
		Config:         cfg,
		Logger:         logger,
		Store:          store,
		Redis:          redisClient,
		Handler:        hc,
		Metrics:        m,
		TemporalClient: temporalClient,
		Worker:         wkr,
	}
	if err := app.SetupScheduler(ctx, cfg.Scheduler.Spec, temporalClient.TClient); err != nil {
		app.Stop()
		return nil, err
	}
	app.SetupServer()
	return app, nil
}

func registerCacheGauges(m *metrics.IndexerMetrics, c *rpc.CachedClient) {
	m.RegisterGaugeFunc("payoutx_rpc_cache_hits", "Chain-state queries served from the cache.", func() float64 {
		return float64(c.Stats().Hits)
	})
	m.RegisterGaugeFunc("payoutx_rpc_cache_misses", "Chain-state queries that missed the cache.", func() float64 {
		return float64(c.Stats().Misses)
	})
	m.RegisterGaugeFunc("payoutx_rpc_cache_entries", "Entries held by the chain-state cache.", func() float64 {
		return float64(c.Stats().Entries)
	})
}

// Start runs the worker, the scheduler and the metrics server until ctx is canceled.
func (a *App) Start(ctx context.Context) error {
	if err := a.Worker.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.StartCron()

	<-ctx.Done()
	a.Stop()
	return nil
}

// Stop releases everything Initialize acquired. It is safe on a partially built App.
func (a *App) Stop() {
	a.StopCron()
	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Server.Shutdown(shutdownCtx)
		cancel()
	}
	if a.Worker != nil {
		a.Worker.Stop()
	}
	if a.Handler != nil {
		a.Handler.Close()
	}
	if a.TemporalClient != nil {
		a.TemporalClient.TClient.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

package main

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderbridge/internal/config"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/pkg/shutdown"
	"renderbridge/internal/repositories"
	"renderbridge/internal/storage"
	"renderbridge/internal/worker"
	"renderbridge/internal/worker/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: cfg.ServiceName + "-worker",
		AddSource:   cfg.LogSource,
	})

	if cfg.DatabaseURL == "" {
		log.LogFatal("missing required configuration", stderrors.New("DATABASE_URL is not set"))
	}

	// Job runs may take minutes; give them room to record their outcome.
	shutdownMgr := shutdown.NewManager(log, 60*time.Second)
	ctx := shutdownMgr.Context()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	if err := repositories.EnsureSchema(ctx, pool); err != nil {
		log.LogFatal("failed to apply schema", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	jobQueue := queue.NewRedisQueue(rdb, cfg.QueueName)
	pending, err := jobQueue.Len(ctx)
	if err != nil {
		log.LogFatal("failed to reach job queue", err, "queue", jobQueue.Name())
	}

	shutdownMgr.RegisterSimple("postgres", pool.Close)
	shutdownMgr.Register("redis", func(context.Context) error { return rdb.Close() })

	// Registered last so it runs first: consumers drain before the stores close.
	consumers := shutdownMgr.Go("consumers", func(ctx context.Context) error {
		return worker.Run(ctx, worker.Deps{
			Runner:      worker.NewProcessor(cfg, repositories.NewTemplateRepository(pool), sp, log),
			Jobs:        repositories.NewJobRepository(pool),
			Queue:       jobQueue,
			Concurrency: cfg.Concurrency,
			PopTimeout:  cfg.PopTimeout,
			Log:         log,
		})
	})
	shutdownMgr.Register("consumers", shutdown.WaitFor(consumers))

	log.Info("worker started",
		"queue", jobQueue.Name(),
		"pending", pending,
		"concurrency", cfg.Concurrency,
		"await_mode", cfg.AwaitMode,
		"render_server", cfg.BaseURL,
	)
	if err := shutdownMgr.Wait(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderbridge/internal/config"
	"renderbridge/internal/httpapi"
	"renderbridge/internal/httpapi/handlers"
	"renderbridge/internal/httpkit"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/pkg/shutdown"
	"renderbridge/internal/repositories"
	"renderbridge/internal/storage"
	"renderbridge/internal/worker"
	"renderbridge/internal/worker/processor"
	"renderbridge/internal/worker/queue"
	"renderbridge/internal/worker/renderer"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: cfg.ServiceName + "-api",
		AddSource:   cfg.LogSource,
	})
	log.Info("starting renderbridge API", "version", version, "env", cfg.Env)

	if cfg.DatabaseURL == "" {
		log.LogFatal("missing required configuration", stderrors.New("DATABASE_URL is not set"))
	}

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)
	ctx := shutdownMgr.Context()

	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)
	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	if err := repositories.EnsureSchema(ctx, pool); err != nil {
		log.LogFatal("failed to apply schema", err)
	}
	log.Info("PostgreSQL connected")

	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	shutdownMgr.Register("redis", func(context.Context) error { return rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	templates := repositories.NewTemplateRepository(pool)
	renderClient := renderer.NewHTTPClient(cfg.BaseURL, cfg.RequestTimeout)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Runner:    worker.NewProcessor(cfg, templates, sp, log),
			Validator: processor.NewJobParser(templates, cfg.DefaultTimeout),
			Jobs:      repositories.NewJobRepository(pool),
			Queue:     queue.NewRedisQueue(rdb, cfg.QueueName),
			Templates: templates,
			SP:        sp,
			Checks: map[string]handlers.Pinger{
				"postgres": handlers.PingFunc(pool.Ping),
				"redis": handlers.PingFunc(func(ctx context.Context) error {
					return rdb.Ping(ctx).Err()
				}),
				"render_server": handlers.PingFunc(func(ctx context.Context) error {
					if !renderClient.Probe(ctx, 1, 0) {
						return stderrors.New("render server unreachable at " + renderClient.Host())
					}
					return nil
				}),
			},
			ServiceName: cfg.ServiceName + "-api",
			Version:     version,
			Log:         log,
		},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:    httpkit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	shutdownMgr.Go("http-server", func(context.Context) error {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := shutdownMgr.Wait(); err != nil {
		os.Exit(1)
	}
}

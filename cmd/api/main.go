package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/taskboard/task-service/internal/api/http"
	"github.com/taskboard/task-service/internal/api/http/handlers"
	"github.com/taskboard/task-service/internal/auth"
	"github.com/taskboard/task-service/internal/cache"
	"github.com/taskboard/task-service/internal/config"
	"github.com/taskboard/task-service/internal/events"
	"github.com/taskboard/task-service/internal/observability"
	"github.com/taskboard/task-service/internal/persistence"
	"github.com/taskboard/task-service/internal/repository"
	"github.com/taskboard/task-service/internal/service"
	"github.com/taskboard/task-service/internal/worker"
)

type store struct {
	users    repository.UserRepository
	tasks    repository.TaskRepository
	postgres *persistence.Postgres
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	var (
		rdb        *persistence.Redis
		statsCache service.StatsCache
	)
	if cfg.Redis.Addr != "" {
		rdb = persistence.NewRedis(ctx, cfg.Redis, logger)
		statsCache = cache.NewStatsCache(rdb.Client, cfg.Cache.KeyPrefix, cfg.Cache.StatsTTL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	dispatcher := events.NewInMemoryDispatcher()
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:   st.users,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	taskService := service.NewTaskService(service.TaskDependencies{
		TaskRepo:   st.tasks,
		Cache:      statsCache,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	worker.StartSubscribers(
		service.NewActivityService(dispatcher, logger, metrics),
		service.NewStatsInvalidator(dispatcher, statsCache),
	)

	checkers := map[string]handlers.Pinger{}
	if st.postgres != nil {
		checkers["postgres"] = st.postgres
	}
	if rdb != nil {
		checkers["redis"] = rdb
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		Timeout:        cfg.App.RequestTimeout,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		BasePath:       cfg.App.BasePath,
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checkers),
		Auth:           handlers.NewAuthHandler(authService),
		Tasks:          handlers.NewTasksHandler(taskService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
		Gatherer:       registry,
	})

	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("base_path", cfg.App.BasePath),
			zap.String("store", cfg.Store.Driver))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.App.ShutdownTimeout, map[string]gfshutdown.Operation{
		// drain requests before closing the stores they use
		"task-service": func(ctx context.Context) error {
			logger.Info("graceful shutdown initiated")
			err := app.ShutdownWithContext(ctx)
			if st.postgres != nil {
				st.postgres.Close()
			}
			if closeErr := rdb.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
			return err
		},
	})

	exitCode := <-wait
	logger.Info("service stopped", zap.Int("exit_code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return &store{
			users: repository.NewMemoryUserRepository(),
			tasks: repository.NewMemoryTaskRepository(),
		}, nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, err
		}
	}

	pool := pg.PoolHandle()
	return &store{
		users:    repository.NewUserRepository(pool),
		tasks:    repository.NewTaskRepository(pool),
		postgres: pg,
	}, nil
}

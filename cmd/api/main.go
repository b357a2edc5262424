package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/credential-service/internal/api/http"
	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/config"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/lock"
	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/persistence"
	"github.com/spec-kit/credential-service/internal/repository"
	"github.com/spec-kit/credential-service/internal/repository/memory"
	"github.com/spec-kit/credential-service/internal/repository/sqlite"
	"github.com/spec-kit/credential-service/internal/service"
	"github.com/spec-kit/credential-service/internal/worker"
)

// stores is the persistence backend selected by STORE_DRIVER.
type stores struct {
	assignments repository.AssignmentRepository
	checks      repository.CheckRepository
	health      handlers.Pinger
	close       func()
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
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Lock.Driver == config.LockRedis {
		locker = lock.NewRedisLocker(redis.Client, logger, cfg.Lock.TTL())
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	var publisher service.Publisher
	if redis.Enabled() {
		publisher = redis.Client
	}
	notifier := service.NewNotificationService(dispatcher, publisher, logger, cfg.Notification)
	worker.StartNotificationWorker(notifier, logger)

	ledger := service.NewCheckLedger(service.CheckLedgerDependencies{
		AssignmentRepo: st.assignments,
		CheckRepo:      st.checks,
		Locker:         locker,
		Dispatcher:     dispatcher,
		Logger:         logger,
		LockWait:       cfg.Lock.Wait(),
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		AssignmentRepo: st.assignments,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})

	metrics := observability.NewMetrics()
	dependencies := map[string]handlers.Pinger{cfg.Store.Driver: st.health}
	if redis.Enabled() {
		dependencies["redis"] = redis
	}

	var authMiddleware *auth.AuthMiddleware
	if cfg.Auth.Enabled {
		authMiddleware = auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, 0))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, dependencies),
		Checks:         handlers.NewChecksHandler(ledger),
		Assignments:    handlers.NewAssignmentsHandler(assignmentService, ledger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		pool := pg.PoolHandle()
		return &stores{
			assignments: repository.NewAssignmentRepository(pool),
			checks:      repository.NewCheckRepository(pool),
			health:      pg,
			close:       pg.Close,
		}, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", zap.String("path", cfg.SQLite.Path))
		return &stores{
			assignments: db.Assignments(),
			checks:      db.Checks(),
			health:      db,
			close:       func() { _ = db.Close() },
		}, nil
	default:
		logger.Info("using in-memory store; data is lost on restart")
		mem := memory.New()
		return &stores{
			assignments: mem.Assignments(),
			checks:      mem.Checks(),
			health:      mem,
			close:       func() {},
		}, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

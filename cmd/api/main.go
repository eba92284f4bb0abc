package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/request-desk/internal/api/http"
	"github.com/spec-kit/request-desk/internal/api/http/handlers"
	"github.com/spec-kit/request-desk/internal/auth"
	"github.com/spec-kit/request-desk/internal/config"
	"github.com/spec-kit/request-desk/internal/events"
	"github.com/spec-kit/request-desk/internal/observability"
	"github.com/spec-kit/request-desk/internal/persistence"
	"github.com/spec-kit/request-desk/internal/ratelimit"
	"github.com/spec-kit/request-desk/internal/repository"
	"github.com/spec-kit/request-desk/internal/service"
	"github.com/spec-kit/request-desk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	requestRepo := repository.NewRequestRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	ackRepo := repository.NewAcknowledgmentRepository(redis.Client)
	store := repository.NewStore(pool)

	var limiter ratelimit.Limiter = ratelimit.Unlimited()
	var authLimiter fiber.Handler
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRedisLimiter(redis.Client, cfg.RateLimit.WriteMax, cfg.RateLimit.Window())
		authLimiter = httptransport.RateLimit("auth", cfg.RateLimit.AuthMax, cfg.RateLimit.Window())
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		StaffRepo:         staffRepo,
		PasswordResetRepo: resetRepo,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, staffRepo)

	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		RequestRepo:  requestRepo,
		ActivityRepo: activityRepo,
		AckRepo:      ackRepo,
		Tx:           store,
		Limiter:      limiter,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		RequestRepo:    requestRepo,
		StaffRepo:      staffRepo,
		DepartmentRepo: departmentRepo,
		Tx:             store,
		Limiter:        limiter,
		Dispatcher:     dispatcher,
	})
	unreadService := service.NewUnreadService(requestRepo, activityRepo, ackRepo, cfg.Sync.RecencyWindow())
	directoryService := service.NewDirectoryService(service.DirectoryDependencies{
		StaffRepo:      staffRepo,
		DepartmentRepo: departmentRepo,
		BcryptCost:     cfg.Auth.BcryptCost,
	})

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	validate := validator.New()
	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	usersHandler := handlers.NewUsersHandler(authService)
	staffHandler := handlers.NewStaffHandler(authService)
	requestsHandler := handlers.NewRequestsHandler(lifecycleService, assignmentService, unreadService, validate)
	directoryHandler := handlers.NewDirectoryHandler(directoryService, validate)
	syncHandler := handlers.NewSyncHandler(cfg.Sync)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Users:          usersHandler,
		Staff:          staffHandler,
		Requests:       requestsHandler,
		Directory:      directoryHandler,
		Sync:           syncHandler,
		AuthMiddleware: authMiddleware,
		AuthLimiter:    authLimiter,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	logger.Info("service started",
		zap.String("addr", cfg.App.Addr()),
		zap.String("env", cfg.App.Env),
		zap.String("version", cfg.App.Version),
	)

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

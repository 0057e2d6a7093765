package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crestwave/acs/internal/api"
	"github.com/crestwave/acs/internal/auth"
	"github.com/crestwave/acs/internal/config"
	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/migration"
	"github.com/crestwave/acs/internal/notify"
	"github.com/crestwave/acs/internal/repository/postgres"
	"github.com/crestwave/acs/internal/service"
	"github.com/crestwave/acs/internal/session"
	"github.com/crestwave/acs/internal/sshext"
	"github.com/crestwave/acs/internal/storage/local"
	"github.com/crestwave/acs/internal/workflow"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Info("starting ACS",
		"listen", cfg.ListenAddr(),
		"db_host", cfg.DB.Host,
		"storage", cfg.Storage.Path,
	)

	// Run migrations
	log.Info("running database migrations")
	if err := postgres.RunMigrations(cfg.DB.DSN()); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations completed")

	// Database connection pool
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	log.Info("database connected")

	// Redis holds CWMP session state so a restart does not orphan
	// conversations mid-flight.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	sessions := session.NewRedisStore(redisClient, cfg.Redis.SessionTTL)
	log.Info("redis connected", "addr", cfg.Redis.Addr)

	// File storage for firmware images
	store, err := local.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	log.Info("storage initialized", "path", cfg.Storage.Path)

	// Repositories
	deviceRepo := postgres.NewDeviceRepo(pool)
	paramRepo := postgres.NewParameterRepo(pool)
	taskRepo := postgres.NewTaskRepo(pool)
	backupRepo := postgres.NewBackupRepo(pool)
	groupRepo := postgres.NewGroupRepo(pool)
	workflowRepo := postgres.NewWorkflowRepo(pool)
	executionRepo := postgres.NewExecutionRepo(pool)
	firmwareRepo := postgres.NewFirmwareRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)
	userRepo := postgres.NewUserRepo(pool)
	mergeRunner := postgres.NewMergeRunner(pool)

	// Connection requests and out-of-band WiFi extraction
	notifier := notify.NewNotifier(nil, log)
	extractor := sshext.NewExtractor(sshext.Config{
		Username: cfg.SSH.Username,
		Password: cfg.SSH.Password,
	}, log)

	// Namespace quirk table
	rules, err := cfg.NamespaceRules()
	if err != nil {
		return fmt.Errorf("namespace rules: %w", err)
	}

	// Workflow engine
	matcher := workflow.NewMatcher(deviceRepo, groupRepo)
	builder := workflow.NewBuilder(paramRepo, backupRepo, firmwareRepo, workflow.BuilderConfig{
		FirmwareBaseURL: cfg.CWMP.FirmwareBaseURL,
	})
	engine := workflow.NewEngine(matcher, builder, workflowRepo, executionRepo, taskRepo, paramRepo, backupRepo, notifier, extractor, log)

	scheduler := workflow.NewScheduler(engine, workflowRepo, log)
	if err := scheduler.Start(cfg.CWMP.SchedulerSpec); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	// TR-098 to TR-181 migration
	planner := migration.NewPlanner(deviceRepo, taskRepo, backupRepo, paramRepo, firmwareRepo, migration.Config{
		RequiredFirmware: cfg.Migration.RequiredFirmware,
		PreconfigURL:     cfg.Migration.PreconfigURL,
		BackupMaxAge:     cfg.Migration.BackupMaxAge,
	}, log)
	verifier := migration.NewVerifier(deviceRepo, taskRepo, backupRepo, paramRepo, log)
	reconciler := migration.NewReconciler(deviceRepo, paramRepo, mergeRunner, log)

	// Services
	acsSvc := service.NewAcsService(deviceRepo, paramRepo, taskRepo, backupRepo, sessions, rules, engine, reconciler, verifier, log)
	deviceSvc := service.NewDeviceService(deviceRepo, paramRepo, notifier, log)
	taskSvc := service.NewTaskService(taskRepo, deviceRepo, log)
	firmwareSvc := service.NewFirmwareService(firmwareRepo, store, log)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Stale device sweep
	cleanupSvc := service.NewCleanupService(deviceRepo, 10*time.Minute, log)
	go cleanupSvc.StartScheduler(ctx, time.Minute)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	if err := bootstrapAdmin(ctx, userRepo, cfg.Auth, log); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// Router
	router := api.NewRouter(api.RouterDeps{
		AcsSvc:      acsSvc,
		DeviceSvc:   deviceSvc,
		TaskSvc:     taskSvc,
		FirmwareSvc: firmwareSvc,
		AuditSvc:    auditSvc,
		Devices:     deviceRepo,
		Users:       userRepo,
		Groups:      groupRepo,
		Workflows:   workflowRepo,
		Executions:  executionRepo,
		Backups:     backupRepo,
		Params:      paramRepo,
		Matcher:     matcher,
		Engine:      engine,
		Planner:     planner,
		Verifier:    verifier,
		JWTManager:  jwtMgr,
		CORSOrigins: cfg.CORS.AllowedOrigins,
		Logger:      log,
	})

	// HTTP Server
	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// bootstrapAdmin creates the initial management account when one is
// configured and missing. An existing account is never overwritten.
func bootstrapAdmin(ctx context.Context, users domain.UserRepository, cfg config.AuthConfig, log *slog.Logger) error {
	if cfg.AdminPassword == "" {
		log.Warn("ACS_ADMIN_PASSWORD not set, management login disabled until a user exists")
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	user := &domain.User{
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Role:         "admin",
	}
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return err
	}

	log.Info("created admin user", "username", cfg.AdminUsername)
	return nil
}

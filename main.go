package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/savoria-foods/quality-engine/pkg/config"
	"github.com/savoria-foods/quality-engine/pkg/database"
	"github.com/savoria-foods/quality-engine/pkg/handlers"
	"github.com/savoria-foods/quality-engine/pkg/logging"
	"github.com/savoria-foods/quality-engine/pkg/repositories"
	"github.com/savoria-foods/quality-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.Database),
		zap.String("database_host", cfg.Database.Host),
		zap.Bool("redis_enabled", cfg.Redis.Host != ""))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// golang-migrate needs a database/sql handle.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Repositories
	templateRepo := repositories.NewTemplateRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	findingRepo := repositories.NewFindingRepository(db)
	capaRepo := repositories.NewCAPARepository(db)
	incidentRepo := repositories.NewIncidentRepository(db)
	branchRepo := repositories.NewBranchRepository(db)
	kitchenRepo := repositories.NewKitchenRepository(db)
	supplierRepo := repositories.NewSupplierRepository(db)
	healthRepo := repositories.NewHealthScoreRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	userRepo := repositories.NewUserRepository(db)

	// Services
	identity := services.NewUserDirectory(userRepo)
	cache := services.NewScoreCache(redisClient)
	autosave := services.NewDraftAutosave(
		time.Duration(cfg.Scoring.AutosaveQuietMs)*time.Millisecond,
		auditRepo.SaveResponses, logger)
	executionService := services.NewAuditExecutionService(
		auditRepo, templateRepo, identity, autosave,
		&cfg.Scoring, &cfg.CAPA, logger)
	healthService := services.NewHealthScoreService(
		auditRepo, findingRepo, capaRepo, incidentRepo,
		branchRepo, kitchenRepo, supplierRepo, healthRepo,
		notificationRepo, identity, cache, &cfg.Health, logger)
	batchService := services.NewBatchService(
		healthService, branchRepo, kitchenRepo, supplierRepo,
		healthRepo, &cfg.Health, logger)

	// Handlers
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAuditHandler(executionService, logger).RegisterRoutes(mux)
	handlers.NewDashboardHandler(healthRepo, cache, batchService, logger).RegisterRoutes(mux)

	// Warm the scores opportunistically on startup.
	batchService.KickIfStale(ctx)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting quality-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

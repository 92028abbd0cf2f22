package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/architect/presence-engine/internal/common/database"
	commonHandlers "github.com/architect/presence-engine/internal/common/handlers"
	"github.com/architect/presence-engine/internal/common/health"
	"github.com/architect/presence-engine/internal/common/metrics"
	"github.com/architect/presence-engine/internal/common/middleware"
	migrationServices "github.com/architect/presence-engine/internal/migration/services"
	sessionHandlers "github.com/architect/presence-engine/internal/session/handlers"
	sessionRepository "github.com/architect/presence-engine/internal/session/repository"
	sessionServices "github.com/architect/presence-engine/internal/session/services"
	visitorHandlers "github.com/architect/presence-engine/internal/visitor/handlers"
	visitorRepository "github.com/architect/presence-engine/internal/visitor/repository"
	visitorServices "github.com/architect/presence-engine/internal/visitor/services"
	"github.com/architect/presence-engine/pkg/config"
	"github.com/architect/presence-engine/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database (SQLite for development, PostgreSQL for production)
	db, err := database.Connect(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One-time schema upgrade; falls back to a clean store on failure.
	migrator := migrationServices.NewSchemaMigrator(db)
	migrationResult, err := migrator.Run(ctx)
	if err != nil {
		logger.Fatal("schema migration failed beyond recovery", zap.Error(err))
	}
	logger.Info("identity store ready", zap.String("migration_outcome", migrationResult.Outcome))

	// Wire the engine
	m := metrics.New()
	visitorSvc := visitorServices.NewVisitorService(visitorRepository.NewVisitorRepository(db), cfg.Presence, m)
	sessionSvc := sessionServices.NewSessionService(sessionRepository.NewSessionRepository(db), cfg.Session, m)

	// Warm the presence set from storage before serving traffic.
	visitorSvc.ResyncPresence(ctx)

	sweeper := visitorServices.NewSweeper(visitorSvc, cfg.Presence)
	sweeper.AddCleanup(func(ctx context.Context) {
		sessionSvc.CleanupExpired(ctx)
	})
	sweeper.Start()
	defer sweeper.Stop()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin engine
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.ErrorHandler())

	// Health check endpoints
	healthChecker := health.NewHealthChecker(db, version)
	healthHandler := commonHandlers.NewHealthHandler(healthChecker)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/readiness", healthHandler.Readiness)
	router.GET("/health/liveness", healthHandler.Liveness)
	router.GET("/health/metrics", healthHandler.Metrics)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	presenceHandler := visitorHandlers.NewPresenceHandler(visitorSvc)
	sessionHandler := sessionHandlers.NewSessionHandler(sessionSvc)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		presenceGroup := v1.Group("/presence")
		{
			presenceGroup.POST("/visits", presenceHandler.RegisterVisit)
			presenceGroup.POST("/online", presenceHandler.MarkOnline)
			presenceGroup.POST("/offline", presenceHandler.MarkOffline)
			presenceGroup.GET("/snapshot", presenceHandler.GetSnapshot)
		}

		sessionGroup := v1.Group("/sessions")
		{
			sessionGroup.POST("", sessionHandler.Issue)
			sessionGroup.POST("/ping", sessionHandler.Ping)
			sessionGroup.DELETE("/:token", sessionHandler.End)
			sessionGroup.GET("/active", sessionHandler.Active)
		}
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    address,
		Handler: router,
	}

	go func() {
		logger.Info("starting presence engine server", zap.String("address", address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

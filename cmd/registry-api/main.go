package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"krishimitra/carbon-registry/registry-backend/internal/api"
	"krishimitra/carbon-registry/registry-backend/internal/certificates"
	"krishimitra/carbon-registry/registry-backend/internal/config"
	"krishimitra/carbon-registry/registry-backend/internal/journal"
	"krishimitra/carbon-registry/registry-backend/internal/ledger"
	"krishimitra/carbon-registry/registry-backend/internal/maintenance"
	"krishimitra/carbon-registry/registry-backend/internal/stream"
	"krishimitra/carbon-registry/registry-backend/pkg/pdf"
	"krishimitra/carbon-registry/registry-backend/pkg/storage"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	gormDB, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to open gorm connection", zap.Error(err))
	}

	// Event observers
	journalRepo, err := journal.NewPostgresRepository(db)
	if err != nil {
		logger.Fatal("failed to initialize event journal", zap.Error(err))
	}
	journalService := journal.NewService(journalRepo, logger)
	streamManager := stream.NewManager(logger)
	sinks := ledger.FanoutSink{journalService, streamManager}

	if cfg.Elastic.Enabled {
		indexer, err := journal.NewIndexer(cfg.Elastic.Addresses, logger)
		if err != nil {
			logger.Fatal("failed to create event indexer", zap.Error(err))
		}
		sinks = append(sinks, indexer)
	}

	certRepo, err := certificates.NewRepository(gormDB)
	if err != nil {
		logger.Fatal("failed to migrate certificates", zap.Error(err))
	}
	var store storage.S3Client
	if cfg.Storage.Enabled {
		store, err = storage.NewS3Client(context.Background(), cfg.Storage.Region)
		if err != nil {
			logger.Fatal("failed to create s3 client", zap.Error(err))
		}
	} else {
		store = storage.NewNoopS3Client()
	}
	certService := certificates.NewService(certRepo, pdf.NewGenerator(), store, cfg.Storage.Bucket, logger)
	sinks = append(sinks, certService)

	// The ledger core
	registryLedger := ledger.New(
		ledger.Principal(cfg.Security.AdminPrincipal),
		ledger.Config{MaxBatchSize: cfg.Marketplace.MaxBatchSize},
		sinks,
		logger,
	)

	// Expired-listing sweep
	sweep := maintenance.NewSweepManager(registryLedger, logger)
	if err := sweep.Start(cfg.Marketplace.SweepInterval); err != nil {
		logger.Fatal("failed to start listing sweep", zap.Error(err))
	}
	defer sweep.Stop()

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := api.NewHandler(registryLedger, journalService, certService, streamManager, logger)
	v1 := router.Group("/api/v1")
	{
		handler.RegisterRoutes(v1, cfg.Security.JWTSecret)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"paused":    registryLedger.Paused(),
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("registry server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
